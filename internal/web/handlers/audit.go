package handlers

import (
	"log"
	"net/http"
	"time"
)

// AuditHandler exposes the audit trail for inspection.
type AuditHandler struct {
	service Service
}

func NewAuditHandler(service Service) *AuditHandler {
	return &AuditHandler{service: service}
}

// Get handles GET /audit?date=2006-01-02. The date defaults to the
// current UTC day.
func (h *AuditHandler) Get(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
		day = parsed
	}

	records, err := h.service.Audit(day)
	if err != nil {
		log.Printf("failed to read audit log: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"date":    day.Format("2006-01-02"),
		"count":   len(records),
		"records": records,
	})
}
