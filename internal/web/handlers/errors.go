package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/kozaktomas/facegate/internal/engine"
	"github.com/kozaktomas/facegate/internal/identity"
	"github.com/kozaktomas/facegate/internal/store"
)

// handleServiceError maps engine errors onto HTTP responses. Bad input
// is reported verbatim; everything else is logged with context and
// surfaced as a generic failure.
func handleServiceError(w http.ResponseWriter, op, role, username string, err error) {
	if errors.Is(err, identity.ErrInvalidKey) || errors.Is(err, engine.ErrInvalidImage) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Printf("%s failed for %s/%s: %v", op, sanitizeForLog(role), sanitizeForLog(username), err)
	respondError(w, http.StatusInternalServerError, "internal error")
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
