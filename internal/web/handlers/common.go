package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/facegate/internal/auditlog"
	"github.com/kozaktomas/facegate/internal/engine"
	"github.com/kozaktomas/facegate/internal/identity"
	"github.com/kozaktomas/facegate/internal/store"
)

// maxUploadSize caps multipart uploads at 32 MB.
const maxUploadSize = 32 << 20

// Service is the part of the verification engine the HTTP handlers use.
type Service interface {
	Enroll(ctx context.Context, role, username string, image []byte) (engine.Result, error)
	Verify(ctx context.Context, role, username string, image []byte) (engine.Result, error)
	Identify(ctx context.Context, image []byte) (engine.Result, error)
	Info(ctx context.Context, role, username string) (*store.Credential, error)
	List(ctx context.Context) ([]store.Credential, error)
	Audit(day time.Time) ([]auditlog.Record, error)
	Roles() []identity.Role
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// readImageUpload extracts the "image" part from a multipart form.
func readImageUpload(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, fmt.Errorf("missing image upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read image upload: %w", err)
	}
	return data, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
