package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facegate/internal/engine"
	"github.com/kozaktomas/facegate/internal/store"
)

// CredentialsHandler serves enrollment, authentication and gallery
// inspection endpoints.
type CredentialsHandler struct {
	service Service
}

func NewCredentialsHandler(service Service) *CredentialsHandler {
	return &CredentialsHandler{service: service}
}

// resultResponse is the JSON rendering of an engine result.
type resultResponse struct {
	Outcome    engine.Outcome `json:"outcome"`
	Role       string         `json:"role,omitempty"`
	Username   string         `json:"username,omitempty"`
	Distance   float64        `json:"distance"`
	Confidence float64        `json:"confidence"`
	Message    string         `json:"message"`
}

func toResponse(res engine.Result) resultResponse {
	return resultResponse{
		Outcome:    res.Outcome,
		Role:       string(res.Key.Role),
		Username:   res.Key.Username,
		Distance:   res.Distance,
		Confidence: res.Confidence,
		Message:    res.Message,
	}
}

// credentialResponse is the JSON rendering of a stored credential.
// Signatures are never exposed over the API.
type credentialResponse struct {
	Role             string  `json:"role"`
	Username         string  `json:"username"`
	RegistrationTime string  `json:"registration_time"`
	LastLoginTime    *string `json:"last_login_time,omitempty"`
}

func toCredentialResponse(cred store.Credential) credentialResponse {
	resp := credentialResponse{
		Role:             string(cred.Key.Role),
		Username:         cred.Key.Username,
		RegistrationTime: cred.RegistrationTime.UTC().Format(time.RFC3339),
	}
	if cred.LastLoginTime != nil {
		t := cred.LastLoginTime.UTC().Format(time.RFC3339)
		resp.LastLoginTime = &t
	}
	return resp
}

// Enroll handles POST /enroll with multipart fields role, username and image.
func (h *CredentialsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	image, err := readImageUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	role := r.FormValue("role")
	username := r.FormValue("username")

	res, err := h.service.Enroll(r.Context(), role, username, image)
	if err != nil {
		handleServiceError(w, "enroll", role, username, err)
		return
	}

	status := http.StatusCreated
	switch res.Outcome {
	case engine.OutcomeAlreadyEnrolled:
		status = http.StatusConflict
	case engine.OutcomeNoFace, engine.OutcomeMultipleFaces:
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, toResponse(res))
}

// Verify handles POST /verify with multipart fields role, username and image.
// The authentication decision is in the response body; the HTTP status is
// 200 for every completed attempt.
func (h *CredentialsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	image, err := readImageUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	role := r.FormValue("role")
	username := r.FormValue("username")

	res, err := h.service.Verify(r.Context(), role, username, image)
	if err != nil {
		handleServiceError(w, "verify", role, username, err)
		return
	}
	respondJSON(w, http.StatusOK, toResponse(res))
}

// Identify handles POST /identify with a multipart image field.
func (h *CredentialsHandler) Identify(w http.ResponseWriter, r *http.Request) {
	image, err := readImageUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.Identify(r.Context(), image)
	if err != nil {
		log.Printf("identify failed: %v", err)
		respondError(w, http.StatusInternalServerError, "identification failed")
		return
	}
	respondJSON(w, http.StatusOK, toResponse(res))
}

// List handles GET /credentials.
func (h *CredentialsHandler) List(w http.ResponseWriter, r *http.Request) {
	creds, err := h.service.List(r.Context())
	if err != nil {
		log.Printf("list credentials failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list credentials")
		return
	}

	resp := make([]credentialResponse, 0, len(creds))
	for _, cred := range creds {
		resp = append(resp, toCredentialResponse(cred))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":       len(resp),
		"credentials": resp,
	})
}

// Get handles GET /credentials/{role}/{username}.
func (h *CredentialsHandler) Get(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	username := chi.URLParam(r, "username")

	cred, err := h.service.Info(r.Context(), role, username)
	if err != nil {
		if errorsIsNotFound(err) {
			respondError(w, http.StatusNotFound, "credential not found")
			return
		}
		handleServiceError(w, "get credential", role, username, err)
		return
	}
	respondJSON(w, http.StatusOK, toCredentialResponse(*cred))
}

// Roles handles GET /roles.
func (h *CredentialsHandler) Roles(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"roles": h.service.Roles(),
	})
}
