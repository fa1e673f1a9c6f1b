package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/fnhost/internal/core/credential"
	"github.com/artpar/fnhost/internal/core/paging"
	"github.com/artpar/fnhost/internal/shell/store"
)

// =============================================================================
// Credential Handlers
// =============================================================================

func (h *Handler) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := paging.Parse(q.Get("page"), q.Get("limit"))

	creds, err := h.store.ListCredentials(r.Context(), store.ListOptions{
		Limit:  page.Limit,
		Offset: page.Offset(),
	})
	if err != nil {
		h.logger.Error("failed to list credentials", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list credentials", "internal_error")
		return
	}
	if creds == nil {
		creds = []credential.Credential{}
	}

	h.writeJSON(w, http.StatusOK, ListCredentialsResponse{Data: creds})
}

func (h *Handler) handleCreateCredential(w http.ResponseWriter, r *http.Request) {
	var in credential.Input
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "invalid_json")
		return
	}

	cred, err := credential.New(in, h.secretKey)
	if err != nil {
		var ierr *credential.InputError
		if errors.As(err, &ierr) {
			h.writeFieldErrors(w, map[string]string{ierr.Field: ierr.Message})
			return
		}
		h.logger.Error("failed to seal credential", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create credential", "internal_error")
		return
	}

	if err := h.store.CreateCredential(r.Context(), cred); err != nil {
		h.logger.Error("failed to create credential", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create credential", "internal_error")
		return
	}

	h.logger.Info("credential created", "credential_id", cred.ID, "type", cred.Type)
	h.writeJSON(w, http.StatusCreated, cred)
}

func (h *Handler) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cred, err := h.store.GetCredential(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "Credential not found", "credential_not_found")
			return
		}
		h.logger.Error("failed to get credential", "credential_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get credential", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, cred)
}

func (h *Handler) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteCredential(r.Context(), id); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "Credential not found", "credential_not_found")
			return
		}
		h.logger.Error("failed to delete credential", "credential_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete credential", "internal_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
