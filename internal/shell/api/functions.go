package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/fnhost/internal/core/function"
	"github.com/artpar/fnhost/internal/core/paging"
	"github.com/artpar/fnhost/internal/core/schema"
	"github.com/artpar/fnhost/internal/core/submission"
	"github.com/artpar/fnhost/internal/shell/store"
)

// =============================================================================
// Function Handlers
// =============================================================================

func (h *Handler) handleListFunctions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := paging.Parse(q.Get("page"), q.Get("limit"))

	functions, total, err := h.store.ListFunctions(r.Context(), store.FunctionListOptions{
		ListOptions: store.ListOptions{Limit: page.Limit, Offset: page.Offset()},
		Search:      q.Get("search"),
	})
	if err != nil {
		h.logger.Error("failed to list functions", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list functions", "internal_error")
		return
	}
	if functions == nil {
		functions = []function.Function{}
	}

	h.writeJSON(w, http.StatusOK, ListFunctionsResponse{
		Data:       functions,
		Pagination: page.Describe(total),
	})
}

func (h *Handler) handleCreateFunction(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, "", http.StatusCreated)
}

func (h *Handler) handleUpdateFunction(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

// submit runs the submission controller for a create (empty id) or update.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request, id string, status int) {
	intent := submission.IntentDraft
	if raw := r.URL.Query().Get("intent"); raw != "" {
		parsed, err := submission.ParseIntent(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error(), "invalid_intent")
			return
		}
		intent = parsed
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body", "invalid_body")
		return
	}
	candidate, err := function.ParseCandidate(body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "invalid_json")
		return
	}

	out, err := h.controller.Submit(r.Context(), submission.Request{
		ID:        id,
		Candidate: candidate,
		Intent:    intent,
	})
	if err != nil {
		h.writeSubmitError(w, id, err)
		return
	}

	if out.Intent == submission.IntentDeploy {
		h.logger.Info("deployment triggered", "function_id", out.Function.ID, "runtime", out.Function.Runtime)
	}
	h.writeJSON(w, status, out.Function)
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, id string, err error) {
	var verr *submission.ValidationError
	var perr *submission.PolicyError
	var ierr *function.InputError

	switch {
	case errors.As(err, &verr):
		h.writeFieldErrors(w, verr.Fields)
	case errors.As(err, &perr):
		h.writeError(w, http.StatusUnprocessableEntity, perr.Error(), "policy_error")
	case errors.As(err, &ierr):
		h.writeFieldErrors(w, ierr.Fields)
	case isNotFound(err):
		h.writeError(w, http.StatusNotFound, "Function not found", "function_not_found")
	default:
		h.logger.Error("failed to save function", "function_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to save function", "internal_error")
	}
}

func (h *Handler) handleGetFunction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	fn, err := h.store.GetFunction(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "Function not found", "function_not_found")
			return
		}
		h.logger.Error("failed to get function", "function_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get function", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, fn)
}

func (h *Handler) handleDeleteFunction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteFunction(r.Context(), id); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "Function not found", "function_not_found")
			return
		}
		h.logger.Error("failed to delete function", "function_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete function", "internal_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleTestInput checks a payload against the function's input schema.
// Nothing is executed.
func (h *Handler) handleTestInput(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	fn, err := h.store.GetFunction(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "Function not found", "function_not_found")
			return
		}
		h.logger.Error("failed to get function", "function_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get function", "internal_error")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body", "invalid_body")
		return
	}

	report, err := schema.Check(fn.InputSchema, payload)
	switch {
	case errors.Is(err, schema.ErrInvalidPayload):
		h.writeError(w, http.StatusBadRequest, err.Error(), "invalid_json")
		return
	case errors.Is(err, schema.ErrInvalidSchema):
		h.logger.Info("input schema did not compile", "function_id", id, "error", err)
		h.writeError(w, http.StatusUnprocessableEntity, schema.ErrInvalidSchema.Error(), "invalid_schema")
		return
	case err != nil:
		h.logger.Error("failed to check test input", "function_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to check test input", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}
