// Package httpapi exposes a runtime.Orchestrator over stdlib net/http,
// mirroring the canonical JSON wire forms from the protocol's external
// interfaces: camelCase keys, an {ok, ...} success envelope, and an
// {ok: false, ...} error envelope on every failure.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/c360studio/intake/intake"
	"github.com/c360studio/intake/runtime"
)

// Handler binds a runtime.Orchestrator to an HTTP surface.
type Handler struct {
	orch   *runtime.Orchestrator
	logger *slog.Logger
}

// NewHandler constructs a Handler for orch.
func NewHandler(orch *runtime.Orchestrator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{orch: orch, logger: logger}
}

// Register attaches the orchestrator's routes to mux under prefix (e.g.
// "/v1"). It uses Go 1.22+ ServeMux method-and-wildcard patterns.
func (h *Handler) Register(prefix string, mux *http.ServeMux) {
	mux.HandleFunc("POST "+prefix+"/submissions", h.handleCreate)
	mux.HandleFunc("GET "+prefix+"/submissions/{id}", h.handleGet)
	mux.HandleFunc("PATCH "+prefix+"/submissions/{id}/fields/{path}", h.handleUpdateField)
	mux.HandleFunc("POST "+prefix+"/submissions/{id}/submit", h.handleSubmit)
	mux.HandleFunc("POST "+prefix+"/submissions/{id}/request-review", h.handleRequestReview)
	mux.HandleFunc("POST "+prefix+"/submissions/{id}/review", h.handleReview)
	mux.HandleFunc("POST "+prefix+"/submissions/{id}/finalize", h.handleFinalize)
	mux.HandleFunc("POST "+prefix+"/submissions/{id}/cancel", h.handleCancel)
	mux.HandleFunc("GET "+prefix+"/resume/{token}", h.handleResume)
}

type createRequest struct {
	Actor          intake.Actor   `json:"actor"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
	InitialFields  map[string]any `json:"initialFields,omitempty"`
	TTLMillis      *int64         `json:"ttlMs,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}

	env, ierr := h.orch.CreateSubmission(r.Context(), req.Actor, req.IdempotencyKey, req.InitialFields, req.TTLMillis)
	h.reply(w, http.StatusCreated, env, ierr)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	env, ierr := h.orch.GetSubmission(r.Context(), id)
	h.reply(w, http.StatusOK, env, ierr)
}

type fieldUpdateRequest struct {
	Actor intake.Actor `json:"actor"`
	Value any          `json:"value"`
}

func (h *Handler) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path := r.PathValue("path")

	var req fieldUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}

	env, ierr := h.orch.UpdateField(r.Context(), id, req.Actor, path, req.Value)
	h.reply(w, http.StatusOK, env, ierr)
}

type actorRequest struct {
	Actor intake.Actor `json:"actor"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	env, ierr := h.orch.Submit(r.Context(), id, req.Actor)
	h.reply(w, http.StatusOK, env, ierr)
}

func (h *Handler) handleRequestReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	env, ierr := h.orch.RequestReview(r.Context(), id, req.Actor)
	h.reply(w, http.StatusOK, env, ierr)
}

type reviewRequest struct {
	Actor   intake.Actor `json:"actor"`
	Approve bool         `json:"approve"`
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	env, ierr := h.orch.Review(r.Context(), id, req.Actor, req.Approve)
	h.reply(w, http.StatusOK, env, ierr)
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	env, ierr := h.orch.Finalize(r.Context(), id, req.Actor)
	h.reply(w, http.StatusOK, env, ierr)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	env, ierr := h.orch.Cancel(r.Context(), id, req.Actor)
	h.reply(w, http.StatusOK, env, ierr)
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	env, ierr := h.orch.Resume(r.Context(), token)
	h.reply(w, http.StatusOK, env, ierr)
}

// reply writes env as the success envelope on nil error, or translates
// ierr into the {ok: false, ...} error envelope with an appropriate status.
func (h *Handler) reply(w http.ResponseWriter, successStatus int, env any, ierr *intake.IntakeError) {
	w.Header().Set("Content-Type", "application/json")

	if ierr == nil {
		w.WriteHeader(successStatus)
		if err := json.NewEncoder(w).Encode(env); err != nil {
			h.logger.Error("httpapi: failed to encode response", "error", err)
		}
		return
	}

	w.WriteHeader(statusForError(ierr.Err.Type))
	body := struct {
		OK bool `json:"ok"`
		*intake.IntakeError
	}{OK: false, IntakeError: ierr}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("httpapi: failed to encode error response", "error", err)
	}
}

func statusForError(errType intake.ErrorType) int {
	switch errType {
	case intake.ErrNotFound:
		return http.StatusNotFound
	case intake.ErrConflict, intake.ErrCancelled, intake.ErrExpired:
		return http.StatusConflict
	case intake.ErrMissing, intake.ErrInvalid:
		return http.StatusUnprocessableEntity
	case intake.ErrNeedsApproval, intake.ErrUploadPending:
		return http.StatusAccepted
	case intake.ErrDeliveryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeDecodeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}{OK: false, Error: errors.New("malformed request body: " + err.Error()).Error()})
}
