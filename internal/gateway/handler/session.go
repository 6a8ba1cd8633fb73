package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"shiyin/internal/collection"
	"shiyin/internal/gateway/service/session"
	"shiyin/internal/orchestrator"
	"shiyin/internal/poetry"
	"shiyin/internal/util/jsonutil"
)

const maxBodyBytes = 1 << 20

// SessionHandler serves the session REST surface and its WebSocket.
type SessionHandler struct {
	sessions *session.Manager
	validate *validator.Validate
	log      *zap.Logger
}

func NewSessionHandler(sessions *session.Manager, log *zap.Logger) *SessionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionHandler{
		sessions: sessions,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

// Routes mounts the handler under /api/sessions.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Route("/{sessionID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Post("/actions", h.Dispatch)
		r.Get("/collection", h.ListCollection)
		r.Get("/collection/export", h.ExportCollection)
		r.Put("/collection/import", h.ImportCollection)
		r.Get("/ws", h.ServeWS)
	})
}

type createSessionRequest struct {
	OwnerID  string `json:"owner_id" validate:"omitempty,max=128"`
	Language string `json:"language" validate:"omitempty,oneof=zh en"`
}

// stateView is the wire form of a snapshot.
type stateView struct {
	orchestrator.State
	LoadingMessage string `json:"loadingMessage,omitempty"`
}

func viewOf(s orchestrator.State) *stateView {
	return &stateView{State: s, LoadingMessage: s.LoadingMessage()}
}

type sessionResponse struct {
	SessionID string     `json:"session_id"`
	OwnerID   string     `json:"owner_id"`
	State     *stateView `json:"state"`
}

type collectionResponse struct {
	Items []collection.Item `json:"items"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in createSessionRequest
	if err := decodeBody(r, &in, true); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	lang, _ := poetry.ParseLanguage(in.Language)
	s, err := h.sessions.Create(r.Context(), in.OwnerID, lang)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID: s.ID,
		OwnerID:   s.Owner,
		State:     viewOf(s.Snapshot()),
	})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: s.ID, OwnerID: s.Owner, State: viewOf(s.Snapshot())})
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dispatch runs one intent and answers with the resulting state. Generation
// intents block until the request settles.
func (h *SessionHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var in session.Intent
	if err := decodeBody(r, &in, false); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	st, err := s.Dispatch(r.Context(), in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: s.ID, OwnerID: s.Owner, State: viewOf(st)})
}

func (h *SessionHandler) ListCollection(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var (
		kind poetry.Kind
		lang poetry.Language
		err  error
	)
	if raw := strings.TrimSpace(q.Get("kind")); raw != "" {
		if kind, err = poetry.ParseKind(raw); err != nil {
			writeError(w, r, h.log, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}
	if raw := strings.TrimSpace(q.Get("language")); raw != "" {
		if lang, err = poetry.ParseLanguage(raw); err != nil {
			writeError(w, r, h.log, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}
	writeJSON(w, http.StatusOK, collectionResponse{Items: s.List(kind, lang)})
}

func (h *SessionHandler) ExportCollection(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="shiyin-collection.json"`)
	writeJSON(w, http.StatusOK, s.Export())
}

// ImportCollection replaces the collection. The body is either a bare item
// array, as produced by export, or {"items": [...]}.
func (h *SessionHandler) ImportCollection(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, h.log, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	var items []collection.Item
	if err := jsonutil.UnmarshalList(raw, "items", &items); err != nil {
		writeError(w, r, h.log, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	st, err := s.Import(items)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: s.ID, OwnerID: s.Owner, State: viewOf(st)})
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, h.log, err)
		return nil, false
	}
	return s, true
}

// decodeBody reads a JSON body into v. An empty body is only accepted when
// allowEmpty is set.
func decodeBody(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return nil
	}
	return fmt.Errorf("%w: invalid json body: %v", errBadRequest, err)
}
