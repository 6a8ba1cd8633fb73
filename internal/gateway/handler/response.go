package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"shiyin/internal/collection"
	collectionrepo "shiyin/internal/gateway/repository/collection"
	"shiyin/internal/gateway/service/session"
	"shiyin/internal/orchestrator"
	"shiyin/internal/util/jsonutil"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// classify maps domain errors onto an HTTP status and a stable code that
// is also used for WebSocket error frames.
func classify(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, orchestrator.ErrItemNotFound),
		errors.Is(err, orchestrator.ErrCardNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, orchestrator.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, orchestrator.ErrNoPoem),
		errors.Is(err, orchestrator.ErrNoLetter):
		return http.StatusConflict, "failed_precondition"
	case errors.Is(err, orchestrator.ErrClosed),
		errors.Is(err, session.ErrClosed):
		return http.StatusGone, "gone"
	case errors.Is(err, errBadRequest),
		errors.Is(err, session.ErrInvalidIntent),
		errors.Is(err, collectionrepo.ErrInvalidOwner),
		errors.Is(err, collection.ErrUnknownKind),
		errors.As(err, &verrs):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "canceled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := jsonutil.MarshalNoEscape(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	if r.Context().Err() != nil {
		// The client is gone; nobody reads the response.
		return
	}
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}
