package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/bisq-support/review-engine/internal/apperr"
	"github.com/bisq-support/review-engine/internal/model"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error   string             `json:"error"`
	Field   string             `json:"field,omitempty"`
	Current string             `json:"current,omitempty"`
	Matches []model.SimilarFAQ `json:"matches,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

// writeError maps the error taxonomy to status codes: validation 400,
// not found 404, conflict 409, anything else 500.
func writeError(w http.ResponseWriter, err error) {
	var (
		ve *apperr.ValidationError
		ne *apperr.NotFoundError
		ce *apperr.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error(), Field: ve.Field})
	case errors.As(err, &ne):
		writeJSON(w, http.StatusNotFound, errorBody{Error: ne.Error()})
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, errorBody{Error: ce.Error(), Current: ce.Current, Matches: ce.Matches})
	default:
		zap.L().Error("api: internal error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// decode reads a JSON body into v. An empty body leaves v unchanged.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Validation("body", "invalid JSON: "+err.Error())
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation(key, "must be a non-negative integer")
	}
	return n, nil
}

func pagination(r *http.Request) (limit, offset int, err error) {
	if limit, err = queryInt(r, "limit"); err != nil {
		return 0, 0, err
	}
	offset, err = queryInt(r, "offset")
	return limit, offset, err
}
