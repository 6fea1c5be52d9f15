package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/neo-alexandria/neoalex/internal/errors"
)

// errorBody is the standard error shape.
type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encoding failed", "error", err)
	}
}

// writeError maps an error to its status and the {"detail": msg} shape.
// Internal errors never leak their message.
func writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		detail = "internal server error"
	}
	writeJSON(w, status, errorBody{Detail: detail})
}

// writeSchemaError reports malformed request bodies (422).
func writeSchemaError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: "invalid request body: " + err.Error()})
}

// decodeJSON strictly decodes a request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
