package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"go-saas-auth/internal/model"
	"go-saas-auth/pkg/apierror"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError is the single place where service failures become HTTP
// responses. Anything that is not an *apierror.Error is logged and reported
// as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if apiErr, ok := apierror.As(err); ok {
		writeJSON(w, apiErr.Kind.Status(), model.ErrorResponse{
			Error:   apiErr.Kind.String(),
			Message: apiErr.Message,
		})
		return
	}

	slog.ErrorContext(r.Context(), "unhandled error", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{
		Error:   "InternalServerError",
		Message: "internal server error",
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apierror.Validation("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierror.Validation("request body too large")
		}
		return apierror.Validation("invalid JSON body")
	}

	return nil
}
