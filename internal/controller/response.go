package controller

import (
	"encoding/json"
	"log/slog"
	"net/http"

	appErrors "github.com/unclebandit/followup-engine/internal/errors"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as {error:{code,message}}. Internal failures are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status := appErrors.HTTPStatus(err)
	message := err.Error()

	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		message = "internal server error"
	}

	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    appErrors.GetErrorCode(err),
		Message: message,
	}})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return appErrors.NewAppError(
			appErrors.Wrap(appErrors.ErrInvalidInput, "invalid body"),
			"invalid body: "+err.Error(),
			appErrors.CodeInvalidInput,
		)
	}
	return nil
}
