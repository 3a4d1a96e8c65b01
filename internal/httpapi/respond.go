package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/stockassistant/orchestrator/internal/apperrors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// errorBody is the closed error shape spec.md section 6 mandates:
// {error:{code,message,retryable}, correlation_id}.
type errorBody struct {
	Error struct {
		Code      apperrors.Code `json:"code"`
		Message   string         `json:"message"`
		Retryable bool           `json:"retryable"`
	} `json:"error"`
	CorrelationID string `json:"correlation_id"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	svcErr := apperrors.As(err)
	body := errorBody{CorrelationID: correlationIDFrom(r.Context())}
	body.Error.Code = svcErr.Code
	body.Error.Message = svcErr.Message
	body.Error.Retryable = svcErr.Retryable
	writeJSON(w, svcErr.HTTPStatus, body)
}

func decodeJSON(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return apperrors.InvalidInput("request body must be valid JSON")
	}
	return nil
}
