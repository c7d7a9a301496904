package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"

	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
)

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Message string
	Field   string
}

// WriteError writes a JSON error response using ErrorParams.
// Only the code and a client-safe message are written, never the cause.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	msg := p.Message
	if msg == "" {
		msg = http.StatusText(p.Code)
	}
	body := map[string]string{"error": p.ErrCode, "message": msg}
	if p.Field != "" {
		body["field"] = p.Field
	}
	WriteJSON(w, p.Code, body)
}

// statusForError maps application error codes to HTTP status codes.
func statusForError(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeCSRFMismatch, apperrors.ErrCodeProviderRejected:
		return http.StatusUnauthorized
	case apperrors.ErrCodeTransportFailure:
		return http.StatusBadGateway
	case apperrors.ErrCodeStorageUnavailable, apperrors.ErrCodeTimeout:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// retryAfterSeconds is advertised on errors a client may retry unchanged.
const retryAfterSeconds = "1"

// writeAppError writes err as a JSON error without exposing its cause.
func writeAppError(w http.ResponseWriter, err error) {
	code := string(apperrors.GetCode(err))
	if code == "" {
		code = string(apperrors.ErrCodeInternal)
	}
	if apperrors.IsRetryable(err) {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	WriteError(w, ErrorParams{Code: statusForError(err), ErrCode: code, Field: apperrors.GetField(err)})
}
