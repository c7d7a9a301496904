package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
)

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantField  string
		retryAfter string
	}{
		{
			name:       "validation names the field",
			err:        apperrors.ValidationField("next", "redirect target must be relative"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "validation",
			wantField:  "next",
		},
		{
			name:       "storage outage is retryable",
			err:        apperrors.StorageUnavailable(errors.New("dial tcp 10.0.0.5:6379: refused"), "load session"),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "storage_unavailable",
			retryAfter: "1",
		},
		{
			name:       "provider outage is retryable",
			err:        apperrors.TransportFailure(errors.New("EOF"), "token exchange"),
			wantStatus: http.StatusBadGateway,
			wantCode:   "transport_failure",
			retryAfter: "1",
		},
		{
			name:       "rejection is final",
			err:        apperrors.ProviderRejected(errors.New("bad_verification_code"), "code rejected"),
			wantStatus: http.StatusUnauthorized,
			wantCode:   "provider_rejected",
		},
		{
			name:       "plain error is internal",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeAppError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.retryAfter, rec.Header().Get("Retry-After"))

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body["error"])
			assert.Equal(t, tt.wantField, body["field"])
			assert.NotContains(t, rec.Body.String(), "10.0.0.5")
		})
	}
}
