package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
)

// readinessTimeout bounds every backend check behind /readyz.
const readinessTimeout = 2 * time.Second

// ReadinessCheck reports whether one storage backend can serve requests.
type ReadinessCheck func(ctx context.Context) error

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// livenessHandler answers as long as the process serves HTTP; it never touches storage.
func livenessHandler(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, r, http.StatusOK, healthStatus{Status: "ok"})
}

// HealthHandlers serves /readyz over the configured backends.
type HealthHandlers struct {
	Checks map[string]ReadinessCheck
	Logger *slog.Logger
}

// Ready runs every check in name order and answers 503 if any fails.
// Failures are reported by error code only; causes go to the log.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	out := healthStatus{Status: "ok", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for _, name := range names {
		err := h.Checks[name](ctx)
		if err == nil {
			out.Checks[name] = "ok"
			continue
		}
		code := apperrors.GetCode(err)
		if code == "" {
			code = apperrors.ErrCodeStorageUnavailable
		}
		out.Checks[name] = string(code)
		out.Status = "unavailable"
		status = http.StatusServiceUnavailable
		orDefaultLogger(h.Logger).WarnContext(r.Context(), "readiness check failed", "check", name, "error", err)
	}
	writeHealth(w, r, status, out)
}

func writeHealth(w http.ResponseWriter, r *http.Request, status int, body healthStatus) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		return
	}
	WriteJSON(w, status, body)
}
