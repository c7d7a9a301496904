package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry is a private Prometheus registry carrying every instrument the process exposes.
type Registry struct {
	Gatherer prometheus.Gatherer
	Auth     *AuthMetrics
	HTTP     *HTTPMetrics
}

// NewRegistry registers the auth, HTTP, Go runtime and process collectors on a fresh registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{
		Gatherer: reg,
		Auth:     NewAuthMetrics(reg),
		HTTP:     NewHTTPMetrics(reg),
	}
}
