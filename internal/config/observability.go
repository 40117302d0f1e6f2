package config

// ObservabilityConfig holds OTLP tracing configuration.
//
// Tracing exports spans over OTLP/HTTP to a local collector or agent.
// An empty Endpoint disables tracing entirely.
// See internal/observability/tracing.go for detailed setup instructions.
type ObservabilityConfig struct {
	// Endpoint is the OTLP/HTTP collector endpoint, host:port (empty disables tracing)
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
	// Environment is the deployment environment tag (default: dev)
	Environment string `mapstructure:"environment" json:"environment"`
	// ServiceName is the service name attached to exported spans (default: easel)
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	// SampleRatio is the parent-based trace sampling ratio in [0, 1] (default: 1.0)
	SampleRatio float64 `mapstructure:"sample_ratio" json:"sample_ratio"`
}

// Enabled reports whether trace export is configured.
func (o ObservabilityConfig) Enabled() bool {
	return o.Endpoint != ""
}
