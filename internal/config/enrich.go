package config

// EnrichConfig holds the link unfurling fetcher configuration.
//
// When enabled, URLs pasted into chat messages are fetched and stored on
// the message as search results with their titles and excerpts filled in.
// Fetching is polite by default: low parallelism, a fixed inter-request
// delay, and a hard per-request timeout.
type EnrichConfig struct {
	// Enabled turns the fetcher on (default: false)
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Parallelism is max concurrent requests per domain (default: 2)
	Parallelism int `mapstructure:"parallelism" json:"parallelism"`
	// DelayMs is delay between requests in milliseconds (default: 1000)
	DelayMs int `mapstructure:"delay_ms" json:"delay_ms"`
	// TimeoutMs is request timeout in milliseconds (default: 30000)
	TimeoutMs int `mapstructure:"timeout_ms" json:"timeout_ms"`
}
