package api

import "time"

// Config holds server configuration.
type Config struct {
	Port              int
	DataPath          string
	AllowedOrigins    []string      // CORS and websocket origins (empty = allow all)
	CacheTTL          time.Duration // Lifetime of cached facet listings
	RateLimitRequests int           // Requests per minute (0 = disabled)
	RateLimitBurst    int           // Burst size
	MaxPageSize       int           // Upper bound for ?limit=
}

// DefaultConfig returns the configuration used by `iguide serve`.
func DefaultConfig() Config {
	return Config{
		Port:        8080,
		CacheTTL:    5 * time.Minute,
		MaxPageSize: 1000,
	}
}

const (
	defaultPageSize = 100
	responseEntries = 64
)
