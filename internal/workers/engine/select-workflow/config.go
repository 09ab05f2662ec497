// internal/workers/engine/select-workflow/config.go
package selectworkflow

import "time"

type Config struct {
	Timeout    time.Duration
	MaxMatches int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:    10 * time.Second,
		MaxMatches: 5,
	}
}
