// internal/workers/fertilizer/fetch-metadata/config.go
package fetchmetadata

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
