// internal/workers/fertilizer/predict-fertilizer/config.go
package predictfertilizer

import "time"

type Config struct {
	Timeout time.Duration
	// StrictCrops rejects crops missing from the service metadata.
	StrictCrops bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
