package recorddelivery

import "time"

type Config struct {
	Timeout time.Duration
	// Source is stored on every delivery record this worker appends.
	Source string
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
		Source:  "broadcast",
	}
}
