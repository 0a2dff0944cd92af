package remotejob

import (
	"fmt"
	"net/http"
	"time"
)

const DefaultBaseURL = "https://www.runninghub.cn"

type Config struct {
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
	// Sleep is used between retries; defaults to a context aware sleep.
	Sleep SleepFunc
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	return nil
}
