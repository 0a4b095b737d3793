package app

import (
	"errors"
	"fmt"
)

// Validate checks the configuration before an App is built from it.
func (c *AppConfig) Validate() error {
	if c.GridPath == "" {
		return errors.New("GridPath is a required configuration field and cannot be empty")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.WorkerCount)
	}
	if c.HealthcheckPort < 0 || c.HealthcheckPort > 65535 {
		return fmt.Errorf("invalid healthcheck port %d", c.HealthcheckPort)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q, expected text or json", c.LogFormat)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
