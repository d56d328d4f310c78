package config

import (
	"fmt"
	"strings"
)

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `json:"addr"`
	// Token, when set, is required as a bearer token on every route
	// except /metrics and /health.
	Token              string `json:"token"`
	ReadTimeoutSeconds int    `json:"read_timeout_seconds"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeoutSeconds <= 0 {
		c.ReadTimeoutSeconds = 30
	}
}

func (c HTTPConfig) Validate() error {
	if !strings.Contains(c.Addr, ":") {
		return fmt.Errorf("addr %q must be host:port", c.Addr)
	}
	return nil
}
