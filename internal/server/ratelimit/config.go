// Defines which requests are throttled.

package ratelimit

import (
	"net/http"
	"strings"
	"time"
)

// Tier is a named limiter.
type Tier struct {
	Name    string
	Limiter *Limiter
}

// Config holds the limiters of every tier.
type Config struct {
	Write Tier
}

// NewConfig throttles writes to perMinute requests per client IP, with a
// burst of a tenth of that. It returns nil when perMinute is not positive.
func NewConfig(perMinute int) *Config {
	if perMinute <= 0 {
		return nil
	}
	return &Config{
		Write: Tier{
			Name:    "write",
			Limiter: NewLimiter(perMinute, time.Minute, max(perMinute/10, 1)),
		},
	}
}

// Match returns the tier for a request, or nil when it is not throttled.
//
// Only state-changing API calls count. Shutdown is never throttled so the
// operator can always stop the server.
func (c *Config) Match(method, path string) *Tier {
	if c == nil || !strings.HasPrefix(path, "/api/") || path == "/api/shutdown" {
		return nil
	}
	switch method {
	case http.MethodPost, http.MethodDelete:
		return &c.Write
	}
	return nil
}

// Close stops all limiter cleanup goroutines.
func (c *Config) Close() {
	if c != nil {
		c.Write.Limiter.Close()
	}
}
