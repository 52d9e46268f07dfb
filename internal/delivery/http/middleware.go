package http

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shelfscan/backend/config"
)

// corsPolicy is the set of dashboard origins from server.allowed_origins. An entry ending in ":*"
// admits any port of that host and a lone "*" admits every origin.
type corsPolicy struct {
	any   bool
	exact map[string]bool
	hosts []string
}

func newCORSPolicy(origins []string) *corsPolicy {
	p := &corsPolicy{exact: make(map[string]bool, len(origins))}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "*":
			p.any = true
		case strings.HasSuffix(o, ":*"):
			p.hosts = append(p.hosts, strings.TrimSuffix(o, "*"))
		case o != "":
			p.exact[o] = true
		}
	}
	return p
}

func (p *corsPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.any || p.exact[origin] {
		return true
	}
	for _, host := range p.hosts {
		port, ok := strings.CutPrefix(origin, host)
		if ok && isPort(port) {
			return true
		}
	}
	return false
}

func isPort(s string) bool {
	if s == "" || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CORSMiddleware lets configured dashboards poll the status API. The API is read-only and
// unauthenticated, so only GET is offered and credentials are never allowed. Preflights from
// unknown origins are refused.
func CORSMiddleware(cfg config.ServerConfig) gin.HandlerFunc {
	policy := newCORSPolicy(cfg.AllowedOrigins)
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		c.Header("Vary", "Origin")
		allowed := policy.allows(origin)
		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			if !allowed {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware logs one line per request through the standard logger
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("[HTTP] %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

// RecoveryMiddleware recovers from panics
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.Recovery()
}
