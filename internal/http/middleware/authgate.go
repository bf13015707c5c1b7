// Package middleware – internal authgate.
//
// This file guards the internal callback and dispatch surface. Generation
// workers and operator tooling are the only legitimate callers, so the gate
// combines a shared-key header check (constant-time compare) with an optional
// source-network allowlist. Either check failing aborts with a 401 envelope
// before any handler logic runs.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"net/netip"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// AuthHeader carries the shared internal key on every gated request.
const AuthHeader = "X-Internal-Auth-Key"

// GateOptions configures the internal authgate.
type GateOptions struct {
	// Key is the shared secret expected in AuthHeader. Empty disables the
	// header check (allowed only together with DebugBypass).
	Key string
	// AllowedCIDRs restricts callers to the given source networks. Empty
	// allows any source.
	AllowedCIDRs []string
	// DebugBypass disables the gate entirely. Never set outside local dev.
	DebugBypass bool
}

// AuthGate returns middleware enforcing the internal-caller policy.
//
// Invalid CIDRs in opts are logged and skipped at construction so a typo in
// configuration cannot silently widen the allowlist to everyone.
func AuthGate(opts GateOptions) gin.HandlerFunc {
	prefixes := make([]netip.Prefix, 0, len(opts.AllowedCIDRs))
	for _, cidr := range opts.AllowedCIDRs {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			log.Error().Str("cidr", cidr).Err(err).Msg("authgate: invalid CIDR skipped")
			continue
		}
		prefixes = append(prefixes, p)
	}

	return func(c *gin.Context) {
		if opts.DebugBypass {
			c.Next()
			return
		}

		if opts.Key != "" {
			got := c.GetHeader(AuthHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(opts.Key)) != 1 {
				deny(c, "invalid internal auth key")
				return
			}
		}

		if len(prefixes) > 0 {
			addr, err := netip.ParseAddr(c.ClientIP())
			if err != nil || !allowed(prefixes, addr) {
				deny(c, "source address not allowed")
				return
			}
		}

		c.Next()
	}
}

func allowed(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr.Unmap()) {
			return true
		}
	}
	return false
}

func deny(c *gin.Context, msg string) {
	rid, _ := c.Get(requestIDKey)
	log.Warn().
		Str("request_id", asString(rid)).
		Str("remote_ip", c.ClientIP()).
		Str("path", c.Request.URL.Path).
		Msg("authgate: request denied")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": asString(rid),
		"code":       "unauthorized",
		"message":    msg,
	})
}
