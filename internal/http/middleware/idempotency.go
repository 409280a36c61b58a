// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header on sends, stashes it in the
// request context and, through a caller-supplied lookup, flags requests that
// would replay an already settled send. Handlers decide how to serve a
// replay; the rate limiter lets flagged requests through without spending a
// token.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: a settled send exists for the key
	ctxKeyRateBypass = "rate.bypass" // bool: skip rate limiting
	ctxKeyUserID     = "userID"
)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := ctxString(c, ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether the lookup found a settled send for this key.
func IsReplay(c *gin.Context) bool { return ctxBool(c, ctxKeyIdemReplay) }

func ctxString(c *gin.Context, key string) string {
	s, _ := c.Value(key).(string)
	return s
}

func ctxBool(c *gin.Context, key string) bool {
	b, _ := c.Value(key).(bool)
	return b
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
	// Scope names what a key is unique within (the active room for sends).
	// Defaults to the :id path parameter.
	Scope func(*gin.Context) string
}

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyLookup answers whether a still-valid settled send exists for
// (userID, scope, key). TTL is enforced by the implementation.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header when present.
//
//   - absent header: no-op
//   - malformed header: 400 bad_idempotency_key
//   - lookup hit: request is flagged as a replay and exempt from rate limiting
//
// Lookup errors are ignored; the request proceeds as a fresh one.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	if opts.MaxLen <= 0 {
		opts.MaxLen = 200
	}
	if opts.Pattern == nil {
		opts.Pattern = defaultKeyPattern
	}
	if opts.Scope == nil {
		opts.Scope = func(c *gin.Context) string { return c.Param("id") }
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		switch {
		case key == "":
		case len(key) > opts.MaxLen || !opts.Pattern.MatchString(key):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		default:
			c.Set(ctxKeyIdemKey, key)
			if lookup == nil {
				break
			}
			hit, _ := lookup(c.Request.Context(), userIDFromCtx(c), opts.Scope(c), key, time.Now().UTC())
			if hit {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

// SetUserID records the caller's identity for logging, rate limiting and
// idempotency scoping.
func SetUserID(c *gin.Context, id string) {
	if id != "" {
		c.Set(ctxKeyUserID, id)
	}
}

// userIDFromCtx returns the identity recorded by SetUserID, or "anonymous".
func userIDFromCtx(c *gin.Context) string {
	if s := ctxString(c, ctxKeyUserID); s != "" {
		return s
	}
	return "anonymous"
}
