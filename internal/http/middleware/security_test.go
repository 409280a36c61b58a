package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(t *testing.T, opt SecurityOptions, pre gin.HandlerFunc, req *http.Request) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func withRequestID(c *gin.Context) {
	c.Header(requestIDHeader, "rid-1")
	c.Next()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveSecurity(t, SecurityOptions{}, withRequestID, httptest.NewRequest(http.MethodGet, "/ok", nil))

	if h.Get("X-Content-Type-Options") != "nosniff" || h.Get("X-Frame-Options") != "DENY" || h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline headers missing: %#v", h)
	}
	for _, k := range []string{"Permissions-Policy", "Cache-Control", "Strict-Transport-Security"} {
		if h.Get(k) != "" {
			t.Fatalf("unexpected %s", k)
		}
	}
	if got := h.Get("Access-Control-Expose-Headers"); got != "X-Request-ID" {
		t.Fatalf("expose = %q", got)
	}
}

func TestSecurityHeaders_ExposeMerge(t *testing.T) {
	pre := func(c *gin.Context) {
		c.Header(requestIDHeader, "rid-1")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID, Foo")
		c.Next()
	}
	h := serveSecurity(t, SecurityOptions{Expose: []string{"Idempotency-Replayed"}}, pre, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if got := h.Get("Access-Control-Expose-Headers"); got != "X-Request-ID, Foo, Idempotency-Replayed" {
		t.Fatalf("expose = %q", got)
	}

	// Without a request id nothing is exposed.
	h = serveSecurity(t, SecurityOptions{}, nil, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if got := h.Get("Access-Control-Expose-Headers"); got != "" {
		t.Fatalf("expose = %q, want empty", got)
	}
}

func TestSecurityHeaders_Optional(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour, NoStore: true, EnablePolicy: true}

	plain := serveSecurity(t, opt, nil, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if plain.Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS must not be sent over plain HTTP")
	}
	if plain.Get("Cache-Control") != "no-store" || plain.Get("Pragma") != "no-cache" || plain.Get("Expires") != "0" {
		t.Fatalf("no-store headers missing: %#v", plain)
	}
	if plain.Get("Permissions-Policy") == "" || plain.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers missing: %#v", plain)
	}

	tlsReq := httptest.NewRequest(http.MethodGet, "/ok", nil)
	tlsReq.TLS = &tls.ConnectionState{}
	if got := serveSecurity(t, opt, nil, tlsReq).Get("Strict-Transport-Security"); got != "max-age=86400; includeSubDomains; preload" {
		t.Fatalf("HSTS = %q", got)
	}

	proxied := httptest.NewRequest(http.MethodGet, "/ok", nil)
	proxied.Header.Set("X-Forwarded-Proto", "HTTPS")
	def := serveSecurity(t, SecurityOptions{EnableHSTS: true}, nil, proxied)
	if got := def.Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains; preload" {
		t.Fatalf("default HSTS = %q", got)
	}
}
