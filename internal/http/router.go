// Package httpapi wires the Gin transport to the chat client's services and
// stores. It owns middleware ordering, the error fallbacks, health, metrics
// and docs endpoints, and mounts the API under the configured base path.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/chatverse/docs" // swagger spec registration
	"github.com/tbourn/chatverse/internal/config"
	"github.com/tbourn/chatverse/internal/http/handlers"
	"github.com/tbourn/chatverse/internal/http/middleware"
	"github.com/tbourn/chatverse/internal/repo"
	"github.com/tbourn/chatverse/internal/store"
)

const maxBodyBytes = 1 << 20

// Deps are the collaborators RegisterRoutes binds to.
type Deps struct {
	Config config.Config
	Auth   handlers.AuthService
	Chat   handlers.ChatService
	State  handlers.State

	// DB holds the idempotency log. Nil disables replay.
	DB *gorm.DB

	// Registerer and Gatherer default to the Prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// RegisterRoutes attaches middleware and endpoints to r.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. session identity (user id for logs, limits and idempotency)
//  4. Logger with header masking
//  5. Recovery
//  6. body size limit, gzip (not on /ws or /metrics)
//  7. Metrics
//  8. Idempotency validator, then rate limiter (replays bypass it)
//  9. CORS and security headers
func RegisterRoutes(r *gin.Engine, d Deps) error {
	if d.Auth == nil || d.Chat == nil || d.State.Session == nil || d.State.Rooms == nil || d.State.Feed == nil {
		return errors.New("httpapi: services and stores are required")
	}
	cfg := d.Config
	reg, gatherer := d.Registerer, d.Gatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath
	if apiBase == "/" {
		apiBase = ""
	}
	streamPath := apiBase + "/ws"

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(sessionIdentity(d.State.Session))
	r.Use(middleware.Logger(middleware.LoggerOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{streamPath, "/metrics"})))

	httpMetrics, err := middleware.NewHTTPMetrics(reg)
	if err != nil {
		return err
	}
	r.Use(httpMetrics.Handler())
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	var replays handlers.ReplayStore
	var lookup middleware.IdempotencyLookup
	if d.DB != nil {
		rp := repo.Replays{DB: d.DB, TTL: cfg.IdempotencyTTL}
		replays = rp
		lookup = func(ctx context.Context, userID, roomID, key string, _ time.Time) (bool, error) {
			_, found, err := rp.Lookup(ctx, userID, roomID, key)
			return found, err
		}
	}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{
		MaxLen: 200,
		Scope:  activeRoomScope(d.State.Rooms),
	}, lookup))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", handlers.HeaderIdempotencyReplayed}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// ACAO: * even without an Origin header (simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
		Expose:       []string{handlers.HeaderIdempotencyReplayed},
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(d.Auth, d.Chat, d.State, replays)

	api := groupWithPrefix(r, apiBase)
	{
		// Session
		api.GET("/session", h.GetSession)
		api.POST("/auth/login", h.Login)
		api.POST("/auth/register", h.Register)
		api.POST("/auth/logout", h.Logout)
		api.DELETE("/auth/error", h.ClearAuthError)

		// Rooms
		api.GET("/rooms", h.ListRooms)
		api.POST("/rooms/refresh", h.RefreshRooms)
		api.PUT("/rooms/active", h.SelectRoom)

		// Messages
		api.GET("/messages", h.ListMessages)
		api.POST("/messages", h.PostMessage)
		api.POST("/messages/refresh", h.RefreshMessages)

		// Composer and credits
		api.GET("/draft", h.GetDraft)
		api.PUT("/draft", h.PutDraft)
		api.GET("/credits", h.GetCredits)
		api.PUT("/credits", h.PutCredits)

		// Notifications
		api.GET("/notifications", h.ListNotifications)
		api.DELETE("/notifications", h.ClearNotifications)
		api.POST("/notifications/read-all", h.MarkAllNotificationsRead)
		api.POST("/notifications/:id/read", h.MarkNotificationRead)
		api.POST("/notifications/panel/toggle", h.TogglePanel)
		api.PUT("/notifications/panel", h.SetPanel)

		// Event stream
		api.GET("/ws", h.Stream)
	}
	return nil
}

// sessionIdentity records the signed-in user's id on the request.
func sessionIdentity(sessions *store.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if u, ok := sessions.User(); ok {
			middleware.SetUserID(c, u.ID)
		}
		c.Next()
	}
}

// activeRoomScope keys idempotency records by the room a send would target.
func activeRoomScope(rooms *store.RoomStore) func(*gin.Context) string {
	return func(*gin.Context) string {
		if room, ok := rooms.ActiveRoom(); ok {
			return room.ID
		}
		return ""
	}
}

// limitBody caps request bodies at maxBytes.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "" as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
