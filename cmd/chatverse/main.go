// Command chatverse runs the chat client state engine behind a local HTTP and
// websocket API.
//
// @title           chatverse local API
// @version         1.0
// @description     Session, rooms, messages, credits and notifications of a chat client, exposed for a UI.
// @BasePath        /api/v1
// @schemes         http
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/chatverse/internal/config"
	"github.com/tbourn/chatverse/internal/gateway"
	httpapi "github.com/tbourn/chatverse/internal/http"
	"github.com/tbourn/chatverse/internal/http/handlers"
	"github.com/tbourn/chatverse/internal/observability"
	"github.com/tbourn/chatverse/internal/repo"
	"github.com/tbourn/chatverse/internal/services"
	"github.com/tbourn/chatverse/internal/store"
	"github.com/tbourn/chatverse/internal/sysutil"
)

// Set with -ldflags "-X main.version=...".
var version string

var envFile string

var rootCmd = &cobra.Command{
	Use:   "chatverse",
	Short: "chatverse - chat client state engine",
	Long: `chatverse keeps the session, room, message, credit and notification
state of a chat client and serves it to a UI over a local JSON API and a
websocket change stream.

Configuration comes from the environment, optionally seeded from a dotenv file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), buildVersion())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildVersion() string {
	return sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")
}

func serve(ctx context.Context, cfg config.Config) error {
	sysutil.SetLogLevel(cfg.LogLevel)
	sysutil.ConfigureLogger(cfg.LogPretty, nil)
	gin.SetMode(cfg.GinMode)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, buildVersion())
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// Stores and their event broker.
	events := store.NewBroker()
	session := store.NewSessionStore(events)
	rooms := store.NewRoomStore(cfg.Chat.InitialCredits, events)
	feed := store.NewNotificationStore(events)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stateMetrics, err := observability.NewStateMetrics(reg, events)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	gw, err := newGateway(cfg.Gateway, repo.Tokens{DB: db})
	if err != nil {
		return err
	}

	auth := &services.AuthService{Session: session, Gateway: gw}
	chat := &services.ChatService{
		Session:     session,
		Rooms:       rooms,
		Feed:        feed,
		Gateway:     gw,
		MessageCost: cfg.Chat.MessageCost,
		Recorder:    stateMetrics,
	}

	notices := services.DefaultCatalog()
	if cfg.Chat.NotifyCatalog != "" {
		if notices, err = services.LoadCatalog(cfg.Chat.NotifyCatalog); err != nil {
			return fmt.Errorf("notification catalog: %w", err)
		}
	}
	seed := cfg.Chat.NotifySeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	feedSvc := &services.FeedService{
		Feed:           feed,
		Source:         services.NewRandomSource(notices, seed),
		Interval:       cfg.Chat.NotifyInterval,
		InitialCredits: cfg.Chat.InitialCredits,
		MessageCost:    cfg.Chat.MessageCost,
	}
	feedSvc.Welcome()
	stateMetrics.Seed(rooms.Snapshot(), feed.Snapshot())

	if err := chat.Bootstrap(ctx); err != nil {
		log.Warn().Err(err).Msg("initial room load failed; the UI can retry")
	}

	r := gin.New()
	if err := httpapi.RegisterRoutes(r, httpapi.Deps{
		Config:     cfg,
		Auth:       auth,
		Chat:       chat,
		State:      handlers.State{Session: session, Rooms: rooms, Feed: feed, Events: events},
		DB:         db,
		Registerer: reg,
		Gatherer:   reg,
	}); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("gateway", cfg.Gateway.Mode).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return feedSvc.Run(gctx) })
	g.Go(func() error { return stateMetrics.Run(gctx) })
	g.Go(func() error { return purgeReplays(gctx, db, cfg.IdempotencyTTL) })
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped")
		return err
	}
	return nil
}

type chatGateway interface {
	services.AuthGateway
	services.ChatGateway
}

func newGateway(cfg config.GatewayConfig, tokens gateway.TokenStore) (chatGateway, error) {
	switch cfg.Mode {
	case "", config.GatewaySimulated:
		return gateway.NewSimulated(gateway.SimulatedConfig{
			Latency:         gateway.DefaultLatencies(),
			Scale:           cfg.LatencyScale,
			Secret:          cfg.JWTSecret,
			TokenTTL:        cfg.TokenTTL,
			SendFailureRate: cfg.SendFailureRate,
		}, tokens), nil
	case config.GatewayHTTP:
		if cfg.BaseURL == "" {
			return nil, errors.New("GATEWAY_BASE_URL is required in http mode")
		}
		return gateway.NewClient(cfg.BaseURL, cfg.Timeout, tokens), nil
	default:
		return nil, fmt.Errorf("unknown GATEWAY_MODE %q", cfg.Mode)
	}
}

// purgeReplays drops expired idempotency records until ctx is done.
func purgeReplays(ctx context.Context, db *gorm.DB, ttl time.Duration) error {
	every := ttl / 4
	if every < time.Minute {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			n, err := repo.PurgeIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("idempotency records purged")
			}
		}
	}
}
