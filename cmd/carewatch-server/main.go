package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carewatch/carewatch/internal/config"
	"github.com/carewatch/carewatch/internal/domain/alert"
	"github.com/carewatch/carewatch/internal/domain/patient"
	"github.com/carewatch/carewatch/internal/domain/stream"
	"github.com/carewatch/carewatch/internal/domain/vitals"
	"github.com/carewatch/carewatch/internal/platform/middleware"
	"github.com/carewatch/carewatch/internal/platform/notification"
	"github.com/carewatch/carewatch/internal/platform/store"
	ws "github.com/carewatch/carewatch/internal/platform/websocket"
)

func main() {
	root := &cobra.Command{
		Use:   "carewatch-server",
		Short: "CareWatch patient vital signs monitoring server",
	}

	root.AddCommand(serveCmd())
	root.AddCommand(simulateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the monitoring server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func simulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Print simulated vital sign readings as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, _ := cmd.Flags().GetString("patient")
			count, _ := cmd.Flags().GetInt("count")
			interval, _ := cmd.Flags().GetDuration("interval")
			seed, _ := cmd.Flags().GetInt64("seed")
			return runSimulate(os.Stdout, patientID, count, interval, seed)
		},
	}
	cmd.Flags().String("patient", "demo", "Patient identifier stamped on each reading")
	cmd.Flags().Int("count", 10, "Number of readings to emit (0 runs until interrupted)")
	cmd.Flags().Duration("interval", 0, "Delay between readings")
	cmd.Flags().Int64("seed", 0, "Random seed (0 uses the current time)")
	return cmd
}

// runSimulate writes readings from a fresh simulator to w, one JSON object
// per line.
func runSimulate(w io.Writer, patientID string, count int, interval time.Duration, seed int64) error {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sim := vitals.NewSimulator(seed)
	enc := json.NewEncoder(w)

	for i := 0; count == 0 || i < count; i++ {
		if i > 0 && interval > 0 {
			time.Sleep(interval)
		}
		if err := enc.Encode(sim.Generate(patientID)); err != nil {
			return err
		}
	}
	return nil
}

// newStore builds the persistence backend selected by STORE_DRIVER.
func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		return store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case "postgres":
		return store.NewPGStore(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Store
	ctx := context.Background()
	st, err := newStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()
	logger.Info().Str("driver", cfg.StoreDriver).Msg("store ready")

	// Domain services
	vitalsSvc := vitals.NewService(st, logger)
	detector := vitals.NewDetector(cfg.SoundThreshold)
	ledger := alert.NewLedger(alert.NewStoreRepository(st), logger)
	patients := patient.NewService(st, logger)

	// Notification channels. Both are optional; the dispatcher skips a
	// channel whose sender is nil.
	var push notification.PushSender
	if cfg.PushEndpoint != "" {
		push = notification.NewHTTPPushSender(cfg.PushEndpoint, cfg.PushAPIKey)
		logger.Info().Str("endpoint", cfg.PushEndpoint).Msg("push notifications enabled")
	}
	var email notification.EmailSender
	if cfg.SMTPAddr != "" {
		email = notification.NewSMTPEmailSender(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword)
		logger.Info().Str("addr", cfg.SMTPAddr).Msg("email notifications enabled")
	}
	dispatcher := notification.NewDispatcher(push, email, patients, cfg.NotifyTimeout, logger)
	notifier := stream.NewNotifier(dispatcher, patients, ledger, logger)

	// Streaming registry and WebSocket transport
	registry := stream.NewRegistry(stream.Config{
		Vitals:       vitalsSvc,
		Detector:     detector,
		Ledger:       ledger,
		Patients:     patients,
		Notifier:     notifier,
		TickInterval: cfg.TickInterval,
		Logger:       logger,
	})
	wsHandler := ws.NewHandler(registry, cfg.SendBufferSize, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
	}))

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.BodyLimit("1M"))
	apiV1.Use(middleware.RequestTimeout(30 * time.Second))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// Domain routes
	vitals.NewHandler(vitalsSvc, detector, ledger).RegisterRoutes(apiV1)
	alert.NewHandler(ledger).RegisterRoutes(apiV1)
	patient.NewHandler(patients).RegisterRoutes(apiV1)

	// WebSocket endpoint
	wsHandler.RegisterRoutes(e.Group(""))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	registry.Shutdown()
	logger.Info().Msg("server stopped")
	return nil
}
