package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tophand/backend/internal/config"
	"github.com/tophand/backend/internal/db"
	httpapi "github.com/tophand/backend/internal/http"
	"github.com/tophand/backend/internal/http/handlers"
	"github.com/tophand/backend/internal/metrics"
	"github.com/tophand/backend/internal/notify"
	"github.com/tophand/backend/internal/ports"
	"github.com/tophand/backend/internal/service"
)

// backend is everything the server needs from persistence. Both the
// Postgres store and the in-memory store satisfy it.
type backend interface {
	ports.DayPlanStore
	ports.KitStore
	ports.OverrideStore
	ports.AuditSink
	ports.TenantSettings
	ports.PreferenceLookup
	Ping(ctx context.Context) error
	Close()
}

func main() {
	root := &cobra.Command{
		Use:   "tophand",
		Short: "Field-service day plan scheduling backend",
		RunE:  runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the database schema",
			RunE:  runMigrate,
		},
	)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return log.Level(level).With().Str("service", "tophand-backend").Logger()
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}
	store, err := db.New(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(cmd.Context()); err != nil {
		return err
	}
	logger.Info().Msg("schema applied")
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	var store backend
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
		store = db.NewMemoryStore()
	} else {
		pg, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect db")
		}
		store = pg
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	rec, err := metrics.NewPromRecorder(reg)
	if err != nil {
		return err
	}

	channels, closeChannels := buildChannels(cfg, logger)
	defer closeChannels()
	escalator := notify.NewEscalator(store, channels, notify.Config{
		DefaultOrder:   cfg.ChannelOrder(),
		AttemptTimeout: cfg.NotifyAttemptTimeout,
	}, logger, rec)

	limits := service.NewLimitPolicy(store, cfg.DefaultJobLimit)
	overrides := service.NewOverrideWorkflow(store, store, escalator, logger, rec, cfg.OverrideSLASeconds)
	h := &handlers.Handler{
		Store:      store,
		Scheduling: service.NewSchedulingCoordinator(store, limits, escalator, store, logger, rec),
		Kits:       service.NewKitVerificationCoordinator(store, overrides, store, logger, rec),
		Overrides:  overrides,
		Analytics:  service.NewOverrideAnalytics(store, cfg.FrequentThreshold),
		Validator:  validator.New(),
		Logger:     logger,
	}

	router := httpapi.Router(cfg, h, reg, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
	return nil
}

// buildChannels picks a real transport per channel when its gateway is
// configured and falls back to logging otherwise.
func buildChannels(cfg config.Config, logger zerolog.Logger) ([]notify.Channel, func()) {
	closer := func() {}
	channels := make([]notify.Channel, 0, 3)

	for name, url := range map[string]string{"sms": cfg.SMSGatewayURL, "call": cfg.CallGatewayURL} {
		if url == "" {
			logger.Info().Str("channel", name).Msg("no gateway configured, logging notifications")
			channels = append(channels, notify.LogChannel{ChannelName: name, Logger: logger})
			continue
		}
		channels = append(channels, notify.WebhookChannel{
			ChannelName: name,
			BaseURL:     url,
			Client:      &http.Client{Timeout: 15 * time.Second},
		})
	}

	if cfg.MQTTBroker == "" {
		channels = append(channels, notify.LogChannel{ChannelName: "push", Logger: logger})
		return channels, closer
	}
	push, err := notify.NewMQTTChannel(notify.MQTTConfig{
		Broker:      cfg.MQTTBroker,
		ClientID:    cfg.MQTTClientID,
		Username:    cfg.MQTTUsername,
		Password:    cfg.MQTTPassword,
		TopicPrefix: cfg.MQTTTopicPrefix,
		QoS:         1,
	})
	if err != nil {
		logger.Error().Err(err).Str("broker", cfg.MQTTBroker).Msg("mqtt connect failed, logging push notifications")
		channels = append(channels, notify.LogChannel{ChannelName: "push", Logger: logger})
		return channels, closer
	}
	return append(channels, push), push.Close
}
