package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/topcoder-platform/marathon-rating-processor/internal/auth"
	"github.com/topcoder-platform/marathon-rating-processor/internal/calc"
	"github.com/topcoder-platform/marathon-rating-processor/internal/config"
	"github.com/topcoder-platform/marathon-rating-processor/internal/infrastructure/db"
	httpserver "github.com/topcoder-platform/marathon-rating-processor/internal/interfaces/http"
	"github.com/topcoder-platform/marathon-rating-processor/internal/processor"
	"github.com/topcoder-platform/marathon-rating-processor/internal/stream"
	"github.com/topcoder-platform/marathon-rating-processor/internal/topcoder"
)

const (
	appName = "marathon-rating-processor"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Event-driven rating processor for marathon matches",
		Version: version,
		RunE:    runStart,
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Consume lifecycle events and rate closed marathon rounds",
		RunE:  runStart,
	}
	rootCmd.AddCommand(startCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, keeping default")
	}

	manager, err := db.NewManager(db.DefaultConfig(cfg.DatabaseURL))
	if err != nil {
		return err
	}
	defer manager.Close()
	log.Info().Msg("database connected")

	tokens := auth.NewTokenSource(auth.Config{
		URL:          cfg.Auth0.URL,
		Audience:     cfg.Auth0.Audience,
		ClientID:     cfg.Auth0.ClientID,
		ClientSecret: cfg.Auth0.ClientSecret,
		CacheTime:    cfg.Auth0.TokenCacheTime,
	}, nil)
	v5 := topcoder.NewClient(cfg.V5APIURL, tokens, nil)

	calculator := calc.NewCalculator(manager.Repository(), v5)
	router := processor.NewRouter(cfg.Kafka.AutopilotTopic, cfg.Kafka.RatingServiceTopic, v5, calculator)

	consumer, err := stream.NewKafkaConsumer(stream.KafkaConfig{
		URL:           cfg.Kafka.URL,
		GroupID:       cfg.Kafka.GroupID,
		Topics:        []string{cfg.Kafka.AutopilotTopic, cfg.Kafka.RatingServiceTopic},
		ClientCert:    cfg.Kafka.ClientCert,
		ClientCertKey: cfg.Kafka.ClientCertKey,
	})
	if err != nil {
		return err
	}
	defer consumer.Close()

	server := httpserver.NewServer(httpserver.DefaultServerConfig(cfg.HealthcheckPort), map[string]httpserver.HealthChecker{
		"database": manager.Ping,
	})
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("healthcheck server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("group_id", cfg.Kafka.GroupID).
		Str("autopilot_topic", cfg.Kafka.AutopilotTopic).
		Str("rating_topic", cfg.Kafka.RatingServiceTopic).
		Msg("consuming")

	// Run returns cleanly on signal; in-flight dispatches finish first.
	if err := consumer.Run(ctx, router.Dispatch); err != nil && !errors.Is(err, stream.ErrConsumerClosed) {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("healthcheck server shutdown failed")
	}

	log.Info().Msg("shutdown complete")
	return nil
}
