// Package config loads the processor's environment configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Kafka holds the bus settings.
type Kafka struct {
	URL                string
	GroupID            string
	ClientCert         string
	ClientCertKey      string
	AutopilotTopic     string
	RatingServiceTopic string
}

// Auth0 holds the M2M token settings.
type Auth0 struct {
	URL          string
	Audience     string
	ClientID     string
	ClientSecret string
	// TokenCacheTime is read from TOKEN_CACHE_TIME in milliseconds.
	TokenCacheTime time.Duration
}

// Config is the full processor configuration.
type Config struct {
	DatabaseURL     string
	Kafka           Kafka
	Auth0           Auth0
	V5APIURL        string
	LogLevel        string
	HealthcheckPort int
}

// Load reads configuration from the environment, applying defaults and
// validating the keys the processor cannot run without.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Kafka: Kafka{
			URL:                os.Getenv("KAFKA_URL"),
			GroupID:            envOr("KAFKA_GROUP_ID", "marathon-rating-processor"),
			ClientCert:         os.Getenv("KAFKA_CLIENT_CERT"),
			ClientCertKey:      os.Getenv("KAFKA_CLIENT_CERT_KEY"),
			AutopilotTopic:     envOr("KAFKA_AUTOPILOT_NOTIFICATIONS_TOPIC", "notifications.autopilot.events"),
			RatingServiceTopic: envOr("KAFKA_RATING_SERVICE_TOPIC", "rating.service.events"),
		},
		Auth0: Auth0{
			URL:          os.Getenv("AUTH0_URL"),
			Audience:     os.Getenv("AUTH0_AUDIENCE"),
			ClientID:     os.Getenv("AUTH0_CLIENT_ID"),
			ClientSecret: os.Getenv("AUTH0_CLIENT_SECRET"),
		},
		V5APIURL: envOr("V5_API_URL", "https://api.topcoder.com/v5"),
		LogLevel: envOr("LOG_LEVEL", "info"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Kafka.URL == "" {
		return nil, fmt.Errorf("KAFKA_URL is required")
	}

	cacheMS, err := envIntOr("TOKEN_CACHE_TIME", 86400000)
	if err != nil {
		return nil, err
	}
	cfg.Auth0.TokenCacheTime = time.Duration(cacheMS) * time.Millisecond

	cfg.HealthcheckPort, err = envIntOr("HEALTHCHECK_PORT", 3000)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}
