// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"time"
)

// StructuredConfig is the top-level configuration of the sync server. It is
// populated by merging environment variables, command-line flags, an
// optional JSON file and built-in defaults.
//
// Struct tags:
//   - envPrefix: prefix applied to all nested env tag lookups (caarlos0/env).
//   - env: direct environment variable name for scalar fields.
type StructuredConfig struct {
	// App holds identity verification settings and the application version.
	App App `envPrefix:"APP_"`

	// Storage holds the relational store connection settings.
	Storage Storage `envPrefix:"STORAGE_"`

	// Server holds listen addresses and timeouts for HTTP and gRPC.
	Server Server `envPrefix:"SERVER_"`

	// Sync holds the tunables of the synchronization engine.
	Sync Sync `envPrefix:"SYNC_"`

	// Telemetry holds tracing and error reporting endpoints.
	Telemetry Telemetry `envPrefix:"TELEMETRY_"`

	// Workers holds intervals of background maintenance jobs.
	Workers Workers `envPrefix:"WORKERS_"`

	// JSONFilePath is the optional path to a JSON configuration file.
	// Populated via the CONFIG environment variable or the -c / -config flag.
	JSONFilePath string `env:"CONFIG"`
}

// App holds application-level configuration values.
type App struct {
	// TokenSignKey verifies the HMAC signature of device bearer tokens.
	// Env: APP_TOKEN_SIGN_KEY
	TokenSignKey string `env:"TOKEN_SIGN_KEY"`

	// TokenIssuer is the expected "iss" claim of device tokens.
	// Env: APP_TOKEN_ISSUER
	TokenIssuer string `env:"TOKEN_ISSUER"`

	// Version is exposed via GET /api/version.
	// Env: APP_VERSION
	Version string `env:"VERSION"`

	// Environment tags telemetry (e.g. "production", "staging").
	// Env: APP_ENVIRONMENT
	Environment string `env:"ENVIRONMENT"`
}

// Storage groups the configuration of the persistence backend.
type Storage struct {
	DB DB `envPrefix:"DB_"`
}

// DB holds connection settings for the relational store.
type DB struct {
	// DSN is the PostgreSQL connection string. The value "memory" selects
	// the in-process store, which is meant for development only.
	// Env: STORAGE_DB_DATABASE_URI
	DSN string `env:"DATABASE_URI"`

	// MaxOpenConns bounds the connection pool.
	// Env: STORAGE_DB_MAX_OPEN_CONNS
	MaxOpenConns int `env:"MAX_OPEN_CONNS"`
}

// Server holds network and timeout settings for the inbound transport layer.
type Server struct {
	// HTTPAddress is the "host:port" the HTTP API listens on.
	// Env: SERVER_ADDRESS
	HTTPAddress string `env:"ADDRESS"`

	// GRPCAddress is the "host:port" the gRPC health service listens on.
	// Env: SERVER_GRPC_ADDRESS
	GRPCAddress string `env:"GRPC_ADDRESS"`

	// RequestTimeout bounds a single inbound request.
	// Env: SERVER_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`

	// ShutdownTimeout bounds graceful shutdown.
	// Env: SERVER_SHUTDOWN_TIMEOUT
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
}

// Sync holds the tunables of the synchronization engine.
type Sync struct {
	// MaxAttempts is the number of evaluations after which a retryable
	// mutation becomes a permanent failure.
	// Env: SYNC_MAX_ATTEMPTS
	MaxAttempts int `env:"MAX_ATTEMPTS"`

	// StoreTimeout bounds every store call made while applying a mutation.
	// Env: SYNC_STORE_TIMEOUT
	StoreTimeout time.Duration `env:"STORE_TIMEOUT"`

	// RetryBase is the first backoff delay for transient store errors.
	// Env: SYNC_RETRY_BASE
	RetryBase time.Duration `env:"RETRY_BASE"`

	// RetryLimit is the number of in-request retries of a transient error.
	// Env: SYNC_RETRY_LIMIT
	RetryLimit uint64 `env:"RETRY_LIMIT"`

	// DedupTTL is how long applied checksums stay in the hot cache.
	// Env: SYNC_DEDUP_TTL
	DedupTTL time.Duration `env:"DEDUP_TTL"`

	// MaxServerChanges caps the server changes returned per batch.
	// Env: SYNC_MAX_SERVER_CHANGES
	MaxServerChanges uint64 `env:"MAX_SERVER_CHANGES"`

	// MaxBatchSize caps the number of mutations accepted per batch.
	// Env: SYNC_MAX_BATCH_SIZE
	MaxBatchSize int `env:"MAX_BATCH_SIZE"`

	// RulesFile is the optional YAML file with per-entity resolution rules.
	// Env: SYNC_RULES_FILE
	RulesFile string `env:"RULES_FILE"`
}

// Telemetry holds tracing and error reporting settings. Empty values
// disable the corresponding exporter.
type Telemetry struct {
	// ServiceName is reported as the OpenTelemetry service.name.
	// Env: TELEMETRY_SERVICE_NAME
	ServiceName string `env:"SERVICE_NAME"`

	// OTLPEndpoint is the OTLP/HTTP collector host:port.
	// Env: TELEMETRY_OTLP_ENDPOINT
	OTLPEndpoint string `env:"OTLP_ENDPOINT"`

	// OTLPInsecure disables TLS towards the collector.
	// Env: TELEMETRY_OTLP_INSECURE
	OTLPInsecure bool `env:"OTLP_INSECURE"`

	// SentryDSN enables error reporting to Sentry.
	// Env: TELEMETRY_SENTRY_DSN
	SentryDSN string `env:"SENTRY_DSN"`
}

// Workers holds configuration of background maintenance jobs.
type Workers struct {
	// ReaperInterval is how often stale processing mutations are reverted.
	// Env: WORKERS_REAPER_INTERVAL
	ReaperInterval time.Duration `env:"REAPER_INTERVAL"`

	// ProcessingStaleAfter is the age after which a processing mutation is
	// considered abandoned.
	// Env: WORKERS_PROCESSING_STALE_AFTER
	ProcessingStaleAfter time.Duration `env:"PROCESSING_STALE_AFTER"`

	// HealthInterval is how often the store is probed for the gRPC health
	// service.
	// Env: WORKERS_HEALTH_INTERVAL
	HealthInterval time.Duration `env:"HEALTH_INTERVAL"`
}

// GetStructuredConfig loads, merges, and validates the server configuration
// from all available sources in the following priority order (the first
// source that sets a field wins):
//  1. Environment variables
//  2. Command-line flags
//  3. JSON file (path resolved from sources 1 and 2)
//  4. Built-in defaults
func GetStructuredConfig(args []string) (*StructuredConfig, error) {
	return newConfigBuilder().
		withEnv().
		withFlags(args).
		withJSON().
		withDefaults().
		build()
}
