package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// StructuredJSONConfig is the on-disk JSON layout of [StructuredConfig].
type StructuredJSONConfig struct {
	App struct {
		TokenSignKey string `json:"token_sign_key"`
		TokenIssuer  string `json:"token_issuer"`
		Version      string `json:"version"`
		Environment  string `json:"environment"`
	} `json:"app,omitempty"`

	Storage struct {
		DB struct {
			DSN          string `json:"dsn"`
			MaxOpenConns int    `json:"max_open_conns"`
		} `json:"db,omitempty"`
	} `json:"storage,omitempty"`

	Server struct {
		HTTPAddress     string   `json:"http_address"`
		GRPCAddress     string   `json:"grpc_address"`
		RequestTimeout  Duration `json:"request_timeout"`
		ShutdownTimeout Duration `json:"shutdown_timeout"`
	} `json:"server,omitempty"`

	Sync struct {
		MaxAttempts      int      `json:"max_attempts"`
		StoreTimeout     Duration `json:"store_timeout"`
		RetryBase        Duration `json:"retry_base"`
		RetryLimit       uint64   `json:"retry_limit"`
		DedupTTL         Duration `json:"dedup_ttl"`
		MaxServerChanges uint64   `json:"max_server_changes"`
		MaxBatchSize     int      `json:"max_batch_size"`
		RulesFile        string   `json:"rules_file"`
	} `json:"sync,omitempty"`

	Telemetry struct {
		ServiceName  string `json:"service_name"`
		OTLPEndpoint string `json:"otlp_endpoint"`
		OTLPInsecure bool   `json:"otlp_insecure"`
		SentryDSN    string `json:"sentry_dsn"`
	} `json:"telemetry,omitempty"`

	Workers struct {
		ReaperInterval       Duration `json:"reaper_interval"`
		ProcessingStaleAfter Duration `json:"processing_stale_after"`
		HealthInterval       Duration `json:"health_interval"`
	} `json:"workers,omitempty"`
}

func parseJSON(jsonFilePath string) (*StructuredConfig, error) {
	jsonFile, err := os.Open(jsonFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading a json file: %w", err)
	}
	defer jsonFile.Close()

	var jsonCfg StructuredJSONConfig
	if err := json.NewDecoder(jsonFile).Decode(&jsonCfg); err != nil {
		return nil, fmt.Errorf("error decoding json configs: %w", err)
	}

	return &StructuredConfig{
		App: App{
			TokenSignKey: jsonCfg.App.TokenSignKey,
			TokenIssuer:  jsonCfg.App.TokenIssuer,
			Version:      jsonCfg.App.Version,
			Environment:  jsonCfg.App.Environment,
		},
		Storage: Storage{
			DB: DB{
				DSN:          jsonCfg.Storage.DB.DSN,
				MaxOpenConns: jsonCfg.Storage.DB.MaxOpenConns,
			},
		},
		Server: Server{
			HTTPAddress:     jsonCfg.Server.HTTPAddress,
			GRPCAddress:     jsonCfg.Server.GRPCAddress,
			RequestTimeout:  time.Duration(jsonCfg.Server.RequestTimeout),
			ShutdownTimeout: time.Duration(jsonCfg.Server.ShutdownTimeout),
		},
		Sync: Sync{
			MaxAttempts:      jsonCfg.Sync.MaxAttempts,
			StoreTimeout:     time.Duration(jsonCfg.Sync.StoreTimeout),
			RetryBase:        time.Duration(jsonCfg.Sync.RetryBase),
			RetryLimit:       jsonCfg.Sync.RetryLimit,
			DedupTTL:         time.Duration(jsonCfg.Sync.DedupTTL),
			MaxServerChanges: jsonCfg.Sync.MaxServerChanges,
			MaxBatchSize:     jsonCfg.Sync.MaxBatchSize,
			RulesFile:        jsonCfg.Sync.RulesFile,
		},
		Telemetry: Telemetry{
			ServiceName:  jsonCfg.Telemetry.ServiceName,
			OTLPEndpoint: jsonCfg.Telemetry.OTLPEndpoint,
			OTLPInsecure: jsonCfg.Telemetry.OTLPInsecure,
			SentryDSN:    jsonCfg.Telemetry.SentryDSN,
		},
		Workers: Workers{
			ReaperInterval:       time.Duration(jsonCfg.Workers.ReaperInterval),
			ProcessingStaleAfter: time.Duration(jsonCfg.Workers.ProcessingStaleAfter),
			HealthInterval:       time.Duration(jsonCfg.Workers.HealthInterval),
		},
	}, nil
}

// Duration is a wrapper around time.Duration that supports JSON unmarshaling
// from strings like "1h", "30s" as well as integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
