package config

import "time"

func defaultConfig() *StructuredConfig {
	return &StructuredConfig{
		App: App{
			TokenIssuer: "go-pos-sync",
			Version:     "dev",
			Environment: "development",
		},
		Storage: Storage{
			DB: DB{MaxOpenConns: 20},
		},
		Server: Server{
			HTTPAddress:     "0.0.0.0:8080",
			GRPCAddress:     "0.0.0.0:9090",
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Sync: Sync{
			MaxAttempts:      5,
			StoreTimeout:     5 * time.Second,
			RetryBase:        50 * time.Millisecond,
			RetryLimit:       3,
			DedupTTL:         30 * time.Minute,
			MaxServerChanges: 500,
			MaxBatchSize:     1000,
		},
		Telemetry: Telemetry{
			ServiceName: "go-pos-sync",
		},
		Workers: Workers{
			ReaperInterval:       time.Minute,
			ProcessingStaleAfter: 10 * time.Minute,
			HealthInterval:       10 * time.Second,
		},
	}
}
