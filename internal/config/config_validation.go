// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"fmt"
)

// validate checks that the merged [StructuredConfig] can start the server.
func (cfg *StructuredConfig) validate() error {
	if cfg.Storage.DB.DSN == "" {
		return fmt.Errorf("%w: database DSN is required", ErrInvalidStorageConfigs)
	}

	if cfg.App.TokenSignKey == "" {
		return fmt.Errorf("%w: token sign key is required", ErrInvalidAppConfigs)
	}

	if cfg.Server.HTTPAddress == "" {
		return fmt.Errorf("%w: http address is required", ErrInvalidServerConfigs)
	}

	if cfg.Sync.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be positive", ErrInvalidSyncConfigs)
	}

	if cfg.Sync.StoreTimeout <= 0 {
		return fmt.Errorf("%w: store timeout must be positive", ErrInvalidSyncConfigs)
	}

	if cfg.Workers.ProcessingStaleAfter > 0 && cfg.Workers.ProcessingStaleAfter <= cfg.Server.RequestTimeout {
		return fmt.Errorf("%w: processing stale bound must exceed the request timeout", ErrInvalidWorkerConfigs)
	}

	return nil
}

func (cfg *ClientConfig) validate() error {
	if cfg.OutboxDSN == "" {
		return ErrInvalidStorageConfigs
	}

	if cfg.ServerURL == "" || cfg.RequestTimeout <= 0 {
		return ErrInvalidAdapterConfigs
	}

	if cfg.BatchSize < 1 {
		return ErrInvalidSyncConfigs
	}

	return nil
}
