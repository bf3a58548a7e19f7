// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// parseEnv fills cfg from the environment through its env and envPrefix
// tags.
func parseEnv(cfg any) error {
	return parseEnvWithPrefix(cfg, "")
}

// parseEnvWithPrefix is [parseEnv] for a config whose keys share prefix,
// such as DEVICE_ for the agent.
func parseEnvWithPrefix(cfg any, prefix string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("error reading env configs: %w", err)
	}
	return nil
}
