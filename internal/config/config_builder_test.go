package config

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── helpers ───────────────────────────────────────────────────────────────────

func writeTempJSONConfig(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	f, err := os.CreateTemp(t.TempDir(), "config-*.json")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func minimalConfig() *StructuredConfig {
	return &StructuredConfig{
		App:     App{TokenSignKey: "secret"},
		Storage: Storage{DB: DB{DSN: "memory"}},
	}
}

// ── build ─────────────────────────────────────────────────────────────────────

func TestNewConfigBuilder_InitialState(t *testing.T) {
	b := newConfigBuilder()
	require.NotNil(t, b)
	assert.NoError(t, b.err)
	assert.Empty(t, b.configs)
}

func TestBuild_EmptyBuilderFailsValidation(t *testing.T) {
	cfg, err := newConfigBuilder().build()
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrInvalidStorageConfigs)
}

func TestBuild_PropagatesBuilderError(t *testing.T) {
	b := newConfigBuilder()
	b.err = assert.AnError

	cfg, err := b.build()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestBuild_EarlierSourceWins(t *testing.T) {
	b := newConfigBuilder()
	b.configs = append(b.configs,
		minimalConfig(),
		&StructuredConfig{Sync: Sync{MaxAttempts: 2}},
		&StructuredConfig{App: App{TokenSignKey: "ignored"}, Sync: Sync{MaxAttempts: 9}},
	)
	b.withDefaults()

	cfg, err := b.build()
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.App.TokenSignKey)
	assert.Equal(t, 2, cfg.Sync.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Sync.StoreTimeout)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.HTTPAddress)
}

func TestBuild_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *StructuredConfig)
		wantErr error
	}{
		{name: "valid", mutate: func(cfg *StructuredConfig) {}},
		{name: "missing dsn", mutate: func(cfg *StructuredConfig) { cfg.Storage.DB.DSN = "" }, wantErr: ErrInvalidStorageConfigs},
		{name: "missing sign key", mutate: func(cfg *StructuredConfig) { cfg.App.TokenSignKey = "" }, wantErr: ErrInvalidAppConfigs},
		{name: "missing address", mutate: func(cfg *StructuredConfig) { cfg.Server.HTTPAddress = "" }, wantErr: ErrInvalidServerConfigs},
		{name: "zero attempts", mutate: func(cfg *StructuredConfig) { cfg.Sync.MaxAttempts = 0 }, wantErr: ErrInvalidSyncConfigs},
		{name: "zero store timeout", mutate: func(cfg *StructuredConfig) { cfg.Sync.StoreTimeout = 0 }, wantErr: ErrInvalidSyncConfigs},
		{
			name:    "stale bound below request timeout",
			mutate:  func(cfg *StructuredConfig) { cfg.Workers.ProcessingStaleAfter = time.Second },
			wantErr: ErrInvalidWorkerConfigs,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.App.TokenSignKey = "secret"
			cfg.Storage.DB.DSN = "memory"
			tt.mutate(cfg)

			err := cfg.validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// ── withJSON ──────────────────────────────────────────────────────────────────

func TestWithJSON_UsesPathFromEarlierSource(t *testing.T) {
	path := writeTempJSONConfig(t, map[string]any{
		"sync": map[string]any{"max_attempts": 11},
	})

	b := newConfigBuilder()
	cfg := minimalConfig()
	cfg.JSONFilePath = path
	b.configs = append(b.configs, cfg)
	b.withJSON().withDefaults()

	built, err := b.build()
	require.NoError(t, err)
	assert.Equal(t, 11, built.Sync.MaxAttempts)
}

func TestWithJSON_NoPath(t *testing.T) {
	b := newConfigBuilder()
	b.configs = append(b.configs, minimalConfig())
	b.withJSON()

	assert.Len(t, b.configs, 1)
	assert.NoError(t, b.err)
}

func TestWithJSON_BrokenFileRecordsError(t *testing.T) {
	b := newConfigBuilder()
	cfg := minimalConfig()
	cfg.JSONFilePath = "/nonexistent/config.json"
	b.configs = append(b.configs, cfg)
	b.withJSON()

	assert.Error(t, b.err)
}

// ── GetStructuredConfig ───────────────────────────────────────────────────────

func TestGetStructuredConfig_EnvAndFlags(t *testing.T) {
	setEnvVars(t, map[string]string{
		"APP_TOKEN_SIGN_KEY":      "env-secret",
		"STORAGE_DB_DATABASE_URI": "memory",
	})

	cfg, err := GetStructuredConfig([]string{"-a", "localhost:7000", "-token-sign-key", "flag-secret"})
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.App.TokenSignKey)
	assert.Equal(t, "localhost:7000", cfg.Server.HTTPAddress)
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
}
