package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/models"
)

// ─────────────────────────────────────────────
// NewAppInfoService
// ─────────────────────────────────────────────

func TestNewAppInfoService_EmptyVersion_ReturnsError(t *testing.T) {
	svc, err := NewAppInfoService("", "", "", logger.Nop())

	assert.Nil(t, svc)
	assert.ErrorIs(t, err, ErrVersionIsNotSpecified)
}

// ─────────────────────────────────────────────
// GetAppInfo
// ─────────────────────────────────────────────

func TestGetAppInfo(t *testing.T) {
	tests := []struct {
		name    string
		version string
		date    string
		commit  string
		want    models.AppBuildInfo
	}{
		{
			name:    "all values",
			version: "1.4.0",
			date:    "2026-10-01",
			commit:  "a1b2c3d",
			want:    models.AppBuildInfo{Version: "1.4.0", Date: "2026-10-01", Commit: "a1b2c3d"},
		},
		{
			name:    "missing build metadata",
			version: "dev",
			want:    models.AppBuildInfo{Version: "dev", Date: "N/A", Commit: "N/A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewAppInfoService(tt.version, tt.date, tt.commit, logger.Nop())
			require.NoError(t, err)

			got, err := svc.GetAppInfo(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetAppInfo_CancelledContext(t *testing.T) {
	svc, err := NewAppInfoService("1.0.0", "", "", logger.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = svc.GetAppInfo(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
