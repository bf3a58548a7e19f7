package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-pos-sync/internal/config"
	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/utils"
	"github.com/MKhiriev/go-pos-sync/models"
)

func TestAuthService_ParseToken(t *testing.T) {
	cfg := config.App{TokenSignKey: "sign-key", TokenIssuer: "go-pos-sync"}
	svc := NewAuthService(cfg, logger.Nop())
	identity := models.Identity{DeviceID: "pos-01", UserID: 11}

	valid, err := utils.GenerateDeviceToken(cfg.TokenIssuer, identity, time.Hour, cfg.TokenSignKey)
	require.NoError(t, err)
	foreign, err := utils.GenerateDeviceToken("other", identity, time.Hour, cfg.TokenSignKey)
	require.NoError(t, err)
	expired, err := utils.GenerateDeviceToken(cfg.TokenIssuer, identity, -time.Hour, cfg.TokenSignKey)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		want    models.Identity
		wantErr error
	}{
		{name: "valid", token: valid, want: identity},
		{name: "foreign issuer", token: foreign, wantErr: ErrTokenIsExpiredOrInvalid},
		{name: "expired", token: expired, wantErr: ErrTokenIsExpiredOrInvalid},
		{name: "malformed", token: "abc", wantErr: ErrTokenIsExpiredOrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ParseToken(context.Background(), tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
