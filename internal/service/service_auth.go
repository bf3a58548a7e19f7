package service

import (
	"context"

	"github.com/MKhiriev/go-pos-sync/internal/config"
	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/utils"
	"github.com/MKhiriev/go-pos-sync/models"
)

// authService is the concrete implementation of AuthService.
// Device tokens are issued by the identity service; the sync server only
// verifies them.
type authService struct {
	// tokenSignKey is the HMAC secret used to verify device tokens.
	tokenSignKey string

	// tokenIssuer is the expected "iss" claim. Tokens whose issuer does not
	// match this value are rejected during parsing.
	tokenIssuer string

	// logger is the structured logger used for diagnostic and error output.
	logger *logger.Logger
}

// NewAuthService constructs a new AuthService from cfg.
//
// The returned service is safe for concurrent use; all state is read-only after
// construction.
func NewAuthService(cfg config.App, logger *logger.Logger) AuthService {
	return &authService{
		tokenSignKey: cfg.TokenSignKey,
		tokenIssuer:  cfg.TokenIssuer,
		logger:       logger,
	}
}

// ParseToken validates a raw device token and returns the identity it is
// bound to.
//
// Any validation failure (expired, wrong issuer, malformed, missing device
// claim) is normalised to ErrTokenIsExpiredOrInvalid so that callers do not
// need to inspect low-level JWT errors.
func (a *authService) ParseToken(ctx context.Context, tokenString string) (models.Identity, error) {
	identity, err := utils.ValidateDeviceToken(tokenString, a.tokenSignKey, a.tokenIssuer)
	if err != nil {
		logger.FromContext(ctx).Debug().Err(err).Str("func", "*authService.ParseToken").Msg("rejected device token")
		return models.Identity{}, ErrTokenIsExpiredOrInvalid
	}

	return identity, nil
}
