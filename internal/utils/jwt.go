package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MKhiriev/go-pos-sync/models"
)

// ErrInvalidAuthorizationHeader is returned when the header is not a bearer
// credential.
var ErrInvalidAuthorizationHeader = errors.New("invalid authorization header")

// GenerateDeviceToken creates a signed HMAC-SHA256 device token.
//
// The token includes the following claims:
//   - Issuer    (iss): identifies the service that issued the token
//   - Subject   (sub): the user ID encoded as a string
//   - did            : the device the token is bound to
//   - opr            : the operator id, only when identity.OperatorID is set
//   - IssuedAt  (iat): the current time
//   - ExpiresAt (exp): the current time plus tokenDuration
//
// All parameters are required. Tokens are issued by the identity service in
// production; the sync server only verifies them. This function backs the
// agent's development tooling and the tests.
func GenerateDeviceToken(issuer string, identity models.Identity, tokenDuration time.Duration, signKey string) (string, error) {
	if issuer == "" || tokenDuration == 0 || signKey == "" || identity.DeviceID == "" {
		return "", errors.New("invalid params for generating device token")
	}

	now := time.Now()
	claims := &models.DeviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(identity.UserID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		DeviceID: identity.DeviceID,
		Operator: identity.OperatorID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(signKey))
	if err != nil {
		return "", fmt.Errorf("error occurred during signing device token: %w", err)
	}
	return signed, nil
}

// ValidateDeviceToken verifies the signature, issuer and expiry of
// tokenString and returns the identity it carries.
func ValidateDeviceToken(tokenString, tokenSignKey, tokenIssuer string) (models.Identity, error) {
	claims := &models.DeviceClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(tokenSignKey), nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return models.Identity{}, fmt.Errorf("error occurred validating and parsing token: %w", err)
	}

	identity, err := claims.Identity()
	if err != nil {
		return models.Identity{}, fmt.Errorf("error occurred reading token claims: %w", err)
	}
	return identity, nil
}

// ParseBearerToken extracts the credential of a "Bearer <token>" header.
func ParseBearerToken(authorizationHeader string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authorizationHeader), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrInvalidAuthorizationHeader
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidAuthorizationHeader
	}
	return token, nil
}
