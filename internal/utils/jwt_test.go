package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-pos-sync/models"
)

const (
	testIssuer = "go-pos-sync"
	testKey    = "secret-key"
)

var testIdentity = models.Identity{DeviceID: "pos-santiago-01", UserID: 42}

func TestGenerateAndValidateDeviceToken(t *testing.T) {
	token, err := GenerateDeviceToken(testIssuer, testIdentity, time.Hour, testKey)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	identity, err := ValidateDeviceToken(token, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, testIdentity, identity)
}

func TestGenerateDeviceToken_CarriesOperator(t *testing.T) {
	supervisor := models.Identity{DeviceID: "pos-santiago-01", UserID: 7, OperatorID: "supervisor-1"}
	token, err := GenerateDeviceToken(testIssuer, supervisor, time.Hour, testKey)
	require.NoError(t, err)

	identity, err := ValidateDeviceToken(token, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, supervisor, identity)
	assert.True(t, identity.Operator())

	plain, err := GenerateDeviceToken(testIssuer, testIdentity, time.Hour, testKey)
	require.NoError(t, err)
	identity, err = ValidateDeviceToken(plain, testKey, testIssuer)
	require.NoError(t, err)
	assert.False(t, identity.Operator())
}

func TestGenerateDeviceToken_InvalidParams(t *testing.T) {
	tests := []struct {
		name     string
		issuer   string
		identity models.Identity
		duration time.Duration
		key      string
	}{
		{"empty issuer", "", testIdentity, time.Hour, testKey},
		{"zero duration", testIssuer, testIdentity, 0, testKey},
		{"empty key", testIssuer, testIdentity, time.Hour, ""},
		{"empty device", testIssuer, models.Identity{UserID: 1}, time.Hour, testKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateDeviceToken(tt.issuer, tt.identity, tt.duration, tt.key)
			assert.Error(t, err)
		})
	}
}

func TestValidateDeviceToken_Rejects(t *testing.T) {
	valid, err := GenerateDeviceToken(testIssuer, testIdentity, time.Hour, testKey)
	require.NoError(t, err)

	expired, err := GenerateDeviceToken(testIssuer, testIdentity, -time.Minute, testKey)
	require.NoError(t, err)

	noDevice := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.DeviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	noDeviceSigned, err := noDevice.SignedString([]byte(testKey))
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		key    string
		issuer string
	}{
		{"wrong key", valid, "other-key", testIssuer},
		{"wrong issuer", valid, testKey, "someone-else"},
		{"expired", expired, testKey, testIssuer},
		{"no device claim", noDeviceSigned, testKey, testIssuer},
		{"garbage", "not-a-token", testKey, testIssuer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateDeviceToken(tt.token, tt.key, tt.issuer)
			assert.Error(t, err)
		})
	}
}

func TestParseBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "bearer", header: "Bearer abc.def", want: "abc.def"},
		{name: "lower case scheme", header: "bearer abc", want: "abc"},
		{name: "surrounding spaces", header: "  Bearer abc  ", want: "abc"},
		{name: "empty", header: "", wantErr: true},
		{name: "no token", header: "Bearer ", wantErr: true},
		{name: "basic scheme", header: "Basic dXNlcg==", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBearerToken(tt.header)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAuthorizationHeader)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
