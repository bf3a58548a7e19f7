package http

import (
	"net/http"
	"strings"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/service"
	"github.com/MKhiriev/go-pos-sync/internal/utils"
)

// auth verifies the device bearer token and stores the resulting
// [models.Identity] in the request context. The request logger is tagged
// with the device and user ids.
//
// Requests without a valid "Authorization: Bearer <token>" header are
// rejected with 401 Unauthorized.
func (h *Handler) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromRequest(r)

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			log.Debug().Err(ErrEmptyAuthorizationHeader).Send()
			utils.WriteError(w, ErrEmptyAuthorizationHeader.Error(), http.StatusUnauthorized)
			return
		}

		tokenString, err := getTokenFromAuthHeader(authHeader)
		if err != nil {
			log.Debug().Err(err).Send()
			utils.WriteError(w, err.Error(), http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		identity, err := h.services.AuthService.ParseToken(ctx, tokenString)
		if err != nil {
			log.Info().Err(err).Msg("device token rejected")
			utils.WriteError(w, err.Error(), http.StatusUnauthorized)
			return
		}

		ctx = log.WithDevice(identity.DeviceID, identity.UserID).WithContext(ctx)
		ctx = utils.WithIdentity(ctx, identity)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireOperator lets through only identities carrying an operator claim.
// It must run after [Handler.auth].
func (h *Handler) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := utils.GetIdentityFromContext(r.Context())
		if !ok {
			writeError(w, r, errNoIdentity)
			return
		}
		if !identity.Operator() {
			writeError(w, r, service.ErrOperatorRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getTokenFromAuthHeader extracts the token of a "Bearer <token>" header
// value. The scheme is matched case-insensitively.
func getTokenFromAuthHeader(authHeader string) (string, error) {
	scheme, token, found := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrInvalidAuthorizationHeader
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}
