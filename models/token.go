package models

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// DeviceClaims is the claim set of a device bearer token.
//
// The standard "sub" claim carries the user id as a base-10 integer and the
// private "did" claim carries the device id the token was issued to. The
// optional "opr" claim names the supervisor a review token belongs to.
type DeviceClaims struct {
	jwt.RegisteredClaims

	// DeviceID is the device the token is bound to.
	DeviceID string `json:"did"`

	Operator string `json:"opr,omitempty"`
}

// Identity converts validated claims into a caller identity.
func (c DeviceClaims) Identity() (Identity, error) {
	if c.Subject == "" {
		return Identity{}, fmt.Errorf("token has no subject")
	}
	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("error converting subject to user id: %w", err)
	}
	if c.DeviceID == "" {
		return Identity{}, fmt.Errorf("token has no device id")
	}
	return Identity{DeviceID: c.DeviceID, UserID: userID, OperatorID: c.Operator}, nil
}
