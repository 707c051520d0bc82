package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrTicketInvalid is returned when a session ticket fails validation.
var ErrTicketInvalid = errors.New("auth: invalid session ticket")

// TicketClaims extends JWT standard claims with the fields a WebSocket
// session carries. Subject is the origin that authenticated over HTTP;
// SessionID survives for the lifetime of one socket.
type TicketClaims struct {
	jwt.RegisteredClaims
	Origin    string `json:"origin"`
	SessionID string `json:"sid"`
}

// GenerateSessionTicket creates a signed, short-lived JWT that a
// client presents when upgrading to a WebSocket. Tickets are validated
// by signature only, no storage hit, so they must be short-lived.
func GenerateSessionTicket(origin, secret string, ttlSeconds int) (string, error) {
	if ttlSeconds <= 0 {
		ttlSeconds = 30 //nolint:mnd // default 30-second upgrade window
	}

	now := time.Now()
	claims := TicketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   origin,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlSeconds) * time.Second)),
			ID:        uuid.NewString(),
		},
		Origin:    origin,
		SessionID: uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing session ticket: %w", err)
	}
	return signed, nil
}

// ParseSessionTicket validates a session ticket, checking signature,
// expiry and required fields.
func ParseSessionTicket(tokenString, secret string) (*TicketClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TicketClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTicketInvalid, err)
	}

	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid {
		return nil, ErrTicketInvalid
	}

	if claims.Origin == "" {
		return nil, fmt.Errorf("%w: missing origin", ErrTicketInvalid)
	}

	return claims, nil
}
