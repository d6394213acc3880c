package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrTokenInvalid covers malformed, mis-signed, and wrong-algorithm tokens.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrTokenExpired is returned when the token's exp claim has passed.
	ErrTokenExpired = errors.New("auth: token expired")
)

// Claims is the decoded view of an access token.
type Claims struct {
	UserID   primitive.ObjectID
	IssuedAt time.Time
	Expires  time.Time
}

// TokenCodec mints and decodes HS256 access tokens.
type TokenCodec struct {
	secret          []byte
	ttl             time.Duration
	refreshInterval time.Duration
}

// NewTokenCodec builds a codec. ttlDays bounds token lifetime;
// refreshIntervalDays is the issued-at age past which a decoded token gets a
// sliding replacement.
func NewTokenCodec(secret string, ttlDays, refreshIntervalDays int) *TokenCodec {
	return &TokenCodec{
		secret:          []byte(secret),
		ttl:             time.Duration(ttlDays) * 24 * time.Hour,
		refreshInterval: time.Duration(refreshIntervalDays) * 24 * time.Hour,
	}
}

// Issue mints a token for the user valid from now for the configured TTL.
func (c *TokenCodec) Issue(userID primitive.ObjectID, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID.Hex(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Decode validates the signature and expiry and extracts the claims.
func (c *TokenCodec) Decode(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrTokenInvalid
	}
	userID, err := primitive.ObjectIDFromHex(claims.Subject)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return &Claims{
		UserID:   userID,
		IssuedAt: claims.IssuedAt.Time,
		Expires:  claims.ExpiresAt.Time,
	}, nil
}

// ShouldRefresh reports whether a token issued at issuedAt is old enough to
// deserve a sliding replacement.
func (c *TokenCodec) ShouldRefresh(issuedAt, now time.Time) bool {
	return now.Sub(issuedAt) >= c.refreshInterval
}
