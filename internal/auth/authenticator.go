package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/survivorpool/survivorpool/internal/store"
)

var (
	// ErrUnauthenticated is returned for missing, malformed, expired, or
	// revoked credentials.
	ErrUnauthenticated = errors.New("auth: could not validate credentials")

	// ErrAccountDisabled is returned when the credentials are valid but the
	// account has been deactivated.
	ErrAccountDisabled = errors.New("auth: account is deactivated")
)

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID primitive.ObjectID
	User   *store.User
}

// Clock lets tests pin the current time.
type Clock func() time.Time

// Authenticator resolves Authorization headers into principals.
type Authenticator struct {
	users store.UserStore
	codec *TokenCodec
	now   Clock
}

// NewAuthenticator wires the bearer gate. now may be nil for wall-clock time.
func NewAuthenticator(users store.UserStore, codec *TokenCodec, now Clock) *Authenticator {
	if now == nil {
		now = time.Now
	}
	return &Authenticator{users: users, codec: codec, now: now}
}

// Authenticate validates the Authorization header and loads the caller.
// When the presented token is older than the refresh interval, the returned
// refreshed string carries a replacement token for the response.
func (a *Authenticator) Authenticate(ctx context.Context, authorization string) (principal *Principal, refreshed string, err error) {
	raw, ok := bearerToken(authorization)
	if !ok {
		return nil, "", ErrUnauthenticated
	}

	claims, err := a.codec.Decode(raw)
	if err != nil {
		return nil, "", ErrUnauthenticated
	}

	user, err := a.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrUnauthenticated
		}
		return nil, "", err
	}
	if user.AccountStatus != store.AccountStatusActive {
		return nil, "", ErrAccountDisabled
	}
	// Tokens minted before a password change are dead.
	if user.TokenInvalidatedAt != nil && !claims.IssuedAt.After(*user.TokenInvalidatedAt) {
		return nil, "", ErrUnauthenticated
	}

	now := a.now().UTC()
	if a.codec.ShouldRefresh(claims.IssuedAt, now) {
		refreshed, err = a.codec.Issue(user.ID, now)
		if err != nil {
			return nil, "", err
		}
	}
	return &Principal{UserID: user.ID, User: user}, refreshed, nil
}

func bearerToken(authorization string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authorization, prefix) {
		return "", false
	}
	token := strings.TrimSpace(authorization[len(prefix):])
	return token, token != ""
}
