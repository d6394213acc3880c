package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/survivorpool/survivorpool/internal/auth"
	"github.com/survivorpool/survivorpool/internal/store"
)

const (
	maxFailedLogins     = 5
	lockoutWindow       = 15 * time.Minute
	resetTokenTTL       = time.Hour
	minPasswordLength   = 6
	badCredentialsMsg   = "Incorrect username/email or password"
	lockedOutMsg        = "Too many failed login attempts. Try again later."
	passwordTooShortMsg = "Password must be at least 6 characters"
)

// CreateUserRequest is the signup payload.
type CreateUserRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// CreateUser registers an account and sends the verification email.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*UserView, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	if username == "" {
		return nil, invalidArg("Username is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, invalidArg("A valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, invalidArg(passwordTooShortMsg)
	}

	if _, err := s.store.Users().FindByUsername(ctx, username); err == nil {
		return nil, invalidArg("Username already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, internal("Failed to create user", err)
	}
	if _, err := s.store.Users().FindByEmail(ctx, email); err == nil {
		return nil, invalidArg("Email already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, internal("Failed to create user", err)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, internal("Failed to create user", err)
	}

	token := uuid.NewString()
	user := &store.User{
		Username:          username,
		Email:             email,
		DisplayName:       strings.TrimSpace(req.DisplayName),
		PasswordHash:      hash,
		AccountStatus:     store.AccountStatusActive,
		CreatedAt:         s.now(),
		VerificationToken: &token,
	}
	if _, err := s.store.Users().Insert(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost the race with a concurrent signup.
			return nil, invalidArg("Username already exists")
		}
		return nil, internal("Failed to create user", err)
	}
	s.metrics.UsersCreated.Inc()

	// Delivery is best effort; the verify endpoint tolerates retries.
	link := fmt.Sprintf("%s/users/verify/%s", s.baseURL, token)
	if err := s.mail.SendVerificationEmail(ctx, email, username, link); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID.Hex()).Msg("verification email failed")
	}

	return userView(user), nil
}

// LoginRequest is the login payload; identifier matches username or email.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// LoginUser authenticates and mints a credential. Unknown identifiers burn a
// dummy hash comparison so their timing matches a wrong password.
func (s *Service) LoginUser(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		return nil, invalidArg("Identifier is required")
	}

	user, err := s.store.Users().FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			auth.VerifyDummy(req.Password)
			s.metrics.LoginFailures.Inc()
			return nil, unauthorized(badCredentialsMsg)
		}
		return nil, internal("Login failed", err)
	}

	now := s.now()
	if user.LockedUntil != nil {
		if now.Before(*user.LockedUntil) {
			return nil, rateLimited(lockedOutMsg)
		}
		// The lockout window passed; start with a clean slate.
		if err := s.store.Users().ClearLockout(ctx, user.ID); err != nil {
			return nil, internal("Login failed", err)
		}
	}

	if !auth.VerifyPassword(user.PasswordHash, req.Password) {
		s.metrics.LoginFailures.Inc()
		count, err := s.store.Users().IncrementFailedLogins(ctx, user.ID)
		if err != nil {
			return nil, internal("Login failed", err)
		}
		if count >= maxFailedLogins {
			until := now.Add(lockoutWindow)
			if err := s.store.Users().SetLockout(ctx, user.ID, until); err != nil {
				return nil, internal("Login failed", err)
			}
			s.metrics.AccountLockouts.Inc()
			s.log.Warn().Str("user_id", user.ID.Hex()).Time("locked_until", until).Msg("account locked out")
			return nil, rateLimited(lockedOutMsg)
		}
		return nil, unauthorized(badCredentialsMsg)
	}

	if user.AccountStatus != store.AccountStatusActive {
		return nil, forbidden("Account is not active")
	}
	if !user.EmailVerified {
		return nil, forbidden("Email not verified")
	}

	if err := s.store.Users().ClearLockout(ctx, user.ID); err != nil {
		return nil, internal("Login failed", err)
	}
	token, err := s.tokens.Issue(user.ID, now)
	if err != nil {
		return nil, internal("Login failed", err)
	}
	s.metrics.LoginSuccesses.Inc()
	return &LoginResult{User: userView(user), Token: token}, nil
}

// UpdatePassword changes the password after verifying the current one and
// revokes every outstanding credential.
func (s *Service) UpdatePassword(ctx context.Context, userID string, current, newPassword, confirm string) error {
	if newPassword != confirm {
		return invalidArg("Passwords do not match")
	}
	if len(newPassword) < minPasswordLength {
		return invalidArg(passwordTooShortMsg)
	}
	oid, serr := parseID(userID, "user_id")
	if serr != nil {
		return serr
	}
	user, err := s.store.Users().FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("User not found")
		}
		return internal("Failed to update password", err)
	}
	if !auth.VerifyPassword(user.PasswordHash, current) {
		return forbidden("Current password is incorrect")
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return internal("Failed to update password", err)
	}
	if err := s.store.Users().SetPasswordHash(ctx, oid, hash, s.now()); err != nil {
		return internal("Failed to update password", err)
	}
	return nil
}

// RequestPasswordReset stores a one-hour reset token and mails it. The
// outcome is identical whether or not the email exists.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return internal("Failed to request password reset", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return internal("Failed to request password reset", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	if err := s.store.Users().SetResetToken(ctx, user.ID, token, s.now().Add(resetTokenTTL)); err != nil {
		return internal("Failed to request password reset", err)
	}
	link := fmt.Sprintf("%s/reset_password?token=%s", s.baseURL, token)
	if err := s.mail.SendPasswordResetEmail(ctx, user.Email, user.Username, link); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID.Hex()).Msg("reset email failed")
	}
	return nil
}

// CompletePasswordReset consumes a reset token, sets the new password, and
// revokes outstanding credentials.
func (s *Service) CompletePasswordReset(ctx context.Context, token, newPassword, confirm string) error {
	if newPassword != confirm {
		return invalidArg("Passwords do not match")
	}
	if len(newPassword) < minPasswordLength {
		return invalidArg(passwordTooShortMsg)
	}
	if token == "" {
		return invalidArg("Invalid or expired reset token")
	}
	user, err := s.store.Users().FindByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return invalidArg("Invalid or expired reset token")
		}
		return internal("Failed to reset password", err)
	}
	if user.ResetTokenExpiresAt == nil || s.now().After(*user.ResetTokenExpiresAt) {
		return invalidArg("Invalid or expired reset token")
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return internal("Failed to reset password", err)
	}
	if err := s.store.Users().SetPasswordHash(ctx, user.ID, hash, s.now()); err != nil {
		return internal("Failed to reset password", err)
	}
	return nil
}

// EmailVerificationOutcome is what the verify endpoint renders.
type EmailVerificationOutcome string

const (
	VerificationCompleted EmailVerificationOutcome = "verified"
	VerificationRepeated  EmailVerificationOutcome = "already_verified"
	VerificationInvalid   EmailVerificationOutcome = "invalid"
)

// VerifyEmail marks the account verified. Unknown tokens report invalid
// rather than erroring: a consumed token and a garbage token look the same.
func (s *Service) VerifyEmail(ctx context.Context, token string) (EmailVerificationOutcome, error) {
	user, err := s.store.Users().FindByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return VerificationInvalid, nil
		}
		return VerificationInvalid, internal("Failed to verify email", err)
	}
	already := user.EmailVerified
	if err := s.store.Users().MarkEmailVerified(ctx, user.ID); err != nil {
		return VerificationInvalid, internal("Failed to verify email", err)
	}
	if already {
		return VerificationRepeated, nil
	}
	return VerificationCompleted, nil
}

// UpdateDefaultPool points the user's default at a pool they belong to, or
// clears it.
func (s *Service) UpdateDefaultPool(ctx context.Context, userID string, defaultPool *string) (*UserView, error) {
	oid, serr := parseID(userID, "user_id")
	if serr != nil {
		return nil, serr
	}
	if _, err := s.store.Users().FindByID(ctx, oid); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("User not found")
		}
		return nil, internal("Failed to update user", err)
	}

	var poolRef *primitive.ObjectID
	if defaultPool != nil {
		poolOID, serr := parseID(*defaultPool, "default_pool")
		if serr != nil {
			return nil, serr
		}
		if _, err := s.store.Pools().FindByID(ctx, poolOID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, notFound("Pool not found")
			}
			return nil, internal("Failed to update user", err)
		}
		if _, err := s.store.Memberships().Find(ctx, poolOID, oid); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, forbidden("User is not a member of this pool")
			}
			return nil, internal("Failed to update user", err)
		}
		poolRef = &poolOID
	}

	if err := s.store.Users().SetDefaultPool(ctx, oid, poolRef); err != nil {
		return nil, internal("Failed to update user", err)
	}
	updated, err := s.store.Users().FindByID(ctx, oid)
	if err != nil {
		return nil, internal("Failed to update user", err)
	}
	return userView(updated), nil
}

// ListUserPools returns the pools where the user is playing or has played:
// active, eliminated, or winner memberships.
func (s *Service) ListUserPools(ctx context.Context, userID string) ([]*PoolView, error) {
	oid, serr := parseID(userID, "user_id")
	if serr != nil {
		return nil, serr
	}
	memberships, err := s.store.Memberships().ListByUser(ctx, oid)
	if err != nil {
		return nil, internal("Failed to list pools", err)
	}
	var poolIDs []primitive.ObjectID
	for _, m := range memberships {
		switch m.Status {
		case store.MembershipStatusActive, store.MembershipStatusEliminated, store.MembershipStatusWinner:
			poolIDs = append(poolIDs, m.PoolID)
		}
	}
	if len(poolIDs) == 0 {
		return []*PoolView{}, nil
	}
	pools, err := s.store.Pools().FindByIDs(ctx, poolIDs)
	if err != nil {
		return nil, internal("Failed to list pools", err)
	}
	out := make([]*PoolView, 0, len(poolIDs))
	for _, id := range poolIDs {
		if p, ok := pools[id]; ok {
			out = append(out, poolView(p, nil))
		}
	}
	return out, nil
}

// DeleteUser removes the account: owned pools first (full pool teardown),
// then the user's memberships, picks, and profile.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	oid, serr := parseID(userID, "user_id")
	if serr != nil {
		return serr
	}
	if _, err := s.store.Users().FindByID(ctx, oid); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("User not found")
		}
		return internal("Failed to delete user", err)
	}

	memberships, err := s.store.Memberships().ListByUser(ctx, oid)
	if err != nil {
		return internal("Failed to delete user", err)
	}
	for _, m := range memberships {
		pool, err := s.store.Pools().FindByID(ctx, m.PoolID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return internal("Failed to delete user", err)
		}
		if pool.OwnerID == oid {
			if err := s.deletePool(ctx, pool.ID); err != nil {
				return err
			}
		}
	}

	if err := s.store.Memberships().DeleteByUser(ctx, oid); err != nil {
		return internal("Failed to delete user", err)
	}
	if err := s.store.Picks().DeleteByUser(ctx, oid); err != nil {
		return internal("Failed to delete user", err)
	}
	if err := s.store.Users().Delete(ctx, oid); err != nil {
		return internal("Failed to delete user", err)
	}
	s.log.Info().Str("user_id", oid.Hex()).Msg("user deleted")
	return nil
}
