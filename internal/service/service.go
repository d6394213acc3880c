// Package service implements the pool-lifecycle core: users and login
// lockout, pools and memberships, picks, the week-advance procedure, and
// invites. Handlers call exactly one method per request; every method
// returns either a view struct or a *ServiceError.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/survivorpool/survivorpool/internal/auth"
	"github.com/survivorpool/survivorpool/internal/mailer"
	"github.com/survivorpool/survivorpool/internal/metrics"
	"github.com/survivorpool/survivorpool/internal/season"
	"github.com/survivorpool/survivorpool/internal/store"
)

// Config carries the collaborators wired at startup.
type Config struct {
	Store         store.Store
	Seasons       *season.Reader
	Mailer        mailer.Mailer
	Tokens        *auth.TokenCodec
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
	PublicBaseURL string
	Clock         func() time.Time
}

// Service is the dependency context threaded through every operation.
type Service struct {
	store   store.Store
	seasons *season.Reader
	mail    mailer.Mailer
	tokens  *auth.TokenCodec
	metrics *metrics.Metrics
	log     zerolog.Logger
	baseURL string
	clock   func() time.Time
}

// New builds the service. Clock defaults to time.Now.
func New(cfg Config) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:   cfg.Store,
		seasons: cfg.Seasons,
		mail:    cfg.Mailer,
		tokens:  cfg.Tokens,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
		baseURL: cfg.PublicBaseURL,
		clock:   clock,
	}
}

func (s *Service) now() time.Time { return s.clock().UTC() }

// parseID converts a 24-hex-char wire identifier, naming the offending field
// in the error.
func parseID(value, fieldName string) (primitive.ObjectID, *ServiceError) {
	id, err := primitive.ObjectIDFromHex(value)
	if err != nil {
		return primitive.NilObjectID, invalidArg("Invalid " + fieldName)
	}
	return id, nil
}

// displayLabels resolves user ids to display labels in one store round trip.
// Missing users fall back to their hex id.
func (s *Service) displayLabels(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error) {
	users, err := s.store.Users().FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	labels := make(map[primitive.ObjectID]string, len(ids))
	for _, id := range ids {
		if u, ok := users[id]; ok {
			labels[id] = u.DisplayLabel()
		} else {
			labels[id] = id.Hex()
		}
	}
	return labels, nil
}

// requirePoolOwner loads the pool and checks that the caller owns it.
func (s *Service) requirePoolOwner(ctx context.Context, poolID, userID string) (*store.Pool, primitive.ObjectID, *ServiceError) {
	poolOID, serr := parseID(poolID, "pool_id")
	if serr != nil {
		return nil, primitive.NilObjectID, serr
	}
	ownerOID, serr := parseID(userID, "user_id")
	if serr != nil {
		return nil, primitive.NilObjectID, serr
	}
	pool, err := s.store.Pools().FindByID(ctx, poolOID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, primitive.NilObjectID, notFound("Pool not found")
		}
		return nil, primitive.NilObjectID, internal("Failed to load pool", err)
	}
	if pool.OwnerID != ownerOID {
		return nil, primitive.NilObjectID, forbidden("User is not the pool owner")
	}
	return pool, ownerOID, nil
}

// loadSeasonForPool fetches the pool's season; a pool without a loadable
// season is a data fault, not a caller error.
func (s *Service) loadSeasonForPool(ctx context.Context, pool *store.Pool) (*store.Season, *ServiceError) {
	if pool.SeasonID.IsZero() {
		return nil, internal("Pool season not configured", nil)
	}
	doc, err := s.seasons.GetSeason(ctx, pool.SeasonID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, internal("Season not found for pool", nil)
		}
		return nil, internal("Failed to load season", err)
	}
	return doc, nil
}
