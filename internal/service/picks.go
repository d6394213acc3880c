package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/survivorpool/survivorpool/internal/season"
	"github.com/survivorpool/survivorpool/internal/store"
)

// CreatePickRequest is the pick payload.
type CreatePickRequest struct {
	UserID       string `json:"user_id"`
	ContestantID string `json:"contestant_id"`
}

// CreatePick locks the caller's pick for the pool's current week. The
// validations run in a fixed order so every failure mode has one stable
// answer; the unique (pool, user, week) index backstops the race where two
// requests pass the duplicate read together.
func (s *Service) CreatePick(ctx context.Context, poolID string, req CreatePickRequest) (*PickView, error) {
	poolOID, serr := parseID(poolID, "pool_id")
	if serr != nil {
		return nil, serr
	}
	userOID, serr := parseID(req.UserID, "user_id")
	if serr != nil {
		return nil, serr
	}

	pool, err := s.store.Pools().FindByID(ctx, poolOID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("Pool not found")
		}
		return nil, internal("Failed to load pool", err)
	}

	membership, err := s.store.Memberships().Find(ctx, poolOID, userOID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, internal("Failed to load membership", err)
	}
	if membership == nil || membership.Status != store.MembershipStatusActive {
		return nil, forbidden("User is not active in this pool")
	}

	seasonDoc, serr := s.loadSeasonForPool(ctx, pool)
	if serr != nil {
		return nil, serr
	}

	currentWeek := pool.CurrentWeek

	if _, err := s.store.Picks().FindForWeek(ctx, poolOID, userOID, currentWeek); err == nil {
		return nil, invalidArg("Pick already locked for this week")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, internal("Failed to load picks", err)
	}

	if season.FindContestant(seasonDoc, req.ContestantID) == nil {
		return nil, notFound("Contestant not found")
	}

	prior, err := s.store.Picks().FindByContestant(ctx, poolOID, userOID, req.ContestantID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, internal("Failed to load picks", err)
	}
	if prior != nil {
		return nil, invalidArg(fmt.Sprintf("Contestant already picked in week %d", prior.Week))
	}

	// Eliminations only disqualify once processed; a boot scheduled for the
	// current week is still pickable.
	if w := season.EliminatedWeek(seasonDoc, req.ContestantID); w != nil && *w < currentWeek {
		return nil, invalidArg("Contestant already eliminated")
	}

	now := s.now()
	pick := &store.Pick{
		PoolID:       poolOID,
		UserID:       userOID,
		ContestantID: req.ContestantID,
		Week:         currentWeek,
		CreatedAt:    now,
		Result:       store.PickResultPending,
	}
	pickID, err := s.store.Picks().Insert(ctx, pick)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, invalidArg("Pick already locked for this week")
		}
		return nil, internal("Failed to lock pick", err)
	}
	s.metrics.PicksLocked.Inc()

	return &PickView{
		PickID:       pickID.Hex(),
		PoolID:       poolOID.Hex(),
		UserID:       userOID.Hex(),
		ContestantID: req.ContestantID,
		Week:         currentWeek,
		LockedAt:     now,
	}, nil
}
