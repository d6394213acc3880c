package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/survivorpool/survivorpool/internal/store"
)

// InviteRequest is the owner's invite payload.
type InviteRequest struct {
	OwnerID       string `json:"owner_id"`
	InvitedUserID string `json:"invited_user_id"`
}

// InviteUserToPool upserts the target's membership back to invited, wiping
// any stale elimination or rank fields from an earlier stint in the pool.
func (s *Service) InviteUserToPool(ctx context.Context, poolID string, req InviteRequest) (*InviteResult, error) {
	pool, ownerOID, serr := s.requirePoolOwner(ctx, poolID, req.OwnerID)
	if serr != nil {
		return nil, serr
	}

	invitedOID, serr := parseID(req.InvitedUserID, "invited_user_id")
	if serr != nil {
		return nil, serr
	}
	if invitedOID == ownerOID {
		return nil, invalidArg("Owner is already in this pool")
	}

	target, err := s.store.Users().FindByID(ctx, invitedOID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("User not found")
		}
		return nil, internal("Failed to invite user", err)
	}
	if target.AccountStatus != store.AccountStatusActive {
		return nil, notFound("User not found")
	}

	existing, err := s.store.Memberships().Find(ctx, pool.ID, invitedOID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, internal("Failed to invite user", err)
	}
	if existing != nil && existing.Status == store.MembershipStatusActive {
		return nil, invalidArg("User already in this pool")
	}

	membership, err := s.store.Memberships().UpsertInvited(ctx, pool.ID, invitedOID, s.now())
	if err != nil {
		return nil, internal("Failed to invite user", err)
	}
	return &InviteResult{Member: memberSummary(membership, target)}, nil
}

// InviteDecisionRequest is the accept/decline payload.
type InviteDecisionRequest struct {
	UserID string `json:"user_id"`
	Action string `json:"action"`
}

// RespondToInvite resolves a pending invite. The transition is conditional
// on the membership still being invited, so concurrent responses settle to
// exactly one winner and one conflict.
func (s *Service) RespondToInvite(ctx context.Context, poolID string, req InviteDecisionRequest) (*InviteResult, error) {
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
	seasonDoc, serr := s.loadSeasonForPool(ctx, pool)
	if serr != nil {
		return nil, serr
	}

	action := strings.ToLower(strings.TrimSpace(req.Action))
	if action != "accept" && action != "decline" {
		return nil, invalidArg("Unsupported action")
	}

	existing, err := s.store.Memberships().Find(ctx, poolOID, userOID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("Invite not found")
		}
		return nil, internal("Failed to load membership", err)
	}
	if existing.Status != store.MembershipStatusInvited {
		return nil, notFound("Invite not found")
	}

	membership, err := s.store.Memberships().ResolveInvite(ctx, poolOID, userOID, action == "accept", s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, conflict("Invite already handled")
		}
		return nil, internal("Failed to respond to invite", err)
	}

	user, err := s.store.Users().FindByID(ctx, userOID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("User not found")
		}
		return nil, internal("Failed to load user", err)
	}

	if action == "accept" {
		if err := s.recalculateScores(ctx, poolOID, seasonDoc, pool.CurrentWeek); err != nil {
			return nil, internal("Failed to respond to invite", err)
		}
		if err := s.maybeMarkCompetitive(ctx, pool); err != nil {
			return nil, internal("Failed to respond to invite", err)
		}
		// The availability just computed above, not the pre-accept zeros.
		membership, err = s.store.Memberships().Find(ctx, poolOID, userOID)
		if err != nil {
			return nil, internal("Failed to respond to invite", err)
		}
	}

	return &InviteResult{Member: memberSummary(membership, user)}, nil
}

// maybeMarkCompetitive latches is_competitive once two members are active
// at the same time. The store-level precondition makes concurrent callers
// idempotent; the week recorded is the first caller's.
func (s *Service) maybeMarkCompetitive(ctx context.Context, pool *store.Pool) error {
	if pool.IsCompetitive {
		return nil
	}
	active, err := s.store.Memberships().CountByPoolAndStatus(ctx, pool.ID, store.MembershipStatusActive)
	if err != nil {
		return err
	}
	if active < 2 {
		return nil
	}
	return s.store.Pools().MarkCompetitive(ctx, pool.ID, pool.CurrentWeek)
}

// PendingInvitesForUser lists the user's open invitations enriched with
// pool, owner, and season context.
func (s *Service) PendingInvitesForUser(ctx context.Context, userID string) (*PendingInvites, error) {
	userOID, serr := parseID(userID, "user_id")
	if serr != nil {
		return nil, serr
	}

	memberships, err := s.store.Memberships().ListByUserAndStatus(ctx, userOID, store.MembershipStatusInvited)
	if err != nil {
		return nil, internal("Failed to list invites", err)
	}
	if len(memberships) == 0 {
		return &PendingInvites{Invites: []*PendingInvite{}}, nil
	}

	poolIDs := make([]primitive.ObjectID, 0, len(memberships))
	for _, m := range memberships {
		poolIDs = append(poolIDs, m.PoolID)
	}
	pools, err := s.store.Pools().FindByIDs(ctx, poolIDs)
	if err != nil {
		return nil, internal("Failed to list invites", err)
	}

	var ownerIDs, seasonIDs []primitive.ObjectID
	for _, p := range pools {
		ownerIDs = append(ownerIDs, p.OwnerID)
		seasonIDs = append(seasonIDs, p.SeasonID)
	}
	ownerLabels, err := s.displayLabels(ctx, ownerIDs)
	if err != nil {
		return nil, internal("Failed to list invites", err)
	}
	seasons, err := s.store.Seasons().FindByIDs(ctx, seasonIDs)
	if err != nil {
		return nil, internal("Failed to list invites", err)
	}

	invites := []*PendingInvite{}
	for _, m := range memberships {
		pool, ok := pools[m.PoolID]
		if !ok {
			continue
		}
		invite := &PendingInvite{
			PoolID:           pool.ID.Hex(),
			PoolName:         pool.Name,
			OwnerDisplayName: ownerLabels[pool.OwnerID],
			SeasonID:         pool.SeasonID.Hex(),
			InvitedAt:        m.InvitedAt,
		}
		if seasonDoc, ok := seasons[pool.SeasonID]; ok {
			number := seasonDoc.SeasonNumber
			invite.SeasonNumber = &number
		}
		invites = append(invites, invite)
	}
	sort.Slice(invites, func(i, j int) bool {
		a, b := invites[i], invites[j]
		if (a.InvitedAt == nil) != (b.InvitedAt == nil) {
			return b.InvitedAt == nil
		}
		return strings.ToLower(a.PoolName) < strings.ToLower(b.PoolName)
	})

	return &PendingInvites{Invites: invites}, nil
}
