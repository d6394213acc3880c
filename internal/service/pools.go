package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/survivorpool/survivorpool/internal/season"
	"github.com/survivorpool/survivorpool/internal/store"
)

const (
	minStartWeek = 1
	maxStartWeek = 6
)

// CreatePoolRequest is the pool creation payload.
type CreatePoolRequest struct {
	Name          string   `json:"name"`
	OwnerID       string   `json:"owner_id"`
	SeasonID      string   `json:"season_id"`
	StartWeek     int      `json:"start_week"`
	InviteUserIDs []string `json:"invite_user_ids"`
}

// CreatePool creates the pool with its owner membership, upserts invited
// memberships for the invitees, points the owner's default pool here, and
// primes the score cache.
func (s *Service) CreatePool(ctx context.Context, req CreatePoolRequest) (*PoolView, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalidArg("Pool name is required")
	}

	ownerOID, serr := parseID(req.OwnerID, "owner_id")
	if serr != nil {
		return nil, serr
	}
	if _, err := s.store.Users().FindByID(ctx, ownerOID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("Owner not found")
		}
		return nil, internal("Failed to create pool", err)
	}

	seasonOID, serr := parseID(req.SeasonID, "season_id")
	if serr != nil {
		return nil, serr
	}
	seasonDoc, err := s.seasons.GetSeason(ctx, seasonOID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("Season not found")
		}
		return nil, internal("Failed to create pool", err)
	}

	if req.StartWeek < minStartWeek || req.StartWeek > maxStartWeek {
		return nil, invalidArg("Start week must be between 1 and 6")
	}

	now := s.now()
	pool := &store.Pool{
		Name:        name,
		OwnerID:     ownerOID,
		SeasonID:    seasonOID,
		CreatedAt:   now,
		CurrentWeek: req.StartWeek,
		StartWeek:   req.StartWeek,
		Settings:    map[string]any{},
		Status:      store.PoolStatusOpen,
		Winners:     []primitive.ObjectID{},
	}
	poolID, err := s.store.Pools().Insert(ctx, pool)
	if err != nil {
		return nil, internal("Failed to create pool", err)
	}

	owner := &store.Membership{
		PoolID:               poolID,
		UserID:               ownerOID,
		Role:                 store.RoleOwner,
		Status:               store.MembershipStatusActive,
		JoinedAt:             &now,
		AvailableContestants: []string{},
	}
	if err := s.store.Memberships().Insert(ctx, owner); err != nil {
		return nil, internal("Failed to create pool", err)
	}

	invitedUserIDs := make([]string, 0, len(req.InviteUserIDs))
	seen := map[string]struct{}{req.OwnerID: {}}
	for _, invitee := range req.InviteUserIDs {
		if _, dup := seen[invitee]; dup {
			continue
		}
		seen[invitee] = struct{}{}
		inviteeOID, serr := parseID(invitee, "invite_user_ids")
		if serr != nil {
			return nil, serr
		}
		if _, err := s.store.Users().FindByID(ctx, inviteeOID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, notFound("Invited user not found")
			}
			return nil, internal("Failed to create pool", err)
		}
		if _, err := s.store.Memberships().UpsertInvited(ctx, poolID, inviteeOID, now); err != nil {
			return nil, internal("Failed to create pool", err)
		}
		invitedUserIDs = append(invitedUserIDs, invitee)
	}

	if err := s.store.Users().SetDefaultPool(ctx, ownerOID, &poolID); err != nil {
		return nil, internal("Failed to create pool", err)
	}
	if err := s.recalculateScores(ctx, poolID, seasonDoc, pool.CurrentWeek); err != nil {
		return nil, internal("Failed to create pool", err)
	}
	s.metrics.PoolsCreated.Inc()
	s.log.Info().Str("pool_id", poolID.Hex()).Str("owner_id", ownerOID.Hex()).Msg("pool created")

	return poolView(pool, invitedUserIDs), nil
}

// recalculateScores rebuilds the cached availability for every membership:
// active members get eligible-at-week minus already-picked, everyone else
// gets zeroed. Nothing else writes score or available_contestants.
func (s *Service) recalculateScores(ctx context.Context, poolID primitive.ObjectID, seasonDoc *store.Season, targetWeek int) error {
	if targetWeek < 1 {
		targetWeek = 1
	}
	eligible := make(map[string]struct{})
	for _, id := range season.ActiveContestantIDs(seasonDoc, targetWeek) {
		eligible[id] = struct{}{}
	}
	used, err := s.store.Picks().UsedContestantsBefore(ctx, poolID, targetWeek)
	if err != nil {
		return err
	}

	active, err := s.store.Memberships().ListByPoolAndStatus(ctx, poolID, store.MembershipStatusActive)
	if err != nil {
		return err
	}
	for _, m := range active {
		remaining := make([]string, 0, len(eligible))
		for id := range eligible {
			if _, taken := used[m.UserID][id]; !taken {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		if err := s.store.Memberships().SetAvailability(ctx, m.ID, remaining, len(remaining)); err != nil {
			return err
		}
	}
	return s.store.Memberships().ZeroNonActive(ctx, poolID)
}

// winnerSummaries resolves winner labels, sorted by lowered display name.
func (s *Service) winnerSummaries(ctx context.Context, winnerIDs []primitive.ObjectID) ([]*WinnerSummary, error) {
	if len(winnerIDs) == 0 {
		return []*WinnerSummary{}, nil
	}
	labels, err := s.displayLabels(ctx, winnerIDs)
	if err != nil {
		return nil, err
	}
	out := make([]*WinnerSummary, 0, len(winnerIDs))
	for _, id := range winnerIDs {
		out = append(out, &WinnerSummary{UserID: id.Hex(), DisplayName: labels[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].DisplayName) < strings.ToLower(out[j].DisplayName)
	})
	return out, nil
}

func (s *Service) currentPickSummary(ctx context.Context, poolID, userID primitive.ObjectID, week int, seasonDoc *store.Season) (*CurrentPickSummary, error) {
	pick, err := s.store.Picks().FindForWeek(ctx, poolID, userID, week)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	name := pick.ContestantID
	if c := season.FindContestant(seasonDoc, pick.ContestantID); c != nil {
		name = c.Name
	}
	return &CurrentPickSummary{
		PickID:         pick.ID.Hex(),
		ContestantID:   pick.ContestantID,
		ContestantName: name,
		Week:           pick.Week,
		LockedAt:       pick.CreatedAt,
	}, nil
}

// AvailableContestants is the weekly picks view: the cached availability
// enriched with contestant names and tribes, plus completion context.
func (s *Service) AvailableContestants(ctx context.Context, poolID, userID string) (*AvailableContestantsView, error) {
	poolOID, serr := parseID(poolID, "pool_id")
	if serr != nil {
		return nil, serr
	}
	userOID, serr := parseID(userID, "user_id")
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

	winners, err := s.winnerSummaries(ctx, pool.Winners)
	if err != nil {
		return nil, internal("Failed to load winners", err)
	}

	membership, err := s.store.Memberships().Find(ctx, poolOID, userOID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, forbidden("User is not a member of this pool")
		}
		return nil, internal("Failed to load membership", err)
	}
	if membership.Score != len(membership.AvailableContestants) {
		return nil, internal("Available contestant cache invalid", nil)
	}

	view := &AvailableContestantsView{
		PoolID:            poolOID.Hex(),
		UserID:            userOID.Hex(),
		CurrentWeek:       pool.CurrentWeek,
		Contestants:       []*AvailableContestant{},
		Score:             membership.Score,
		PoolStatus:        pool.Status,
		PoolCompletedWeek: pool.CompletedWeek,
		PoolCompletedAt:   pool.CompletedAt,
		Winners:           winners,
		DidTie:            len(winners) > 1,
	}

	switch membership.Status {
	case store.MembershipStatusEliminated:
		view.IsEliminated = true
		view.EliminationReason = membership.EliminationReason
		view.EliminatedWeek = membership.EliminatedWeek
		return view, nil
	case store.MembershipStatusWinner:
		view.IsWinner = true
		return view, nil
	case store.MembershipStatusActive:
		// Falls through to the enriched listing.
	default:
		return nil, forbidden("User is not an active member of this pool")
	}

	seasonDoc, serr := s.loadSeasonForPool(ctx, pool)
	if serr != nil {
		return nil, serr
	}

	for _, contestantID := range membership.AvailableContestants {
		name := contestantID
		if c := season.FindContestant(seasonDoc, contestantID); c != nil {
			name = c.Name
		}
		entry := &AvailableContestant{ID: contestantID, Name: name}
		if tribe := season.ResolveTribe(seasonDoc, contestantID, pool.CurrentWeek); tribe != nil {
			entry.TribeName = strp(tribe.Name)
			entry.TribeColor = strp(tribe.Color)
		}
		view.Contestants = append(view.Contestants, entry)
	}

	pick, err := s.currentPickSummary(ctx, poolOID, userOID, pool.CurrentWeek, seasonDoc)
	if err != nil {
		return nil, internal("Failed to load current pick", err)
	}
	view.CurrentPick = pick
	return view, nil
}

// ContestantDetail is the per-contestant card: availability, visible
// elimination, prior pick, tribe, and revealed advantages. Eliminations at
// or after the current week stay hidden.
func (s *Service) ContestantDetail(ctx context.Context, poolID, contestantID, userID string) (*ContestantDetailView, error) {
	poolOID, serr := parseID(poolID, "pool_id")
	if serr != nil {
		return nil, serr
	}
	userOID, serr := parseID(userID, "user_id")
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
		return nil, forbidden("User is not an active member of this pool")
	}

	seasonDoc, serr := s.loadSeasonForPool(ctx, pool)
	if serr != nil {
		return nil, serr
	}

	contestant := season.FindContestant(seasonDoc, contestantID)
	if contestant == nil {
		return nil, notFound("Contestant not found")
	}

	currentWeek := pool.CurrentWeek
	eliminatedWeek := season.EliminatedWeek(seasonDoc, contestantID)
	var visibleEliminatedWeek *int
	if eliminatedWeek != nil && *eliminatedWeek < currentWeek {
		visibleEliminatedWeek = eliminatedWeek
	}

	var alreadyPickedWeek *int
	priorPick, err := s.store.Picks().FindByContestant(ctx, poolOID, userOID, contestantID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, internal("Failed to load picks", err)
	}
	if priorPick != nil {
		week := priorPick.Week
		alreadyPickedWeek = &week
	}

	currentPick, err := s.currentPickSummary(ctx, poolOID, userOID, currentWeek, seasonDoc)
	if err != nil {
		return nil, internal("Failed to load current pick", err)
	}

	canPick := currentPick == nil &&
		alreadyPickedWeek == nil &&
		!(eliminatedWeek != nil && *eliminatedWeek < currentWeek)

	detail := &ContestantDetail{
		ID:         contestant.ID,
		Name:       contestant.Name,
		Age:        contestant.Age,
		Occupation: contestant.Occupation,
		Hometown:   contestant.Hometown,
	}
	if tribe := season.ResolveTribe(seasonDoc, contestantID, currentWeek); tribe != nil {
		detail.TribeName = strp(tribe.Name)
		detail.TribeColor = strp(tribe.Color)
	}

	advantages := []*AdvantageView{}
	for _, a := range season.VisibleAdvantages(seasonDoc, contestantID, currentWeek) {
		advantages = append(advantages, &AdvantageView{
			ID:               a.ID,
			DisplayName:      a.DisplayName,
			Type:             a.Type,
			AcquisitionNotes: a.AcquisitionNotes,
			EndNotes:         a.EndNotes,
			ObtainedWeek:     a.ObtainedWeek,
			EndWeek:          a.EndWeek,
		})
	}

	return &ContestantDetailView{
		PoolID:            poolOID.Hex(),
		UserID:            userOID.Hex(),
		Contestant:        detail,
		IsAvailable:       canPick,
		EliminatedWeek:    visibleEliminatedWeek,
		AlreadyPickedWeek: alreadyPickedWeek,
		CurrentPick:       currentPick,
		Advantages:        advantages,
	}, nil
}

// Leaderboard ranks members by score descending with dense ranks; ties share
// a rank. Only playing or finished members appear and may view it.
func (s *Service) Leaderboard(ctx context.Context, poolID, userID string) (*LeaderboardView, error) {
	poolOID, serr := parseID(poolID, "pool_id")
	if serr != nil {
		return nil, serr
	}
	viewerOID, serr := parseID(userID, "user_id")
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

	viewer, err := s.store.Memberships().Find(ctx, poolOID, viewerOID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, forbidden("User is not a member of this pool")
		}
		return nil, internal("Failed to load membership", err)
	}
	switch viewer.Status {
	case store.MembershipStatusActive, store.MembershipStatusEliminated, store.MembershipStatusWinner:
	default:
		return nil, forbidden("Leaderboard only available to pool members")
	}

	memberships, err := s.store.Memberships().ListByPool(ctx, poolOID)
	if err != nil {
		return nil, internal("Failed to list memberships", err)
	}
	userIDs := make([]primitive.ObjectID, 0, len(memberships))
	for _, m := range memberships {
		userIDs = append(userIDs, m.UserID)
	}
	labels, err := s.displayLabels(ctx, userIDs)
	if err != nil {
		return nil, internal("Failed to load users", err)
	}

	entries := []*LeaderboardEntry{}
	for _, m := range memberships {
		switch m.Status {
		case store.MembershipStatusActive, store.MembershipStatusEliminated, store.MembershipStatusWinner:
		default:
			continue
		}
		entries = append(entries, &LeaderboardEntry{
			UserID:            m.UserID.Hex(),
			DisplayName:       labels[m.UserID],
			Score:             m.Score,
			Status:            m.Status,
			IsWinner:          m.Status == store.MembershipStatusWinner,
			EliminationReason: m.EliminationReason,
			EliminatedWeek:    m.EliminatedWeek,
			FinalRank:         m.FinalRank,
			FinishedWeek:      m.FinishedWeek,
			FinishedDate:      m.FinishedDate,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return strings.ToLower(entries[i].DisplayName) < strings.ToLower(entries[j].DisplayName)
	})
	lastScore := 0
	for i, e := range entries {
		if i == 0 || e.Score != lastScore {
			e.Rank = i + 1
			lastScore = e.Score
		} else {
			e.Rank = entries[i-1].Rank
		}
	}

	winners, err := s.winnerSummaries(ctx, pool.Winners)
	if err != nil {
		return nil, internal("Failed to load winners", err)
	}

	return &LeaderboardView{
		PoolID:            poolOID.Hex(),
		CurrentWeek:       pool.CurrentWeek,
		PoolStatus:        pool.Status,
		PoolCompletedWeek: pool.CompletedWeek,
		PoolCompletedAt:   pool.CompletedAt,
		Entries:           entries,
		Winners:           winners,
		DidTie:            len(winners) > 1,
	}, nil
}

// ListPoolMemberships is the owner's roster: every membership joined with
// the user, owner first, then playing or finished members, then by name.
func (s *Service) ListPoolMemberships(ctx context.Context, poolID, ownerID string) (*MembershipList, error) {
	pool, _, serr := s.requirePoolOwner(ctx, poolID, ownerID)
	if serr != nil {
		return nil, serr
	}

	memberships, err := s.store.Memberships().ListByPool(ctx, pool.ID)
	if err != nil {
		return nil, internal("Failed to list memberships", err)
	}
	userIDs := make([]primitive.ObjectID, 0, len(memberships))
	for _, m := range memberships {
		userIDs = append(userIDs, m.UserID)
	}
	users, err := s.store.Users().FindByIDs(ctx, userIDs)
	if err != nil {
		return nil, internal("Failed to load users", err)
	}

	members := []*MemberSummary{}
	for _, m := range memberships {
		u, ok := users[m.UserID]
		if !ok {
			continue
		}
		members = append(members, memberSummary(m, u))
	}
	sort.Slice(members, func(i, j int) bool {
		a, b := members[i], members[j]
		aOwner, bOwner := a.Role == store.RoleOwner, b.Role == store.RoleOwner
		if aOwner != bOwner {
			return aOwner
		}
		aPlaying := a.Status == store.MembershipStatusActive || a.Status == store.MembershipStatusWinner
		bPlaying := b.Status == store.MembershipStatusActive || b.Status == store.MembershipStatusWinner
		if aPlaying != bPlaying {
			return aPlaying
		}
		return strings.ToLower(a.DisplayName) < strings.ToLower(b.DisplayName)
	})

	return &MembershipList{PoolID: pool.ID.Hex(), Members: members}, nil
}

// DeletePool tears down the pool and everything hanging off it.
func (s *Service) DeletePool(ctx context.Context, poolID, ownerID string) error {
	pool, _, serr := s.requirePoolOwner(ctx, poolID, ownerID)
	if serr != nil {
		return serr
	}
	return s.deletePool(ctx, pool.ID)
}

func (s *Service) deletePool(ctx context.Context, poolID primitive.ObjectID) error {
	if err := s.store.Picks().DeleteByPool(ctx, poolID); err != nil {
		return internal("Failed to delete pool", err)
	}
	if err := s.store.Memberships().DeleteByPool(ctx, poolID); err != nil {
		return internal("Failed to delete pool", err)
	}
	if err := s.store.Pools().Delete(ctx, poolID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("Pool not found")
		}
		return internal("Failed to delete pool", err)
	}
	if err := s.store.Users().ClearDefaultPoolForPool(ctx, poolID); err != nil {
		return internal("Failed to delete pool", err)
	}
	s.log.Info().Str("pool_id", poolID.Hex()).Msg("pool deleted")
	return nil
}
