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

// AdvanceStatus is the owner's pre-advance check: who has locked, who is
// missing, and whether the week can be advanced at all.
func (s *Service) AdvanceStatus(ctx context.Context, poolID, userID string) (*AdvanceStatusView, error) {
	pool, _, serr := s.requirePoolOwner(ctx, poolID, userID)
	if serr != nil {
		return nil, serr
	}
	if pool.Status == store.PoolStatusCompleted {
		return nil, invalidArg("Pool already completed")
	}
	seasonDoc, serr := s.loadSeasonForPool(ctx, pool)
	if serr != nil {
		return nil, serr
	}
	view, _, err := s.computeAdvanceStatus(ctx, pool.ID, pool.CurrentWeek, seasonDoc)
	if err != nil {
		return nil, internal("Failed to compute advance status", err)
	}
	return view, nil
}

// computeAdvanceStatus counts locked and missing active members for the week
// and decides advanceability: the season must record an elimination for the
// current week, otherwise the week's results are not in yet.
func (s *Service) computeAdvanceStatus(ctx context.Context, poolID primitive.ObjectID, currentWeek int, seasonDoc *store.Season) (*AdvanceStatusView, []primitive.ObjectID, error) {
	canAdvance := false
	for _, e := range seasonDoc.Eliminations {
		if e.Week == currentWeek && e.EliminatedContestantID != "" {
			canAdvance = true
			break
		}
	}

	active, err := s.store.Memberships().ListByPoolAndStatus(ctx, poolID, store.MembershipStatusActive)
	if err != nil {
		return nil, nil, err
	}
	view := &AdvanceStatusView{
		CurrentWeek:       currentWeek,
		ActiveMemberCount: len(active),
		MissingMembers:    []*MissingMember{},
		CanAdvance:        canAdvance,
	}
	if len(active) == 0 {
		return view, nil, nil
	}

	locked, err := s.store.Picks().UserIDsWithPickForWeek(ctx, poolID, currentWeek)
	if err != nil {
		return nil, nil, err
	}
	var missing []primitive.ObjectID
	for _, m := range active {
		if _, ok := locked[m.UserID]; !ok {
			missing = append(missing, m.UserID)
		}
	}
	view.LockedCount = len(active) - len(missing)
	view.MissingCount = len(missing)

	if len(missing) > 0 {
		labels, err := s.displayLabels(ctx, missing)
		if err != nil {
			return nil, nil, err
		}
		for _, id := range missing {
			view.MissingMembers = append(view.MissingMembers, &MissingMember{
				UserID:      id.Hex(),
				DisplayName: labels[id],
			})
		}
		sort.Slice(view.MissingMembers, func(i, j int) bool {
			return strings.ToLower(view.MissingMembers[i].DisplayName) < strings.ToLower(view.MissingMembers[j].DisplayName)
		})
	}
	return view, missing, nil
}

// AdvanceWeek resolves the current week: eliminates members who missed their
// pick, whose pick was voted out, or who have no options left; detects
// completion in competitive pools; and either bumps current_week behind a
// compare-and-swap or closes the pool out.
func (s *Service) AdvanceWeek(ctx context.Context, poolID, userID string) (*AdvanceResult, error) {
	pool, _, serr := s.requirePoolOwner(ctx, poolID, userID)
	if serr != nil {
		return nil, serr
	}
	if pool.Status == store.PoolStatusCompleted {
		return nil, invalidArg("Pool already completed")
	}
	seasonDoc, serr := s.loadSeasonForPool(ctx, pool)
	if serr != nil {
		return nil, serr
	}

	currentWeek := pool.CurrentWeek
	now := s.now()
	reasons := make(map[primitive.ObjectID]string)

	status, missing, err := s.computeAdvanceStatus(ctx, pool.ID, currentWeek, seasonDoc)
	if err != nil {
		return nil, internal("Failed to compute advance status", err)
	}
	if !status.CanAdvance {
		return nil, invalidArg("Next week is not available yet")
	}

	// Stage 1: active members with no pick for the week.
	if len(missing) > 0 {
		if err := s.store.Memberships().EliminateActive(ctx, pool.ID, missing, store.EliminationReasonMissedPick, currentWeek, now); err != nil {
			return nil, internal("Failed to advance week", err)
		}
		for _, id := range missing {
			reasons[id] = store.EliminationReasonMissedPick
		}
	}

	// Stage 2: members whose pick was voted out this week.
	var votedOut []string
	for _, e := range seasonDoc.Eliminations {
		if e.Week == currentWeek && e.EliminatedContestantID != "" {
			votedOut = append(votedOut, e.EliminatedContestantID)
		}
	}
	if len(votedOut) > 0 {
		losingPicks, err := s.store.Picks().ListForWeekByContestants(ctx, pool.ID, currentWeek, votedOut)
		if err != nil {
			return nil, internal("Failed to advance week", err)
		}
		var losers []primitive.ObjectID
		for _, p := range losingPicks {
			if _, done := reasons[p.UserID]; !done {
				losers = append(losers, p.UserID)
			}
		}
		if len(losers) > 0 {
			if err := s.store.Memberships().EliminateActive(ctx, pool.ID, losers, store.EliminationReasonContestant, currentWeek, now); err != nil {
				return nil, internal("Failed to advance week", err)
			}
			for _, id := range losers {
				reasons[id] = store.EliminationReasonContestant
			}
		}
	}

	// Stage 3: survivors with nothing left to pick next week.
	eligibleNext := make(map[string]struct{})
	for _, id := range season.ActiveContestantIDs(seasonDoc, currentWeek+1) {
		eligibleNext[id] = struct{}{}
	}
	used, err := s.store.Picks().UsedContestantsBefore(ctx, pool.ID, currentWeek+1)
	if err != nil {
		return nil, internal("Failed to advance week", err)
	}
	stillActive, err := s.store.Memberships().ListByPoolAndStatus(ctx, pool.ID, store.MembershipStatusActive)
	if err != nil {
		return nil, internal("Failed to advance week", err)
	}
	var stranded []primitive.ObjectID
	for _, m := range stillActive {
		if _, done := reasons[m.UserID]; done {
			continue
		}
		remaining := 0
		for id := range eligibleNext {
			if _, taken := used[m.UserID][id]; !taken {
				remaining++
			}
		}
		if remaining == 0 {
			stranded = append(stranded, m.UserID)
		}
	}
	if len(stranded) > 0 {
		if err := s.store.Memberships().EliminateActive(ctx, pool.ID, stranded, store.EliminationReasonNoOptions, currentWeek, now); err != nil {
			return nil, internal("Failed to advance week", err)
		}
		for _, id := range stranded {
			reasons[id] = store.EliminationReasonNoOptions
		}
	}

	// Stage 4: completion, only once the pool has been competitive.
	poolCompleted := false
	var winnerIDs []primitive.ObjectID
	if pool.IsCompetitive {
		remaining, err := s.store.Memberships().ListByPoolAndStatus(ctx, pool.ID, store.MembershipStatusActive)
		if err != nil {
			return nil, internal("Failed to advance week", err)
		}
		switch {
		case len(remaining) == 1:
			poolCompleted = true
			winnerIDs = []primitive.ObjectID{remaining[0].UserID}
		case len(remaining) == 0 && len(reasons) > 0:
			// Everyone fell in the same week: the tie closes the pool with
			// every last-week casualty as a co-winner.
			for id := range reasons {
				winnerIDs = append(winnerIDs, id)
			}
			poolCompleted = true
		}
	}

	// Stage 5: persist the outcome.
	var newWeek int
	if poolCompleted {
		if err := s.store.Memberships().PromoteWinners(ctx, pool.ID, winnerIDs, currentWeek, now); err != nil {
			return nil, internal("Failed to advance week", err)
		}
		if err := s.store.Pools().MarkCompleted(ctx, pool.ID, currentWeek, now, winnerIDs); err != nil {
			return nil, internal("Failed to advance week", err)
		}
		newWeek = currentWeek
		if err := s.recalculateScores(ctx, pool.ID, seasonDoc, currentWeek); err != nil {
			return nil, internal("Failed to advance week", err)
		}
		s.metrics.PoolsCompleted.Inc()
		s.log.Info().Str("pool_id", pool.ID.Hex()).Int("week", currentWeek).Int("winners", len(winnerIDs)).Msg("pool completed")
	} else {
		after, err := s.store.Pools().IncrementWeek(ctx, pool.ID, currentWeek)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, conflict("Pool week changed, retry")
			}
			return nil, internal("Failed to advance week", err)
		}
		newWeek = after.CurrentWeek
		if err := s.recalculateScores(ctx, pool.ID, seasonDoc, newWeek); err != nil {
			return nil, internal("Failed to advance week", err)
		}
	}
	s.metrics.PoolsAdvanced.Inc()
	for _, reason := range reasons {
		s.metrics.Eliminations.WithLabelValues(reason).Inc()
	}

	// Stage 6: report. Tie winners are not double-reported as eliminations.
	winnerSet := make(map[primitive.ObjectID]struct{}, len(winnerIDs))
	for _, id := range winnerIDs {
		winnerSet[id] = struct{}{}
	}
	var eliminatedIDs []primitive.ObjectID
	for id := range reasons {
		if _, won := winnerSet[id]; !won {
			eliminatedIDs = append(eliminatedIDs, id)
		}
	}
	eliminations := []*EliminatedMember{}
	if len(eliminatedIDs) > 0 {
		labels, err := s.displayLabels(ctx, eliminatedIDs)
		if err != nil {
			return nil, internal("Failed to advance week", err)
		}
		for _, id := range eliminatedIDs {
			eliminations = append(eliminations, &EliminatedMember{
				UserID:      id.Hex(),
				DisplayName: labels[id],
				Reason:      reasons[id],
			})
		}
		sort.Slice(eliminations, func(i, j int) bool {
			return strings.ToLower(eliminations[i].DisplayName) < strings.ToLower(eliminations[j].DisplayName)
		})
	}
	winners, err := s.winnerSummaries(ctx, winnerIDs)
	if err != nil {
		return nil, internal("Failed to advance week", err)
	}

	return &AdvanceResult{
		NewCurrentWeek: newWeek,
		Eliminations:   eliminations,
		PoolCompleted:  poolCompleted,
		Winners:        winners,
	}, nil
}
