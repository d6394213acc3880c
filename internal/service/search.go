package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/survivorpool/survivorpool/internal/store"
)

const (
	searchMaxLimit     = 25
	searchMinQueryLen  = 2
	searchMinFetchSize = 30
)

// SearchActiveUsers finds invite candidates by username substring. Ranking
// is deterministic: exact match, then prefix, then contains, ties broken by
// the lowered username. With a pool id, users already active, invited, or
// eliminated in that pool are excluded and the rest are annotated with
// their membership status.
func (s *Service) SearchActiveUsers(ctx context.Context, query string, poolID *string, limit int) ([]*SearchResult, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > searchMaxLimit {
		limit = searchMaxLimit
	}
	query = strings.TrimSpace(query)
	if len(query) < searchMinQueryLen {
		return []*SearchResult{}, nil
	}

	fetch := limit * 3
	if fetch < searchMinFetchSize {
		fetch = searchMinFetchSize
	}
	candidates, err := s.store.Users().SearchActiveByUsername(ctx, query, fetch)
	if err != nil {
		return nil, internal("Search failed", err)
	}

	var statusByUser map[primitive.ObjectID]string
	if poolID != nil {
		poolOID, serr := parseID(*poolID, "pool_id")
		if serr != nil {
			return nil, serr
		}
		memberships, err := s.store.Memberships().ListByPool(ctx, poolOID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, internal("Search failed", err)
		}
		statusByUser = make(map[primitive.ObjectID]string, len(memberships))
		for _, m := range memberships {
			statusByUser[m.UserID] = m.Status
		}
	}

	lowered := strings.ToLower(query)
	type ranked struct {
		rank   int
		lower  string
		result *SearchResult
	}
	var rankedResults []ranked
	for _, u := range candidates {
		lowerName := strings.ToLower(u.Username)
		var rank int
		switch {
		case lowerName == lowered:
			rank = 0
		case strings.HasPrefix(lowerName, lowered):
			rank = 1
		default:
			rank = 2
		}

		var membershipStatus *string
		if statusByUser != nil {
			if status, ok := statusByUser[u.ID]; ok {
				switch status {
				case store.MembershipStatusActive, store.MembershipStatusInvited, store.MembershipStatusEliminated:
					continue
				}
				membershipStatus = strp(status)
			}
		}

		rankedResults = append(rankedResults, ranked{
			rank:  rank,
			lower: lowerName,
			result: &SearchResult{
				ID:               u.ID.Hex(),
				Username:         u.Username,
				DisplayName:      u.DisplayLabel(),
				MembershipStatus: membershipStatus,
			},
		})
	}

	sort.Slice(rankedResults, func(i, j int) bool {
		if rankedResults[i].rank != rankedResults[j].rank {
			return rankedResults[i].rank < rankedResults[j].rank
		}
		return rankedResults[i].lower < rankedResults[j].lower
	})

	out := make([]*SearchResult, 0, limit)
	for _, r := range rankedResults {
		if len(out) == limit {
			break
		}
		out = append(out, r.result)
	}
	return out, nil
}
