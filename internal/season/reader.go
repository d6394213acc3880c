// Package season reads season documents and answers the cast questions the
// pool engine asks: who is still in the game, which tribe a contestant is on,
// and which advantages are public knowledge at a given week.
package season

import (
	"context"
	"time"

	"github.com/maypok86/otter"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/survivorpool/survivorpool/internal/store"
)

// Reader caches season documents in front of the store. Seasons change
// rarely (one write per aired episode), so a short TTL keeps reads cheap
// without making new eliminations invisible for long.
type Reader struct {
	seasons store.SeasonStore
	cache   otter.Cache[string, *store.Season]
}

// NewReader builds a reader with a small TTL cache.
func NewReader(seasons store.SeasonStore) (*Reader, error) {
	cache, err := otter.MustBuilder[string, *store.Season](256).
		WithTTL(5 * time.Minute).
		Build()
	if err != nil {
		return nil, err
	}
	return &Reader{seasons: seasons, cache: cache}, nil
}

// GetSeason loads a season by ID, from cache when warm.
func (r *Reader) GetSeason(ctx context.Context, id primitive.ObjectID) (*store.Season, error) {
	key := id.Hex()
	if s, ok := r.cache.Get(key); ok {
		return s, nil
	}
	s, err := r.seasons.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Set(key, s)
	return s, nil
}

// List returns all seasons, newest first. Uncached; the listing endpoint is
// rarely hit and the store sorts by season_number already.
func (r *Reader) List(ctx context.Context) ([]*store.Season, error) {
	return r.seasons.List(ctx)
}

// TribeInfo is the tribe a contestant belongs to at a given week.
type TribeInfo struct {
	Name  string
	Color string
}

// EliminatedWeek returns the week the contestant was voted out, or nil if
// they are still in the game.
func EliminatedWeek(s *store.Season, contestantID string) *int {
	for _, e := range s.Eliminations {
		if e.EliminatedContestantID == contestantID {
			week := e.Week
			return &week
		}
	}
	return nil
}

// ActiveContestantIDs returns the contestants not yet voted out entering the
// given week. An elimination at week N removes the contestant from week N+1
// onward.
func ActiveContestantIDs(s *store.Season, week int) []string {
	out := make([]string, 0, len(s.Contestants))
	for _, c := range s.Contestants {
		if w := EliminatedWeek(s, c.ID); w != nil && *w < week {
			continue
		}
		out = append(out, c.ID)
	}
	return out
}

// FindContestant looks up a contestant by ID within the season.
func FindContestant(s *store.Season, contestantID string) *store.Contestant {
	for i := range s.Contestants {
		if s.Contestants[i].ID == contestantID {
			return &s.Contestants[i]
		}
	}
	return nil
}

// ResolveTribe returns the tribe holding the contestant under the timeline
// entry in effect entering the given week: the latest entry at or before
// week-1 (week 1 when week <= 1). Nil when the timeline does not place them.
func ResolveTribe(s *store.Season, contestantID string, week int) *TribeInfo {
	effective := week - 1
	if effective < 1 {
		effective = 1
	}
	var current *store.TribeTimelineEntry
	for i := range s.TribeTimeline {
		entry := &s.TribeTimeline[i]
		if entry.Week > effective {
			continue
		}
		if current == nil || entry.Week >= current.Week {
			current = entry
		}
	}
	if current == nil {
		return nil
	}
	for _, tribe := range current.Tribes {
		for _, member := range tribe.Members {
			if member == contestantID {
				return &TribeInfo{Name: tribe.Name, Color: tribe.Color}
			}
		}
	}
	return nil
}

// VisibleAdvantages returns the contestant's advantages revealed by play so
// far: obtained_week at or before week-1. At week 1 and below nothing has
// aired yet to hide, so everything on file is returned.
func VisibleAdvantages(s *store.Season, contestantID string, week int) []store.Advantage {
	var out []store.Advantage
	for _, a := range s.Advantages {
		if a.ContestantID != contestantID {
			continue
		}
		if week > 1 && (a.ObtainedWeek == nil || *a.ObtainedWeek > week-1) {
			continue
		}
		out = append(out, a)
	}
	return out
}
