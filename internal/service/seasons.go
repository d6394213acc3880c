package service

import "context"

// ListSeasons returns every season, newest first.
func (s *Service) ListSeasons(ctx context.Context) ([]*SeasonView, error) {
	seasons, err := s.seasons.List(ctx)
	if err != nil {
		return nil, internal("Failed to list seasons", err)
	}
	out := make([]*SeasonView, 0, len(seasons))
	for _, doc := range seasons {
		out = append(out, &SeasonView{
			ID:           doc.ID.Hex(),
			SeasonName:   doc.SeasonName,
			SeasonNumber: doc.SeasonNumber,
		})
	}
	return out, nil
}
