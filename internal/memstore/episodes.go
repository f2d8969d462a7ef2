package memstore

import (
	"context"
	"sort"

	"research-podcaster/internal/models"
)

// UpsertEpisode creates or refreshes the episode. Feed membership of an
// existing episode is preserved.
func (s *Store) UpsertEpisode(ctx context.Context, ep models.Episode) (*models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if existing, ok := s.episodes[ep.CanonicalFilename]; ok {
		ep.SubmittedToFeed = existing.SubmittedToFeed
		ep.FeedSubmittedAt = existing.FeedSubmittedAt
		ep.PromotedAt = existing.PromotedAt
	} else {
		ep.SubmittedToFeed = false
		ep.FeedSubmittedAt = nil
		ep.PromotedAt = now
	}
	ep.UpdatedAt = now
	s.episodes[ep.CanonicalFilename] = cloneEpisode(&ep)
	return cloneEpisode(&ep), nil
}

func (s *Store) GetEpisode(ctx context.Context, filename string) (*models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.episodes[filename]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneEpisode(ep), nil
}

func (s *Store) ListEpisodes(ctx context.Context, filter models.EpisodeFilter) ([]models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listEpisodes(filter), nil
}

func (s *Store) listEpisodes(filter models.EpisodeFilter) []models.Episode {
	out := []models.Episode{}
	for _, ep := range s.episodes {
		if filter.InFeedOnly && !ep.SubmittedToFeed {
			continue
		}
		if filter.Category != "" && ep.Category != filter.Category {
			continue
		}
		out = append(out, *cloneEpisode(ep))
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].PromotedAt.Equal(out[b].PromotedAt) {
			return out[a].CanonicalFilename > out[b].CanonicalFilename
		}
		return out[a].PromotedAt.After(out[b].PromotedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func (s *Store) DeleteEpisode(ctx context.Context, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.episodes[filename]; !ok {
		return models.ErrNotFound
	}
	delete(s.episodes, filename)
	return nil
}

// SetFeedFlag flips submitted_to_feed and calls commit with the resulting
// feed membership while holding the store lock. If commit fails the flag
// is restored.
func (s *Store) SetFeedFlag(ctx context.Context, filename string, inFeed bool, commit func([]models.Episode) error) (*models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.episodes[filename]
	if !ok {
		return nil, models.ErrNotFound
	}
	before := cloneEpisode(ep)
	ep.SubmittedToFeed = inFeed
	if inFeed {
		if ep.FeedSubmittedAt == nil {
			at := s.now()
			ep.FeedSubmittedAt = &at
		}
	} else {
		ep.FeedSubmittedAt = nil
	}
	ep.UpdatedAt = s.now()
	if commit != nil {
		if err := commit(s.listEpisodes(models.EpisodeFilter{InFeedOnly: true})); err != nil {
			s.episodes[filename] = before
			return nil, err
		}
	}
	return cloneEpisode(ep), nil
}
