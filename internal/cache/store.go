package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/styletag-backend/internal/data/repos"
	"github.com/yungbote/styletag-backend/internal/domain/runs"
	"github.com/yungbote/styletag-backend/internal/pkg/dbctx"
)

// Store keeps predictions in the database.
type Store struct {
	repo repos.PredictionRepo
	ttl  time.Duration
	now  func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

func NewStore(repo repos.PredictionRepo, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{repo: repo, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Get(ctx context.Context, key Key) (Prediction, bool, error) {
	entry, err := s.repo.Get(dbctx.New(ctx), key.Hash(), s.now())
	if errors.Is(err, repos.ErrNotFound) {
		s.misses.Add(1)
		return Prediction{}, false, nil
	}
	if err != nil {
		return Prediction{}, false, err
	}
	var p Prediction
	if err := json.Unmarshal(entry.Prediction, &p); err != nil {
		s.misses.Add(1)
		return Prediction{}, false, nil
	}
	s.hits.Add(1)
	return p, true, nil
}

func (s *Store) Set(ctx context.Context, key Key, p Prediction) error {
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store cache encode: %w", err)
	}
	return s.repo.Upsert(dbctx.New(ctx), &runs.PredictionEntry{
		Key:         key.Hash(),
		DocID:       key.DocID,
		ParagraphID: key.ParagraphID,
		Zone:        key.Zone,
		Prediction:  datatypes.JSON(raw),
		ExpiresAt:   now.Add(s.ttl),
	})
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	n, err := s.repo.Count(dbctx.New(ctx), s.now())
	if err != nil {
		return Stats{}, err
	}
	return Stats{Backend: "store", Hits: s.hits.Load(), Misses: s.misses.Load(), Entries: n}, nil
}

// Prune deletes expired rows.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(dbctx.New(ctx), s.now())
}
