package cache

import (
	"context"
	"fmt"
)

// Tiered reads through a fast front cache to a durable back cache.
type Tiered struct {
	front Cache
	back  Cache
}

func NewTiered(front, back Cache) *Tiered {
	return &Tiered{front: front, back: back}
}

func (t *Tiered) Get(ctx context.Context, key Key) (Prediction, bool, error) {
	if p, ok, err := t.front.Get(ctx, key); err == nil && ok {
		return p, true, nil
	}
	p, ok, err := t.back.Get(ctx, key)
	if err != nil || !ok {
		return Prediction{}, false, err
	}
	_ = t.front.Set(ctx, key, p)
	return p, true, nil
}

func (t *Tiered) Set(ctx context.Context, key Key, p Prediction) error {
	if err := t.front.Set(ctx, key, p); err != nil {
		return err
	}
	return t.back.Set(ctx, key, p)
}

// Stats counts a hit when either tier answered; entries come from the back tier.
func (t *Tiered) Stats(ctx context.Context) (Stats, error) {
	fs, err := t.front.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	bs, err := t.back.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Backend: fmt.Sprintf("%s+%s", fs.Backend, bs.Backend),
		Hits:    fs.Hits + bs.Hits,
		Misses:  bs.Misses,
		Entries: bs.Entries,
	}, nil
}
