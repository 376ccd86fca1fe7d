package services

import (
	"context"
	"fmt"

	"auction-pipeline/storage"
)

// ChangeGate decides whether a snapshot marker has not been processed yet.
type ChangeGate struct {
	store storage.MarkerStore
}

func NewChangeGate(store storage.MarkerStore) *ChangeGate {
	return &ChangeGate{store: store}
}

// IsNew reports whether marker differs from the stored one and, if so,
// records it. An equal marker leaves the store untouched.
func (g *ChangeGate) IsNew(ctx context.Context, marker string) (bool, error) {
	seen, err := g.Seen(ctx, marker)
	if err != nil || seen {
		return false, err
	}
	if err := g.Advance(ctx, marker); err != nil {
		return false, err
	}
	return true, nil
}

// Seen reports whether marker is the stored one, without writing.
func (g *ChangeGate) Seen(ctx context.Context, marker string) (bool, error) {
	stored, ok, err := g.store.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("gate: read marker: %w", err)
	}
	return ok && stored == marker, nil
}

// Advance stores marker as the last processed one.
func (g *ChangeGate) Advance(ctx context.Context, marker string) error {
	if err := g.store.Set(ctx, marker); err != nil {
		return fmt.Errorf("gate: write marker: %w", err)
	}
	return nil
}
