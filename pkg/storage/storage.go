package storage

import (
	"context"

	"github.com/raterudder/energystats/pkg/types"
)

// Database persists the accounting state of each configured entry.
type Database interface {
	// GetState returns the state saved for siteID. ok is false when nothing
	// has been saved yet.
	GetState(ctx context.Context, siteID string) (state types.PersistedState, ok bool, err error)
	// SetState replaces the state saved for siteID.
	SetState(ctx context.Context, siteID string, state types.PersistedState) error

	// Lifecycle
	Close() error
}
