package streak

import (
	"context"

	"github.com/warp/performance-engine/generic"
)

// Store persists streak state and its history. SaveState writes the state
// and its events atomically.
type Store interface {
	GetState(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, streakType string) (State, bool, error)
	SaveState(ctx context.Context, s State, events []Event) error
	ListUserStates(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) ([]State, error)
	ListFrozen(ctx context.Context, tenantID generic.TenantID) ([]State, error)
	History(ctx context.Context, streakID string) ([]Event, error)
}
