// Package notify broadcasts call phase transitions for live UI updates.
//
// Delivery is best-effort and unordered relative to the state transitions it
// describes; failures here must never affect call-state correctness, which
// is why the interface returns nothing.
package notify

import (
	"context"
	"sync"
	"time"
)

// CallUpdate is one phase-transition broadcast.
type CallUpdate struct {
	CallID      string    `json:"call_id"`
	WorkspaceID string    `json:"workspace_id"`
	BridgePhase string    `json:"bridge_phase"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier is the fire-and-forget broadcast interface.
type Notifier interface {
	CallUpdated(ctx context.Context, u CallUpdate)
}

// MemoryNotifier records updates for tests.
type MemoryNotifier struct {
	mu      sync.Mutex
	updates []CallUpdate
}

func NewMemoryNotifier() *MemoryNotifier { return &MemoryNotifier{} }

func (n *MemoryNotifier) CallUpdated(_ context.Context, u CallUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, u)
}

// Updates returns a copy of everything broadcast so far.
func (n *MemoryNotifier) Updates() []CallUpdate {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]CallUpdate, len(n.updates))
	copy(out, n.updates)
	return out
}
