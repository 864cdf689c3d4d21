package bridge

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when no call matches. It is an expected
// condition: the provider can deliver events for calls the store has not yet
// recorded or has since cleaned up, and handlers log-and-ack rather than fail.
var ErrNotFound = errors.New("bridge: call not found")

// Call is the aggregate root for one logical two-party (or legacy
// single-leg) call.
//
// Invariants:
//   - Once BridgePhase reaches bridged, both leg ids are set.
//   - BridgePhase only moves forward, except for the terminal overrides
//     written by hangup handling; terminal phases never change again.
//   - The record is never deleted; it becomes immutable once a terminal
//     phase and EndedAt are written.
type Call struct {
	ID          string `json:"call_id" db:"call_id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	// AgentLegID and ContactLegID are the provider's opaque leg ids.
	// LegacyCallID is the historical single external id used by calls
	// created before the two-leg model; kept for webhook lookup only.
	AgentLegID   string `json:"agent_leg_id,omitempty" db:"agent_leg_id"`
	ContactLegID string `json:"contact_leg_id,omitempty" db:"contact_leg_id"`
	LegacyCallID string `json:"legacy_call_id,omitempty" db:"legacy_call_id"`

	Direction    string `json:"direction" db:"direction"`
	CallerNumber string `json:"caller_number" db:"caller_number"`
	CalledNumber string `json:"called_number" db:"called_number"`

	BridgePhase Phase `json:"bridge_phase" db:"bridge_phase"`

	RecordingEnabled  bool `json:"recording_enabled" db:"recording_enabled"`
	AnnounceRecording bool `json:"announce_recording" db:"announce_recording"`
	HasRecording      bool `json:"has_recording" db:"has_recording"`

	StartedAt       *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	DurationSeconds int        `json:"duration_seconds" db:"duration_seconds"`

	// Metadata is an open map for status mirrors consumed by other
	// subsystems (call_status, hangup diagnostics, AMD results, DTMF).
	Metadata map[string]any `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsLegacy reports whether this call predates the two-leg bridge model and
// is driven by the single-leg path only.
func (c *Call) IsLegacy() bool {
	return c.AgentLegID == "" && c.ContactLegID == ""
}

// SiblingLegID returns the other leg's id given one leg's id, or empty when
// there is no sibling.
func (c *Call) SiblingLegID(legID string) string {
	switch legID {
	case c.AgentLegID:
		return c.ContactLegID
	case c.ContactLegID:
		return c.AgentLegID
	}
	return ""
}

// Patch is a field-scoped partial update. Only non-nil fields are written,
// so concurrent events for the two legs never clobber each other's columns.
// Metadata keys are merged into the existing map, not replaced.
type Patch struct {
	BridgePhase     *Phase
	AgentLegID      *string
	ContactLegID    *string
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationSeconds *int
	HasRecording    *bool
	Metadata        map[string]any
}

// Store is the call record persistence the state machine depends on. The
// orchestration core has no dependency on any particular storage technology.
type Store interface {
	Create(ctx context.Context, c *Call) error

	Get(ctx context.Context, id string) (*Call, error)

	// FindByLegID tries, in order: agent leg id, contact leg id, legacy
	// external id. A webhook carries one leg id and the caller cannot know
	// which slot it occupies.
	FindByLegID(ctx context.Context, legID string) (*Call, error)

	// Update applies a field-scoped patch. Safe to call with a stale read;
	// last write wins per field.
	Update(ctx context.Context, id string, p Patch) error
}
