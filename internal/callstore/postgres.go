// Package callstore provides the persistence implementations behind the
// bridge package's Store and RecordingStore interfaces.
package callstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Systemsaholic/call-helm-bridge/internal/bridge"
)

// PostgresStore persists calls in the calls table.
//
// Update builds a field-scoped SET clause from the patch so concurrent
// webhook deliveries for the two legs only ever touch their own columns;
// metadata patches merge via jsonb || rather than replacing the map.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const callColumns = `call_id, workspace_id, agent_leg_id, contact_leg_id, legacy_call_id,
	direction, caller_number, called_number, bridge_phase,
	recording_enabled, announce_recording, has_recording,
	started_at, ended_at, duration_seconds, metadata, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, c *bridge.Call) error {
	meta, err := json.Marshal(metaOrEmpty(c.Metadata))
	if err != nil {
		return fmt.Errorf("callstore: marshal metadata: %w", err)
	}
	query := `INSERT INTO calls (` + callColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`
	_, err = s.db.ExecContext(ctx, query,
		c.ID, c.WorkspaceID, c.AgentLegID, c.ContactLegID, c.LegacyCallID,
		c.Direction, c.CallerNumber, c.CalledNumber, string(c.BridgePhase),
		c.RecordingEnabled, c.AnnounceRecording, c.HasRecording,
		c.StartedAt, c.EndedAt, c.DurationSeconds, meta, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("callstore: insert call: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*bridge.Call, error) {
	return s.getWhere(ctx, "call_id", id)
}

func (s *PostgresStore) FindByLegID(ctx context.Context, legID string) (*bridge.Call, error) {
	if legID == "" {
		return nil, bridge.ErrNotFound
	}
	// Ordered fallback: a webhook carries one leg id and does not say
	// which slot it occupies; legacy external ids come last.
	for _, col := range []string{"agent_leg_id", "contact_leg_id", "legacy_call_id"} {
		c, err := s.getWhere(ctx, col, legID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, bridge.ErrNotFound) {
			return nil, err
		}
	}
	return nil, bridge.ErrNotFound
}

func (s *PostgresStore) getWhere(ctx context.Context, col, val string) (*bridge.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE ` + col + ` = $1`

	var (
		c     bridge.Call
		phase string
		meta  []byte
	)
	err := s.db.QueryRowContext(ctx, query, val).Scan(
		&c.ID, &c.WorkspaceID, &c.AgentLegID, &c.ContactLegID, &c.LegacyCallID,
		&c.Direction, &c.CallerNumber, &c.CalledNumber, &phase,
		&c.RecordingEnabled, &c.AnnounceRecording, &c.HasRecording,
		&c.StartedAt, &c.EndedAt, &c.DurationSeconds, &meta, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bridge.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("callstore: query call by %s: %w", col, err)
	}
	c.BridgePhase = bridge.Phase(phase)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("callstore: decode metadata: %w", err)
		}
	}
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	return &c, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, p bridge.Patch) error {
	sets := []string{}
	args := []any{}
	n := 0
	add := func(col string, v any) {
		n++
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, v)
	}

	if p.BridgePhase != nil {
		add("bridge_phase", string(*p.BridgePhase))
	}
	if p.AgentLegID != nil {
		add("agent_leg_id", *p.AgentLegID)
	}
	if p.ContactLegID != nil {
		add("contact_leg_id", *p.ContactLegID)
	}
	if p.StartedAt != nil {
		add("started_at", *p.StartedAt)
	}
	if p.EndedAt != nil {
		add("ended_at", *p.EndedAt)
	}
	if p.DurationSeconds != nil {
		add("duration_seconds", *p.DurationSeconds)
	}
	if p.HasRecording != nil {
		add("has_recording", *p.HasRecording)
	}
	if len(p.Metadata) > 0 {
		meta, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("callstore: marshal metadata patch: %w", err)
		}
		n++
		sets = append(sets, fmt.Sprintf("metadata = COALESCE(metadata, '{}'::jsonb) || $%d::jsonb", n))
		args = append(args, meta)
	}
	if len(sets) == 0 {
		return nil
	}

	n++
	sets = append(sets, fmt.Sprintf("updated_at = $%d", n))
	args = append(args, time.Now().UTC())

	n++
	args = append(args, id)
	query := fmt.Sprintf("UPDATE calls SET %s WHERE call_id = $%d", strings.Join(sets, ", "), n)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("callstore: update call: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return bridge.ErrNotFound
	}
	return nil
}

func metaOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
