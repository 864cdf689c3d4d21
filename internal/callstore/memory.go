package callstore

import (
	"context"
	"sync"
	"time"

	"github.com/Systemsaholic/call-helm-bridge/internal/bridge"
)

// MemoryStore is an in-memory bridge.Store for tests and local development.
// Reads return copies so callers cannot mutate stored state behind the
// store's back.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]*bridge.Call
	order []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: map[string]*bridge.Call{}}
}

func (s *MemoryStore) Create(_ context.Context, c *bridge.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[c.ID] = cloneCall(c)
	s.order = append(s.order, c.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*bridge.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return nil, bridge.ErrNotFound
	}
	return cloneCall(c), nil
}

func (s *MemoryStore) FindByLegID(_ context.Context, legID string) (*bridge.Call, error) {
	if legID == "" {
		return nil, bridge.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Same ordered fallback as postgres: agent leg, contact leg, legacy id.
	for _, pick := range []func(*bridge.Call) string{
		func(c *bridge.Call) string { return c.AgentLegID },
		func(c *bridge.Call) string { return c.ContactLegID },
		func(c *bridge.Call) string { return c.LegacyCallID },
	} {
		for _, id := range s.order {
			if c := s.calls[id]; pick(c) == legID {
				return cloneCall(c), nil
			}
		}
	}
	return nil, bridge.ErrNotFound
}

func (s *MemoryStore) Update(_ context.Context, id string, p bridge.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return bridge.ErrNotFound
	}
	if p.BridgePhase != nil {
		c.BridgePhase = *p.BridgePhase
	}
	if p.AgentLegID != nil {
		c.AgentLegID = *p.AgentLegID
	}
	if p.ContactLegID != nil {
		c.ContactLegID = *p.ContactLegID
	}
	if p.StartedAt != nil {
		t := *p.StartedAt
		c.StartedAt = &t
	}
	if p.EndedAt != nil {
		t := *p.EndedAt
		c.EndedAt = &t
	}
	if p.DurationSeconds != nil {
		c.DurationSeconds = *p.DurationSeconds
	}
	if p.HasRecording != nil {
		c.HasRecording = *p.HasRecording
	}
	if len(p.Metadata) > 0 {
		if c.Metadata == nil {
			c.Metadata = map[string]any{}
		}
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func cloneCall(c *bridge.Call) *bridge.Call {
	out := *c
	if c.StartedAt != nil {
		t := *c.StartedAt
		out.StartedAt = &t
	}
	if c.EndedAt != nil {
		t := *c.EndedAt
		out.EndedAt = &t
	}
	out.Metadata = map[string]any{}
	for k, v := range c.Metadata {
		out.Metadata[k] = v
	}
	return &out
}

// MemoryRecordingStore is the in-memory bridge.RecordingStore.
type MemoryRecordingStore struct {
	mu         sync.Mutex
	recordings map[string]*bridge.Recording // keyed by external id
}

func NewMemoryRecordingStore() *MemoryRecordingStore {
	return &MemoryRecordingStore{recordings: map[string]*bridge.Recording{}}
}

func (s *MemoryRecordingStore) Upsert(_ context.Context, r *bridge.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.recordings[r.ExternalID]; ok {
		// Keep the original row identity on redelivery.
		updated := *r
		updated.ID = prev.ID
		updated.DownloadStatus = prev.DownloadStatus
		s.recordings[r.ExternalID] = &updated
		return nil
	}
	cp := *r
	s.recordings[r.ExternalID] = &cp
	return nil
}

func (s *MemoryRecordingStore) SetDownloadStatus(_ context.Context, externalID string, status bridge.DownloadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recordings[externalID]
	if !ok {
		return bridge.ErrNotFound
	}
	r.DownloadStatus = status
	return nil
}

// Get returns the stored recording by external id.
func (s *MemoryRecordingStore) Get(externalID string) (*bridge.Recording, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recordings[externalID]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// Len reports how many distinct recordings are stored.
func (s *MemoryRecordingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recordings)
}
