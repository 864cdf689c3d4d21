package callstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Systemsaholic/call-helm-bridge/internal/bridge"
)

func TestMemoryStore_FindByLegIDOrderedFallback(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// A legacy call whose external id collides with a newer call's agent
	// leg id must lose to the agent-leg match.
	if err := s.Create(ctx, &bridge.Call{ID: "old", WorkspaceID: "w1", LegacyCallID: "leg-x"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, &bridge.Call{ID: "new", WorkspaceID: "w1", AgentLegID: "leg-x", ContactLegID: "leg-y"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.FindByLegID(ctx, "leg-x")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != "new" {
		t.Fatalf("expected agent-leg match to win, got %q", got.ID)
	}

	got, err = s.FindByLegID(ctx, "leg-y")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != "new" {
		t.Fatalf("expected contact-leg match, got %q", got.ID)
	}

	if _, err := s.FindByLegID(ctx, "leg-unknown"); !errors.Is(err, bridge.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindByLegID(ctx, ""); !errors.Is(err, bridge.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty leg id, got %v", err)
	}
}

func TestMemoryStore_UpdateIsFieldScoped(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Create(ctx, &bridge.Call{
		ID:          "c1",
		WorkspaceID: "w1",
		BridgePhase: bridge.PhaseAgentDialing,
		Metadata:    map[string]any{"call_status": "ringing", "agent_number": "+15550001111"},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	phase := bridge.PhaseAgentAnswered
	started := time.Unix(1700000000, 0).UTC()
	if err := s.Update(ctx, "c1", bridge.Patch{
		BridgePhase: &phase,
		StartedAt:   &started,
		Metadata:    map[string]any{"call_status": "connecting"},
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BridgePhase != bridge.PhaseAgentAnswered {
		t.Fatalf("expected phase updated, got %q", got.BridgePhase)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Fatalf("expected started_at set")
	}
	if got.Metadata["call_status"] != "connecting" {
		t.Fatalf("expected metadata merged, got %v", got.Metadata)
	}
	if got.Metadata["agent_number"] != "+15550001111" {
		t.Fatalf("expected untouched metadata keys preserved, got %v", got.Metadata)
	}

	if err := s.Update(ctx, "missing", bridge.Patch{BridgePhase: &phase}); !errors.Is(err, bridge.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Create(ctx, &bridge.Call{ID: "c1", Metadata: map[string]any{"k": "v"}}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := s.Get(ctx, "c1")
	got.Metadata["k"] = "mutated"
	got.AgentLegID = "mutated"

	again, _ := s.Get(ctx, "c1")
	if again.Metadata["k"] != "v" || again.AgentLegID != "" {
		t.Fatalf("store state leaked through read copy: %+v", again)
	}
}

func TestMemoryRecordingStore_UpsertKeyedOnExternalID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRecordingStore()

	first := &bridge.Recording{ID: "r1", CallID: "c1", ExternalID: "ext-1", Format: "mp3", DownloadStatus: bridge.DownloadPending}
	if err := s.Upsert(ctx, first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.SetDownloadStatus(ctx, "ext-1", bridge.DownloadDownloaded); err != nil {
		t.Fatalf("set status: %v", err)
	}

	// Redelivery carries a fresh internal id; the row identity and the
	// download pipeline's progress must survive.
	redelivered := &bridge.Recording{ID: "r2", CallID: "c1", ExternalID: "ext-1", Format: "mp3", FetchURL: "https://cdn/r.mp3", DownloadStatus: bridge.DownloadPending}
	if err := s.Upsert(ctx, redelivered); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if s.Len() != 1 {
		t.Fatalf("expected 1 recording, got %d", s.Len())
	}
	got, ok := s.Get("ext-1")
	if !ok {
		t.Fatalf("expected recording")
	}
	if got.ID != "r1" {
		t.Fatalf("expected original row identity, got %q", got.ID)
	}
	if got.DownloadStatus != bridge.DownloadDownloaded {
		t.Fatalf("expected download progress preserved, got %q", got.DownloadStatus)
	}
	if got.FetchURL != "https://cdn/r.mp3" {
		t.Fatalf("expected refreshed fetch url, got %q", got.FetchURL)
	}
}
