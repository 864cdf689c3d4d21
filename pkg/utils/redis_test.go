package utils

import (
	"context"
	"testing"
	"time"
)

func TestCallSlotScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if slotAcquireScript == nil || slotReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestAcquireCallSlotValidatesArguments(t *testing.T) {
	ctx := context.Background()
	if _, err := AcquireCallSlot(ctx, nil, "k", 1, time.Minute); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := ReleaseCallSlot(ctx, nil, "k"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
