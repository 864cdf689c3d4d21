package bridge

import (
	"testing"
	"time"
)

func TestClassifyHangupTable(t *testing.T) {
	cases := []struct {
		cause      string
		leg        LegRole
		at         Phase
		wantPhase  Phase
		wantStatus Status
	}{
		{"user_busy", LegAgent, PhaseAgentDialing, PhaseAgentBusy, StatusBusy},
		{"user_busy", LegContact, PhaseContactDialing, PhaseContactBusy, StatusBusy},
		{"no_answer", LegAgent, PhaseAgentDialing, PhaseAgentNoAnswer, StatusNoAnswer},
		{"timeout", LegContact, PhaseContactDialing, PhaseContactNoAnswer, StatusNoAnswer},
		{"call_rejected", LegContact, PhaseContactDialing, PhaseFailed, StatusFailed},
		{"originator_cancel", LegAgent, PhaseAgentAnswered, PhaseCancelled, StatusCanceled},
		{"originator_cancel", LegAgent, PhaseBridged, PhaseCompleted, StatusCompleted},
		// Contact-leg cancel before bridging is treated symmetrically with
		// the agent leg.
		{"originator_cancel", LegContact, PhaseContactDialing, PhaseCancelled, StatusCanceled},
		// Anything while bridged is a normal end of call.
		{"normal_clearing", LegAgent, PhaseBridged, PhaseCompleted, StatusCompleted},
		{"user_busy", LegContact, PhaseBridged, PhaseCompleted, StatusCompleted},
		// Unrecognized causes: completed only if somebody had answered.
		{"normal_clearing", LegAgent, PhaseConnectingAnnouncement, PhaseCompleted, StatusCompleted},
		{"normal_clearing", LegAgent, PhaseAgentDialing, PhaseCancelled, StatusCanceled},
		{"unknown_cause", LegContact, PhaseContactAnswered, PhaseCompleted, StatusCompleted},
	}
	for _, tc := range cases {
		phase, status := ClassifyHangup(tc.cause, tc.leg, tc.at)
		if phase != tc.wantPhase || status != tc.wantStatus {
			t.Fatalf("(%s, %s, %s): got (%s, %s) want (%s, %s)",
				tc.cause, tc.at, tc.leg, phase, status, tc.wantPhase, tc.wantStatus)
		}
	}
}

func TestDurationSeconds(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	end := start.Add(95 * time.Second)
	now := start.Add(120 * time.Second)

	if got := durationSeconds(&start, &end, nil, now); got != 95 {
		t.Fatalf("expected provider timestamps preferred, got %d", got)
	}
	if got := durationSeconds(nil, nil, &start, now); got != 120 {
		t.Fatalf("expected fallback from recorded start, got %d", got)
	}
	if got := durationSeconds(nil, nil, nil, now); got != 0 {
		t.Fatalf("expected 0 without any timestamps, got %d", got)
	}
	// Clock skew must not produce negative durations.
	bad := start.Add(-10 * time.Second)
	if got := durationSeconds(&start, &bad, nil, now); got != 0 {
		t.Fatalf("expected clamped duration, got %d", got)
	}
}

func TestLegacyHangupStatus(t *testing.T) {
	cases := []struct {
		cause    string
		answered bool
		want     Status
	}{
		{"user_busy", false, StatusBusy},
		{"no_answer", false, StatusNoAnswer},
		{"call_rejected", false, StatusFailed},
		{"originator_cancel", false, StatusCanceled},
		{"normal_clearing", true, StatusCompleted},
		{"normal_clearing", false, StatusCanceled},
	}
	for _, tc := range cases {
		if got := legacyHangupStatus(tc.cause, tc.answered); got != tc.want {
			t.Fatalf("(%s, answered=%v): got %q want %q", tc.cause, tc.answered, got, tc.want)
		}
	}
}
