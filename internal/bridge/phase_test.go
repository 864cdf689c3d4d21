package bridge

import "testing"

func TestPhaseIsTerminal(t *testing.T) {
	terminal := []Phase{
		PhaseAgentBusy, PhaseAgentNoAnswer, PhaseContactBusy, PhaseContactNoAnswer,
		PhaseCancelled, PhaseFailed, PhaseCompleted,
	}
	for _, p := range terminal {
		if !p.IsTerminal() {
			t.Fatalf("expected %q terminal", p)
		}
	}

	live := []Phase{
		PhaseNone, PhaseAgentDialing, PhaseAgentAnswered, PhaseConnectingAnnouncement,
		PhaseContactDialing, PhaseContactAnswered, PhaseRecordingAnnouncement,
		PhaseBridging, PhaseBridged,
	}
	for _, p := range live {
		if p.IsTerminal() {
			t.Fatalf("expected %q not terminal", p)
		}
	}
}

func TestPublicStatusProjection(t *testing.T) {
	cases := []struct {
		phase Phase
		want  Status
	}{
		{PhaseNone, StatusQueued},
		{PhaseAgentDialing, StatusRinging},
		{PhaseAgentAnswered, StatusConnecting},
		{PhaseConnectingAnnouncement, StatusConnecting},
		{PhaseContactDialing, StatusRinging},
		{PhaseContactAnswered, StatusConnecting},
		{PhaseRecordingAnnouncement, StatusConnecting},
		{PhaseBridging, StatusConnecting},
		{PhaseBridged, StatusInProgress},
		{PhaseAgentBusy, StatusBusy},
		{PhaseContactBusy, StatusBusy},
		{PhaseAgentNoAnswer, StatusNoAnswer},
		{PhaseContactNoAnswer, StatusNoAnswer},
		{PhaseCancelled, StatusCanceled},
		{PhaseFailed, StatusFailed},
		{PhaseCompleted, StatusCompleted},
	}
	for _, tc := range cases {
		if got := tc.phase.PublicStatus(); got != tc.want {
			t.Fatalf("%q: got %q want %q", tc.phase, got, tc.want)
		}
	}
}
