package bridge

// Phase is the authoritative position of a call inside the two-leg bridge
// flow. Terminal phases are absorbing: once one is written, no event of any
// type moves the call again.
type Phase string

const (
	PhaseNone                   Phase = "none"
	PhaseAgentDialing           Phase = "agent_dialing"
	PhaseAgentAnswered          Phase = "agent_answered"
	PhaseConnectingAnnouncement Phase = "connecting_announcement"
	PhaseContactDialing         Phase = "contact_dialing"
	PhaseContactAnswered        Phase = "contact_answered"
	PhaseRecordingAnnouncement  Phase = "recording_announcement"
	PhaseBridging               Phase = "bridging"
	PhaseBridged                Phase = "bridged"

	PhaseAgentBusy       Phase = "agent_busy"
	PhaseAgentNoAnswer   Phase = "agent_no_answer"
	PhaseContactBusy     Phase = "contact_busy"
	PhaseContactNoAnswer Phase = "contact_no_answer"
	PhaseCancelled       Phase = "cancelled"
	PhaseFailed          Phase = "failed"
	PhaseCompleted       Phase = "completed"
)

// IsTerminal reports whether the phase is absorbing.
func (p Phase) IsTerminal() bool {
	switch p {
	case PhaseAgentBusy, PhaseAgentNoAnswer, PhaseContactBusy, PhaseContactNoAnswer,
		PhaseCancelled, PhaseFailed, PhaseCompleted:
		return true
	}
	return false
}

// answered reports whether a human had picked up at this point in the flow.
// Used by hangup classification to separate abandoned dials from calls that
// ended after a conversation started.
func (p Phase) answered() bool {
	switch p {
	case PhaseAgentAnswered, PhaseConnectingAnnouncement, PhaseContactDialing,
		PhaseContactAnswered, PhaseRecordingAnnouncement, PhaseBridging, PhaseBridged:
		return true
	}
	return false
}

// Status is the public, UI-facing status string mirrored into call metadata.
// It is derived from Phase in exactly one place so the two can never drift.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusRinging    Status = "ringing"
	StatusConnecting Status = "connecting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusNoAnswer   Status = "no_answer"
	StatusBusy       Status = "busy"
	StatusCanceled   Status = "canceled"
)

// PublicStatus projects the bridge phase to the status string other
// subsystems read from metadata.
func (p Phase) PublicStatus() Status {
	switch p {
	case PhaseNone:
		return StatusQueued
	case PhaseAgentDialing, PhaseContactDialing:
		return StatusRinging
	case PhaseAgentAnswered, PhaseConnectingAnnouncement,
		PhaseContactAnswered, PhaseRecordingAnnouncement, PhaseBridging:
		return StatusConnecting
	case PhaseBridged:
		return StatusInProgress
	case PhaseAgentBusy, PhaseContactBusy:
		return StatusBusy
	case PhaseAgentNoAnswer, PhaseContactNoAnswer:
		return StatusNoAnswer
	case PhaseCancelled:
		return StatusCanceled
	case PhaseFailed:
		return StatusFailed
	case PhaseCompleted:
		return StatusCompleted
	}
	return StatusQueued
}
