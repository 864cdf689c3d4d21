package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/Systemsaholic/call-helm-bridge/internal/telephony"
)

// LegRole identifies which leg of the bridge an event belongs to.
type LegRole string

const (
	LegAgent   LegRole = "agent"
	LegContact LegRole = "contact"
)

// ClassifyHangup maps a provider hangup cause to the terminal phase and
// public status, qualified by which leg hung up and where the flow was.
//
// Once bridged, every cause is a normal end of call: the conversation
// happened, however it stopped. Before bridging, originator_cancel is
// treated the same for both legs (whichever leg reports abandonment, the
// logical call was abandoned), and unrecognized causes count as completed
// only if somebody had answered.
func ClassifyHangup(cause string, leg LegRole, at Phase) (Phase, Status) {
	if at == PhaseBridged {
		return PhaseCompleted, StatusCompleted
	}

	switch cause {
	case "user_busy", "busy":
		if leg == LegContact {
			return PhaseContactBusy, StatusBusy
		}
		return PhaseAgentBusy, StatusBusy
	case "no_answer", "timeout":
		if leg == LegContact {
			return PhaseContactNoAnswer, StatusNoAnswer
		}
		return PhaseAgentNoAnswer, StatusNoAnswer
	case "call_rejected":
		return PhaseFailed, StatusFailed
	case "originator_cancel":
		return PhaseCancelled, StatusCanceled
	default:
		if at.answered() {
			return PhaseCompleted, StatusCompleted
		}
		return PhaseCancelled, StatusCanceled
	}
}

// HandleHangup drives the terminal transition for either leg's hangup and
// performs cascade hangups of the sibling leg.
func (m *Machine) HandleHangup(ctx context.Context, call *Call, ev telephony.Event) error {
	if call.IsLegacy() {
		return m.handleLegacyHangup(ctx, call, ev)
	}
	if call.BridgePhase.IsTerminal() {
		// Terminal phases are absorbing; the sibling leg's own hangup
		// event lands here after the first one finished the call.
		m.logger().Debug("hangup after terminal phase ignored", "call_id", call.ID, "leg_id", ev.LegID)
		return nil
	}

	leg := LegAgent
	if ev.LegID == call.ContactLegID && call.ContactLegID != "" {
		leg = LegContact
	}
	at := call.BridgePhase
	terminal, status := ClassifyHangup(ev.Payload.HangupCause, leg, at)

	// Cascade: a bridged call's surviving leg is hung up immediately; an
	// agent abandoning before the contact answered takes the ringing
	// contact leg down with it. Both tolerate the leg already being gone.
	if sibling := call.SiblingLegID(ev.LegID); sibling != "" {
		cascade := at == PhaseBridged ||
			(leg == LegAgent && beforeContactAnswered(at))
		if cascade {
			if err := m.Commander.Hangup(ctx, sibling); err != nil {
				m.logger().Debug("cascade hangup failed", "call_id", call.ID, "leg_id", sibling, "err", err)
			}
		}
	}

	now := m.clock()
	ended := now
	if ev.Payload.EndTime != nil {
		ended = *ev.Payload.EndTime
	}
	dur := durationSeconds(ev.Payload.StartTime, ev.Payload.EndTime, call.StartedAt, now)

	p := Patch{
		BridgePhase:     &terminal,
		EndedAt:         &ended,
		DurationSeconds: &dur,
		Metadata: map[string]any{
			"call_status":   string(status),
			"hangup_cause":  ev.Payload.HangupCause,
			"hangup_source": ev.Payload.HangupSource,
		},
	}
	if err := m.Calls.Update(ctx, call.ID, p); err != nil {
		return fmt.Errorf("bridge: hangup update: %w", err)
	}
	call.BridgePhase = terminal
	call.EndedAt = &ended
	call.DurationSeconds = dur

	m.broadcast(ctx, call, terminal, status)
	m.fireTerminal(ctx, call)
	return nil
}

// handleLegacyHangup closes out a single-leg call. Legacy calls carry no
// bridge phases; EndedAt doubles as their terminal guard.
func (m *Machine) handleLegacyHangup(ctx context.Context, call *Call, ev telephony.Event) error {
	if call.EndedAt != nil {
		return nil
	}

	answered := call.StartedAt != nil
	status := legacyHangupStatus(ev.Payload.HangupCause, answered)

	now := m.clock()
	ended := now
	if ev.Payload.EndTime != nil {
		ended = *ev.Payload.EndTime
	}
	dur := durationSeconds(ev.Payload.StartTime, ev.Payload.EndTime, call.StartedAt, now)

	p := Patch{
		EndedAt:         &ended,
		DurationSeconds: &dur,
		Metadata: map[string]any{
			"call_status":   string(status),
			"hangup_cause":  ev.Payload.HangupCause,
			"hangup_source": ev.Payload.HangupSource,
		},
	}
	if err := m.Calls.Update(ctx, call.ID, p); err != nil {
		return fmt.Errorf("bridge: legacy hangup update: %w", err)
	}
	call.EndedAt = &ended
	call.DurationSeconds = dur

	m.broadcast(ctx, call, call.BridgePhase, status)
	return nil
}

func legacyHangupStatus(cause string, answered bool) Status {
	switch cause {
	case "user_busy", "busy":
		return StatusBusy
	case "no_answer", "timeout":
		return StatusNoAnswer
	case "call_rejected":
		return StatusFailed
	case "originator_cancel":
		return StatusCanceled
	default:
		if answered {
			return StatusCompleted
		}
		return StatusCanceled
	}
}

// beforeContactAnswered reports whether the contact has not yet picked up,
// i.e. an agent hangup should also take down any pending contact dial.
func beforeContactAnswered(p Phase) bool {
	switch p {
	case PhaseNone, PhaseAgentDialing, PhaseAgentAnswered,
		PhaseConnectingAnnouncement, PhaseContactDialing:
		return true
	}
	return false
}

// durationSeconds prefers the provider's own start/end timestamps and falls
// back to the call's recorded start and now.
func durationSeconds(start, end *time.Time, recordedStart *time.Time, now time.Time) int {
	if start != nil && end != nil {
		if d := int(end.Sub(*start).Seconds()); d > 0 {
			return d
		}
		return 0
	}
	if recordedStart != nil {
		if d := int(now.Sub(*recordedStart).Seconds()); d > 0 {
			return d
		}
	}
	return 0
}
