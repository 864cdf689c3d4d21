// Package bridge implements the call-leg bridging state machine: agent leg
// dials out, an announcement plays, the contact leg dials, and the two legs
// are bridged. There is no long-lived process per call; every webhook
// reconstructs its position from the persisted call record and the
// continuation token, so each transition is phase-guarded and idempotent.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Systemsaholic/call-helm-bridge/internal/clientstate"
	"github.com/Systemsaholic/call-helm-bridge/internal/notify"
	"github.com/Systemsaholic/call-helm-bridge/internal/telephony"
)

// Options tune the bridge flow.
type Options struct {
	// ConnectingAnnouncement is spoken to the agent after they answer,
	// before the contact leg is dialed. Empty skips the announcement.
	ConnectingAnnouncement string

	// RecordingAnnouncementURL is played to the contact before bridging
	// when the call records and AnnounceRecording is set on the call.
	RecordingAnnouncementURL string

	// DialTimeoutSeconds bounds how long each leg rings.
	DialTimeoutSeconds int

	// DetectMachine enables AMD on the contact leg; HangupOnMachine also
	// hangs the leg up when a machine answers instead of bridging the
	// agent to voicemail.
	DetectMachine   bool
	HangupOnMachine bool

	RecordingFormat      string
	RecordingChannels    string
	TranscribeRecordings bool
}

// Machine drives all bridge-phase transitions. It is the only writer of
// BridgePhase. Dependencies are injected; everything it needs between
// events travels through the store and the continuation token.
type Machine struct {
	Calls      Store
	Recordings RecordingStore
	Commander  telephony.Commander
	Notifier   notify.Notifier
	Opts       Options
	Log        *slog.Logger

	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time

	// OnTerminal, when set, runs after a call reaches a terminal phase.
	// Used for releasing concurrency slots and kicking off downstream
	// analysis; failures in it never affect the call record.
	OnTerminal func(ctx context.Context, c *Call)
}

func (m *Machine) clock() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Machine) logger() *slog.Logger {
	if m.Log != nil {
		return m.Log
	}
	return slog.Default()
}

// StartCallRequest initiates the bridge flow: dial the agent first, then
// connect them to the contact.
type StartCallRequest struct {
	WorkspaceID   string
	AgentNumber   string
	ContactNumber string
	FromNumber    string

	RecordingEnabled  bool
	AnnounceRecording bool
}

// StartBridgeCall creates the call record and dials the agent leg
// (none -> agent_dialing). When the dial command itself fails the call is
// returned in its terminal failed state alongside the error.
func (m *Machine) StartBridgeCall(ctx context.Context, req StartCallRequest) (*Call, error) {
	if req.WorkspaceID == "" || req.AgentNumber == "" || req.ContactNumber == "" || req.FromNumber == "" {
		return nil, fmt.Errorf("bridge: workspace, agent, contact and from numbers are required")
	}

	now := m.clock()
	call := &Call{
		ID:                uuid.NewString(),
		WorkspaceID:       req.WorkspaceID,
		Direction:         "outbound",
		CallerNumber:      req.FromNumber,
		CalledNumber:      req.ContactNumber,
		BridgePhase:       PhaseNone,
		RecordingEnabled:  req.RecordingEnabled,
		AnnounceRecording: req.AnnounceRecording,
		Metadata: map[string]any{
			"call_status":  string(PhaseNone.PublicStatus()),
			"agent_number": req.AgentNumber,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.Calls.Create(ctx, call); err != nil {
		return nil, fmt.Errorf("bridge: create call: %w", err)
	}

	token := clientstate.Encode(clientstate.Context{
		CallID: call.ID,
		Phase:  string(PhaseAgentDialing),
	})
	legID, err := m.Commander.Dial(ctx, telephony.DialRequest{
		From:           req.FromNumber,
		To:             req.AgentNumber,
		ClientState:    token,
		TimeoutSeconds: m.Opts.DialTimeoutSeconds,
	})
	if err != nil {
		m.writeTerminal(ctx, call, PhaseFailed, map[string]any{"failure_reason": "agent dial failed"})
		return call, fmt.Errorf("bridge: dial agent leg: %w", err)
	}

	call.AgentLegID = legID
	m.applyPhase(ctx, call, PhaseAgentDialing, Patch{AgentLegID: &legID})
	return call, nil
}

// HandleAnswered processes a call.answered event for either leg. Events
// without a valid continuation token take the legacy single-leg path and
// never touch bridge phases.
func (m *Machine) HandleAnswered(ctx context.Context, call *Call, ev telephony.Event, st clientstate.Decoded) error {
	if !st.IsToken() {
		return m.handleLegacyAnswered(ctx, call, ev)
	}
	if call.BridgePhase.IsTerminal() {
		m.logger().Debug("answered after terminal phase ignored", "call_id", call.ID, "leg_id", ev.LegID, "phase", call.BridgePhase)
		return nil
	}

	switch {
	case ev.LegID == call.AgentLegID && call.BridgePhase == PhaseAgentDialing:
		return m.agentAnswered(ctx, call)
	case ev.LegID == call.ContactLegID && call.BridgePhase == PhaseContactDialing:
		return m.contactAnswered(ctx, call)
	default:
		// Duplicate delivery or out-of-order event; the phase guard makes
		// it a no-op rather than re-triggering side effects.
		m.logger().Debug("answered ignored by phase guard", "call_id", call.ID, "leg_id", ev.LegID, "phase", call.BridgePhase)
		return nil
	}
}

func (m *Machine) agentAnswered(ctx context.Context, call *Call) error {
	now := m.clock()
	call.StartedAt = &now
	m.applyPhase(ctx, call, PhaseAgentAnswered, Patch{StartedAt: &now})

	if m.Opts.ConnectingAnnouncement != "" {
		token := clientstate.Encode(clientstate.Context{
			CallID:        call.ID,
			Phase:         string(PhaseConnectingAnnouncement),
			Action:        clientstate.ActionInitiateContactLeg,
			ContactNumber: call.CalledNumber,
			FromNumber:    call.CallerNumber,
		})
		if err := m.Commander.Speak(ctx, call.AgentLegID, m.Opts.ConnectingAnnouncement, token); err == nil {
			m.applyPhase(ctx, call, PhaseConnectingAnnouncement, Patch{})
			return nil
		} else {
			// Degrade forward: skip the announcement and dial the contact
			// immediately instead of leaving the call stuck.
			m.logger().Warn("connecting announcement failed, dialing contact directly", "call_id", call.ID, "err", err)
		}
	}
	return m.dialContactLeg(ctx, call)
}

func (m *Machine) dialContactLeg(ctx context.Context, call *Call) error {
	token := clientstate.Encode(clientstate.Context{
		CallID: call.ID,
		Phase:  string(PhaseContactDialing),
	})
	legID, err := m.Commander.Dial(ctx, telephony.DialRequest{
		From:             call.CallerNumber,
		To:               call.CalledNumber,
		ClientState:      token,
		TimeoutSeconds:   m.Opts.DialTimeoutSeconds,
		MachineDetection: m.Opts.DetectMachine,
	})
	if err != nil {
		return m.failCall(ctx, call, "contact dial failed", err)
	}

	call.ContactLegID = legID
	m.applyPhase(ctx, call, PhaseContactDialing, Patch{ContactLegID: &legID})
	return nil
}

func (m *Machine) contactAnswered(ctx context.Context, call *Call) error {
	m.applyPhase(ctx, call, PhaseContactAnswered, Patch{})

	if call.RecordingEnabled && call.AnnounceRecording && m.Opts.RecordingAnnouncementURL != "" {
		token := clientstate.Encode(clientstate.Context{
			CallID:       call.ID,
			Phase:        string(PhaseRecordingAnnouncement),
			Action:       clientstate.ActionBridgeCalls,
			AgentLegID:   call.AgentLegID,
			ContactLegID: call.ContactLegID,
		})
		if err := m.Commander.Play(ctx, call.ContactLegID, m.Opts.RecordingAnnouncementURL, token); err == nil {
			m.applyPhase(ctx, call, PhaseRecordingAnnouncement, Patch{})
			return nil
		} else {
			m.logger().Warn("recording announcement failed, bridging directly", "call_id", call.ID, "err", err)
		}
	}
	return m.bridgeLegs(ctx, call)
}

// HandlePlaybackDone processes speak-ended and playback-ended events. The
// continuation token's action says what the announcement was gating.
func (m *Machine) HandlePlaybackDone(ctx context.Context, call *Call, ev telephony.Event, st clientstate.Decoded) error {
	if !st.IsToken() {
		return nil
	}
	if call.BridgePhase.IsTerminal() {
		return nil
	}

	switch st.Context.Action {
	case clientstate.ActionInitiateContactLeg:
		if call.BridgePhase != PhaseAgentAnswered && call.BridgePhase != PhaseConnectingAnnouncement {
			m.logger().Debug("contact dial request ignored by phase guard", "call_id", call.ID, "phase", call.BridgePhase)
			return nil
		}
		return m.dialContactLeg(ctx, call)
	case clientstate.ActionBridgeCalls:
		if call.BridgePhase != PhaseContactAnswered && call.BridgePhase != PhaseRecordingAnnouncement {
			m.logger().Debug("bridge request ignored by phase guard", "call_id", call.ID, "phase", call.BridgePhase)
			return nil
		}
		return m.bridgeLegs(ctx, call)
	default:
		return nil
	}
}

func (m *Machine) bridgeLegs(ctx context.Context, call *Call) error {
	if call.AgentLegID == "" || call.ContactLegID == "" {
		return m.failCall(ctx, call, "bridge requested without both legs", nil)
	}

	m.applyPhase(ctx, call, PhaseBridging, Patch{})
	if err := m.Commander.Bridge(ctx, call.AgentLegID, call.ContactLegID); err != nil {
		// The only path that actively tears down in-flight legs: the
		// bridge failing leaves two live one-way legs nobody can use.
		return m.failCall(ctx, call, "bridge command failed", err)
	}
	return m.markBridged(ctx, call)
}

// HandleBridged processes the provider's bridge confirmation. The machine
// usually advanced already when the bridge command succeeded, so this is an
// idempotent confirm.
func (m *Machine) HandleBridged(ctx context.Context, call *Call, ev telephony.Event) error {
	if call.BridgePhase.IsTerminal() || call.BridgePhase == PhaseBridged {
		return nil
	}
	if call.BridgePhase != PhaseBridging {
		m.logger().Debug("bridged confirmation ignored by phase guard", "call_id", call.ID, "phase", call.BridgePhase)
		return nil
	}
	return m.markBridged(ctx, call)
}

func (m *Machine) markBridged(ctx context.Context, call *Call) error {
	if call.BridgePhase == PhaseBridged {
		return nil
	}
	m.applyPhase(ctx, call, PhaseBridged, Patch{})

	if call.RecordingEnabled {
		err := m.Commander.StartRecording(ctx, call.AgentLegID, telephony.RecordingOptions{
			Format:     m.Opts.RecordingFormat,
			Channels:   m.Opts.RecordingChannels,
			Transcribe: m.Opts.TranscribeRecordings,
		})
		if err != nil {
			// Best-effort: a live bridged call is worth more than its
			// recording.
			m.logger().Warn("start recording failed", "call_id", call.ID, "err", err)
		}
	}
	return nil
}

// HandleInitiated processes the provider's dial acknowledgment. The leg id
// was already captured from the dial command's response, so this is a
// logging hook only.
func (m *Machine) HandleInitiated(ctx context.Context, call *Call, ev telephony.Event) error {
	m.logger().Debug("leg initiated", "call_id", call.ID, "leg_id", ev.LegID, "phase", call.BridgePhase)
	return nil
}

// HandleRecordingSaved records the provider-side recording artifact and
// flags the call. Upserts by external id so redelivery is harmless.
func (m *Machine) HandleRecordingSaved(ctx context.Context, call *Call, ev telephony.Event) error {
	if ev.Payload.RecordingID == "" {
		m.logger().Warn("recording saved event without recording id", "call_id", call.ID)
		return nil
	}
	rec := &Recording{
		ID:              uuid.NewString(),
		CallID:          call.ID,
		ExternalID:      ev.Payload.RecordingID,
		Format:          ev.Payload.Format,
		DurationSeconds: ev.Payload.DurationMillis / 1000,
		FetchURL:        ev.Payload.RecordingURL,
		FetchURLExpires: ev.Payload.URLExpiresAt,
		DownloadStatus:  DownloadPending,
		CreatedAt:       m.clock(),
	}
	if m.Recordings != nil {
		if err := m.Recordings.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("bridge: store recording: %w", err)
		}
	}
	if !call.HasRecording {
		has := true
		call.HasRecording = true
		if err := m.Calls.Update(ctx, call.ID, Patch{HasRecording: &has}); err != nil {
			return fmt.Errorf("bridge: flag recording: %w", err)
		}
	}
	return nil
}

// HandleMachineDetection mirrors the AMD result and, when configured, hangs
// up a contact leg that a machine answered instead of bridging the agent to
// voicemail. The resulting hangup webhook drives the terminal transition.
func (m *Machine) HandleMachineDetection(ctx context.Context, call *Call, ev telephony.Event) error {
	result := ev.Payload.AMDResult
	if result == "" {
		return nil
	}
	if err := m.Calls.Update(ctx, call.ID, Patch{Metadata: map[string]any{"amd_result": result}}); err != nil {
		return fmt.Errorf("bridge: record amd result: %w", err)
	}

	machine := result == "machine"
	onContactLeg := ev.LegID == call.ContactLegID && call.ContactLegID != ""
	inFlight := call.BridgePhase == PhaseContactDialing || call.BridgePhase == PhaseContactAnswered
	if machine && onContactLeg && inFlight && m.Opts.HangupOnMachine {
		if err := m.Commander.Hangup(ctx, call.ContactLegID); err != nil {
			m.logger().Warn("machine-detected hangup failed", "call_id", call.ID, "err", err)
		}
	}
	return nil
}

// HandleDTMF mirrors received digits into metadata for the dashboard. No
// flow decisions hang off DTMF in this subsystem.
func (m *Machine) HandleDTMF(ctx context.Context, call *Call, ev telephony.Event) error {
	if ev.Payload.Digit == "" {
		return nil
	}
	digits := ev.Payload.Digit
	if prev, ok := call.Metadata["dtmf_digits"].(string); ok {
		digits = prev + digits
	}
	call.Metadata["dtmf_digits"] = digits
	return m.Calls.Update(ctx, call.ID, Patch{Metadata: map[string]any{"dtmf_digits": digits}})
}

// HandleGatherEnded mirrors the gathered digit string into metadata.
func (m *Machine) HandleGatherEnded(ctx context.Context, call *Call, ev telephony.Event) error {
	if ev.Payload.Digits == "" {
		return nil
	}
	return m.Calls.Update(ctx, call.ID, Patch{Metadata: map[string]any{"gathered_digits": ev.Payload.Digits}})
}

// handleLegacyAnswered is the single-leg path for calls with no bridge-flow
// marker. It only mirrors the in-progress status and optionally starts
// recording; it is kept fully independent of the phase machine so bridge
// changes cannot regress single-leg calls.
func (m *Machine) handleLegacyAnswered(ctx context.Context, call *Call, ev telephony.Event) error {
	p := Patch{Metadata: map[string]any{"call_status": string(StatusInProgress)}}
	if call.StartedAt == nil {
		now := m.clock()
		call.StartedAt = &now
		p.StartedAt = &now
	}
	if err := m.Calls.Update(ctx, call.ID, p); err != nil {
		return fmt.Errorf("bridge: legacy answered update: %w", err)
	}
	m.broadcast(ctx, call, call.BridgePhase, StatusInProgress)

	if call.RecordingEnabled {
		err := m.Commander.StartRecording(ctx, ev.LegID, telephony.RecordingOptions{
			Format:     m.Opts.RecordingFormat,
			Channels:   m.Opts.RecordingChannels,
			Transcribe: m.Opts.TranscribeRecordings,
		})
		if err != nil {
			m.logger().Warn("legacy recording start failed", "call_id", call.ID, "err", err)
		}
	}
	return nil
}

// applyPhase writes a forward phase transition plus its status mirror,
// updates the in-memory call, and broadcasts.
func (m *Machine) applyPhase(ctx context.Context, call *Call, next Phase, extra Patch) {
	status := next.PublicStatus()
	p := extra
	p.BridgePhase = &next
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	p.Metadata["call_status"] = string(status)

	if err := m.Calls.Update(ctx, call.ID, p); err != nil {
		m.logger().Error("phase update failed", "call_id", call.ID, "phase", next, "err", err)
	}
	call.BridgePhase = next
	if call.Metadata == nil {
		call.Metadata = map[string]any{}
	}
	call.Metadata["call_status"] = string(status)
	m.broadcast(ctx, call, next, status)
}

// failCall marks the call failed and hangs up any live legs as
// compensation.
func (m *Machine) failCall(ctx context.Context, call *Call, reason string, cause error) error {
	m.logger().Error("bridge flow failed", "call_id", call.ID, "reason", reason, "err", cause)
	for _, leg := range []string{call.AgentLegID, call.ContactLegID} {
		if leg == "" {
			continue
		}
		if err := m.Commander.Hangup(ctx, leg); err != nil {
			m.logger().Debug("compensating hangup failed", "call_id", call.ID, "leg_id", leg, "err", err)
		}
	}
	m.writeTerminal(ctx, call, PhaseFailed, map[string]any{"failure_reason": reason})
	if cause != nil {
		return fmt.Errorf("bridge: %s: %w", reason, cause)
	}
	return fmt.Errorf("bridge: %s", reason)
}

// writeTerminal performs the one-way transition into a terminal phase.
func (m *Machine) writeTerminal(ctx context.Context, call *Call, terminal Phase, meta map[string]any) {
	now := m.clock()
	dur := durationSeconds(nil, nil, call.StartedAt, now)
	p := Patch{
		BridgePhase:     &terminal,
		EndedAt:         &now,
		DurationSeconds: &dur,
		Metadata:        map[string]any{"call_status": string(terminal.PublicStatus())},
	}
	for k, v := range meta {
		p.Metadata[k] = v
	}
	if err := m.Calls.Update(ctx, call.ID, p); err != nil {
		m.logger().Error("terminal update failed", "call_id", call.ID, "phase", terminal, "err", err)
	}
	call.BridgePhase = terminal
	call.EndedAt = &now
	call.DurationSeconds = dur
	m.broadcast(ctx, call, terminal, terminal.PublicStatus())
	m.fireTerminal(ctx, call)
}

func (m *Machine) fireTerminal(ctx context.Context, call *Call) {
	if m.OnTerminal == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			m.logger().Error("terminal hook panicked", "call_id", call.ID, "panic", p)
		}
	}()
	m.OnTerminal(ctx, call)
}

func (m *Machine) broadcast(ctx context.Context, call *Call, phase Phase, status Status) {
	if m.Notifier == nil {
		return
	}
	m.Notifier.CallUpdated(ctx, notify.CallUpdate{
		CallID:      call.ID,
		WorkspaceID: call.WorkspaceID,
		BridgePhase: string(phase),
		Status:      string(status),
		OccurredAt:  m.clock(),
	})
}
