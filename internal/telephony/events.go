package telephony

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// EventType identifies a provider webhook event. Unknown values are carried
// through and routed to a no-op by the dispatcher.
type EventType string

const (
	EventInitiated        EventType = "call.initiated"
	EventAnswered         EventType = "call.answered"
	EventHangup           EventType = "call.hangup"
	EventBridged          EventType = "call.bridged"
	EventSpeakEnded       EventType = "call.speak.ended"
	EventPlaybackEnded    EventType = "call.playback.ended"
	EventDTMFReceived     EventType = "call.dtmf.received"
	EventRecordingSaved   EventType = "call.recording.saved"
	EventMachineDetection EventType = "call.machine.detection.ended"
	EventGatherEnded      EventType = "call.gather.ended"
)

// ErrInvalidEnvelope is returned when a webhook body is missing the fields
// every event must carry. This is the only parse failure the webhook
// endpoint rejects; everything else is acknowledged and handled best-effort.
var ErrInvalidEnvelope = errors.New("telephony: invalid event envelope")

// Event is the provider-agnostic webhook envelope.
type Event struct {
	Type        EventType
	LegID       string
	OccurredAt  time.Time
	ClientState string
	Payload     Payload
}

// Payload carries the event-type-specific fields. Only the fields relevant
// to the event's type are populated.
type Payload struct {
	From      string
	To        string
	Direction string

	// Hangup
	HangupCause  string
	HangupSource string
	StartTime    *time.Time
	EndTime      *time.Time

	// DTMF / gather
	Digit  string
	Digits string

	// Machine detection
	AMDResult string

	// Recording
	RecordingID     string
	Format          string
	DurationMillis  int
	RecordingURL    string
	URLExpiresAt    *time.Time
}

// wireEvent mirrors the provider's JSON webhook body. The provider wraps
// every event in a data envelope; the leg id and client state live inside
// the payload.
type wireEvent struct {
	Data struct {
		EventType  string    `json:"event_type"`
		OccurredAt time.Time `json:"occurred_at"`
		Payload    struct {
			CallControlID string     `json:"call_control_id"`
			ClientState   string     `json:"client_state"`
			From          string     `json:"from"`
			To            string     `json:"to"`
			Direction     string     `json:"direction"`
			HangupCause   string     `json:"hangup_cause"`
			HangupSource  string     `json:"hangup_source"`
			StartTime     *time.Time `json:"start_time"`
			EndTime       *time.Time `json:"end_time"`
			Digit         string     `json:"digit"`
			Digits        string     `json:"digits"`
			Result        string     `json:"result"`
			RecordingID   string     `json:"recording_id"`
			Format        string     `json:"format"`
			DurationMillis int       `json:"duration_millis"`
			RecordingURLs struct {
				MP3 string `json:"mp3"`
				WAV string `json:"wav"`
			} `json:"recording_urls"`
			URLExpiresAt *time.Time `json:"url_expires_at"`
		} `json:"payload"`
	} `json:"data"`
}

// ParseEvent decodes a provider webhook request into an Event.
// It validates only the envelope (event type and leg id present); payload
// fields are taken as-is.
func ParseEvent(r *http.Request) (Event, error) {
	var w wireEvent
	if err := json.NewDecoder(r.Body).Decode(&w); err != nil {
		return Event{}, ErrInvalidEnvelope
	}
	p := w.Data.Payload
	if w.Data.EventType == "" || p.CallControlID == "" {
		return Event{}, ErrInvalidEnvelope
	}

	ev := Event{
		Type:        EventType(w.Data.EventType),
		LegID:       p.CallControlID,
		OccurredAt:  w.Data.OccurredAt,
		ClientState: p.ClientState,
		Payload: Payload{
			From:           p.From,
			To:             p.To,
			Direction:      p.Direction,
			HangupCause:    p.HangupCause,
			HangupSource:   p.HangupSource,
			StartTime:      p.StartTime,
			EndTime:        p.EndTime,
			Digit:          p.Digit,
			Digits:         p.Digits,
			AMDResult:      p.Result,
			RecordingID:    p.RecordingID,
			Format:         p.Format,
			DurationMillis: p.DurationMillis,
			URLExpiresAt:   p.URLExpiresAt,
		},
	}
	// Prefer mp3 when the provider produced both formats.
	if p.RecordingURLs.MP3 != "" {
		ev.Payload.RecordingURL = p.RecordingURLs.MP3
	} else {
		ev.Payload.RecordingURL = p.RecordingURLs.WAV
	}
	if ev.Payload.Format == "" && ev.Payload.RecordingURL != "" {
		if p.RecordingURLs.MP3 != "" {
			ev.Payload.Format = "mp3"
		} else {
			ev.Payload.Format = "wav"
		}
	}
	return ev, nil
}
