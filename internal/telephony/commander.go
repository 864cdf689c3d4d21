package telephony

import "context"

// Commander is the provider-agnostic call-control command interface.
//
// Rules:
// - No provider SDK or HTTP calls outside telephony adapters.
// - Every command is asynchronous at the provider: issuing it does not mean
//   the described state has been reached. The caller advances only on the
//   corresponding webhook event.
// - clientState is attached verbatim and echoed back on that webhook.
type Commander interface {
	// Dial originates a new call leg and returns the provider's leg id.
	Dial(ctx context.Context, req DialRequest) (string, error)

	// Speak plays synthesized speech on a leg.
	Speak(ctx context.Context, legID, text, clientState string) error

	// Play plays an audio file on a leg.
	Play(ctx context.Context, legID, audioURL, clientState string) error

	// Bridge joins two live legs.
	Bridge(ctx context.Context, legAID, legBID string) error

	// StartRecording begins recording a leg.
	StartRecording(ctx context.Context, legID string, opts RecordingOptions) error

	// Hangup terminates a leg. Hanging up an already-terminated leg is a
	// soft no-op, never an error.
	Hangup(ctx context.Context, legID string) error
}

// DialRequest describes an outbound leg origination.
type DialRequest struct {
	From        string
	To          string
	ClientState string

	// TimeoutSeconds is how long the leg rings before the provider gives up.
	TimeoutSeconds int

	// MachineDetection enables answering-machine detection on the leg.
	MachineDetection bool
}

// RecordingOptions controls a record-start command.
type RecordingOptions struct {
	Format     string // "mp3" or "wav"
	Channels   string // "single" or "dual"
	Transcribe bool
}
