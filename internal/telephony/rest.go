package telephony

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// RestCommander drives the provider's call-control REST API.
//
// Commands return as soon as the provider accepts them; outcomes arrive on
// the webhook endpoint. Hangup treats "leg already gone" responses as
// success because cascade cleanup routinely races the leg's own natural
// hangup.
type RestCommander struct {
	http         *resty.Client
	connectionID string
	log          *slog.Logger
}

// RestConfig configures the provider adapter.
type RestConfig struct {
	BaseURL      string
	APIKey       string
	ConnectionID string
	Timeout      time.Duration
}

func NewRestCommander(cfg RestConfig, log *slog.Logger) *RestCommander {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if log == nil {
		log = slog.Default()
	}
	return &RestCommander{http: client, connectionID: cfg.ConnectionID, log: log}
}

type dialResponse struct {
	Data struct {
		CallControlID string `json:"call_control_id"`
	} `json:"data"`
}

func (c *RestCommander) Dial(ctx context.Context, req DialRequest) (string, error) {
	body := map[string]any{
		"connection_id": c.connectionID,
		"from":          req.From,
		"to":            req.To,
	}
	if req.ClientState != "" {
		body["client_state"] = req.ClientState
	}
	if req.TimeoutSeconds > 0 {
		body["timeout_secs"] = req.TimeoutSeconds
	}
	if req.MachineDetection {
		body["answering_machine_detection"] = "detect"
	}

	var out dialResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/calls")
	if err != nil {
		return "", fmt.Errorf("telephony: dial request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("telephony: dial rejected (%d): %s", resp.StatusCode(), resp.String())
	}
	if out.Data.CallControlID == "" {
		return "", fmt.Errorf("telephony: dial accepted but no leg id returned")
	}
	return out.Data.CallControlID, nil
}

func (c *RestCommander) Speak(ctx context.Context, legID, text, clientState string) error {
	body := map[string]any{
		"payload":  text,
		"voice":    "female",
		"language": "en-US",
	}
	if clientState != "" {
		body["client_state"] = clientState
	}
	return c.action(ctx, legID, "speak", body)
}

func (c *RestCommander) Play(ctx context.Context, legID, audioURL, clientState string) error {
	body := map[string]any{"audio_url": audioURL}
	if clientState != "" {
		body["client_state"] = clientState
	}
	return c.action(ctx, legID, "playback_start", body)
}

func (c *RestCommander) Bridge(ctx context.Context, legAID, legBID string) error {
	return c.action(ctx, legAID, "bridge", map[string]any{"call_control_id": legBID})
}

func (c *RestCommander) StartRecording(ctx context.Context, legID string, opts RecordingOptions) error {
	format := opts.Format
	if format == "" {
		format = "mp3"
	}
	channels := opts.Channels
	if channels == "" {
		channels = "dual"
	}
	body := map[string]any{
		"format":   format,
		"channels": channels,
	}
	if opts.Transcribe {
		body["transcription"] = true
	}
	return c.action(ctx, legID, "record_start", body)
}

func (c *RestCommander) Hangup(ctx context.Context, legID string) error {
	err := c.action(ctx, legID, "hangup", map[string]any{})
	if err != nil {
		// The leg being gone already is the expected outcome of cascade
		// hangups; surface anything else.
		var se *statusError
		if errors.As(err, &se) && (se.code == http.StatusNotFound || se.code == http.StatusUnprocessableEntity) {
			c.log.Debug("hangup on terminated leg", "leg_id", legID, "status", se.code)
			return nil
		}
		return err
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("telephony: command rejected (%d): %s", e.code, e.body)
}

func (c *RestCommander) action(ctx context.Context, legID, name string, body map[string]any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(fmt.Sprintf("/calls/%s/actions/%s", legID, name))
	if err != nil {
		return fmt.Errorf("telephony: %s request failed: %w", name, err)
	}
	if resp.IsError() {
		return &statusError{code: resp.StatusCode(), body: resp.String()}
	}
	return nil
}
