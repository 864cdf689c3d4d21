package webhook

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Systemsaholic/call-helm-bridge/internal/bridge"
	"github.com/Systemsaholic/call-helm-bridge/internal/callstore"
	"github.com/Systemsaholic/call-helm-bridge/internal/clientstate"
	"github.com/Systemsaholic/call-helm-bridge/internal/telephony"
)

type nopCommander struct{}

func (nopCommander) Dial(context.Context, telephony.DialRequest) (string, error) {
	return "leg-new", nil
}
func (nopCommander) Speak(context.Context, string, string, string) error { return nil }
func (nopCommander) Play(context.Context, string, string, string) error  { return nil }
func (nopCommander) Bridge(context.Context, string, string) error        { return nil }
func (nopCommander) Hangup(context.Context, string) error                { return nil }
func (nopCommander) StartRecording(context.Context, string, telephony.RecordingOptions) error {
	return nil
}

func newTestRouter(store bridge.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := Handler{
		Machine: &bridge.Machine{
			Calls:     store,
			Commander: nopCommander{},
			Now:       func() time.Time { return time.Unix(1700000000, 0).UTC() },
		},
		Calls: store,
	}
	r := gin.New()
	r.GET("/webhooks/telephony", h.Verify)
	r.POST("/webhooks/telephony", h.Receive)
	return r
}

func eventBody(eventType, legID, clientState, extra string) string {
	payload := fmt.Sprintf(`"call_control_id":%q,"client_state":%q`, legID, clientState)
	if extra != "" {
		payload += "," + extra
	}
	return fmt.Sprintf(`{"data":{"event_type":%q,"occurred_at":"2023-11-14T22:13:20Z","payload":{%s}}}`,
		eventType, payload)
}

func post(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telephony", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVerifyProbe(t *testing.T) {
	r := newTestRouter(callstore.NewMemoryStore())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhooks/telephony", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestMalformedEnvelopeRejected(t *testing.T) {
	r := newTestRouter(callstore.NewMemoryStore())

	for _, body := range []string{
		"not json",
		// missing event_type
		`{"data":{"payload":{"call_control_id":"leg-1"}}}`,
		// missing leg id
		`{"data":{"event_type":"call.answered","payload":{}}}`,
	} {
		if w := post(r, body); w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, w.Code)
		}
	}
}

func TestUnknownCallAcknowledged(t *testing.T) {
	store := callstore.NewMemoryStore()
	r := newTestRouter(store)

	w := post(r, eventBody("call.answered", "leg-unknown", "", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown call, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "received") {
		t.Fatalf("expected ack body, got %s", w.Body.String())
	}
}

func TestAnsweredEventDrivesTransition(t *testing.T) {
	ctx := context.Background()
	store := callstore.NewMemoryStore()
	r := newTestRouter(store)

	leg := "leg-1"
	call := &bridge.Call{
		ID:           "c1",
		WorkspaceID:  "w1",
		AgentLegID:   leg,
		Direction:    "outbound",
		CallerNumber: "+15550009999",
		CalledNumber: "+15550002222",
		BridgePhase:  bridge.PhaseAgentDialing,
		Metadata:     map[string]any{},
	}
	if err := store.Create(ctx, call); err != nil {
		t.Fatalf("create: %v", err)
	}
	token := clientstate.Encode(clientstate.Context{CallID: "c1", Phase: string(bridge.PhaseAgentDialing)})

	w := post(r, eventBody("call.answered", leg, token, ""))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	got, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// No announcement configured, so answering moves straight to dialing
	// the contact leg.
	if got.BridgePhase != bridge.PhaseContactDialing {
		t.Fatalf("expected contact_dialing, got %q", got.BridgePhase)
	}
	if got.ContactLegID != "leg-new" {
		t.Fatalf("expected contact leg recorded, got %q", got.ContactLegID)
	}
}

func TestLegIDLookupWithoutToken(t *testing.T) {
	ctx := context.Background()
	store := callstore.NewMemoryStore()
	r := newTestRouter(store)

	call := &bridge.Call{
		ID:           "c2",
		WorkspaceID:  "w1",
		LegacyCallID: "ext-1",
		Direction:    "inbound",
		Metadata:     map[string]any{},
	}
	if err := store.Create(ctx, call); err != nil {
		t.Fatalf("create: %v", err)
	}

	w := post(r, eventBody("call.hangup", "ext-1", "sip:opaque-state", `"hangup_cause":"normal_clearing"`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	got, err := store.Get(ctx, "c2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EndedAt == nil {
		t.Fatalf("expected legacy call closed out via leg id lookup")
	}
}

func TestUnhandledEventTypeAcknowledged(t *testing.T) {
	ctx := context.Background()
	store := callstore.NewMemoryStore()
	r := newTestRouter(store)

	call := &bridge.Call{ID: "c3", WorkspaceID: "w1", AgentLegID: "leg-3", Metadata: map[string]any{}}
	if err := store.Create(ctx, call); err != nil {
		t.Fatalf("create: %v", err)
	}

	w := post(r, eventBody("call.fork.started", "leg-3", "", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unhandled type, got %d", w.Code)
	}
}
