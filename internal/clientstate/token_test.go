package clientstate

import (
	"encoding/base64"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Context{
		{CallID: "c1"},
		{CallID: "c2", Phase: "agent_dialing"},
		{CallID: "c3", Phase: "connecting_announcement", Action: ActionInitiateContactLeg, ContactNumber: "+15557654321", FromNumber: "+15551234567"},
		{CallID: "c4", Phase: "recording_announcement", Action: ActionBridgeCalls, AgentLegID: "leg-a", ContactLegID: "leg-b"},
	}
	for _, want := range cases {
		want.Version = Version
		got := Decode(Encode(want))
		if !got.IsToken() {
			t.Fatalf("expected valid token for %+v", want)
		}
		if *got.Context != want {
			t.Fatalf("round trip mismatch: got %+v want %+v", *got.Context, want)
		}
	}
}

func TestDecodeRawFallback(t *testing.T) {
	cases := []string{
		"not base64 at all!!!",
		base64.StdEncoding.EncodeToString([]byte("plain text, not json")),
		base64.StdEncoding.EncodeToString([]byte(`{"v":1}`)),              // no call id
		base64.StdEncoding.EncodeToString([]byte(`{"v":99,"call_id":"x"}`)), // unknown version
	}
	for _, raw := range cases {
		d := Decode(raw)
		if d.IsToken() {
			t.Fatalf("expected raw fallback for %q", raw)
		}
		if d.Raw != raw {
			t.Fatalf("expected raw preserved, got %q want %q", d.Raw, raw)
		}
	}
}

func TestDecodeEmptyString(t *testing.T) {
	d := Decode("")
	if d.IsToken() {
		t.Fatalf("expected no token")
	}
	if d.Raw != "" {
		t.Fatalf("expected empty raw, got %q", d.Raw)
	}
}
