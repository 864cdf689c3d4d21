// Package clientstate implements the continuation-token protocol used to
// carry orchestration state across stateless webhook deliveries.
//
// The telephony provider accepts an opaque base64 string on every outbound
// command and echoes it back unmodified on the webhook that reports the
// command's outcome. That string is the only memory the orchestrator has
// between requests besides the persisted call record, so the codec must be
// byte-exact on round trips and must never reject input: third parties share
// the same channel and can put arbitrary strings in it.
package clientstate

import (
	"encoding/base64"
	"encoding/json"
)

// Version identifies the token schema. Decoding rejects unknown versions
// into the raw fallback instead of guessing at field meanings.
const Version = 1

// Action is what the orchestrator intends to do once the in-flight provider
// command completes.
type Action string

const (
	ActionNone               Action = ""
	ActionInitiateContactLeg Action = "initiate_contact_leg"
	ActionBridgeCalls        Action = "bridge_calls"
)

// Context is the orchestration state embedded in the provider's
// client-state channel. Leg ids and numbers are carried so the pending
// action can be performed without a store lookup.
type Context struct {
	Version int    `json:"v"`
	CallID  string `json:"call_id"`

	// Phase is the phase the call is expected to be in when the command
	// this token rides on completes.
	Phase  string `json:"phase,omitempty"`
	Action Action `json:"action,omitempty"`

	AgentLegID    string `json:"agent_leg_id,omitempty"`
	ContactLegID  string `json:"contact_leg_id,omitempty"`
	ContactNumber string `json:"contact_number,omitempty"`
	FromNumber    string `json:"from_number,omitempty"`
}

// Encode serializes the context to a string safe for the provider's opaque
// channel. The version stamp is forced so callers cannot emit unversioned
// tokens.
func Encode(c Context) string {
	c.Version = Version
	b, _ := json.Marshal(c)
	return base64.StdEncoding.EncodeToString(b)
}

// Decoded is the result of decoding a client-state string: either a valid
// token or the raw string exactly as received.
type Decoded struct {
	Context *Context
	Raw     string
}

// IsToken reports whether a structurally valid token was decoded.
func (d Decoded) IsToken() bool { return d.Context != nil }

// Decode never fails. Strings that are not base64, not JSON, not this
// schema version, or missing a call id come back as a raw fallback so the
// webhook handler can log and continue.
func Decode(token string) Decoded {
	if token == "" {
		return Decoded{}
	}
	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Decoded{Raw: token}
	}
	var c Context
	if err := json.Unmarshal(b, &c); err != nil {
		return Decoded{Raw: token}
	}
	if c.Version != Version || c.CallID == "" {
		return Decoded{Raw: token}
	}
	return Decoded{Context: &c}
}
