// Package webhook receives provider call-control events and dispatches them
// into the bridge state machine. Conversion and lookup only; the flow
// decisions live in internal/bridge.
package webhook

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Systemsaholic/call-helm-bridge/internal/bridge"
	"github.com/Systemsaholic/call-helm-bridge/internal/clientstate"
	"github.com/Systemsaholic/call-helm-bridge/internal/telephony"
	"github.com/Systemsaholic/call-helm-bridge/pkg/logger"
)

// Handler terminates the provider's webhook URL.
//
// Everything except a malformed envelope is acknowledged with 200: the
// provider retries non-2xx responses, and redelivering an event we cannot
// act on (unknown call, terminal call, handler error) would never succeed
// on the retry either.
type Handler struct {
	Machine *bridge.Machine
	Calls   bridge.Store
}

// Verify answers the provider's URL validation probe.
func (h Handler) Verify(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Receive parses one call-control event, finds its call, and dispatches.
func (h Handler) Receive(c *gin.Context) {
	log := logger.FromGin(c)

	ev, err := telephony.ParseEvent(c.Request)
	if err != nil {
		log.Warn("webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
		return
	}
	log = log.With("event_type", string(ev.Type), "leg_id", ev.LegID)

	st := clientstate.Decode(ev.ClientState)

	call, err := h.lookup(c, ev, st)
	if errors.Is(err, bridge.ErrNotFound) {
		// Simulator traffic, calls from before a data migration, or events
		// for records another deployment owns. Acknowledge so the provider
		// stops redelivering.
		log.Info("webhook for unknown call acknowledged")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	if err != nil {
		log.Error("call lookup failed", "err", err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "lookup failed"})
		return
	}
	log = log.With("call_id", call.ID)

	if err := h.dispatch(c, call, ev, st); err != nil {
		log.Error("event handling failed", "err", err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "handling failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// lookup resolves the call record: the continuation token's call id when one
// is present, otherwise the leg id against any of the leg columns.
func (h Handler) lookup(c *gin.Context, ev telephony.Event, st clientstate.Decoded) (*bridge.Call, error) {
	ctx := c.Request.Context()
	if st.IsToken() {
		call, err := h.Calls.Get(ctx, st.Context.CallID)
		if err == nil {
			return call, nil
		}
		if !errors.Is(err, bridge.ErrNotFound) {
			return nil, err
		}
		// Token references a call we no longer have; fall through to the
		// leg id in case the record was re-created.
	}
	return h.Calls.FindByLegID(ctx, ev.LegID)
}

func (h Handler) dispatch(c *gin.Context, call *bridge.Call, ev telephony.Event, st clientstate.Decoded) (err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.FromGin(c).Error("webhook handler panicked", "call_id", call.ID, "panic", p)
			err = nil
		}
	}()

	ctx := c.Request.Context()
	switch ev.Type {
	case telephony.EventInitiated:
		return h.Machine.HandleInitiated(ctx, call, ev)
	case telephony.EventAnswered:
		return h.Machine.HandleAnswered(ctx, call, ev, st)
	case telephony.EventBridged:
		return h.Machine.HandleBridged(ctx, call, ev)
	case telephony.EventSpeakEnded, telephony.EventPlaybackEnded:
		return h.Machine.HandlePlaybackDone(ctx, call, ev, st)
	case telephony.EventHangup:
		return h.Machine.HandleHangup(ctx, call, ev)
	case telephony.EventRecordingSaved:
		return h.Machine.HandleRecordingSaved(ctx, call, ev)
	case telephony.EventMachineDetection:
		return h.Machine.HandleMachineDetection(ctx, call, ev)
	case telephony.EventDTMFReceived:
		return h.Machine.HandleDTMF(ctx, call, ev)
	case telephony.EventGatherEnded:
		return h.Machine.HandleGatherEnded(ctx, call, ev)
	default:
		logger.FromGin(c).Debug("unhandled event type acknowledged", "call_id", call.ID)
		return nil
	}
}
