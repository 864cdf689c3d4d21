// Package callapi is the authenticated REST surface for originating and
// reading bridge calls. Keep handlers thin: parse/validate input, call the
// bridge machine, return JSON.
package callapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/Systemsaholic/call-helm-bridge/internal/auth"
	"github.com/Systemsaholic/call-helm-bridge/internal/bridge"
	"github.com/Systemsaholic/call-helm-bridge/pkg/logger"
	"github.com/Systemsaholic/call-helm-bridge/pkg/utils"
)

// slotTTL bounds how long a leaked concurrency slot can live if the process
// dies between acquire and the terminal hook's release.
const slotTTL = 4 * time.Hour

// SlotKey is the per-workspace counter key for the in-flight call cap. The
// bridge terminal hook releases against the same key.
func SlotKey(workspaceID string) string {
	return "calls:active:" + workspaceID
}

// Handlers groups HTTP handlers for dependency injection.
type Handlers struct {
	Auth    *auth.Manager
	Machine *bridge.Machine
	Calls   bridge.Store

	// Redis and MaxConcurrent enable the per-workspace in-flight call cap.
	// A nil client or zero limit disables it.
	Redis         *redis.Client
	MaxConcurrent int

	// DefaultFrom is used when the request does not carry a from number.
	DefaultFrom string
}

type loginRequest struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
}

// Login issues a JWT access token.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.WorkspaceID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, workspace_id required"})
		return
	}
	tok, err := h.Auth.IssueAccessToken(time.Now(), req.UserID, req.WorkspaceID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok})
}

type startCallRequest struct {
	AgentNumber   string `json:"agent_number"`
	ContactNumber string `json:"contact_number"`
	FromNumber    string `json:"from_number,omitempty"`

	RecordingEnabled  bool `json:"recording_enabled"`
	AnnounceRecording bool `json:"announce_recording"`
}

// StartCall originates the bridge flow: the agent's phone rings first, then
// the contact is dialed and the two legs are bridged.
func (h Handlers) StartCall(c *gin.Context) {
	log := logger.FromGin(c)
	ctx := c.Request.Context()

	workspaceID, err := auth.WorkspaceID(ctx)
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}

	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.AgentNumber == "" || req.ContactNumber == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent_number, contact_number required"})
		return
	}
	from := req.FromNumber
	if from == "" {
		from = h.DefaultFrom
	}

	capped := h.Redis != nil && h.MaxConcurrent > 0
	if capped {
		ok, err := utils.AcquireCallSlot(ctx, h.Redis, SlotKey(workspaceID), h.MaxConcurrent, slotTTL)
		if err != nil {
			log.Error("call slot acquire failed", "workspace_id", workspaceID, "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "call capacity check failed"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "concurrent call limit reached"})
			return
		}
	}

	call, err := h.Machine.StartBridgeCall(ctx, bridge.StartCallRequest{
		WorkspaceID:       workspaceID,
		AgentNumber:       req.AgentNumber,
		ContactNumber:     req.ContactNumber,
		FromNumber:        from,
		RecordingEnabled:  req.RecordingEnabled,
		AnnounceRecording: req.AnnounceRecording,
	})
	if err != nil {
		if call == nil {
			// Nothing was created, so no terminal hook will ever release
			// the slot we just took.
			if capped {
				if rerr := utils.ReleaseCallSlot(ctx, h.Redis, SlotKey(workspaceID)); rerr != nil {
					log.Warn("call slot release failed", "workspace_id", workspaceID, "err", rerr)
				}
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// The call exists in its terminal failed state; report it rather
		// than pretending the request never happened.
		log.Error("bridge call failed at origination", "call_id", call.ID, "err", err)
		view := callView(call)
		view["error"] = "agent dial failed"
		c.JSON(http.StatusBadGateway, view)
		return
	}

	c.JSON(http.StatusCreated, callView(call))
}

// GetCall returns one call, scoped to the caller's workspace.
func (h Handlers) GetCall(c *gin.Context) {
	ctx := c.Request.Context()

	workspaceID, err := auth.WorkspaceID(ctx)
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}

	call, err := h.Calls.Get(ctx, callID)
	if errors.Is(err, bridge.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("call read failed", "call_id", callID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call read failed"})
		return
	}
	// Cross-workspace reads look identical to missing calls.
	if call.WorkspaceID != workspaceID {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}

	c.JSON(http.StatusOK, callView(call))
}

// callView augments the stored record with its public status so dashboard
// clients never interpret bridge phases themselves.
func callView(call *bridge.Call) gin.H {
	return gin.H{
		"call":   call,
		"status": string(publicStatus(call)),
	}
}

func publicStatus(call *bridge.Call) bridge.Status {
	// Legacy single-leg calls never leave phase none; their status lives in
	// metadata.
	if s, ok := call.Metadata["call_status"].(string); ok && s != "" {
		return bridge.Status(s)
	}
	return call.BridgePhase.PublicStatus()
}
