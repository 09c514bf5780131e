package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dosepilot/medsync/internal/errs"
	"github.com/dosepilot/medsync/internal/limiter"
	"github.com/dosepilot/medsync/internal/model"
	"github.com/dosepilot/medsync/internal/service"
)

// Handler wires services into HTTP handlers.
type Handler struct {
	sync      service.SyncService
	conflicts service.ConflictService
	devices   service.DeviceService
	orch      service.Orchestrator
	lim       limiter.Limiter
}

// NewHandler constructs a handler with injected services. A nil limiter
// disables throttling.
func NewHandler(
	sync service.SyncService,
	conflicts service.ConflictService,
	devices service.DeviceService,
	orch service.Orchestrator,
	lim limiter.Limiter,
) *Handler {
	if lim == nil {
		lim = limiter.Nop{}
	}
	return &Handler{sync: sync, conflicts: conflicts, devices: devices, orch: orch, lim: lim}
}

type localOpBody struct {
	DeviceID   string         `json:"device_id" binding:"required"`
	EntityType string         `json:"entity_type" binding:"required"`
	EntityID   string         `json:"entity_id" binding:"required"`
	Kind       string         `json:"kind" binding:"required"`
	Payload    map[string]any `json:"payload"`
	Version    int64          `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (b localOpBody) toModel() model.LocalOp {
	return model.LocalOp{
		DeviceID:   b.DeviceID,
		EntityType: model.EntityType(b.EntityType),
		EntityID:   b.EntityID,
		Kind:       model.OpKind(b.Kind),
		Payload:    b.Payload,
		Version:    b.Version,
		CreatedAt:  b.CreatedAt,
	}
}

// Push accepts one device change and returns the stored operation.
func (h *Handler) Push(c *gin.Context) {
	userID := UserIDFromContext(c)
	var body localOpBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	if !h.allowPush(c, userID, body.DeviceID) {
		return
	}
	op, err := h.sync.Push(c.Request.Context(), userID, body.toModel())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, op)
}

// Pull returns operations made on other devices.
func (h *Handler) Pull(c *gin.Context) {
	userID := UserIDFromContext(c)
	deviceID := c.Query("device_id")
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		since = &t
	}
	ops, err := h.sync.Pull(c.Request.Context(), userID, deviceID, since)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}

// FullSync runs the full sync cycle for a device batch.
func (h *Handler) FullSync(c *gin.Context) {
	userID := UserIDFromContext(c)
	var body struct {
		DeviceID   string        `json:"device_id" binding:"required"`
		Operations []localOpBody `json:"operations"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	if !h.allowPush(c, userID, body.DeviceID) {
		return
	}
	local := make([]model.LocalOp, 0, len(body.Operations))
	for _, op := range body.Operations {
		local = append(local, op.toModel())
	}
	res, err := h.orch.FullSync(c.Request.Context(), userID, body.DeviceID, local)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// MarkSynced flips the synced flag for the given operation ids.
func (h *Handler) MarkSynced(c *gin.Context) {
	var body struct {
		IDs []string `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	n, err := h.sync.MarkSynced(c.Request.Context(), body.IDs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

// OfflineQueue returns the device's pending operations.
func (h *Handler) OfflineQueue(c *gin.Context) {
	userID := UserIDFromContext(c)
	ops, err := h.sync.OfflineQueue(c.Request.Context(), userID, c.Query("device_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}

// ClearOfflineQueue drops the device's already-propagated operations.
func (h *Handler) ClearOfflineQueue(c *gin.Context) {
	userID := UserIDFromContext(c)
	var body struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	n, err := h.sync.ClearOfflineQueue(c.Request.Context(), userID, body.DeviceID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

// Status reports the device's sync status.
func (h *Handler) Status(c *gin.Context) {
	userID := UserIDFromContext(c)
	status, err := h.orch.Status(c.Request.Context(), userID, c.Query("device_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Conflicts returns the user's unresolved conflicts.
func (h *Handler) Conflicts(c *gin.Context) {
	userID := UserIDFromContext(c)
	list, err := h.conflicts.Unresolved(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": list})
}

// ResolveConflict applies a resolution to one conflict.
func (h *Handler) ResolveConflict(c *gin.Context) {
	var body struct {
		Resolution string         `json:"resolution" binding:"required"`
		MergedData map[string]any `json:"merged_data"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	resolved, err := h.conflicts.Resolve(
		c.Request.Context(), c.Param("id"), model.Resolution(body.Resolution), body.MergedData,
	)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resolved)
}

// RegisterDevice upserts a device record for the user.
func (h *Handler) RegisterDevice(c *gin.Context) {
	userID := UserIDFromContext(c)
	var body struct {
		DeviceID   string `json:"device_id" binding:"required"`
		Platform   string `json:"platform" binding:"required"`
		AppVersion string `json:"app_version"`
		PushToken  string `json:"push_token"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	d, err := h.devices.Register(c.Request.Context(), model.Device{
		DeviceID:   body.DeviceID,
		UserID:     userID,
		Platform:   model.Platform(body.Platform),
		AppVersion: body.AppVersion,
		PushToken:  body.PushToken,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// UnregisterDevice removes a device record; absence is a normal outcome.
func (h *Handler) UnregisterDevice(c *gin.Context) {
	userID := UserIDFromContext(c)
	found, err := h.devices.Unregister(c.Request.Context(), userID, c.Param("deviceId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": found})
}

// ListDevices returns the user's registered devices.
func (h *Handler) ListDevices(c *gin.Context) {
	userID := UserIDFromContext(c)
	list, err := h.devices.List(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": list})
}

// allowPush consults the limiter; a false return means the response was
// already written.
func (h *Handler) allowPush(c *gin.Context, userID, deviceID string) bool {
	ok, retryAfter, err := h.lim.Allow(c.Request.Context(), userID, deviceID)
	if err != nil {
		h.writeError(c, err)
		return false
	}
	if !ok {
		c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		h.writeError(c, fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, retryAfter.Round(time.Second)))
		return false
	}
	// The current push always proceeds; exhausting the budget blocks the next one.
	if _, _, err := h.lim.Record(c.Request.Context(), userID, deviceID); err != nil {
		h.writeError(c, err)
		return false
	}
	return true
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, errs.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "version conflict"})
	case errors.Is(err, errs.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}
