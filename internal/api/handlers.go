package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dokzlo13/boblightd/internal/boblight"
	"github.com/dokzlo13/boblightd/internal/device"
	"github.com/dokzlo13/boblightd/internal/plugin"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// health handles GET /health
func (r *Router) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

// ready handles GET /ready. It reports 503 while every configured server
// is offline.
func (r *Router) ready(c *gin.Context) {
	if !r.controller.Ready() {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Timestamp: time.Now()})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ready", Timestamp: time.Now()})
}

// listDevices handles GET /api/v1/devices
func (r *Router) listDevices(c *gin.Context) {
	all := r.controller.Devices()
	out := make([]DeviceResponse, 0, len(all))
	for _, d := range all {
		out = append(out, r.describe(d))
	}
	c.JSON(http.StatusOK, ListDevicesResponse{Devices: out, Count: len(out)})
}

// getDevice handles GET /api/v1/devices/:id
func (r *Router) getDevice(c *gin.Context) {
	d, err := r.controller.Device(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r.describe(d))
}

// removeDevice handles DELETE /api/v1/devices/:id
func (r *Router) removeDevice(c *gin.Context) {
	if err := r.controller.RemoveDevice(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// invokeAction handles POST /api/v1/devices/:id/actions/:action. The body
// is an optional JSON object of action arguments.
func (r *Router) invokeAction(c *gin.Context) {
	id := c.Param("id")
	action := c.Param("action")

	var args map[string]any
	if err := json.NewDecoder(c.Request.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Request body must be a JSON object",
		})
		return
	}

	err := r.controller.Execute(c.Request.Context(), plugin.Command{
		DeviceID:       id,
		Action:         action,
		Args:           args,
		Source:         "api",
		IdempotencyKey: c.GetHeader(IdempotencyHeader),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	d, err := r.controller.Device(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ActionResponse{Device: r.describe(d), Action: action})
}

// recentActions handles GET /api/v1/actions?limit=N
func (r *Router) recentActions(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	entries, err := r.history.Recent(limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{Entries: entries, Count: len(entries)})
}

// deviceHistory handles GET /api/v1/devices/:id/actions?limit=N
func (r *Router) deviceHistory(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	entries, err := r.history.ByDevice(c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{Entries: entries, Count: len(entries)})
}

func (r *Router) describe(d device.Device) DeviceResponse {
	names := r.controller.ActionNames(d)
	if names == nil {
		names = []string{}
	}
	return DeviceResponse{Device: d, Actions: names}
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultHistoryLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "limit must be a positive integer",
		})
		return 0, false
	}
	return min(n, maxHistoryLimit), true
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, plugin.ErrDeviceNotFound):
		status, code = http.StatusNotFound, "device_not_found"
	case errors.Is(err, plugin.ErrActionTypeNotFound):
		status, code = http.StatusNotFound, "action_not_found"
	case errors.Is(err, plugin.ErrInvalidParam), errors.Is(err, boblight.ErrInvalidChannel):
		status, code = http.StatusBadRequest, "invalid_param"
	case errors.Is(err, boblight.ErrHardwareUnavailable):
		status, code = http.StatusServiceUnavailable, "hardware_unavailable"
	}
	c.JSON(status, ErrorResponse{Error: code, Message: err.Error()})
}
