package api

import (
	"time"

	"github.com/dokzlo13/boblightd/internal/device"
	"github.com/dokzlo13/boblightd/internal/ledger"
)

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned from GET /health and GET /ready
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// DeviceResponse is a device with the actions it accepts
type DeviceResponse struct {
	device.Device
	Actions []string `json:"actions"`
}

// ListDevicesResponse is returned from GET /devices
type ListDevicesResponse struct {
	Devices []DeviceResponse `json:"devices"`
	Count   int              `json:"count"`
}

// ActionResponse is returned from POST /devices/:id/actions/:action
type ActionResponse struct {
	Device DeviceResponse `json:"device"`
	Action string         `json:"action"`
}

// HistoryResponse is returned from GET /actions and GET /devices/:id/actions
type HistoryResponse struct {
	Entries []*ledger.Entry `json:"entries"`
	Count   int             `json:"count"`
}
