// Package api serves the HTTP control surface for boblight devices.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dokzlo13/boblightd/internal/device"
	"github.com/dokzlo13/boblightd/internal/ledger"
	"github.com/dokzlo13/boblightd/internal/plugin"
)

// IdempotencyHeader carries an optional idempotency key for action requests.
const IdempotencyHeader = "Idempotency-Key"

// Controller is the device surface the API drives.
type Controller interface {
	Devices() []device.Device
	Device(id string) (device.Device, error)
	ActionNames(d device.Device) []string
	Execute(ctx context.Context, cmd plugin.Command) error
	RemoveDevice(id string) error
	Ready() bool
}

// History reads recorded actions. Implemented by *ledger.Ledger.
type History interface {
	Recent(limit int) ([]*ledger.Entry, error)
	ByDevice(deviceID string, limit int) ([]*ledger.Entry, error)
}

// Router holds the Gin engine and dependencies
type Router struct {
	engine     *gin.Engine
	controller Controller
	history    History
}

// NewRouter creates the API router. history may be nil, in which case the
// action history endpoints are not registered.
func NewRouter(controller Controller, history History) *Router {
	engine := gin.New()
	SetupMiddleware(engine)

	r := &Router{
		engine:     engine,
		controller: controller,
		history:    history,
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.health)
	r.engine.GET("/ready", r.ready)

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/health", r.health)

		devices := v1.Group("/devices")
		{
			devices.GET("", r.listDevices)
			devices.GET("/:id", r.getDevice)
			devices.DELETE("/:id", r.removeDevice)
			devices.POST("/:id/actions/:action", r.invokeAction)
			if r.history != nil {
				devices.GET("/:id/actions", r.deviceHistory)
			}
		}

		if r.history != nil {
			v1.GET("/actions", r.recentActions)
		}
	}
}

// Handler returns the router as an http.Handler.
func (r *Router) Handler() http.Handler {
	return r.engine
}
