// Package actions provides the action registry and invocation system.
package actions

import (
	"context"

	"github.com/dokzlo13/boblightd/internal/boblight"
)

// Lights is the part of a boblight session that actions drive.
type Lights interface {
	Connected() bool
	LightCount() int
	SetPower(channel int, on bool) error
	SetBrightness(channel, percent int) error
	SetColor(channel int, c boblight.Color) error
	TargetColor(channel int) (boblight.Color, error)
	SetPriority(priority int) error
}

// Target addresses the lights an action runs against. Channel is
// boblight.AllChannels for a server device.
type Target struct {
	DeviceID string
	Lights   Lights
	Channel  int
}

// Context is the capability interface provided to actions
type Context struct {
	ctx    context.Context
	target Target
}

// NewContext creates a new action context
func NewContext(ctx context.Context, target Target) *Context {
	return &Context{ctx: ctx, target: target}
}

// Ctx returns the Go context for cancellation
func (c *Context) Ctx() context.Context {
	return c.ctx
}

// DeviceID returns the id of the device the action runs against.
func (c *Context) DeviceID() string {
	return c.target.DeviceID
}

// Lights returns the session backing the device.
func (c *Context) Lights() Lights {
	return c.target.Lights
}

// Channel returns the addressed channel index.
func (c *Context) Channel() int {
	return c.target.Channel
}

// Channels expands the addressed channel into concrete indices.
func (c *Context) Channels() []int {
	if c.target.Channel != boblight.AllChannels {
		return []int{c.target.Channel}
	}
	n := c.target.Lights.LightCount()
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
