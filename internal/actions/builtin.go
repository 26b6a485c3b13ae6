package actions

import (
	"fmt"

	"github.com/dokzlo13/boblightd/internal/boblight"
	"github.com/dokzlo13/boblightd/internal/device"
)

// Built-in action names.
const (
	ActionPower            = "power"
	ActionBrightness       = "brightness"
	ActionColor            = "color"
	ActionColorTemperature = "color_temperature"
	ActionPriority         = "priority"
)

// RegisterBuiltins registers the boblight light actions.
func RegisterBuiltins(r *Registry) error {
	builtins := []struct {
		name    string
		fn      func(*Context, map[string]any) error
		classes []device.Class
	}{
		{ActionPower, power, AllClasses},
		{ActionBrightness, brightness, AllClasses},
		{ActionColor, color, AllClasses},
		{ActionColorTemperature, colorTemperature, AllClasses},
		// Priority belongs to the client connection, not to a light
		{ActionPriority, priority, []device.Class{device.ClassServer}},
	}
	for _, b := range builtins {
		if err := r.RegisterSimple(b.name, b.fn, b.classes...); err != nil {
			return err
		}
	}
	return nil
}

func power(ctx *Context, args map[string]any) error {
	on, err := Bool(args, "on")
	if err != nil {
		return err
	}
	return ctx.Lights().SetPower(ctx.Channel(), on)
}

func brightness(ctx *Context, args map[string]any) error {
	pct, err := Int(args, "brightness")
	if err != nil {
		return err
	}
	if pct < 0 || pct > 100 {
		return fmt.Errorf("%w: brightness %d out of range 0..100", ErrInvalidParam, pct)
	}
	return ctx.Lights().SetBrightness(ctx.Channel(), pct)
}

func color(ctx *Context, args map[string]any) error {
	hex, err := String(args, "color")
	if err != nil {
		return err
	}
	c, err := boblight.ParseColor(hex)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	return setRGB(ctx, c)
}

func colorTemperature(ctx *Context, args map[string]any) error {
	mired, err := Int(args, "mired")
	if err != nil {
		return err
	}
	return setRGB(ctx, boblight.TemperatureToColor(mired))
}

func priority(ctx *Context, args map[string]any) error {
	p, err := Int(args, "priority")
	if err != nil {
		return err
	}
	if p < 0 || p > 255 {
		return fmt.Errorf("%w: priority %d out of range 0..255", ErrInvalidParam, p)
	}
	return ctx.Lights().SetPriority(p)
}

// setRGB changes the RGB of every addressed channel and keeps each one's
// alpha, so color changes do not alter power or brightness.
func setRGB(ctx *Context, c boblight.Color) error {
	lights := ctx.Lights()
	if !lights.Connected() {
		return boblight.ErrHardwareUnavailable
	}
	for _, ch := range ctx.Channels() {
		current, err := lights.TargetColor(ch)
		if err != nil {
			return err
		}
		if err := lights.SetColor(ch, c.WithAlpha(int(current.A))); err != nil {
			return err
		}
	}
	return nil
}
