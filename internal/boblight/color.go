package boblight

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is an RGBA value. Alpha doubles as the channel intensity:
// 0 is off, 255 is full power.
type Color struct {
	R, G, B, A uint8
}

// RGB returns an opaque color.
func RGB(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b, A: 255}
}

// RGBA returns a color with an explicit alpha.
func RGBA(r, g, b, a uint8) Color {
	return Color{R: r, G: g, B: b, A: a}
}

// ParseColor parses "#rrggbb" into an opaque color.
func ParseColor(s string) (Color, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return RGB(r, g, b), nil
}

// Hex formats the RGB part as "#rrggbb".
func (c Color) Hex() string {
	return c.colorful().Hex()
}

// WithAlpha returns a copy with alpha replaced, clamped to [0,255].
func (c Color) WithAlpha(alpha int) Color {
	c.A = clamp(alpha)
	return c
}

// Power reports whether the color is visible at all.
func (c Color) Power() bool {
	return c.A > 0
}

// Brightness returns the alpha as a percentage.
func (c Color) Brightness() int {
	return int(math.Round(float64(c.A) * 100 / 255))
}

// Scaled returns the displayed RGB, each component multiplied by the alpha fraction.
func (c Color) Scaled() [3]int {
	a := float64(c.A) / 255
	return [3]int{
		int(float64(c.R) * a),
		int(float64(c.G) * a),
		int(float64(c.B) * a),
	}
}

// Lerp interpolates linearly between c and to. t is clamped to [0,1];
// t == 1 yields to exactly.
func (c Color) Lerp(to Color, t float64) Color {
	switch {
	case t <= 0:
		return c
	case t >= 1:
		return to
	}
	r, g, b := c.colorful().BlendRgb(to.colorful(), t).Clamped().RGB255()
	a := float64(c.A) + (float64(to.A)-float64(c.A))*t
	return Color{R: r, G: g, B: b, A: clamp(int(math.Round(a)))}
}

func (c Color) String() string {
	return fmt.Sprintf("rgba(%d,%d,%d,%d)", c.R, c.G, c.B, c.A)
}

func (c Color) colorful() colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

// BrightnessToAlpha converts a brightness percentage to an alpha value.
func BrightnessToAlpha(percent int) int {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return int(math.Round(float64(percent) * 255 / 100))
}

func clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
