package boblight

import "time"

// DefaultTransition is the duration of a color animation.
const DefaultTransition = 1500 * time.Millisecond

// Channel holds the color of one boblight light and an optional linear
// transition towards a target color. It is owned by a Session and not safe
// for concurrent use on its own.
type Channel struct {
	id    int
	color Color

	// transition state
	animating bool
	from      Color
	to        Color
	start     time.Time
	duration  time.Duration

	onChange func(id int, c Color)
}

func newChannel(id int, duration time.Duration, onChange func(int, Color)) *Channel {
	return &Channel{
		id:       id,
		duration: duration,
		onChange: onChange,
	}
}

// ID returns the index of the channel in the server's light array.
func (c *Channel) ID() int {
	return c.id
}

// Color returns the live color, which is mid-transition while animating.
func (c *Channel) Color() Color {
	return c.color
}

// Target returns the color the channel is heading to.
func (c *Channel) Target() Color {
	if c.animating {
		return c.to
	}
	return c.color
}

// Animating reports whether a transition is in progress.
func (c *Channel) Animating() bool {
	return c.animating
}

// SetColor applies a color immediately, dropping any transition.
func (c *Channel) SetColor(color Color) {
	c.animating = false
	c.color = color
	c.changed()
}

// AnimateToColor starts a transition from the live color to color. A running
// transition is restarted from wherever it currently is.
func (c *Channel) AnimateToColor(color Color, now time.Time) {
	if c.duration <= 0 {
		c.SetColor(color)
		return
	}
	c.from = c.color
	c.to = color
	c.start = now
	c.animating = true
}

// Tick advances the transition to now. It returns false when no transition
// was running.
func (c *Channel) Tick(now time.Time) bool {
	if !c.animating {
		return false
	}

	elapsed := now.Sub(c.start)
	fraction := float64(elapsed) / float64(c.duration)
	if fraction >= 1 {
		c.color = c.to
		c.animating = false
	} else {
		if fraction < 0 {
			fraction = 0
		}
		c.color = c.from.Lerp(c.to, fraction)
	}
	c.changed()
	return true
}

// dispose stops the transition and detaches the channel from its owner.
func (c *Channel) dispose() {
	c.animating = false
	c.onChange = nil
}

func (c *Channel) changed() {
	if c.onChange != nil {
		c.onChange(c.id, c.color)
	}
}
