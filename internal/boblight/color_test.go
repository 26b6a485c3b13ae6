package boblight

import (
	"testing"
	"time"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    Color
		wantErr bool
	}{
		{"#ffed2b", RGB(0xff, 0xed, 0x2b), false},
		{"#000000", RGB(0, 0, 0), false},
		{"#FF0000", RGB(255, 0, 0), false},
		{"ffed2b", Color{}, true},
		{"#zzzzzz", Color{}, true},
		{"", Color{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseColor(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestColor_Hex(t *testing.T) {
	if got := RGBA(0xff, 0xed, 0x2b, 10).Hex(); got != "#ffed2b" {
		t.Errorf("Hex() = %q, want %q", got, "#ffed2b")
	}
}

func TestColor_Brightness(t *testing.T) {
	tests := []struct {
		alpha uint8
		want  int
	}{
		{0, 0},
		{128, 50},
		{255, 100},
		{3, 1},
	}
	for _, tt := range tests {
		if got := RGBA(1, 2, 3, tt.alpha).Brightness(); got != tt.want {
			t.Errorf("Brightness() with alpha %d = %d, want %d", tt.alpha, got, tt.want)
		}
	}
}

func TestBrightnessToAlpha(t *testing.T) {
	tests := []struct {
		percent int
		want    int
	}{
		{0, 0},
		{50, 128},
		{100, 255},
		{-5, 0},
		{250, 255},
	}
	for _, tt := range tests {
		if got := BrightnessToAlpha(tt.percent); got != tt.want {
			t.Errorf("BrightnessToAlpha(%d) = %d, want %d", tt.percent, got, tt.want)
		}
	}
}

func TestColor_WithAlphaClamps(t *testing.T) {
	c := RGB(10, 20, 30)
	if got := c.WithAlpha(300).A; got != 255 {
		t.Errorf("WithAlpha(300).A = %d, want 255", got)
	}
	if got := c.WithAlpha(-1).A; got != 0 {
		t.Errorf("WithAlpha(-1).A = %d, want 0", got)
	}
	if got := c.WithAlpha(0); got.R != 10 || got.G != 20 || got.B != 30 {
		t.Errorf("WithAlpha changed RGB: %v", got)
	}
}

func TestColor_Lerp(t *testing.T) {
	black := RGBA(0, 0, 0, 0)
	white := RGB(255, 255, 255)

	if got := black.Lerp(white, 0); got != black {
		t.Errorf("Lerp(0) = %v, want %v", got, black)
	}
	if got := black.Lerp(white, 1); got != white {
		t.Errorf("Lerp(1) = %v, want %v", got, white)
	}
	if got := black.Lerp(white, 2); got != white {
		t.Errorf("Lerp(2) = %v, want %v", got, white)
	}
	if got := black.Lerp(white, 0.5); got != RGBA(128, 128, 128, 128) {
		t.Errorf("Lerp(0.5) = %v, want rgba(128,128,128,128)", got)
	}
}

func TestTemperatureToColor(t *testing.T) {
	if got := TemperatureToColor(MinMired); got != coolWhite {
		t.Errorf("TemperatureToColor(%d) = %v, want %v", MinMired, got, coolWhite)
	}
	if got := TemperatureToColor(MaxMired); got != warmWhite {
		t.Errorf("TemperatureToColor(%d) = %v, want %v", MaxMired, got, warmWhite)
	}
	if got := TemperatureToColor(10); got != coolWhite {
		t.Errorf("TemperatureToColor(10) = %v, want clamped %v", got, coolWhite)
	}

	// Warmer temperatures have more red and less blue.
	prev := TemperatureToColor(MinMired)
	for m := MinMired + 50; m <= MaxMired; m += 50 {
		c := TemperatureToColor(m)
		if c.R < prev.R || c.B > prev.B {
			t.Errorf("TemperatureToColor(%d) = %v is not warmer than %v", m, c, prev)
		}
		if c.A != 255 {
			t.Errorf("TemperatureToColor(%d) alpha = %d, want 255", m, c.A)
		}
		prev = c
	}
}

func TestChannel_Tick(t *testing.T) {
	var changes int
	ch := newChannel(0, time.Second, func(int, Color) { changes++ })
	start := time.Unix(0, 0)

	ch.SetColor(RGB(0, 0, 0))
	if ch.Tick(start) {
		t.Error("Tick() on idle channel = true, want false")
	}

	target := RGB(200, 100, 0)
	ch.AnimateToColor(target, start)
	if !ch.Animating() {
		t.Fatal("Animating() = false after AnimateToColor")
	}
	if ch.Target() != target {
		t.Errorf("Target() = %v, want %v", ch.Target(), target)
	}

	ch.Tick(start.Add(500 * time.Millisecond))
	if got := ch.Color(); got != RGB(100, 50, 0) {
		t.Errorf("Color() at half = %v, want rgba(100,50,0,255)", got)
	}

	ch.Tick(start.Add(2 * time.Second))
	if ch.Animating() {
		t.Error("Animating() = true after transition end")
	}
	if ch.Color() != target {
		t.Errorf("Color() = %v, want %v", ch.Color(), target)
	}
	if changes != 3 {
		t.Errorf("change callbacks = %d, want 3", changes)
	}
}

func TestChannel_ZeroDurationIsImmediate(t *testing.T) {
	ch := newChannel(0, 0, nil)
	ch.AnimateToColor(RGB(1, 2, 3), time.Now())
	if ch.Animating() {
		t.Error("Animating() = true with zero duration")
	}
	if ch.Color() != RGB(1, 2, 3) {
		t.Errorf("Color() = %v, want rgba(1,2,3,255)", ch.Color())
	}
}

func TestChannel_SetColorDropsTransition(t *testing.T) {
	ch := newChannel(0, time.Second, nil)
	now := time.Now()
	ch.AnimateToColor(RGB(255, 0, 0), now)
	ch.SetColor(RGB(0, 255, 0))

	if ch.Animating() {
		t.Error("Animating() = true after SetColor")
	}
	ch.Tick(now.Add(2 * time.Second))
	if ch.Color() != RGB(0, 255, 0) {
		t.Errorf("Color() = %v, want rgba(0,255,0,255)", ch.Color())
	}
}
