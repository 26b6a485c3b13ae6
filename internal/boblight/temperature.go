package boblight

// Color temperature range in mired (1e6 / kelvin). 153 is roughly 6500K,
// 500 is 2000K.
const (
	MinMired = 153
	MaxMired = 500
)

var (
	coolWhite = RGB(201, 226, 255)
	warmWhite = RGB(255, 147, 41)
)

// TemperatureToColor maps a mired color temperature to an opaque RGB
// approximation by interpolating linearly between a cool and a warm white.
// Values outside [MinMired, MaxMired] are clamped.
func TemperatureToColor(mired int) Color {
	if mired < MinMired {
		mired = MinMired
	}
	if mired > MaxMired {
		mired = MaxMired
	}
	t := float64(mired-MinMired) / float64(MaxMired-MinMired)
	return coolWhite.Lerp(warmWhite, t)
}
