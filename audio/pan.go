package audio

import "math"

// PanGains returns left/right gains for a pan position in [-1, 1] using the
// constant-power (sin/cos) law. Center yields ~0.707 per side.
func PanGains(pan float64) (left, right float32) {
	if pan < -1 {
		pan = -1
	} else if pan > 1 {
		pan = 1
	}
	angle := (pan + 1) * math.Pi / 4
	return float32(math.Cos(angle)), float32(math.Sin(angle))
}
