// Package audio holds the small DSP kernel used by the render scheduler:
// gain and pan laws and buffer mixing. Everything here operates on
// caller-provided slices and never allocates.
package audio

import "math"

// MinDB is treated as -infinity; gains at or below it map to silence.
const MinDB = -200.0

// DBToLinear converts a decibel value to linear amplitude.
func DBToLinear(db float64) float64 {
	if db <= MinDB {
		return 0
	}
	return math.Pow(10.0, db/20.0)
}

// LinearToDB converts a linear amplitude to decibels.
func LinearToDB(linear float64) float64 {
	if linear <= 0 {
		return MinDB
	}
	return 20.0 * math.Log10(linear)
}

// ApplyGain scales a buffer in place.
func ApplyGain(buf []float32, gain float32) {
	if gain == 1 {
		return
	}
	for i := range buf {
		buf[i] *= gain
	}
}

// MixInto adds src into dst, scaled by gain. Slices must be equal length.
func MixInto(dst, src []float32, gain float32) {
	for i := range dst {
		dst[i] += src[i] * gain
	}
}

// Clear zeroes a buffer.
func Clear(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}
