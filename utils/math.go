package utils

import (
	"math"
)

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// AngleDiffDeg returns the closest difference from the two given
// angles. The arguments are commutative and the result is in [0, 180].
func AngleDiffDeg(a1, a2 float64) float64 {
	return float64(180) - math.Abs(math.Abs(ModAngDeg(a1)-ModAngDeg(a2))-float64(180))
}

// ModAngDeg wraps an angle into [0, 360).
func ModAngDeg(ang float64) float64 {
	return math.Mod(math.Mod(ang, 360)+360, 360)
}

// MinimalAngleDeg folds an angular delta into (-180, 180] so that a rotation by the result
// reaches the same heading the short way around.
func MinimalAngleDeg(delta float64) float64 {
	d := ModAngDeg(delta)
	if d > 180 {
		d -= 360
	}
	return d
}

// MidAngleDeg returns the heading halfway between a and b along the shorter arc.
func MidAngleDeg(a, b float64) float64 {
	return ModAngDeg(a + MinimalAngleDeg(b-a)/2)
}
