// Package sensor defines the range and color sensors the robot reads.
package sensor

import (
	"context"
)

// NoEcho is the range reported when nothing is within reach.
const NoEcho = 255

// A RangeSensor is an ultrasonic distance sensor.
type RangeSensor interface {
	// Ping triggers a single measurement and returns the distance in whole centimeters, or
	// NoEcho.
	Ping(ctx context.Context) (int, error)

	// EnableContinuous switches the sensor to free running measurements.
	EnableContinuous(ctx context.Context) error
}

// A ColorSensor reads reflected light, either as a single intensity or as raw color
// components.
type ColorSensor interface {
	// RawIntensity is the uncalibrated reflected light level.
	RawIntensity(ctx context.Context) (int, error)

	// ColorComponents are the raw red, green and blue readings.
	ColorComponents(ctx context.Context) (r, g, b int, err error)

	// SetIlluminator turns the sensor's own light source on or off.
	SetIlluminator(ctx context.Context, on bool) error
}
