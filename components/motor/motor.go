// Package motor defines the regulated, tachometer equipped motors that drive the wheels and
// the grabber arms.
package motor

import (
	"context"

	"github.com/pkg/errors"
)

// A Motor is a speed regulated motor with a cumulative tachometer.
type Motor interface {
	// SetSpeed runs the motor continuously at degsPerSec. The sign selects the direction.
	// It preempts any rotation in progress and returns immediately.
	SetSpeed(ctx context.Context, degsPerSec float64) error

	// RotateBy turns the motor shaft by degrees at the magnitude of degsPerSec. If block is
	// true it returns once the rotation is complete.
	RotateBy(ctx context.Context, degrees, degsPerSec float64, block bool) error

	// Stop halts the motor and cancels any rotation in progress.
	Stop(ctx context.Context) error

	// TachoCount is the cumulative shaft rotation in degrees.
	TachoCount(ctx context.Context) (int, error)
}

// RotateTo turns m until its tachometer reads position.
func RotateTo(ctx context.Context, m Motor, position int, degsPerSec float64, block bool) error {
	current, err := m.TachoCount(ctx)
	if err != nil {
		return err
	}
	if current == position {
		return nil
	}
	return m.RotateBy(ctx, float64(position-current), degsPerSec, block)
}

// NewZeroSpeedError returns an error representing a request to rotate a motor at
// zero speed.
func NewZeroSpeedError() error {
	return errors.New("cannot rotate motor at a speed that is nearly 0")
}
