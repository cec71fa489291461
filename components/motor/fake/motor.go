// Package fake implements a fake motor whose rotations complete instantly.
package fake

import (
	"context"
	"math"
	"sync"

	"github.com/edaniels/golog"

	"github.com/flagbot-robotics/flagbot/components/motor"
)

// Motor is a fake motor that keeps a tachometer and a history of its commands.
type Motor struct {
	mu        sync.Mutex
	Name      string
	Logger    golog.Logger
	tacho     float64
	speed     float64
	rotations []float64
	err       error
}

var _ motor.Motor = (*Motor)(nil)

// NewMotor returns a stopped motor at tacho zero.
func NewMotor(name string, logger golog.Logger) *Motor {
	return &Motor{Name: name, Logger: logger}
}

// SetSpeed records the commanded speed.
func (m *Motor) SetSpeed(ctx context.Context, degsPerSec float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.speed = degsPerSec
	return nil
}

// RotateBy advances the tachometer immediately, regardless of block.
func (m *Motor) RotateBy(ctx context.Context, degrees, degsPerSec float64, block bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if math.Abs(degsPerSec) < 0.0001 {
		return motor.NewZeroSpeedError()
	}
	m.speed = 0
	m.tacho += degrees
	m.rotations = append(m.rotations, degrees)
	m.Logger.Debugf("motor %s rotated by %.2f", m.Name, degrees)
	return nil
}

// Stop zeroes the speed.
func (m *Motor) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speed = 0
	return m.err
}

// TachoCount returns the rounded tachometer.
func (m *Motor) TachoCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return int(math.Round(m.tacho)), nil
}

// Speed is the last commanded continuous speed.
func (m *Motor) Speed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}

// Rotations returns every RotateBy amount so far.
func (m *Motor) Rotations() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.rotations...)
}

// SetTacho overwrites the tachometer.
func (m *Motor) SetTacho(tacho float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tacho = tacho
}

// SetError makes every later call fail with err. A nil err clears it.
func (m *Motor) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
