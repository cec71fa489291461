package arena

import (
	"context"
	"math"

	"github.com/flagbot-robotics/flagbot/components/motor"
)

// Motor is a simulated regulated motor. Its shaft advances with world time.
type Motor struct {
	world *World
	name  string

	// guarded by world.mu
	tacho  float64
	speed  float64
	target *float64
	done   chan struct{}
}

var _ motor.Motor = (*Motor)(nil)

func newMotor(w *World, name string) *Motor {
	return &Motor{world: w, name: name}
}

// SetSpeed runs the motor continuously.
func (m *Motor) SetSpeed(ctx context.Context, degsPerSec float64) error {
	m.world.mu.Lock()
	defer m.world.mu.Unlock()
	m.finishInLock()
	m.speed = degsPerSec
	return nil
}

// RotateBy moves the shaft by degrees.
func (m *Motor) RotateBy(ctx context.Context, degrees, degsPerSec float64, block bool) error {
	if math.Abs(degsPerSec) < 1e-6 {
		return motor.NewZeroSpeedError()
	}
	m.world.mu.Lock()
	m.finishInLock()
	if degrees == 0 {
		m.speed = 0
		m.world.mu.Unlock()
		return nil
	}
	target := m.tacho + degrees
	m.target = &target
	m.speed = math.Copysign(math.Abs(degsPerSec), degrees)
	done := make(chan struct{})
	m.done = done
	m.world.mu.Unlock()

	if !block {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Stop halts the shaft.
func (m *Motor) Stop(ctx context.Context) error {
	m.world.mu.Lock()
	defer m.world.mu.Unlock()
	m.finishInLock()
	m.speed = 0
	return nil
}

// TachoCount is the rounded shaft position.
func (m *Motor) TachoCount(ctx context.Context) (int, error) {
	m.world.mu.Lock()
	defer m.world.mu.Unlock()
	return int(math.Round(m.tacho)), nil
}

// finishInLock releases anyone blocked on the current rotation.
func (m *Motor) finishInLock() {
	m.target = nil
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
}

// advanceInLock moves the shaft by dt seconds and returns how far it turned.
func (m *Motor) advanceInLock(dt float64) float64 {
	if m.speed == 0 {
		return 0
	}
	delta := m.speed * dt
	if m.target != nil {
		remaining := *m.target - m.tacho
		if math.Abs(delta) >= math.Abs(remaining) {
			m.tacho = *m.target
			m.speed = 0
			m.finishInLock()
			return remaining
		}
	}
	m.tacho += delta
	return delta
}
