// Package gripper implements the rear claw that holds a captured block.
package gripper

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/flagbot-robotics/flagbot/components/motor"
)

// Claw positions and speed, in motor degrees.
const (
	defaultClosedPosition = -200
	defaultOpenPosition   = 0
	defaultSpeed          = 120
)

// Config describes the claw's arms.
type Config struct {
	ClosedPosition int     `json:"closed_position"`
	OpenPosition   int     `json:"open_position"`
	DegsPerSec     float64 `json:"degs_per_sec"`
}

// Claw closes a pair of arm motors around a block and opens them to release it.
type Claw struct {
	mu      sync.Mutex
	arms    []motor.Motor
	cfg     Config
	holding bool
	logger  golog.Logger
}

// NewClaw returns a claw driving the given arm motors. Zero config values take the defaults.
func NewClaw(cfg Config, logger golog.Logger, arms ...motor.Motor) (*Claw, error) {
	if len(arms) == 0 {
		return nil, errors.New("claw needs at least one arm motor")
	}
	if cfg.ClosedPosition == 0 && cfg.OpenPosition == 0 {
		cfg.ClosedPosition = defaultClosedPosition
		cfg.OpenPosition = defaultOpenPosition
	}
	if cfg.DegsPerSec == 0 {
		cfg.DegsPerSec = defaultSpeed
	}
	return &Claw{arms: arms, cfg: cfg, logger: logger}, nil
}

// Grab closes the arms and blocks until they stop. It does nothing while the claw holds a
// block.
func (c *Claw) Grab(ctx context.Context) error {
	if c.Holding() {
		c.logger.Debug("claw already closed")
		return nil
	}
	c.logger.Debug("closing claw")
	if err := c.moveArms(ctx, c.cfg.ClosedPosition); err != nil {
		return errors.Wrap(err, "claw failed to close")
	}
	c.mu.Lock()
	c.holding = true
	c.mu.Unlock()
	return nil
}

// Open opens the arms and blocks until they stop.
func (c *Claw) Open(ctx context.Context) error {
	c.logger.Debug("opening claw")
	if err := c.moveArms(ctx, c.cfg.OpenPosition); err != nil {
		return errors.Wrap(err, "claw failed to open")
	}
	c.mu.Lock()
	c.holding = false
	c.mu.Unlock()
	return nil
}

// Holding reports whether the last completed command closed the claw.
func (c *Claw) Holding() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holding
}

// Stop halts every arm.
func (c *Claw) Stop(ctx context.Context) error {
	var err error
	for _, arm := range c.arms {
		err = multierr.Combine(err, arm.Stop(ctx))
	}
	return err
}

// moveArms starts all but the last arm without blocking, then blocks on the last one.
func (c *Claw) moveArms(ctx context.Context, position int) error {
	for i, arm := range c.arms {
		block := i == len(c.arms)-1
		if err := motor.RotateTo(ctx, arm, position, c.cfg.DegsPerSec, block); err != nil {
			return multierr.Combine(err, c.Stop(ctx))
		}
	}
	return nil
}
