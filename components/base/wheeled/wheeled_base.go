// Package wheeled implements the two wheeled differential drive and its motion primitives.
package wheeled

import (
	"context"
	"math"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"github.com/flagbot-robotics/flagbot/components/motor"
	"github.com/flagbot-robotics/flagbot/operation"
	"github.com/flagbot-robotics/flagbot/spatialmath"
	"github.com/flagbot-robotics/flagbot/utils"
)

const (
	defaultTravelSpeed      = 200
	defaultTurnSpeed        = 160
	defaultHeadingTolerance = 5
	defaultHeadingRetries   = 10

	// shorter moves are dropped.
	minTravelCM = 0.05
)

// A PoseEstimator provides the pose the base steers by. Tick refreshes it right after a move
// completes.
type PoseEstimator interface {
	Pose() spatialmath.Pose
	Tick(ctx context.Context) error
}

// Config describes the drive geometry and speeds. Speeds are wheel degrees per second.
type Config struct {
	WheelRadiusCM       float64 `json:"wheel_radius_cm"`
	TrackWidthCM        float64 `json:"track_width_cm"`
	TravelSpeed         float64 `json:"travel_degs_per_sec"`
	TurnSpeed           float64 `json:"turn_degs_per_sec"`
	HeadingToleranceDeg float64 `json:"heading_tolerance_deg"`
	MaxHeadingRetries   int     `json:"max_heading_retries"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.WheelRadiusCM <= 0 {
		return errors.Errorf("%s: wheel_radius_cm must be positive", path)
	}
	if cfg.TrackWidthCM <= 0 {
		return errors.Errorf("%s: track_width_cm must be positive", path)
	}
	if cfg.TravelSpeed < 0 || cfg.TurnSpeed < 0 {
		return errors.Errorf("%s: speeds must not be negative", path)
	}
	if cfg.HeadingToleranceDeg < 0 || cfg.HeadingToleranceDeg >= 180 {
		return errors.Errorf("%s: heading_tolerance_deg must be in [0, 180)", path)
	}
	if cfg.MaxHeadingRetries < 0 {
		return errors.Errorf("%s: max_heading_retries must not be negative", path)
	}
	return nil
}

// Base drives the robot with open loop wheel rotations. The pose is only used to decide the
// next command, never to correct one in flight.
type Base struct {
	left, right motor.Motor
	pose        PoseEstimator
	cfg         Config
	logger      golog.Logger

	opMgr                   operation.SingleOperationManager
	turning                 atomic.Bool
	activeBackgroundWorkers sync.WaitGroup
}

// New returns a base driving left and right. Zero speeds, tolerance and retries take the
// defaults.
func New(left, right motor.Motor, pose PoseEstimator, cfg Config, logger golog.Logger) (*Base, error) {
	if err := cfg.Validate("base"); err != nil {
		return nil, err
	}
	if cfg.TravelSpeed == 0 {
		cfg.TravelSpeed = defaultTravelSpeed
	}
	if cfg.TurnSpeed == 0 {
		cfg.TurnSpeed = defaultTurnSpeed
	}
	if cfg.HeadingToleranceDeg == 0 {
		cfg.HeadingToleranceDeg = defaultHeadingTolerance
	}
	if cfg.MaxHeadingRetries == 0 {
		cfg.MaxHeadingRetries = defaultHeadingRetries
	}
	return &Base{left: left, right: right, pose: pose, cfg: cfg, logger: logger}, nil
}

// TurnTo rotates in place to the absolute heading, the short way around. Errors within the
// heading tolerance are ignored. A non-blocking turn keeps IsTurning set until it completes.
func (b *Base) TurnTo(ctx context.Context, heading float64, block bool) error {
	current := b.pose.Pose().Theta
	delta := utils.MinimalAngleDeg(heading - current)
	b.logger.Debugf("received a TurnTo with heading:%.2f from:%.2f delta:%.2f", heading, current, delta)
	if math.Abs(delta) <= b.cfg.HeadingToleranceDeg {
		return nil
	}
	return b.spin(ctx, delta, block)
}

// Rotate spins in place by angleDeg relative to the current heading. Positive is
// counter-clockwise.
func (b *Base) Rotate(ctx context.Context, angleDeg float64) error {
	b.logger.Debugf("received a Rotate with angleDeg:%.2f", angleDeg)
	return b.spin(ctx, angleDeg, true)
}

func (b *Base) spin(ctx context.Context, angleDeg float64, block bool) error {
	wheelDeg := b.AngleToWheelDeg(angleDeg)
	b.turning.Store(true)
	if block {
		defer b.turning.Store(false)
		return b.runAll(ctx, -wheelDeg, wheelDeg, b.cfg.TurnSpeed)
	}

	b.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		defer b.turning.Store(false)
		if err := b.runAll(ctx, -wheelDeg, wheelDeg, b.cfg.TurnSpeed); err != nil && ctx.Err() == nil {
			b.logger.Warnw("background turn failed", "error", err)
		}
	}, b.activeBackgroundWorkers.Done)
	return nil
}

// TravelTo turns toward (x, y), retrying while the heading error exceeds the tolerance, then
// drives the straight line distance computed before the turn. Drift during the drive is not
// corrected.
func (b *Base) TravelTo(ctx context.Context, x, y float64) error {
	ctx, done := b.opMgr.New(ctx)
	defer done()

	pose := b.pose.Pose()
	distance := pose.DistanceTo(x, y)
	b.logger.Debugf("received a TravelTo with x:%.2f, y:%.2f from %s", x, y, pose)
	if distance < minTravelCM {
		return nil
	}

	bearing := pose.BearingTo(x, y)
	for i := 0; i < b.cfg.MaxHeadingRetries && utils.AngleDiffDeg(pose.Theta, bearing) > b.cfg.HeadingToleranceDeg; i++ {
		if err := b.TurnTo(ctx, bearing, true); err != nil {
			return err
		}
		pose = b.pose.Pose()
	}
	return b.MoveStraight(ctx, distance, 0)
}

// MoveStraight drives distanceCM along the current heading, backwards when negative. A zero
// speed uses the travel speed.
func (b *Base) MoveStraight(ctx context.Context, distanceCM, degsPerSec float64) error {
	b.logger.Debugf("received a MoveStraight with distanceCM:%.2f, degsPerSec:%.2f", distanceCM, degsPerSec)
	if math.Abs(distanceCM) < minTravelCM {
		return nil
	}
	if degsPerSec == 0 {
		degsPerSec = b.cfg.TravelSpeed
	}
	wheelDeg := b.DistanceToWheelDeg(distanceCM)
	return b.runAll(ctx, wheelDeg, wheelDeg, degsPerSec)
}

// runAll rotates both wheels in parallel and blocks until both finish, then refreshes the
// pose. When superseded by a newer command it leaves the motors to that command.
func (b *Base) runAll(ctx context.Context, leftDeg, rightDeg, degsPerSec float64) error {
	ctx, done := b.opMgr.New(ctx)
	defer done()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.left.RotateBy(gctx, leftDeg, degsPerSec, true) })
	g.Go(func() error { return b.right.RotateBy(gctx, rightDeg, degsPerSec, true) })
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return multierr.Combine(err, b.Stop(ctx))
	}
	return b.pose.Tick(ctx)
}

// SetWheelSpeeds runs each wheel continuously at a signed speed, preempting any blocking move.
func (b *Base) SetWheelSpeeds(ctx context.Context, leftDegsPerSec, rightDegsPerSec float64) error {
	b.opMgr.CancelRunning(ctx)
	var err error
	err = multierr.Combine(err, b.left.SetSpeed(ctx, leftDegsPerSec))
	err = multierr.Combine(err, b.right.SetSpeed(ctx, rightDegsPerSec))
	if err != nil {
		return multierr.Combine(err, b.Stop(ctx))
	}
	return nil
}

// GoForwardAtSpeed runs both wheels at degsPerSec. Negative drives backwards.
func (b *Base) GoForwardAtSpeed(ctx context.Context, degsPerSec float64) error {
	return b.SetWheelSpeeds(ctx, degsPerSec, degsPerSec)
}

// Stop halts both wheels.
func (b *Base) Stop(ctx context.Context) error {
	b.opMgr.CancelRunning(ctx)
	var err error
	err = multierr.Combine(err, b.left.Stop(ctx))
	err = multierr.Combine(err, b.right.Stop(ctx))
	return err
}

// IsTurning reports whether an in-place rotation is in progress.
func (b *Base) IsTurning() bool {
	return b.turning.Load()
}

// Close waits for background turns to finish.
func (b *Base) Close(ctx context.Context) error {
	err := b.Stop(ctx)
	b.activeBackgroundWorkers.Wait()
	return err
}

// DistanceToWheelDeg is the wheel rotation that covers distanceCM.
func (b *Base) DistanceToWheelDeg(distanceCM float64) float64 {
	return 180 * distanceCM / (math.Pi * b.cfg.WheelRadiusCM)
}

// AngleToWheelDeg is the rotation of each wheel, in opposite directions, that spins the robot
// by angleDeg.
func (b *Base) AngleToWheelDeg(angleDeg float64) float64 {
	return b.DistanceToWheelDeg(math.Pi * b.cfg.TrackWidthCM * angleDeg / 360)
}
