// Package odometer integrates wheel tachometer readings into a dead-reckoned pose.
package odometer

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/flagbot-robotics/flagbot/spatialmath"
	"github.com/flagbot-robotics/flagbot/utils"
)

// DefaultPeriod is how often the background loop samples the tachometers.
const DefaultPeriod = 25 * time.Millisecond

// A Tachometer reports cumulative wheel rotation in degrees.
type Tachometer interface {
	TachoCount(ctx context.Context) (int, error)
}

// Config holds the drive geometry.
type Config struct {
	WheelRadiusCM float64       `json:"wheel_radius_cm"`
	TrackWidthCM  float64       `json:"track_width_cm"`
	Period        time.Duration `json:"period"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.WheelRadiusCM <= 0 {
		return errors.Errorf("%s: wheel_radius_cm must be positive", path)
	}
	if cfg.TrackWidthCM <= 0 {
		return errors.Errorf("%s: track_width_cm must be positive", path)
	}
	if cfg.Period < 0 {
		return errors.Errorf("%s: period must not be negative", path)
	}
	return nil
}

// Odometer is a dead-reckoning pose estimator. Pose reads and writes are atomic with respect
// to a tick. Error accumulates without bound unless something external corrects it.
type Odometer struct {
	left, right Tachometer
	cfg         Config
	clk         clock.Clock
	logger      golog.Logger

	tickMu sync.Mutex

	mu        sync.Mutex
	pose      spatialmath.Pose
	lastLeft  int
	lastRight int
	primed    bool

	workersMu sync.Mutex
	workers   utils.StoppableWorkers
}

// New returns an odometer at the origin facing heading 0. The first tick only records the
// tachometer baseline.
func New(left, right Tachometer, cfg Config, clk clock.Clock, logger golog.Logger) (*Odometer, error) {
	if err := cfg.Validate("odometer"); err != nil {
		return nil, err
	}
	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Odometer{left: left, right: right, cfg: cfg, clk: clk, logger: logger}, nil
}

// Start runs Tick every period in the background until Close.
func (o *Odometer) Start() {
	o.workersMu.Lock()
	defer o.workersMu.Unlock()
	if o.workers != nil {
		return
	}
	o.workers = utils.NewStoppableWorkers(o.run)
}

func (o *Odometer) run(ctx context.Context) {
	ticker := o.clk.Ticker(o.cfg.Period)
	defer ticker.Stop()
	throttle := utils.ErrorThrottle{RemindEvery: int(10 * time.Second / o.cfg.Period)}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		err := o.Tick(ctx)
		if ctx.Err() != nil {
			return
		}
		throttle.Observe(o.logger, "error reading tachometers", err)
	}
}

// Close stops the background loop.
func (o *Odometer) Close() error {
	o.workersMu.Lock()
	defer o.workersMu.Unlock()
	if o.workers != nil {
		o.workers.Stop()
		o.workers = nil
	}
	return nil
}

// Tick samples both tachometers and integrates the change since the previous tick. It is safe
// to call while the background loop runs, for instance to refresh the pose right after a move.
func (o *Odometer) Tick(ctx context.Context) error {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	left, err := o.left.TachoCount(ctx)
	if err != nil {
		return errors.Wrap(err, "left tachometer")
	}
	right, err := o.right.TachoCount(ctx)
	if err != nil {
		return errors.Wrap(err, "right tachometer")
	}
	o.Update(left, right)
	return nil
}

// Update integrates cumulative tachometer readings: the heading changes first, then the
// displacement is applied along the new heading.
func (o *Odometer) Update(leftTacho, rightTacho int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.primed {
		o.lastLeft, o.lastRight = leftTacho, rightTacho
		o.primed = true
		return
	}

	dLeft := float64(leftTacho - o.lastLeft)
	dRight := float64(rightTacho - o.lastRight)
	o.lastLeft, o.lastRight = leftTacho, rightTacho
	if dLeft == 0 && dRight == 0 {
		return
	}

	r := o.cfg.WheelRadiusCM
	displacement := (dLeft*r + dRight*r) * math.Pi / 360
	dTheta := (dRight*r - dLeft*r) / o.cfg.TrackWidthCM

	o.pose.Theta = utils.ModAngDeg(o.pose.Theta + dTheta)
	rad := utils.DegToRad(o.pose.Theta)
	o.pose.X += displacement * math.Cos(rad)
	o.pose.Y += displacement * math.Sin(rad)
}

// Reset puts the estimate back at the origin and makes the next tick record a new tachometer
// baseline.
func (o *Odometer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pose = spatialmath.Pose{}
	o.primed = false
}

// Pose returns the current estimate.
func (o *Odometer) Pose() spatialmath.Pose {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pose
}

// SetPose overwrites the components of the estimate selected by mask.
func (o *Odometer) SetPose(p spatialmath.Pose, mask spatialmath.Mask) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pose = o.pose.Apply(p, mask)
	o.logger.Debugw("pose set", "pose", o.pose.String(), "mask", mask)
}
