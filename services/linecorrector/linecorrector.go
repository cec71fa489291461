// Package linecorrector snaps the odometry estimate to floor gridlines as the robot drives over
// them.
//
// A reading below the light threshold is taken to mean the sensor is over a gridline. The
// coordinate along the axis of travel is then rounded to the nearest gridline. Nothing checks
// that the dark reading really was a gridline, so a dark spot on the floor produces a bad snap.
package linecorrector

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/flagbot-robotics/flagbot/components/sensor"
	"github.com/flagbot-robotics/flagbot/spatialmath"
	"github.com/flagbot-robotics/flagbot/utils"
)

const (
	defaultPeriod         = 10 * time.Millisecond
	defaultLightThreshold = 490
	defaultSnapLogWindow  = 250 * time.Millisecond
)

// PoseEstimator is the odometry being corrected.
type PoseEstimator interface {
	Pose() spatialmath.Pose
	SetPose(p spatialmath.Pose, mask spatialmath.Mask)
}

// TurnReporter reports in-place rotations, during which no correction happens.
type TurnReporter interface {
	IsTurning() bool
}

// Config holds the correction constants.
type Config struct {
	Period         time.Duration `json:"period"`
	LightThreshold int           `json:"light_threshold"`
	LineSpacingCM  float64       `json:"line_spacing_cm"`
	SensorOffsetCM float64       `json:"sensor_offset_cm"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.LineSpacingCM <= 0 {
		return errors.Errorf("%s: line_spacing_cm must be positive", path)
	}
	if cfg.LightThreshold < 0 {
		return errors.Errorf("%s: light_threshold must not be negative", path)
	}
	return nil
}

// Corrector watches a downward facing light sensor and snaps the pose.
type Corrector struct {
	light  sensor.ColorSensor
	pose   PoseEstimator
	turns  TurnReporter
	cfg    Config
	logger golog.Logger

	// logSnap holds the latest snap log until snaps pause for defaultSnapLogWindow.
	logSnap   func(func())
	snapLogMu sync.Mutex
	closed    bool

	originMu sync.Mutex
	origin   r2.Point

	mu      sync.Mutex
	workers utils.StoppableWorkers
}

// New returns a stopped corrector. Zero period and threshold take the defaults.
func New(light sensor.ColorSensor, pose PoseEstimator, turns TurnReporter, cfg Config, logger golog.Logger) (*Corrector, error) {
	if err := cfg.Validate("line_correction"); err != nil {
		return nil, err
	}
	if cfg.Period == 0 {
		cfg.Period = defaultPeriod
	}
	if cfg.LightThreshold == 0 {
		cfg.LightThreshold = defaultLightThreshold
	}
	return &Corrector{
		light:   light,
		pose:    pose,
		turns:   turns,
		cfg:     cfg,
		logger:  logger,
		logSnap: debounce.New(defaultSnapLogWindow),
	}, nil
}

// SetGridOrigin tells the corrector where a gridline intersection lies after the pose frame
// has been moved off the arena's own.
func (c *Corrector) SetGridOrigin(p r2.Point) {
	c.originMu.Lock()
	defer c.originMu.Unlock()
	c.origin = p
}

func (c *Corrector) gridOrigin() r2.Point {
	c.originMu.Lock()
	defer c.originMu.Unlock()
	return c.origin
}

// Start runs Step every period until Close.
func (c *Corrector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.workers != nil {
		return
	}
	c.snapLogMu.Lock()
	c.closed = false
	c.snapLogMu.Unlock()
	c.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		throttle := utils.ErrorThrottle{RemindEvery: int(10 * time.Second / c.cfg.Period)}
		for {
			_, err := c.Step(ctx)
			if ctx.Err() != nil {
				return
			}
			throttle.Observe(c.logger, "error reading line sensor", err)
			if !goutils.SelectContextOrWait(ctx, c.cfg.Period) {
				return
			}
		}
	})
}

// Close stops the background loop and drops any snap log still waiting to be written.
func (c *Corrector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.workers != nil {
		c.workers.Stop()
		c.workers = nil
	}
	c.logSnap(func() {})
	c.snapLogMu.Lock()
	c.closed = true
	c.snapLogMu.Unlock()
	return nil
}

// Step performs one correction cycle and reports whether the pose was snapped.
func (c *Corrector) Step(ctx context.Context) (bool, error) {
	if c.turns.IsTurning() {
		return false, nil
	}
	intensity, err := c.light.RawIntensity(ctx)
	if err != nil {
		return false, err
	}
	if intensity >= c.cfg.LightThreshold {
		return false, nil
	}

	pose := c.pose.Pose()
	origin := c.gridOrigin()
	var snapped spatialmath.Pose
	var mask spatialmath.Mask
	if spatialmath.NearestAxisIsX(pose.Theta) {
		snapped.X = SnapToGridline(pose.X, c.cfg.LineSpacingCM, origin.X+c.cfg.SensorOffsetCM)
		mask = spatialmath.MaskX
	} else {
		snapped.Y = SnapToGridline(pose.Y, c.cfg.LineSpacingCM, origin.Y+c.cfg.SensorOffsetCM)
		mask = spatialmath.MaskY
	}
	c.pose.SetPose(snapped, mask)

	c.logSnap(func() {
		c.snapLogMu.Lock()
		defer c.snapLogMu.Unlock()
		if c.closed {
			return
		}
		c.logger.Debugw("snapped to gridline", "before", pose.String(), "intensity", intensity)
	})
	return true, nil
}

// SnapToGridline rounds coord to the nearest gridline position, where gridlines repeat every
// spacing and the sensor sits offset ahead of the point being tracked.
func SnapToGridline(coord, spacing, offset float64) float64 {
	return math.Round((coord-offset)/spacing)*spacing + offset
}
