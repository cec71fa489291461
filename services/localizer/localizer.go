// Package localizer establishes the robot's starting pose in its corner.
//
// The ultrasonic procedure spins in place and finds the walls by where the range readings jump,
// which fixes the heading; the distances to the two walls then fix x and y. The light
// procedure drives across the corner gridline intersection and solves for heading and offset
// from the order and spacing of the line crossings. Both block until the edges or crossings they
// wait for are seen; only cancelling ctx ends them early.
package localizer

import (
	"context"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/flagbot-robotics/flagbot/components/sensor"
	"github.com/flagbot-robotics/flagbot/spatialmath"
	"github.com/flagbot-robotics/flagbot/utils"
)

// Base is the drive the localizer moves with.
type Base interface {
	TurnTo(ctx context.Context, heading float64, block bool) error
	TravelTo(ctx context.Context, x, y float64) error
	SetWheelSpeeds(ctx context.Context, leftDegsPerSec, rightDegsPerSec float64) error
	GoForwardAtSpeed(ctx context.Context, degsPerSec float64) error
	Stop(ctx context.Context) error
}

// PoseEstimator is the odometry being initialized.
type PoseEstimator interface {
	Pose() spatialmath.Pose
	SetPose(p spatialmath.Pose, mask spatialmath.Mask)
}

// Edge selects which wall transition the ultrasonic procedure keys on.
type Edge int

// The ultrasonic variants.
const (
	// FallingEdge records where the readings drop as a wall comes into view.
	FallingEdge Edge = iota
	// RisingEdge records where the readings jump as a wall leaves view.
	RisingEdge
)

func (e Edge) String() string {
	if e == RisingEdge {
		return "rising"
	}
	return "falling"
}

// ParseEdge converts "falling" or "rising" into an Edge.
func ParseEdge(value string) (Edge, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "falling":
		return FallingEdge, nil
	case "rising":
		return RisingEdge, nil
	default:
		return FallingEdge, errors.Errorf("unknown edge %q", value)
	}
}

// Config holds the localization constants. Use DefaultConfig as the starting point; several
// fields are meaningful at zero.
type Config struct {
	Edge string `json:"edge"`

	// A reading under EdgeDistanceCM+NoiseMarginCM is a wall, over EdgeDistanceCM+3*NoiseMarginCM
	// is clear and under EdgeDistanceCM-NoiseMarginCM is deep into the wall.
	EdgeDistanceCM  float64       `json:"edge_distance_cm"`
	NoiseMarginCM   float64       `json:"noise_margin_cm"`
	DebounceSamples int           `json:"debounce_samples"`
	RotateSpeed     float64       `json:"rotate_degs_per_sec"`
	PingDelay       time.Duration `json:"ping_delay"`

	// Added to the mean of the two edge headings to get the heading that faces +X.
	AscendingOffsetDeg  float64 `json:"ascending_offset_deg"`
	DescendingOffsetDeg float64 `json:"descending_offset_deg"`

	WallXCM         float64 `json:"wall_x_cm"`
	WallYCM         float64 `json:"wall_y_cm"`
	RangeForwardCM  float64 `json:"range_forward_cm"`
	WallPingSamples int     `json:"wall_ping_samples"`

	LightSpeed            float64       `json:"light_degs_per_sec"`
	LightHalfSeparationCM float64       `json:"light_half_separation_cm"`
	LightForwardCM        float64       `json:"light_forward_cm"`
	FirstCrossingRatio    float64       `json:"first_crossing_ratio"`
	SecondCrossingRatio   float64       `json:"second_crossing_ratio"`
	AmbientSamples        int           `json:"ambient_samples"`
	AmbientDelay          time.Duration `json:"ambient_delay"`
	ApproachHeadingDeg    float64       `json:"approach_heading_deg"`
	PollInterval          time.Duration `json:"poll_interval"`
}

// DefaultConfig returns the tuned constants for a corner walled one tile behind the origin.
func DefaultConfig() Config {
	return Config{
		Edge:                  FallingEdge.String(),
		EdgeDistanceCM:        55,
		NoiseMarginCM:         8,
		DebounceSamples:       3,
		RotateSpeed:           100,
		PingDelay:             50 * time.Millisecond,
		AscendingOffsetDeg:    -45,
		DescendingOffsetDeg:   -225,
		WallXCM:               -30.48,
		WallYCM:               -30.48,
		WallPingSamples:       5,
		LightSpeed:            150,
		LightHalfSeparationCM: 7.3,
		FirstCrossingRatio:    0.9,
		SecondCrossingRatio:   0.85,
		AmbientSamples:        20,
		AmbientDelay:          10 * time.Millisecond,
		ApproachHeadingDeg:    45,
		PollInterval:          time.Millisecond,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if _, err := ParseEdge(cfg.Edge); err != nil {
		return errors.Wrapf(err, "%s.edge", path)
	}
	if cfg.NoiseMarginCM <= 0 || cfg.EdgeDistanceCM <= cfg.NoiseMarginCM {
		return errors.Errorf("%s: edge_distance_cm must exceed a positive noise_margin_cm", path)
	}
	if cfg.DebounceSamples < 1 {
		return errors.Errorf("%s: debounce_samples must be at least 1", path)
	}
	if cfg.RotateSpeed <= 0 || cfg.LightSpeed <= 0 {
		return errors.Errorf("%s: speeds must be positive", path)
	}
	if cfg.WallPingSamples < 1 || cfg.AmbientSamples < 1 {
		return errors.Errorf("%s: sample counts must be at least 1", path)
	}
	if cfg.LightHalfSeparationCM <= 0 {
		return errors.Errorf("%s: light_half_separation_cm must be positive", path)
	}
	if cfg.FirstCrossingRatio <= 0 || cfg.FirstCrossingRatio >= 1 ||
		cfg.SecondCrossingRatio <= 0 || cfg.SecondCrossingRatio >= 1 {
		return errors.Errorf("%s: crossing ratios must be in (0, 1)", path)
	}
	if cfg.PollInterval <= 0 {
		return errors.Errorf("%s: poll_interval must be positive", path)
	}
	return nil
}

// Localizer runs the localization procedures.
type Localizer struct {
	base        Base
	pose        PoseEstimator
	rangeSensor sensor.RangeSensor
	leftLight   sensor.ColorSensor
	rightLight  sensor.ColorSensor
	cfg         Config
	edge        Edge
	clk         clock.Clock
	logger      golog.Logger
}

// New returns a localizer. The range sensor must face forward; the two light sensors face the
// floor on either side of the robot.
func New(
	base Base,
	pose PoseEstimator,
	rangeSensor sensor.RangeSensor,
	leftLight, rightLight sensor.ColorSensor,
	cfg Config,
	clk clock.Clock,
	logger golog.Logger,
) (*Localizer, error) {
	if err := cfg.Validate("localization"); err != nil {
		return nil, err
	}
	edge, err := ParseEdge(cfg.Edge)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Localizer{
		base:        base,
		pose:        pose,
		rangeSensor: rangeSensor,
		leftLight:   leftLight,
		rightLight:  rightLight,
		cfg:         cfg,
		edge:        edge,
		clk:         clk,
		logger:      logger,
	}, nil
}

// Localize runs the ultrasonic procedure, moves to the middle of the corner tile facing the
// gridline intersection, and finishes with the light procedure. The robot ends on the
// intersection facing +X with its pose reset to the origin.
func (l *Localizer) Localize(ctx context.Context) error {
	if err := l.UltrasonicLocalize(ctx); err != nil {
		return errors.Wrap(err, "ultrasonic localization")
	}
	if err := l.base.TravelTo(ctx, l.cfg.WallXCM/2, l.cfg.WallYCM/2); err != nil {
		return err
	}
	if err := l.base.TurnTo(ctx, l.cfg.ApproachHeadingDeg, true); err != nil {
		return err
	}
	return errors.Wrap(l.LightLocalize(ctx), "light localization")
}

// averagePing is the mean of several pings taken a ping delay apart.
func (l *Localizer) averagePing(ctx context.Context, n int) (float64, error) {
	samples := make(stats.Float64Data, 0, n)
	for i := 0; i < n; i++ {
		d, err := l.ping(ctx)
		if err != nil {
			return 0, err
		}
		samples = append(samples, float64(d))
	}
	return samples.Mean()
}

// ping takes one reading and waits out the sensor's settling time.
func (l *Localizer) ping(ctx context.Context) (int, error) {
	d, err := l.rangeSensor.Ping(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "range sensor")
	}
	if !utils.SleepContext(ctx, l.clk, l.cfg.PingDelay) {
		return 0, ctx.Err()
	}
	return d, nil
}
