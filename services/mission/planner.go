// Package mission runs a capture: find a way to the flag zone, sweep it for the flag, carry the
// flag to the delivery tile.
//
// The path finder is a greedy wall follower that prefers moving up and right, with a stack of
// checkpoints to back out of dead ends. It can loop between two blocked directions forever
// once the stack is empty; cancelling ctx is the only way out.
package mission

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/flagbot-robotics/flagbot/services/detection"
	"github.com/flagbot-robotics/flagbot/spatialmath"
	"github.com/flagbot-robotics/flagbot/utils"
)

// Base is the drive the planner moves with.
type Base interface {
	TurnTo(ctx context.Context, heading float64, block bool) error
	TravelTo(ctx context.Context, x, y float64) error
	MoveStraight(ctx context.Context, distanceCM, degsPerSec float64) error
	GoForwardAtSpeed(ctx context.Context, degsPerSec float64) error
	Stop(ctx context.Context) error
}

// PoseEstimator is the odometry the planner steers by and reframes.
type PoseEstimator interface {
	Pose() spatialmath.Pose
	SetPose(p spatialmath.Pose, mask spatialmath.Mask)
}

// ObstacleFilter reports walls ahead while the robot drives.
type ObstacleFilter interface {
	Start()
	Stop()
	IsWall() bool
	SetIsWall(wall bool)
	ReinitializeWindows()
}

// Detector identifies and ranges objects in front of the robot.
type Detector interface {
	ClassifyObject(ctx context.Context) (detection.BlockClass, error)
	DistanceLeftOnce(ctx context.Context) (int, error)
	DistanceRightOnce(ctx context.Context) (int, error)
}

// Gripper holds the flag.
type Gripper interface {
	Grab(ctx context.Context) error
	Open(ctx context.Context) error
}

// GridAligner is told where the gridlines are when the pose frame moves.
type GridAligner interface {
	SetGridOrigin(p r2.Point)
}

// Phase is the mission stage in progress.
type Phase int

// The mission phases, in order.
const (
	PhaseIdle Phase = iota
	PhaseNavigateToFlagZone
	PhaseSweepSearch
	PhaseDeliver
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseNavigateToFlagZone:
		return "navigate to flag zone"
	case PhaseSweepSearch:
		return "sweep search"
	case PhaseDeliver:
		return "deliver"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Config holds the mission constants. Distances are centimeters, angles degrees and speeds
// wheel degrees per second.
type Config struct {
	TileLengthCM   float64 `json:"tile_length_cm"`
	GridSize       float64 `json:"grid_size"`
	AvoidPaddingCM float64 `json:"avoid_padding_cm"`
	InZoneOffsetCM float64 `json:"in_zone_offset_cm"`

	DriveSpeed          float64       `json:"drive_degs_per_sec"`
	PollInterval        time.Duration `json:"poll_interval"`
	SettleDelay         time.Duration `json:"settle_delay"`
	AvoidBackoff        time.Duration `json:"avoid_backoff"`
	CheckpointSpacingCM float64       `json:"checkpoint_spacing_cm"`
	BacktrackMinCM      float64       `json:"backtrack_min_cm"`
	ArriveRadiusCM      float64       `json:"arrive_radius_cm"`
	DetourCM            float64       `json:"detour_cm"`

	SweepStepDeg      float64       `json:"sweep_step_deg"`
	OverRotateDeg     float64       `json:"over_rotate_deg"`
	CloseRangeCM      int           `json:"close_range_cm"`
	TurnClearanceCM   int           `json:"turn_clearance_cm"`
	MaxApproachCM     float64       `json:"max_approach_cm"`
	LateralStepCM     float64       `json:"lateral_step_cm"`
	ApproachSpeed     float64       `json:"approach_degs_per_sec"`
	CoastDelay        time.Duration `json:"coast_delay"`
	BackoffDelay      time.Duration `json:"backoff_delay"`
	CaptureReverseCM  float64       `json:"capture_reverse_cm"`
	RelocateReverseCM float64       `json:"relocate_reverse_cm"`
	RelocateOffsetCM  float64       `json:"relocate_offset_cm"`

	DeliveryHeadingDeg float64 `json:"delivery_heading_deg"`
}

// DefaultConfig returns the tuned mission constants.
func DefaultConfig() Config {
	return Config{
		TileLengthCM:        TileLengthCM,
		GridSize:            DefaultGridSize,
		AvoidPaddingCM:      5,
		InZoneOffsetCM:      7,
		DriveSpeed:          200,
		PollInterval:        5 * time.Millisecond,
		SettleDelay:         time.Second,
		AvoidBackoff:        time.Second,
		CheckpointSpacingCM: 15,
		BacktrackMinCM:      20,
		ArriveRadiusCM:      3,
		DetourCM:            30,
		SweepStepDeg:        7,
		OverRotateDeg:       12,
		CloseRangeCM:        7,
		TurnClearanceCM:     9,
		MaxApproachCM:       40,
		LateralStepCM:       20,
		ApproachSpeed:       150,
		CoastDelay:          500 * time.Millisecond,
		BackoffDelay:        500 * time.Millisecond,
		CaptureReverseCM:    20,
		RelocateReverseCM:   15,
		RelocateOffsetCM:    10,
		DeliveryHeadingDeg:  225,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.TileLengthCM <= 0 || cfg.GridSize <= 0 {
		return errors.Errorf("%s: tile_length_cm and grid_size must be positive", path)
	}
	if cfg.DriveSpeed <= 0 || cfg.ApproachSpeed <= 0 {
		return errors.Errorf("%s: speeds must be positive", path)
	}
	if cfg.PollInterval <= 0 {
		return errors.Errorf("%s: poll_interval must be positive", path)
	}
	if cfg.SweepStepDeg <= 0 {
		return errors.Errorf("%s: sweep_step_deg must be positive", path)
	}
	if cfg.LateralStepCM <= 0 {
		return errors.Errorf("%s: lateral_step_cm must be positive", path)
	}
	if cfg.ArriveRadiusCM <= 0 || cfg.DetourCM <= 0 || cfg.MaxApproachCM <= 0 {
		return errors.Errorf("%s: arrive, detour and approach distances must be positive", path)
	}
	return nil
}

// geometry is the mission's layout in the current pose frame. Delivery moves the frame, so it
// rewrites drop and avoid.
type geometry struct {
	flag        Zone
	drop        r2.Point
	avoid       Zone
	maxObjectCM float64
}

// sweepState is where the lateral scan stands between angular sweeps.
type sweepState struct {
	offset   float64
	reversed bool
}

// Planner runs missions. One mission runs at a time.
type Planner struct {
	base     Base
	pose     PoseEstimator
	filter   ObstacleFilter
	detector Detector
	gripper  Gripper
	grid     GridAligner
	cfg      Config
	clk      clock.Clock
	logger   golog.Logger

	runMu sync.Mutex

	mu    sync.Mutex
	phase Phase

	geo   geometry
	sweep sweepState
}

// New returns a planner. grid may be nil when nothing snaps to gridlines.
func New(
	base Base,
	pose PoseEstimator,
	filter ObstacleFilter,
	detector Detector,
	gripper Gripper,
	grid GridAligner,
	cfg Config,
	clk clock.Clock,
	logger golog.Logger,
) (*Planner, error) {
	if err := cfg.Validate("mission"); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Planner{
		base:     base,
		pose:     pose,
		filter:   filter,
		detector: detector,
		gripper:  gripper,
		grid:     grid,
		cfg:      cfg,
		clk:      clk,
		logger:   logger,
	}, nil
}

// Phase is the stage the current or last mission reached.
func (p *Planner) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

func (p *Planner) setPhase(phase Phase) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
	p.logger.Infow("mission phase", "phase", phase.String(), "pose", p.pose.Pose().String())
}

// Run carries out a whole mission from a localized robot at the origin of its corner.
func (p *Planner) Run(ctx context.Context, params Params) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if err := params.Validate(); err != nil {
		return err
	}
	params, err := params.InCornerFrame(p.cfg.GridSize)
	if err != nil {
		return err
	}
	p.geo = p.layout(params)
	p.sweep = sweepState{}
	p.logger.Infow("mission start",
		"flag_zone", p.geo.flag.Rect,
		"drop", p.geo.drop,
		"avoid", p.geo.avoid.Rect,
		"target", params.TargetColor.String(),
	)

	p.setPhase(PhaseNavigateToFlagZone)
	entry := p.geo.flag.Lo().Add(r2.Point{X: p.cfg.InZoneOffsetCM, Y: p.cfg.InZoneOffsetCM})
	p.filter.Start()
	err = p.PathTo(ctx, entry, p.geo.avoid)
	p.filter.Stop()
	if err != nil {
		return errors.Wrap(err, "navigating to the flag zone")
	}

	p.setPhase(PhaseSweepSearch)
	if err := p.SearchForFlag(ctx, params.TargetColor); err != nil {
		return errors.Wrap(err, "searching for the flag")
	}

	p.setPhase(PhaseDeliver)
	if err := p.Deliver(ctx); err != nil {
		return errors.Wrap(err, "delivering the flag")
	}
	p.setPhase(PhaseDone)
	return nil
}

// layout converts the tile parameters into centimeters.
func (p *Planner) layout(params Params) geometry {
	tile := p.cfg.TileLengthCM
	flagTiles := params.FlagUpperRight.Y - params.FlagLowerLeft.Y
	return geometry{
		flag:  ZoneFromTiles(params.FlagLowerLeft, params.FlagUpperRight, tile, 0),
		drop:  TileZone(params.Delivery, tile, 0).Center(),
		avoid: TileZone(params.Avoid, tile, p.cfg.AvoidPaddingCM),
		// an object any further than this from the sweep origin is outside the zone
		maxObjectCM: flagTiles / 2 * tile,
	}
}

// position is the current pose as a point.
func (p *Planner) position() r2.Point {
	return p.pose.Pose().Point()
}

// sleep waits d unless ctx ends first.
func (p *Planner) sleep(ctx context.Context, d time.Duration) error {
	if !utils.SleepContext(ctx, p.clk, d) {
		return ctx.Err()
	}
	return nil
}
