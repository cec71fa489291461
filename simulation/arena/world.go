// Package arena simulates the playing field: a walled square floor with gridlines, colored
// blocks and one differential drive robot whose motors and sensors follow the simulated
// physics.
package arena

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/flagbot-robotics/flagbot/spatialmath"
	"github.com/flagbot-robotics/flagbot/utils"
)

const (
	defaultStep        = time.Millisecond
	maxStep            = 10 * time.Millisecond
	clawClosedAboveDeg = 100
)

// Mount places a sensor on the robot: X is forward of the wheel axle center, Y is to the
// left, Z is the yaw offset in degrees from the robot's heading.
type Mount = r3.Vector

// Config describes the arena and the robot's geometry.
type Config struct {
	TileCM        float64 `json:"tile_cm"`
	Tiles         int     `json:"tiles"`
	LineWidthCM   float64 `json:"line_width_cm"`
	WheelRadiusCM float64 `json:"wheel_radius_cm"`
	TrackWidthCM  float64 `json:"track_width_cm"`

	LeftRange        Mount   `json:"left_range"`
	RightRange       Mount   `json:"right_range"`
	BeamHalfAngleDeg float64 `json:"beam_half_angle_deg"`

	ColorSensor  Mount   `json:"color_sensor"`
	ColorRangeCM float64 `json:"color_range_cm"`

	LeftFloor  Mount `json:"left_floor"`
	RightFloor Mount `json:"right_floor"`
	LineFloor  Mount `json:"line_floor"`
	FloorLevel int   `json:"floor_level"`
	LineLevel  int   `json:"line_level"`

	GrabRadiusCM float64       `json:"grab_radius_cm"`
	Step         time.Duration `json:"step"`
}

// DefaultConfig is a 10 tile field, walled one tile outside the outermost gridlines. The range
// sensors sit over the axle center and the line sensor just left of it.
func DefaultConfig() Config {
	return Config{
		TileCM:           30.48,
		Tiles:            10,
		LineWidthCM:      0.5,
		WheelRadiusCM:    2.1,
		TrackWidthCM:     17.25,
		BeamHalfAngleDeg: 10,
		ColorSensor:      Mount{X: 4},
		ColorRangeCM:     6,
		LeftFloor:        Mount{Y: 7.3},
		RightFloor:       Mount{Y: -7.3},
		LineFloor:        Mount{Y: 2.5},
		FloorLevel:       600,
		LineLevel:        400,
		GrabRadiusCM:     20,
		Step:             defaultStep,
	}
}

// Block is a cylindrical object on the floor.
type Block struct {
	Name     string
	Center   r2.Point
	RadiusCM float64
	Color    colorful.Color
}

// World is the simulation state. All of it is guarded by mu.
type World struct {
	mu     sync.Mutex
	cfg    Config
	logger golog.Logger
	walls  r2.Rect

	pose       spatialmath.Pose
	leftWheel  *Motor
	rightWheel *Motor
	leftArm    *Motor
	rightArm   *Motor

	blocks     []*Block
	held       *Block
	heldOffset r2.Point
	clawClosed bool

	lastStep time.Time
	workers  utils.StoppableWorkers
}

// NewWorld places the robot at start in an empty field.
func NewWorld(cfg Config, start spatialmath.Pose, logger golog.Logger) (*World, error) {
	if cfg.TileCM <= 0 || cfg.Tiles <= 0 {
		return nil, errors.New("arena needs a positive tile size and count")
	}
	if cfg.WheelRadiusCM <= 0 || cfg.TrackWidthCM <= 0 {
		return nil, errors.New("arena needs the robot's wheel radius and track width")
	}
	if cfg.Step == 0 {
		cfg.Step = defaultStep
	}
	lo := -cfg.TileCM
	hi := float64(cfg.Tiles+1) * cfg.TileCM
	w := &World{
		cfg:    cfg,
		logger: logger,
		walls:  r2.RectFromPoints(r2.Point{X: lo, Y: lo}, r2.Point{X: hi, Y: hi}),
		pose:   spatialmath.NewPose(start.X, start.Y, start.Theta),
	}
	if !w.walls.InteriorContainsPoint(w.pose.Point()) {
		return nil, errors.Errorf("robot start %s is outside the arena", w.pose)
	}
	w.leftWheel = newMotor(w, "left-wheel")
	w.rightWheel = newMotor(w, "right-wheel")
	w.leftArm = newMotor(w, "left-arm")
	w.rightArm = newMotor(w, "right-arm")
	return w, nil
}

// AddBlock puts a block on the floor.
func (w *World) AddBlock(b Block) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.blocks = append(w.blocks, &b)
}

// Start runs the physics loop until Close.
func (w *World) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.workers != nil {
		return
	}
	w.lastStep = time.Now()
	w.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		for goutils.SelectContextOrWait(ctx, w.cfg.Step) {
			w.step()
		}
	})
}

// Close stops the physics loop and releases anything blocked on a motor.
func (w *World) Close() error {
	w.mu.Lock()
	workers := w.workers
	w.workers = nil
	w.mu.Unlock()
	if workers != nil {
		workers.Stop()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range []*Motor{w.leftWheel, w.rightWheel, w.leftArm, w.rightArm} {
		m.finishInLock()
		m.speed = 0
	}
	return nil
}

func (w *World) step() {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(w.lastStep)
	w.lastStep = now
	if elapsed > maxStep {
		elapsed = maxStep
	}
	w.advanceInLock(elapsed.Seconds())
}

// Advance moves the simulation forward by d without the physics loop.
func (w *World) Advance(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for d > 0 {
		s := w.cfg.Step
		if d < s {
			s = d
		}
		w.advanceInLock(s.Seconds())
		d -= s
	}
}

func (w *World) advanceInLock(dt float64) {
	dLeft := w.leftWheel.advanceInLock(dt)
	dRight := w.rightWheel.advanceInLock(dt)
	w.leftArm.advanceInLock(dt)
	w.rightArm.advanceInLock(dt)

	if dLeft != 0 || dRight != 0 {
		r := w.cfg.WheelRadiusCM
		displacement := (dLeft + dRight) * r * math.Pi / 360
		dTheta := (dRight - dLeft) * r / w.cfg.TrackWidthCM
		w.pose.Theta = utils.ModAngDeg(w.pose.Theta + dTheta)
		rad := utils.DegToRad(w.pose.Theta)
		next := r2.Point{
			X: w.pose.X + displacement*math.Cos(rad),
			Y: w.pose.Y + displacement*math.Sin(rad),
		}
		// the robot slides along a wall instead of passing through it
		next = w.walls.ClampPoint(next)
		w.pose.X, w.pose.Y = next.X, next.Y
	}
	w.updateClawInLock()
	if w.held != nil {
		w.held.Center = w.toWorldInLock(w.heldOffset)
	}
}

func (w *World) updateClawInLock() {
	closed := -w.leftArm.tacho > clawClosedAboveDeg
	switch {
	case closed && !w.clawClosed:
		w.held = w.nearestBlockInLock(w.pose.Point(), w.cfg.GrabRadiusCM)
		if w.held != nil {
			w.heldOffset = w.toRobotInLock(w.held.Center)
			w.logger.Debugw("claw closed on block", "block", w.held.Name)
		}
	case !closed && w.clawClosed && w.held != nil:
		w.logger.Debugw("claw released block", "block", w.held.Name, "at", w.held.Center)
		w.held = nil
	}
	w.clawClosed = closed
}

func (w *World) nearestBlockInLock(p r2.Point, within float64) *Block {
	var nearest *Block
	best := within
	for _, b := range w.blocks {
		if d := b.Center.Sub(p).Norm(); d <= best {
			nearest, best = b, d
		}
	}
	return nearest
}

// toWorldInLock maps a point in the robot frame into the arena frame.
func (w *World) toWorldInLock(local r2.Point) r2.Point {
	fwd := w.pose.Forward()
	left := fwd.Ortho()
	return w.pose.Point().Add(fwd.Mul(local.X)).Add(left.Mul(local.Y))
}

// toRobotInLock maps a point in the arena frame into the robot frame.
func (w *World) toRobotInLock(p r2.Point) r2.Point {
	fwd := w.pose.Forward()
	rel := p.Sub(w.pose.Point())
	return r2.Point{X: rel.Dot(fwd), Y: rel.Dot(fwd.Ortho())}
}

// RobotPose is the robot's true pose.
func (w *World) RobotPose() spatialmath.Pose {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pose
}

// Blocks returns a copy of every block.
func (w *World) Blocks() []Block {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Block, 0, len(w.blocks))
	for _, b := range w.blocks {
		out = append(out, *b)
	}
	return out
}

// Holding returns the block in the claw, if any.
func (w *World) Holding() (Block, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.held == nil {
		return Block{}, false
	}
	return *w.held, true
}

// Walls is the inside of the arena walls.
func (w *World) Walls() r2.Rect {
	return w.walls
}

// LeftWheel is the left drive motor.
func (w *World) LeftWheel() *Motor { return w.leftWheel }

// RightWheel is the right drive motor.
func (w *World) RightWheel() *Motor { return w.rightWheel }

// LeftArm is the left claw motor. The claw state follows this arm.
func (w *World) LeftArm() *Motor { return w.leftArm }

// RightArm is the right claw motor.
func (w *World) RightArm() *Motor { return w.rightArm }
