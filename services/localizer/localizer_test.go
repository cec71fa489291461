package localizer

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/flagbot-robotics/flagbot/components/base/wheeled"
	"github.com/flagbot-robotics/flagbot/components/movementsensor/odometer"
	"github.com/flagbot-robotics/flagbot/simulation/arena"
	"github.com/flagbot-robotics/flagbot/spatialmath"
	"github.com/flagbot-robotics/flagbot/utils"
)

func TestParseEdge(t *testing.T) {
	e, err := ParseEdge("Rising")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e, test.ShouldEqual, RisingEdge)
	e, err = ParseEdge("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e, test.ShouldEqual, FallingEdge)
	_, err = ParseEdge("sideways")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	test.That(t, cfg.Validate("localization"), test.ShouldBeNil)

	cfg.FirstCrossingRatio = 1.2
	err := cfg.Validate("localization")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "crossing ratios")

	cfg = DefaultConfig()
	cfg.NoiseMarginCM = 60
	test.That(t, cfg.Validate("localization"), test.ShouldNotBeNil)
}

func TestCorrectedHeading(t *testing.T) {
	// robot facing +X: edges at 353.3 then 96.7
	test.That(t, CorrectedHeading(353.3, 96.7, -45, -225), test.ShouldAlmostEqual, 0)
	// same corner with the odometer 10 degrees ahead; the pair no longer straddles zero
	test.That(t, CorrectedHeading(3.3, 106.7, -45, -225), test.ShouldAlmostEqual, 10)
	test.That(t, CorrectedHeading(233.3, 336.7, -45, -225), test.ShouldAlmostEqual, 240)
}

// crossingsFor computes the crossings a robot starting at p would see.
func crossingsFor(p spatialmath.Pose, w float64) Crossings {
	rad := utils.DegToRad(p.Theta)
	sin, cos := math.Sin(rad), math.Cos(rad)
	leftY := p.Y + w*cos
	leftX := p.X - w*sin
	rightX := p.X + w*sin
	rightY := p.Y - w*cos
	c := Crossings{LeftFirst: -leftY / sin, RightFirst: -rightX / cos}
	leftSecond := -leftX / cos
	rightSecond := -rightY / sin
	if leftSecond < rightSecond {
		c.Third, c.LeftLast = leftSecond, true
	} else {
		c.Third = rightSecond
	}
	return c
}

func TestSolveCrossings(t *testing.T) {
	for _, start := range []spatialmath.Pose{
		spatialmath.NewPose(-15, -15, 45),
		spatialmath.NewPose(-12, -17, 40),
		spatialmath.NewPose(-17, -13, 52),
		spatialmath.NewPose(-20, -14, 38),
	} {
		t.Run(start.String(), func(t *testing.T) {
			solved := SolveCrossings(crossingsFor(start, 7.3), 7.3)
			test.That(t, solved.X, test.ShouldAlmostEqual, start.X, 1e-9)
			test.That(t, solved.Y, test.ShouldAlmostEqual, start.Y, 1e-9)
			test.That(t, solved.Theta, test.ShouldAlmostEqual, start.Theta, 1e-9)
		})
	}

	c := crossingsFor(spatialmath.NewPose(-15, -15, 45), 7.3)
	test.That(t, c.LeftFirst, test.ShouldAlmostEqual, 13.92, 0.01)
	test.That(t, c.RightFirst, test.ShouldAlmostEqual, 13.92, 0.01)
	test.That(t, c.Third, test.ShouldAlmostEqual, 28.51, 0.01)
}

type simRig struct {
	world     *arena.World
	odo       *odometer.Odometer
	base      *wheeled.Base
	localizer *Localizer
}

func newSimRig(t *testing.T, start spatialmath.Pose) *simRig {
	t.Helper()
	logger := golog.NewTestLogger(t)
	world, err := arena.NewWorld(arena.DefaultConfig(), start, logger)
	test.That(t, err, test.ShouldBeNil)
	world.Start()

	odo, err := odometer.New(world.LeftWheel(), world.RightWheel(), odometer.Config{
		WheelRadiusCM: 2.1,
		TrackWidthCM:  17.25,
		Period:        2 * time.Millisecond,
	}, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, odo.Tick(context.Background()), test.ShouldBeNil)
	odo.Start()

	base, err := wheeled.New(world.LeftWheel(), world.RightWheel(), odo, wheeled.Config{
		WheelRadiusCM:       2.1,
		TrackWidthCM:        17.25,
		TravelSpeed:         900,
		TurnSpeed:           600,
		HeadingToleranceDeg: 0.5,
	}, logger)
	test.That(t, err, test.ShouldBeNil)

	cfg := DefaultConfig()
	cfg.RotateSpeed = 600
	cfg.PingDelay = 2 * time.Millisecond
	cfg.LightSpeed = 300
	cfg.AmbientSamples = 5
	cfg.AmbientDelay = time.Millisecond
	loc, err := New(base, odo, world.LeftRange(), world.LeftFloor(), world.RightFloor(), cfg, nil, logger)
	test.That(t, err, test.ShouldBeNil)

	t.Cleanup(func() {
		test.That(t, base.Close(context.Background()), test.ShouldBeNil)
		test.That(t, odo.Close(), test.ShouldBeNil)
		test.That(t, world.Close(), test.ShouldBeNil)
	})
	return &simRig{world: world, odo: odo, base: base, localizer: loc}
}

// checkAgrees asserts the odometer matches where the robot really is.
func (r *simRig) checkAgrees(t *testing.T, tolCM, tolDeg float64) {
	t.Helper()
	truth := r.world.RobotPose()
	est := r.odo.Pose()
	test.That(t, est.X, test.ShouldAlmostEqual, truth.X, tolCM)
	test.That(t, est.Y, test.ShouldAlmostEqual, truth.Y, tolCM)
	test.That(t, utils.AngleDiffDeg(est.Theta, truth.Theta), test.ShouldBeLessThan, tolDeg)
}

func TestUltrasonicLocalize(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the simulation in real time")
	}
	for _, edge := range []Edge{FallingEdge, RisingEdge} {
		t.Run(edge.String(), func(t *testing.T) {
			rig := newSimRig(t, spatialmath.NewPose(-15, -15, 30))
			rig.localizer.edge = edge
			test.That(t, rig.localizer.UltrasonicLocalize(context.Background()), test.ShouldBeNil)

			truth := rig.world.RobotPose()
			test.That(t, utils.AngleDiffDeg(truth.Theta, 0), test.ShouldBeLessThan, 3)
			rig.checkAgrees(t, 1.5, 3)
		})
	}
}

func TestLightLocalize(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the simulation in real time")
	}
	rig := newSimRig(t, spatialmath.NewPose(-12, -17, 40))
	test.That(t, rig.localizer.LightLocalize(context.Background()), test.ShouldBeNil)

	truth := rig.world.RobotPose()
	test.That(t, truth.X, test.ShouldAlmostEqual, 0, 1.5)
	test.That(t, truth.Y, test.ShouldAlmostEqual, 0, 1.5)
	test.That(t, utils.AngleDiffDeg(truth.Theta, 0), test.ShouldBeLessThan, 3)
	test.That(t, rig.odo.Pose().X, test.ShouldAlmostEqual, 0)
	test.That(t, rig.odo.Pose().Y, test.ShouldAlmostEqual, 0)
}

func TestLocalize(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the simulation in real time")
	}
	rig := newSimRig(t, spatialmath.NewPose(-14, -16, 200))
	test.That(t, rig.localizer.Localize(context.Background()), test.ShouldBeNil)

	truth := rig.world.RobotPose()
	test.That(t, truth.X, test.ShouldAlmostEqual, 0, 2)
	test.That(t, truth.Y, test.ShouldAlmostEqual, 0, 2)
	test.That(t, utils.AngleDiffDeg(truth.Theta, 0), test.ShouldBeLessThan, 4)
}

func TestLocalizeCancelled(t *testing.T) {
	rig := newSimRig(t, spatialmath.NewPose(-15, -15, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := rig.localizer.Localize(ctx)
	test.That(t, err, test.ShouldNotBeNil)
}
