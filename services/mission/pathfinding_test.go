package mission

import (
	"context"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"github.com/flagbot-robotics/flagbot/components/base/wheeled"
	"github.com/flagbot-robotics/flagbot/components/gripper"
	"github.com/flagbot-robotics/flagbot/components/movementsensor/odometer"
	"github.com/flagbot-robotics/flagbot/services/detection"
	"github.com/flagbot-robotics/flagbot/services/obstacle"
	"github.com/flagbot-robotics/flagbot/simulation/arena"
	"github.com/flagbot-robotics/flagbot/spatialmath"
)

type simRig struct {
	world   *arena.World
	odo     *odometer.Odometer
	planner *Planner
}

func newSimRig(t *testing.T, start spatialmath.Pose) *simRig {
	t.Helper()
	ctx := context.Background()
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
	test.That(t, odo.Tick(ctx), test.ShouldBeNil)
	odo.SetPose(start, spatialmath.MaskAll)
	odo.Start()

	base, err := wheeled.New(world.LeftWheel(), world.RightWheel(), odo, wheeled.Config{
		WheelRadiusCM:       2.1,
		TrackWidthCM:        17.25,
		TravelSpeed:         1800,
		TurnSpeed:           1200,
		HeadingToleranceDeg: 1,
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	filter, err := obstacle.New(world.LeftRange(), world.RightRange(), obstacle.Config{}, logger)
	test.That(t, err, test.ShouldBeNil)
	classifier, err := detection.New(world.ColorSensor(), world.LeftRange(), world.RightRange(), detection.Config{}, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	claw, err := gripper.NewClaw(gripper.Config{DegsPerSec: 2000}, logger, world.LeftArm(), world.RightArm())
	test.That(t, err, test.ShouldBeNil)

	cfg := fastConfig()
	cfg.DriveSpeed = 900
	cfg.ApproachSpeed = 600
	cfg.SettleDelay = 50 * time.Millisecond
	cfg.AvoidBackoff = 300 * time.Millisecond
	planner, err := New(base, odo, filter, classifier, claw, nil, cfg, nil, logger)
	test.That(t, err, test.ShouldBeNil)

	t.Cleanup(func() {
		filter.Stop()
		test.That(t, base.Close(context.Background()), test.ShouldBeNil)
		test.That(t, odo.Close(), test.ShouldBeNil)
		test.That(t, world.Close(), test.ShouldBeNil)
	})
	return &simRig{world: world, odo: odo, planner: planner}
}

// simSlackCM is how far the simulated robot may coast short of a target after the odometry
// says it has arrived.
const simSlackCM = 2

func TestPathToSim(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the simulation in real time")
	}
	ctx := context.Background()

	t.Run("open field", func(t *testing.T) {
		rig := newSimRig(t, spatialmath.Pose{})
		rig.planner.filter.Start()
		dest := r2.Point{X: 50, Y: 40}
		test.That(t, rig.planner.PathTo(ctx, dest, Zone{}), test.ShouldBeNil)

		truth := rig.world.RobotPose()
		slack := rig.planner.cfg.ArriveRadiusCM + simSlackCM
		test.That(t, truth.X, test.ShouldBeGreaterThan, dest.X-slack)
		test.That(t, truth.Y, test.ShouldBeGreaterThan, dest.Y-slack)
		test.That(t, truth.Point().Sub(dest).Norm(), test.ShouldBeLessThan, 8)
	})

	t.Run("around the avoid zone", func(t *testing.T) {
		rig := newSimRig(t, spatialmath.NewPose(TileLengthCM, TileLengthCM, 0))
		rig.planner.filter.Start()
		avoid := TileZone(TilePoint{X: 4}, TileLengthCM, 5)
		dest := r2.Point{X: 137.16, Y: 76.2}
		test.That(t, rig.planner.PathTo(ctx, dest, avoid), test.ShouldBeNil)

		truth := rig.world.RobotPose()
		slack := rig.planner.cfg.ArriveRadiusCM + simSlackCM
		test.That(t, truth.X, test.ShouldBeGreaterThan, dest.X-slack)
		test.That(t, truth.Y, test.ShouldBeGreaterThan, dest.Y-slack)
		test.That(t, avoid.Contains(truth.Point()), test.ShouldBeFalse)
	})
}
