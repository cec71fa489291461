package wheeled

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/flagbot-robotics/flagbot/components/motor/fake"
	"github.com/flagbot-robotics/flagbot/components/movementsensor/odometer"
	"github.com/flagbot-robotics/flagbot/spatialmath"
)

var testConfig = Config{WheelRadiusCM: 2.1, TrackWidthCM: 17.25}

type testRig struct {
	base        *Base
	left, right *fake.Motor
	odo         *odometer.Odometer
}

func newTestRig(t *testing.T) testRig {
	t.Helper()
	ctx := context.Background()
	logger := golog.NewTestLogger(t)
	left := fake.NewMotor("left", logger)
	right := fake.NewMotor("right", logger)
	odo, err := odometer.New(left, right, odometer.Config{WheelRadiusCM: 2.1, TrackWidthCM: 17.25}, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, odo.Tick(ctx), test.ShouldBeNil)
	base, err := New(left, right, odo, testConfig, logger)
	test.That(t, err, test.ShouldBeNil)
	return testRig{base: base, left: left, right: right, odo: odo}
}

// turningMotor records whether the base reported a turn while it was being rotated.
type turningMotor struct {
	*fake.Motor
	base       *Base
	sawTurning bool
}

func (m *turningMotor) RotateBy(ctx context.Context, degrees, degsPerSec float64, block bool) error {
	m.sawTurning = m.sawTurning || m.base.IsTurning()
	return m.Motor.RotateBy(ctx, degrees, degsPerSec, block)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{TrackWidthCM: 10}
	test.That(t, cfg.Validate("base"), test.ShouldNotBeNil)
	cfg = Config{WheelRadiusCM: 2, TrackWidthCM: 10, HeadingToleranceDeg: 200}
	err := cfg.Validate("base")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "heading_tolerance_deg")
	test.That(t, testConfig.Validate("base"), test.ShouldBeNil)
}

func TestConversions(t *testing.T) {
	rig := newTestRig(t)
	test.That(t, rig.base.DistanceToWheelDeg(2*math.Pi*2.1), test.ShouldAlmostEqual, 360)
	// a full spin rolls each wheel once around a circle of diameter track width
	test.That(t, rig.base.AngleToWheelDeg(360), test.ShouldAlmostEqual, 180*17.25/2.1)
	test.That(t, rig.base.AngleToWheelDeg(-90), test.ShouldAlmostEqual, -45*17.25/2.1)
}

func TestTurnTo(t *testing.T) {
	ctx := context.Background()

	t.Run("within tolerance does not move", func(t *testing.T) {
		rig := newTestRig(t)
		test.That(t, rig.base.TurnTo(ctx, 4, true), test.ShouldBeNil)
		test.That(t, rig.base.TurnTo(ctx, 356, true), test.ShouldBeNil)
		test.That(t, rig.left.Rotations(), test.ShouldBeEmpty)
		test.That(t, rig.right.Rotations(), test.ShouldBeEmpty)
	})

	t.Run("counter-clockwise", func(t *testing.T) {
		rig := newTestRig(t)
		test.That(t, rig.base.TurnTo(ctx, 90, true), test.ShouldBeNil)
		test.That(t, rig.left.Rotations()[0], test.ShouldBeLessThan, 0)
		test.That(t, rig.right.Rotations()[0], test.ShouldBeGreaterThan, 0)
		test.That(t, rig.odo.Pose().Theta, test.ShouldAlmostEqual, 90, 0.5)
		test.That(t, rig.base.IsTurning(), test.ShouldBeFalse)
	})

	t.Run("takes the short way around", func(t *testing.T) {
		rig := newTestRig(t)
		rig.odo.SetPose(spatialmath.Pose{Theta: 10}, spatialmath.MaskTheta)
		test.That(t, rig.base.TurnTo(ctx, 350, true), test.ShouldBeNil)
		test.That(t, rig.left.Rotations()[0], test.ShouldAlmostEqual, rig.base.AngleToWheelDeg(20))
		test.That(t, rig.right.Rotations()[0], test.ShouldAlmostEqual, -rig.base.AngleToWheelDeg(20))
		test.That(t, rig.odo.Pose().Theta, test.ShouldAlmostEqual, 350, 0.5)
	})

	t.Run("reports turning while rotating", func(t *testing.T) {
		rig := newTestRig(t)
		left := &turningMotor{Motor: rig.left, base: rig.base}
		rig.base.left = left
		test.That(t, rig.base.TurnTo(ctx, 180, true), test.ShouldBeNil)
		test.That(t, left.sawTurning, test.ShouldBeTrue)
		test.That(t, rig.base.IsTurning(), test.ShouldBeFalse)
	})

	t.Run("non-blocking", func(t *testing.T) {
		rig := newTestRig(t)
		test.That(t, rig.base.TurnTo(ctx, 270, false), test.ShouldBeNil)
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			test.That(tb, rig.base.IsTurning(), test.ShouldBeFalse)
			test.That(tb, rig.odo.Pose().Theta, test.ShouldAlmostEqual, 270, 0.5)
		})
		test.That(t, rig.base.Close(ctx), test.ShouldBeNil)
	})

	t.Run("motor failure stops the base", func(t *testing.T) {
		rig := newTestRig(t)
		rig.right.SetError(errors.New("stalled"))
		err := rig.base.TurnTo(ctx, 90, true)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "stalled")
		test.That(t, rig.base.IsTurning(), test.ShouldBeFalse)
	})
}

func TestTravelTo(t *testing.T) {
	ctx := context.Background()

	t.Run("turns then drives", func(t *testing.T) {
		rig := newTestRig(t)
		test.That(t, rig.base.TravelTo(ctx, 0, 30), test.ShouldBeNil)
		pose := rig.odo.Pose()
		test.That(t, pose.X, test.ShouldAlmostEqual, 0, 0.3)
		test.That(t, pose.Y, test.ShouldAlmostEqual, 30, 0.3)
		test.That(t, pose.Theta, test.ShouldAlmostEqual, 90, 0.5)
	})

	t.Run("already facing the target", func(t *testing.T) {
		rig := newTestRig(t)
		test.That(t, rig.base.TravelTo(ctx, 20, 1), test.ShouldBeNil)
		// one straight move, no turn
		test.That(t, len(rig.left.Rotations()), test.ShouldEqual, 1)
		test.That(t, rig.left.Rotations()[0], test.ShouldAlmostEqual, rig.base.DistanceToWheelDeg(math.Hypot(20, 1)))
	})

	t.Run("zero distance", func(t *testing.T) {
		rig := newTestRig(t)
		test.That(t, rig.base.TravelTo(ctx, 0, 0), test.ShouldBeNil)
		test.That(t, rig.left.Rotations(), test.ShouldBeEmpty)
	})
}

func TestSpeeds(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)

	test.That(t, rig.base.SetWheelSpeeds(ctx, -100, 100), test.ShouldBeNil)
	test.That(t, rig.left.Speed(), test.ShouldEqual, -100)
	test.That(t, rig.right.Speed(), test.ShouldEqual, 100)

	test.That(t, rig.base.GoForwardAtSpeed(ctx, -150), test.ShouldBeNil)
	test.That(t, rig.left.Speed(), test.ShouldEqual, -150)
	test.That(t, rig.right.Speed(), test.ShouldEqual, -150)

	test.That(t, rig.base.Stop(ctx), test.ShouldBeNil)
	test.That(t, rig.left.Speed(), test.ShouldEqual, 0)
	test.That(t, rig.right.Speed(), test.ShouldEqual, 0)

	rig.left.SetError(errors.New("unplugged"))
	test.That(t, rig.base.GoForwardAtSpeed(ctx, 50), test.ShouldNotBeNil)
}
