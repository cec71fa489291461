package arena

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/lucasb-eyer/go-colorful"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/flagbot-robotics/flagbot/components/sensor"
	"github.com/flagbot-robotics/flagbot/spatialmath"
)

func newTestWorld(t *testing.T, start spatialmath.Pose) *World {
	t.Helper()
	w, err := NewWorld(DefaultConfig(), start, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() { test.That(t, w.Close(), test.ShouldBeNil) })
	return w
}

func TestNewWorld(t *testing.T) {
	logger := golog.NewTestLogger(t)
	_, err := NewWorld(DefaultConfig(), spatialmath.NewPose(-40, 0, 0), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "outside")

	cfg := DefaultConfig()
	cfg.WheelRadiusCM = 0
	_, err = NewWorld(cfg, spatialmath.Pose{}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	w := newTestWorld(t, spatialmath.Pose{})
	walls := w.Walls()
	test.That(t, walls.X.Lo, test.ShouldAlmostEqual, -30.48)
	test.That(t, walls.X.Hi, test.ShouldAlmostEqual, 335.28)
}

func TestDrive(t *testing.T) {
	ctx := context.Background()

	t.Run("straight", func(t *testing.T) {
		w := newTestWorld(t, spatialmath.Pose{})
		test.That(t, w.LeftWheel().SetSpeed(ctx, 360), test.ShouldBeNil)
		test.That(t, w.RightWheel().SetSpeed(ctx, 360), test.ShouldBeNil)
		w.Advance(time.Second)

		pose := w.RobotPose()
		test.That(t, pose.X, test.ShouldAlmostEqual, 2*math.Pi*2.1, 1e-6)
		test.That(t, pose.Y, test.ShouldAlmostEqual, 0, 1e-6)
		tacho, err := w.LeftWheel().TachoCount(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tacho, test.ShouldEqual, 360)
	})

	t.Run("spin to a target", func(t *testing.T) {
		w := newTestWorld(t, spatialmath.NewPose(50, 50, 0))
		// a quarter turn takes 90*track/(2*radius) degrees on each wheel, in opposite directions
		deg := 90 * 17.25 / 2.1 / 2
		test.That(t, w.LeftWheel().RotateBy(ctx, -deg, 360, false), test.ShouldBeNil)
		test.That(t, w.RightWheel().RotateBy(ctx, deg, 360, false), test.ShouldBeNil)
		w.Advance(3 * time.Second)

		pose := w.RobotPose()
		test.That(t, pose.Theta, test.ShouldAlmostEqual, 90, 1e-6)
		test.That(t, pose.X, test.ShouldAlmostEqual, 50, 1e-6)
		test.That(t, pose.Y, test.ShouldAlmostEqual, 50, 1e-6)
	})

	t.Run("wall stops the robot", func(t *testing.T) {
		w := newTestWorld(t, spatialmath.NewPose(320, 0, 0))
		test.That(t, w.LeftWheel().SetSpeed(ctx, 720), test.ShouldBeNil)
		test.That(t, w.RightWheel().SetSpeed(ctx, 720), test.ShouldBeNil)
		w.Advance(5 * time.Second)
		test.That(t, w.RobotPose().X, test.ShouldAlmostEqual, w.Walls().X.Hi)
	})

	t.Run("blocking rotation with the physics loop", func(t *testing.T) {
		w := newTestWorld(t, spatialmath.Pose{})
		w.Start()
		test.That(t, w.LeftArm().RotateBy(ctx, -200, 2000, true), test.ShouldBeNil)
		tacho, err := w.LeftArm().TachoCount(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tacho, test.ShouldEqual, -200)

		err = w.LeftArm().RotateBy(ctx, 10, 0, true)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("close releases a blocked rotation", func(t *testing.T) {
		w := newTestWorld(t, spatialmath.Pose{})
		done := make(chan error, 1)
		go func() {
			done <- w.RightArm().RotateBy(ctx, 90, 10, true)
		}()
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			w.mu.Lock()
			defer w.mu.Unlock()
			test.That(tb, w.rightArm.done, test.ShouldNotBeNil)
		})
		test.That(t, w.Close(), test.ShouldBeNil)
		test.That(t, <-done, test.ShouldBeNil)
	})
}

func TestRangeSensor(t *testing.T) {
	ctx := context.Background()

	w := newTestWorld(t, spatialmath.NewPose(0, 0, 180))
	d, err := w.LeftRange().Ping(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldEqual, 30)

	// along the diagonal every ray of the beam travels more than 255 cm to a wall
	w = newTestWorld(t, spatialmath.NewPose(-20, -20, 45))
	d, err = w.RightRange().Ping(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldEqual, sensor.NoEcho)

	w = newTestWorld(t, spatialmath.NewPose(0, 0, 0))
	w.AddBlock(Block{Name: "b", Center: r2.Point{X: 20}, RadiusCM: 3})
	d, err = w.LeftRange().Ping(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldEqual, 17)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = w.LeftRange().Ping(cancelled)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFloorSensor(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name  string
		pose  spatialmath.Pose
		level int
	}{
		{"on the origin line", spatialmath.NewPose(0, 10, 0), 400},
		{"between lines", spatialmath.NewPose(10, 10, 0), 600},
		{"sensor over a horizontal line", spatialmath.NewPose(15, 30.48-7.3, 0), 400},
		{"behind the origin line", spatialmath.NewPose(-15, 10, 0), 600},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := newTestWorld(t, tc.pose)
			v, err := w.LeftFloor().RawIntensity(ctx)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, v, test.ShouldEqual, tc.level)
		})
	}
}

func TestColorSensor(t *testing.T) {
	ctx := context.Background()
	red, err := colorful.Hex("#c81e1e")
	test.That(t, err, test.ShouldBeNil)

	w := newTestWorld(t, spatialmath.Pose{})
	w.AddBlock(Block{Name: "red", Center: r2.Point{X: 10}, RadiusCM: 3.5, Color: red})
	r, g, b, err := w.ColorSensor().ColorComponents(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, []int{r, g, b}, test.ShouldResemble, []int{200, 30, 30})

	w = newTestWorld(t, spatialmath.NewPose(0, 0, 180))
	w.AddBlock(Block{Name: "red", Center: r2.Point{X: 10}, RadiusCM: 3.5, Color: red})
	v, err := w.ColorSensor().RawIntensity(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldEqual, 10)
}

func TestClaw(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t, spatialmath.Pose{})
	w.AddBlock(Block{Name: "near", Center: r2.Point{X: 8}, RadiusCM: 3.5})
	w.AddBlock(Block{Name: "far", Center: r2.Point{X: 100}, RadiusCM: 3.5})

	test.That(t, w.LeftArm().RotateBy(ctx, -200, 1000, false), test.ShouldBeNil)
	w.Advance(time.Second)
	held, ok := w.Holding()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, held.Name, test.ShouldEqual, "near")

	// a held block moves with the robot and is invisible to the range sensors
	test.That(t, w.LeftWheel().SetSpeed(ctx, 360), test.ShouldBeNil)
	test.That(t, w.RightWheel().SetSpeed(ctx, 360), test.ShouldBeNil)
	w.Advance(time.Second)
	test.That(t, w.LeftWheel().Stop(ctx), test.ShouldBeNil)
	test.That(t, w.RightWheel().Stop(ctx), test.ShouldBeNil)
	held, _ = w.Holding()
	test.That(t, held.Center.X, test.ShouldAlmostEqual, 8+2*math.Pi*2.1, 1e-6)
	d, err := w.LeftRange().Ping(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldEqual, int(math.Round(100-3.5-2*math.Pi*2.1)))

	test.That(t, w.LeftArm().RotateBy(ctx, 200, 1000, false), test.ShouldBeNil)
	w.Advance(time.Second)
	_, ok = w.Holding()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestScenario(t *testing.T) {
	logger := golog.NewTestLogger(t)

	w, err := DefaultScenario().Build(DefaultConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, w.Blocks(), test.ShouldHaveLength, 2)
	test.That(t, w.Close(), test.ShouldBeNil)

	path := filepath.Join(t.TempDir(), "scenario.json")
	doc := `{"start": {"x": 10, "y": 12, "theta": 45},
		"blocks": [{"x": 50, "y": 40, "radius_cm": 3, "color": "#ffd700"}]}`
	test.That(t, os.WriteFile(path, []byte(doc), 0o600), test.ShouldBeNil)
	s, err := ReadScenario(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Start, test.ShouldResemble, spatialmath.NewPose(10, 12, 45))

	w, err = s.Build(DefaultConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	blocks := w.Blocks()
	test.That(t, blocks, test.ShouldHaveLength, 1)
	test.That(t, blocks[0].Name, test.ShouldEqual, "#ffd700")
	test.That(t, w.Close(), test.ShouldBeNil)

	s.Blocks[0].Color = "gold"
	_, err = s.Build(DefaultConfig(), logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = ReadScenario(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}
