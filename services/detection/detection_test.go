package detection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/test"
)

func TestClassify(t *testing.T) {
	th := DefaultThresholds()
	for _, tc := range []struct {
		name    string
		r, g, b int
		class   BlockClass
	}{
		{"red", 30, 5, 5, Red},
		{"red wins over wood", 100, 30, 30, Red},
		{"yellow", 100, 100, 20, Yellow},
		{"dark blue", 2, 2, 20, DarkBlue},
		{"wood", 100, 60, 60, Wood},
		{"white", 100, 95, 85, White},
		{"light blue fallback", 50, 80, 90, LightBlue},
		{"dark reading falls through", 0, 0, 0, LightBlue},
	} {
		t.Run(tc.name, func(t *testing.T) {
			test.That(t, Classify(tc.r, tc.g, tc.b, th), test.ShouldEqual, tc.class)
		})
	}
}

func TestBlockClass(t *testing.T) {
	test.That(t, DarkBlue.String(), test.ShouldEqual, "dark blue")
	test.That(t, BlockClass(42).String(), test.ShouldEqual, "block(42)")
	test.That(t, Red.IsFlag(), test.ShouldBeTrue)
	test.That(t, Wood.IsFlag(), test.ShouldBeFalse)
	test.That(t, None.IsFlag(), test.ShouldBeFalse)

	class, err := ParseBlockClass(" Dark_Blue ")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, class, test.ShouldEqual, DarkBlue)
	_, err = ParseBlockClass("purple")
	test.That(t, err, test.ShouldNotBeNil)
}

type scriptedRange struct {
	mu       sync.Mutex
	readings []int
	err      error
}

func (s *scriptedRange) Ping(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	d := s.readings[0]
	if len(s.readings) > 1 {
		s.readings = s.readings[1:]
	}
	return d, nil
}

func (s *scriptedRange) EnableContinuous(ctx context.Context) error {
	return nil
}

type fixedColor struct {
	r, g, b int
}

func (f fixedColor) RawIntensity(ctx context.Context) (int, error) {
	return (f.r + f.g + f.b) / 3, nil
}

func (f fixedColor) ColorComponents(ctx context.Context) (int, int, int, error) {
	return f.r, f.g, f.b, nil
}

func (f fixedColor) SetIlluminator(ctx context.Context, on bool) error {
	return nil
}

func TestClassifier(t *testing.T) {
	ctx := context.Background()
	logger := golog.NewTestLogger(t)
	left := &scriptedRange{readings: []int{10, 20, 30, 40, 50}}
	right := &scriptedRange{readings: []int{25}}
	cfg := Config{AverageSamples: 5, SettleDelay: time.Millisecond}
	c, err := New(fixedColor{r: 2, g: 2, b: 20}, left, right, cfg, nil, logger)
	test.That(t, err, test.ShouldBeNil)

	class, err := c.ClassifyObject(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, class, test.ShouldEqual, DarkBlue)

	avg, err := c.DistanceLeftAveraged(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, avg, test.ShouldEqual, 30)

	d, err := c.DistanceRightOnce(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldEqual, 25)

	// left now reads 50 and right 25: only one side is inside the wall distance
	wall, err := c.WallInFront(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, wall, test.ShouldBeFalse)

	left.readings = []int{15}
	right.readings = []int{19}
	wall, err = c.WallInFront(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, wall, test.ShouldBeTrue)
	both, err := c.WallInFrontOfBoth(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, both, test.ShouldBeTrue)

	right.readings = []int{60}
	both, err = c.WallInFrontOfBoth(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, both, test.ShouldBeFalse)

	right.err = errors.New("timeout")
	_, err = c.DistanceRightAveraged(ctx)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "right range sensor")
}

func TestCustomThresholds(t *testing.T) {
	th := DefaultThresholds()
	th.DarkBlueOverRed = 20
	c, err := New(fixedColor{r: 2, g: 2, b: 20}, &scriptedRange{readings: []int{1}}, &scriptedRange{readings: []int{1}},
		Config{Thresholds: &th}, nil, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	class, err := c.ClassifyObject(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, class, test.ShouldEqual, LightBlue)
}
