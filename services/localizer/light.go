package localizer

import (
	"context"
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/flagbot-robotics/flagbot/components/sensor"
	"github.com/flagbot-robotics/flagbot/spatialmath"
	"github.com/flagbot-robotics/flagbot/utils"
)

// Crossings are the distances travelled along a straight line when the floor sensors first
// saw the gridlines of the corner intersection.
type Crossings struct {
	// LeftFirst is where the left sensor crossed the horizontal line (y = 0).
	LeftFirst float64
	// RightFirst is where the right sensor crossed the vertical line (x = 0).
	RightFirst float64
	// Third is the next crossing by either sensor, and LeftLast says which one made it.
	Third    float64
	LeftLast bool
}

// SolveCrossings recovers the pose the straight run started from, with the floor sensors
// halfSeparation to either side of the path.
func SolveCrossings(c Crossings, halfSeparation float64) spatialmath.Pose {
	w := halfSeparation
	var theta float64
	if c.LeftLast {
		// both sensors crossed x = 0
		theta = math.Atan2(c.Third-c.RightFirst, 2*w)
	} else {
		// both sensors crossed y = 0
		theta = math.Atan2(2*w, c.Third-c.LeftFirst)
	}
	sin, cos := math.Sin(theta), math.Cos(theta)
	return spatialmath.Pose{
		X:     -(c.RightFirst*cos + w*sin),
		Y:     -(c.LeftFirst*sin + w*cos),
		Theta: utils.ModAngDeg(utils.RadToDeg(theta)),
	}
}

// floorWatch tracks one floor sensor's light to dark transitions.
type floorWatch struct {
	sensor  sensor.ColorSensor
	ambient float64
	dark    bool
	crossed bool
}

// sample reports whether this reading is a new transition onto a line.
func (f *floorWatch) sample(ctx context.Context, ratio float64) (bool, error) {
	v, err := f.sensor.RawIntensity(ctx)
	if err != nil {
		return false, err
	}
	dark := float64(v) < ratio*f.ambient
	entered := dark && !f.dark
	f.dark = dark
	return entered, nil
}

// LightLocalize drives straight from near the corner intersection, which the robot must be
// roughly facing, until the floor sensors have crossed the gridlines three times. It then
// drives onto the intersection, faces +X and resets the pose to the origin.
func (l *Localizer) LightLocalize(ctx context.Context) (err error) {
	l.pose.SetPose(spatialmath.Pose{}, spatialmath.MaskAll)

	if err := multierr.Combine(
		l.leftLight.SetIlluminator(ctx, true),
		l.rightLight.SetIlluminator(ctx, true),
	); err != nil {
		return errors.Wrap(err, "enabling floor illuminators")
	}
	left := &floorWatch{sensor: l.leftLight}
	right := &floorWatch{sensor: l.rightLight}
	for _, f := range []*floorWatch{left, right} {
		if f.ambient, err = l.ambient(ctx, f.sensor); err != nil {
			return err
		}
	}
	l.logger.Debugw("floor ambient", "left", left.ambient, "right", right.ambient)

	crossings, err := l.watchCrossings(ctx, left, right)
	if err != nil {
		return err
	}
	start := SolveCrossings(crossings, l.cfg.LightHalfSeparationCM)
	local := l.pose.Pose()
	sin, cos := math.Sin(utils.DegToRad(start.Theta)), math.Cos(utils.DegToRad(start.Theta))
	current := spatialmath.NewPose(
		start.X+local.X*cos-local.Y*sin,
		start.Y+local.X*sin+local.Y*cos,
		start.Theta+local.Theta,
	)
	l.logger.Infow("gridline crossings solved", "crossings", crossings, "start", start, "current", current)
	l.pose.SetPose(current, spatialmath.MaskAll)

	if err := l.base.TravelTo(ctx, 0, 0); err != nil {
		return err
	}
	if err := l.base.TurnTo(ctx, 0, true); err != nil {
		return err
	}
	l.pose.SetPose(spatialmath.Pose{}, spatialmath.MaskAll)
	return nil
}

// watchCrossings drives forward and records the crossings, stopping once the third is seen.
func (l *Localizer) watchCrossings(ctx context.Context, left, right *floorWatch) (c Crossings, err error) {
	if err := l.base.GoForwardAtSpeed(ctx, l.cfg.LightSpeed); err != nil {
		return c, err
	}
	defer func() {
		if stopErr := l.base.Stop(ctx); err == nil {
			err = stopErr
		}
	}()

	for {
		travelled := l.pose.Pose().X + l.cfg.LightForwardCM
		firstPhase := !left.crossed || !right.crossed
		ratio := l.cfg.FirstCrossingRatio
		if !firstPhase {
			ratio = l.cfg.SecondCrossingRatio
		}
		leftHit, err := left.sample(ctx, ratio)
		if err != nil {
			return c, err
		}
		rightHit, err := right.sample(ctx, ratio)
		if err != nil {
			return c, err
		}

		if firstPhase {
			if leftHit && !left.crossed {
				left.crossed = true
				c.LeftFirst = travelled
			}
			if rightHit && !right.crossed {
				right.crossed = true
				c.RightFirst = travelled
			}
		} else if leftHit || rightHit {
			c.Third = travelled
			c.LeftLast = leftHit
			return c, nil
		}
		if !utils.SleepContext(ctx, l.clk, l.cfg.PollInterval) {
			return c, ctx.Err()
		}
	}
}

// ambient is the mean floor reading away from any line.
func (l *Localizer) ambient(ctx context.Context, s sensor.ColorSensor) (float64, error) {
	samples := make(stats.Float64Data, 0, l.cfg.AmbientSamples)
	for i := 0; i < l.cfg.AmbientSamples; i++ {
		v, err := s.RawIntensity(ctx)
		if err != nil {
			return 0, err
		}
		samples = append(samples, float64(v))
		if !utils.SleepContext(ctx, l.clk, l.cfg.AmbientDelay) {
			return 0, ctx.Err()
		}
	}
	return samples.Mean()
}
