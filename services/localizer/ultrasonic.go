package localizer

import (
	"context"

	"github.com/flagbot-robotics/flagbot/spatialmath"
	"github.com/flagbot-robotics/flagbot/utils"
)

// spin directions for an edge pass.
const (
	clockwise        = -1.0
	counterClockwise = 1.0
)

// UltrasonicLocalize fixes the heading from the two wall edges seen while spinning in place,
// then the position from the distance to each wall. It leaves the robot facing +X.
func (l *Localizer) UltrasonicLocalize(ctx context.Context) error {
	first, err := l.edgePass(ctx, clockwise)
	if err != nil {
		return err
	}
	second, err := l.edgePass(ctx, counterClockwise)
	if err != nil {
		return err
	}
	if l.edge == RisingEdge {
		first, second = second, first
	}
	target := CorrectedHeading(first, second, l.cfg.AscendingOffsetDeg, l.cfg.DescendingOffsetDeg)
	l.logger.Debugw("wall edges found", "first", first, "second", second, "facing_x", target)

	if err := l.base.TurnTo(ctx, target, true); err != nil {
		return err
	}
	l.pose.SetPose(spatialmath.Pose{}, spatialmath.MaskTheta)

	x, err := l.wallCoordinate(ctx, 180, l.cfg.WallXCM)
	if err != nil {
		return err
	}
	y, err := l.wallCoordinate(ctx, 270, l.cfg.WallYCM)
	if err != nil {
		return err
	}
	l.pose.SetPose(spatialmath.NewPose(x, y, 0), spatialmath.MaskX|spatialmath.MaskY)
	l.logger.Infow("ultrasonic localization done", "pose", l.pose.Pose())
	return l.base.TurnTo(ctx, 0, true)
}

// CorrectedHeading is the current-frame heading of +X, given the edge headings from the
// clockwise pass (first) and the counter-clockwise pass (second). The two edges are symmetric
// about the corner's diagonal, so their mean points into the corner up to a fixed offset that
// depends on whether the pair straddles zero.
func CorrectedHeading(first, second, ascendingOffset, descendingOffset float64) float64 {
	avg := (first + second) / 2
	if first < second {
		return utils.ModAngDeg(avg + ascendingOffset)
	}
	return utils.ModAngDeg(avg + descendingOffset)
}

// wallCoordinate faces heading and measures the distance to the wall at wall.
func (l *Localizer) wallCoordinate(ctx context.Context, heading, wall float64) (float64, error) {
	if err := l.base.TurnTo(ctx, heading, true); err != nil {
		return 0, err
	}
	d, err := l.averagePing(ctx, l.cfg.WallPingSamples)
	if err != nil {
		return 0, err
	}
	return wall + d + l.cfg.RangeForwardCM, nil
}

// edgePass spins in place in dir and returns the heading of the wall edge it finds. The edge
// heading is the middle of the two headings where the readings cross the wall threshold and the
// deep threshold, which cancels most of the beam width.
func (l *Localizer) edgePass(ctx context.Context, dir float64) (heading float64, err error) {
	if err := l.base.SetWheelSpeeds(ctx, -dir*l.cfg.RotateSpeed, dir*l.cfg.RotateSpeed); err != nil {
		return 0, err
	}
	defer func() {
		if stopErr := l.base.Stop(ctx); err == nil {
			err = stopErr
		}
	}()

	wall := l.cfg.EdgeDistanceCM + l.cfg.NoiseMarginCM
	clearLimit := l.cfg.EdgeDistanceCM + 3*l.cfg.NoiseMarginCM
	deep := l.cfg.EdgeDistanceCM - l.cfg.NoiseMarginCM

	var a, b float64
	switch l.edge {
	case RisingEdge:
		if _, err := l.seek(ctx, "deep", func(d float64) bool { return d < deep }); err != nil {
			return 0, err
		}
		if a, err = l.seek(ctx, "leaving wall", func(d float64) bool { return d > wall }); err != nil {
			return 0, err
		}
		if b, err = l.seek(ctx, "clear", func(d float64) bool { return d > clearLimit }); err != nil {
			return 0, err
		}
	default:
		if _, err := l.seek(ctx, "clear", func(d float64) bool { return d > clearLimit }); err != nil {
			return 0, err
		}
		if a, err = l.seek(ctx, "wall", func(d float64) bool { return d < wall }); err != nil {
			return 0, err
		}
		if b, err = l.seek(ctx, "deep", func(d float64) bool { return d < deep }); err != nil {
			return 0, err
		}
	}
	return utils.MidAngleDeg(a, b), nil
}

// seek pings until cond holds for the configured number of consecutive readings and returns
// the heading at the last of them.
func (l *Localizer) seek(ctx context.Context, what string, cond func(d float64) bool) (float64, error) {
	consecutive := 0
	for {
		d, err := l.ping(ctx)
		if err != nil {
			return 0, err
		}
		heading := l.pose.Pose().Theta
		if !cond(float64(d)) {
			consecutive = 0
			continue
		}
		consecutive++
		if consecutive >= l.cfg.DebounceSamples {
			l.logger.Debugw("edge condition met", "condition", what, "heading", heading, "distance", d)
			return heading, nil
		}
	}
}
