package mission

import (
	"context"
	"math"

	"github.com/golang/geo/r2"
	"github.com/samber/lo"

	"github.com/flagbot-robotics/flagbot/operation"
	"github.com/flagbot-robotics/flagbot/services/detection"
)

// SearchForFlag sweeps the flag zone from its bottom edge until it holds a block of the target
// color, then moves to the middle of the zone. Wrong blocks found on the way are carried out of
// the zone. It does not give up; cancel ctx to stop it.
func (p *Planner) SearchForFlag(ctx context.Context, target detection.BlockClass) error {
	zone := p.geo.flag
	mid := zone.Center()
	origin := func(offset float64) r2.Point {
		return r2.Point{X: zone.X.Lo + offset, Y: mid.Y}
	}

	captured, err := p.SweepAt(ctx, origin(p.cfg.InZoneOffsetCM), -90, 90, target)
	if err != nil {
		return err
	}

	minOffset := p.geo.maxObjectCM
	maxOffset := math.Max(zone.X.Length()-p.geo.maxObjectCM, minOffset)
	for !captured {
		p.stepSweep(minOffset, maxOffset)
		p.logger.Debugw("nothing found, moving the sweep", "offset", p.sweep.offset, "reversed", p.sweep.reversed)
		if p.sweep.reversed {
			captured, err = p.SweepAt(ctx, origin(p.sweep.offset), 90, 270, target)
		} else {
			captured, err = p.SweepAt(ctx, origin(p.sweep.offset), -90, 90, target)
		}
		if err != nil {
			return err
		}
	}
	return p.base.TravelTo(ctx, mid.X, mid.Y)
}

// stepSweep moves the sweep origin one step across the zone, turning around at either end.
func (p *Planner) stepSweep(minOffset, maxOffset float64) {
	s := &p.sweep
	if s.reversed {
		s.offset -= p.cfg.LateralStepCM
	} else {
		s.offset += p.cfg.LateralStepCM
	}
	if !s.reversed && s.offset >= maxOffset {
		s.reversed = true
	} else if s.reversed && s.offset <= minOffset {
		s.reversed = false
	}
	s.offset = lo.Clamp(s.offset, minOffset, maxOffset)
}

// SweepAt goes to origin and turns through the headings from startAngle to endAngle looking
// for a block with both range sensors. Each block found is approached, identified, and either
// grabbed when it has the target color or carried out of the zone. It reports whether the
// target was grabbed. A block seen at endAngle itself is not approached.
func (p *Planner) SweepAt(
	ctx context.Context,
	origin r2.Point,
	startAngle, endAngle float64,
	target detection.BlockClass,
) (bool, error) {
	if err := p.base.TravelTo(ctx, origin.X, origin.Y); err != nil {
		return false, err
	}
	p.logger.Debugw("sweeping", "origin", origin, "from", startAngle, "to", endAngle)

	angle := startAngle
	for angle <= endAngle {
		var err error
		if angle, err = p.scan(ctx, angle, endAngle); err != nil {
			return false, err
		}
		if angle >= endAngle {
			break
		}

		angle += p.cfg.OverRotateDeg
		if err := p.base.TurnTo(ctx, angle, true); err != nil {
			return false, err
		}
		reached, err := p.approach(ctx, origin)
		if err != nil {
			return false, err
		}
		if !reached {
			p.logger.Debugw("approach went too far, returning to the sweep origin")
			if err := p.base.TravelTo(ctx, origin.X, origin.Y); err != nil {
				return false, err
			}
			continue
		}

		captured, err := p.handleBlock(ctx, origin, target)
		if err != nil || captured {
			return captured, err
		}
	}
	return false, nil
}

// scan steps the heading from angle until both range sensors see something within the zone
// or the heading passes endAngle, and returns the heading it stopped at.
func (p *Planner) scan(ctx context.Context, angle, endAngle float64) (float64, error) {
	for {
		angle += p.cfg.SweepStepDeg
		if err := p.base.TurnTo(ctx, angle, true); err != nil {
			return angle, err
		}
		if angle > endAngle {
			return angle, nil
		}
		left, right, err := p.rangeOnce(ctx)
		if err != nil {
			return angle, err
		}
		if float64(left) <= p.geo.maxObjectCM && float64(right) <= p.geo.maxObjectCM {
			p.logger.Debugw("object in view", "heading", angle, "left", left, "right", right)
			return angle, nil
		}
	}
}

// approach drives at the block until either range sensor is within close range. It gives up,
// returning false, once the robot is further than the approach limit from origin.
func (p *Planner) approach(ctx context.Context, origin r2.Point) (bool, error) {
	if err := p.base.GoForwardAtSpeed(ctx, p.cfg.ApproachSpeed); err != nil {
		return false, err
	}
	reached := true
	err := operation.WaitFor(ctx, p.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		left, right, err := p.rangeOnce(ctx)
		if err != nil {
			return false, err
		}
		if left <= p.cfg.CloseRangeCM || right <= p.cfg.CloseRangeCM {
			return true, nil
		}
		if p.position().Sub(origin).Norm() > p.cfg.MaxApproachCM {
			reached = false
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return false, stopAfter(ctx, p.base, err)
	}
	// let the block settle into the color sensor's view
	if err := p.sleep(ctx, p.cfg.CoastDelay); err != nil {
		return false, stopAfter(ctx, p.base, err)
	}
	return reached, p.base.Stop(ctx)
}

// handleBlock identifies the block in front, backs away, turns the claw toward it and grabs
// it. The target is kept; anything else is dropped outside the zone and the robot returns to
// origin.
func (p *Planner) handleBlock(ctx context.Context, origin r2.Point, target detection.BlockClass) (bool, error) {
	class, err := p.detector.ClassifyObject(ctx)
	if err != nil {
		return false, err
	}
	p.logger.Infow("block identified", "class", class.String(), "target", target.String(), "pose", p.pose.Pose().String())

	if err := p.backOff(ctx); err != nil {
		return false, err
	}
	if err := p.base.TurnTo(ctx, p.pose.Pose().Theta+180, true); err != nil {
		return false, err
	}

	if class == target {
		if err := p.base.MoveStraight(ctx, -p.cfg.CaptureReverseCM, 0); err != nil {
			return false, err
		}
		if err := p.gripper.Grab(ctx); err != nil {
			return false, err
		}
		p.logger.Infow("flag captured", "pose", p.pose.Pose().String())
		return true, p.base.TurnTo(ctx, 0, true)
	}

	if err := p.base.MoveStraight(ctx, -p.cfg.RelocateReverseCM, 0); err != nil {
		return false, err
	}
	if err := p.gripper.Grab(ctx); err != nil {
		return false, err
	}
	drop := r2.Point{X: p.geo.flag.X.Lo - p.cfg.RelocateOffsetCM, Y: p.geo.flag.Center().Y}
	p.logger.Debugw("relocating block", "class", class.String(), "to", drop)
	if err := p.base.TravelTo(ctx, drop.X, drop.Y); err != nil {
		return false, err
	}
	if err := p.base.TurnTo(ctx, 0, true); err != nil {
		return false, err
	}
	if err := p.gripper.Open(ctx); err != nil {
		return false, err
	}
	return false, p.base.TravelTo(ctx, origin.X, origin.Y)
}

// backOff reverses for the backoff delay and then until there is room to turn.
func (p *Planner) backOff(ctx context.Context) error {
	if err := p.base.GoForwardAtSpeed(ctx, -p.cfg.ApproachSpeed); err != nil {
		return err
	}
	err := p.sleep(ctx, p.cfg.BackoffDelay)
	if err == nil {
		err = operation.WaitFor(ctx, p.cfg.PollInterval, func(ctx context.Context) (bool, error) {
			left, right, err := p.rangeOnce(ctx)
			if err != nil {
				return false, err
			}
			return left >= p.cfg.TurnClearanceCM && right >= p.cfg.TurnClearanceCM, nil
		})
	}
	if err != nil {
		return stopAfter(ctx, p.base, err)
	}
	return p.base.Stop(ctx)
}

// rangeOnce takes one unfiltered reading from each range sensor.
func (p *Planner) rangeOnce(ctx context.Context) (int, int, error) {
	left, err := p.detector.DistanceLeftOnce(ctx)
	if err != nil {
		return 0, 0, err
	}
	right, err := p.detector.DistanceRightOnce(ctx)
	if err != nil {
		return 0, 0, err
	}
	return left, right, nil
}
