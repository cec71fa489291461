package mission

import (
	"context"
	"math"

	"github.com/golang/geo/r2"
	"go.uber.org/multierr"

	"github.com/flagbot-robotics/flagbot/spatialmath"
	"github.com/flagbot-robotics/flagbot/utils"
)

// Deliver carries the held flag to the delivery tile. When the tile is not up and to the right
// of the robot, the robot first moves to the flag zone edge facing the tile's quadrant and
// makes that its new origin, so the path finder's up and right preference points at the tile.
func (p *Planner) Deliver(ctx context.Context) error {
	if err := p.reframe(ctx); err != nil {
		return err
	}

	p.filter.ReinitializeWindows()
	p.filter.SetIsWall(false)
	p.filter.Start()
	err := p.PathTo(ctx, p.geo.drop, p.geo.avoid)
	p.filter.Stop()
	if err != nil {
		return err
	}
	if err := p.base.TravelTo(ctx, p.geo.drop.X, p.geo.drop.Y); err != nil {
		return err
	}
	if err := p.base.TurnTo(ctx, p.cfg.DeliveryHeadingDeg, true); err != nil {
		return err
	}
	p.logger.Infow("dropping the flag", "pose", p.pose.Pose().String())
	return p.gripper.Open(ctx)
}

// reframe picks the quadrant the drop point lies in and, unless it is ahead and to the right,
// rotates the pose frame to make it so.
func (p *Planner) reframe(ctx context.Context) error {
	here := p.position()
	drop := p.geo.drop
	zone := p.geo.flag
	mid := zone.Center()

	var anchor r2.Point
	var heading float64
	switch {
	case here.X >= drop.X && here.Y >= drop.Y:
		anchor, heading = r2.Point{X: zone.X.Lo, Y: mid.Y}, 180
	case here.X <= drop.X && here.Y >= drop.Y:
		anchor, heading = r2.Point{X: mid.X, Y: zone.Y.Lo}, 270
	case here.X >= drop.X && here.Y <= drop.Y:
		anchor, heading = r2.Point{X: mid.X, Y: zone.Y.Hi}, 90
	default:
		return p.base.TravelTo(ctx, zone.X.Hi, mid.Y)
	}

	if err := p.base.TravelTo(ctx, anchor.X, anchor.Y); err != nil {
		return err
	}
	if err := p.base.TurnTo(ctx, heading, true); err != nil {
		return err
	}

	toFrame := FrameTransform(anchor, heading)
	p.geo.drop = toFrame(p.geo.drop)
	p.geo.avoid = p.geo.avoid.Transformed(toFrame)
	p.pose.SetPose(spatialmath.Pose{}, spatialmath.MaskAll)
	if p.grid != nil {
		p.grid.SetGridOrigin(toFrame(r2.Point{}))
	}
	p.logger.Infow("pose frame moved", "origin", anchor, "heading", heading, "drop", p.geo.drop, "avoid", p.geo.avoid.Rect)
	return nil
}

// FrameTransform maps points into the frame whose origin is at origin with its X axis along
// heading.
func FrameTransform(origin r2.Point, heading float64) func(r2.Point) r2.Point {
	rad := utils.DegToRad(heading)
	sin, cos := math.Sin(rad), math.Cos(rad)
	return func(q r2.Point) r2.Point {
		d := q.Sub(origin)
		return r2.Point{X: d.X*cos + d.Y*sin, Y: -d.X*sin + d.Y*cos}
	}
}

// stopAfter stops the base after a failed wait, even when ctx is already done.
func stopAfter(ctx context.Context, base Base, err error) error {
	return multierr.Combine(err, base.Stop(context.WithoutCancel(ctx)))
}
