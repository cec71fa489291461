package mission

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/flagbot-robotics/flagbot/operation"
	"github.com/flagbot-robotics/flagbot/spatialmath"
)

// stopReason is why a straight advance ended.
type stopReason int

const (
	reasonArrived stopReason = iota
	reasonBlocked
	reasonInAvoidZone
	reasonAxisReached
	reasonDetourDone
)

// pathState is the path finder's memory for one PathTo call.
type pathState struct {
	dest        r2.Point
	avoid       Zone
	dir         spatialmath.Direction
	atEndX      bool
	atEndY      bool
	checkpoints CheckpointStack
	lastSaved   r2.Point
}

// arrived is true past the destination on both axes or within the arrival radius of it.
func (p *Planner) arrived(pt, dest r2.Point) bool {
	return (pt.X >= dest.X && pt.Y >= dest.Y) || pt.Sub(dest).Norm() < p.cfg.ArriveRadiusCM
}

// PathTo drives toward dest along the grid axes, going around walls and the avoid zone. The
// obstacle filter must be running. It returns without moving when already at dest.
func (p *Planner) PathTo(ctx context.Context, dest r2.Point, avoid Zone) error {
	start := p.position()
	if p.arrived(start, dest) {
		return nil
	}
	p.logger.Debugw("path finding", "from", start, "to", dest)
	st := &pathState{dest: dest, avoid: avoid, dir: spatialmath.Up, lastSaved: start}
	st.checkpoints.Push(start)

	for {
		if p.arrived(p.position(), dest) {
			return nil
		}
		reason, err := p.advance(ctx, st)
		if err != nil {
			return err
		}

		switch reason {
		case reasonArrived:
			return nil
		case reasonAxisReached:
			if st.dir == spatialmath.Up {
				st.atEndX = true
				st.dir = spatialmath.Right
			} else {
				st.atEndY = true
				st.dir = spatialmath.Up
			}
			continue
		case reasonDetourDone:
			if st.dir == spatialmath.Down {
				st.atEndX = false
				st.dir = spatialmath.Right
			} else {
				st.atEndY = false
				st.dir = spatialmath.Up
			}
			continue
		case reasonInAvoidZone:
			if err := p.leaveAvoidZone(ctx); err != nil {
				return err
			}
		case reasonBlocked:
		}

		if err := p.turnAway(ctx, st); err != nil {
			return err
		}
		p.filter.ReinitializeWindows()
		p.filter.SetIsWall(false)
	}
}

// advance drives along the current direction until something makes it stop.
func (p *Planner) advance(ctx context.Context, st *pathState) (reason stopReason, err error) {
	if err := p.base.TurnTo(ctx, st.dir.Heading(), true); err != nil {
		return 0, err
	}
	if err := p.base.GoForwardAtSpeed(ctx, p.cfg.DriveSpeed); err != nil {
		return 0, err
	}
	defer func() {
		if stopErr := p.base.Stop(ctx); err == nil {
			err = stopErr
		}
	}()

	from := p.position()
	err = operation.WaitFor(ctx, p.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		pt := p.position()
		switch {
		case p.filter.IsWall():
			reason = reasonBlocked
			return true, nil
		case st.avoid.Contains(pt):
			reason = reasonInAvoidZone
			return true, nil
		case p.arrived(pt, st.dest):
			reason = reasonArrived
			return true, nil
		}

		if pt.Sub(st.lastSaved).Norm() > p.cfg.CheckpointSpacingCM {
			st.checkpoints.Push(pt)
			st.lastSaved = pt
		}

		switch st.dir {
		case spatialmath.Up:
			if pt.X >= st.dest.X {
				reason = reasonAxisReached
				return true, nil
			}
		case spatialmath.Right:
			if pt.Y >= st.dest.Y {
				reason = reasonAxisReached
				return true, nil
			}
		case spatialmath.Down, spatialmath.Left:
			if pt.Sub(from).Norm() >= p.cfg.DetourCM {
				reason = reasonDetourDone
				return true, nil
			}
		}
		return false, nil
	})
	return reason, err
}

// leaveAvoidZone reverses out of the avoid zone.
func (p *Planner) leaveAvoidZone(ctx context.Context) error {
	p.logger.Debugw("entered the avoid zone, backing out", "pose", p.pose.Pose().String())
	if err := p.base.GoForwardAtSpeed(ctx, -p.cfg.DriveSpeed); err != nil {
		return err
	}
	sleepErr := p.sleep(ctx, p.cfg.AvoidBackoff)
	if err := p.base.Stop(ctx); err != nil {
		return err
	}
	return sleepErr
}

// turnAway picks the next direction after being blocked. Up and right turn toward the other
// preferred direction unless that axis is already done, in which case they turn back. A
// blocked detour swaps to the other detour direction.
func (p *Planner) turnAway(ctx context.Context, st *pathState) error {
	switch st.dir {
	case spatialmath.Up:
		if st.atEndY {
			st.dir = spatialmath.Left
		} else {
			st.dir = spatialmath.Right
		}
	case spatialmath.Right:
		if st.atEndX {
			st.dir = spatialmath.Down
		} else {
			st.dir = spatialmath.Up
		}
	case spatialmath.Down:
		st.dir = spatialmath.Left
		return nil
	case spatialmath.Left:
		st.dir = spatialmath.Down
		return nil
	}
	p.logger.Debugw("blocked, turning", "direction", st.dir.String())

	if err := p.base.TurnTo(ctx, st.dir.Heading(), true); err != nil {
		return err
	}
	p.filter.ReinitializeWindows()
	p.filter.SetIsWall(false)
	if err := p.sleep(ctx, p.cfg.SettleDelay); err != nil {
		return err
	}
	if !p.filter.IsWall() {
		return nil
	}
	return p.backtrack(ctx, st)
}

// backtrack returns to the most recent checkpoint far enough away to give a different view.
func (p *Planner) backtrack(ctx context.Context, st *pathState) error {
	here := p.position()
	cp, err := st.checkpoints.PopFarFrom(here, p.cfg.BacktrackMinCM)
	if errors.Is(err, ErrCheckpointsExhausted) {
		p.logger.Warnw("both directions blocked and nowhere to backtrack", "pose", p.pose.Pose().String())
		return nil
	}
	if err != nil {
		return err
	}
	p.logger.Debugw("backtracking", "from", here, "to", cp)
	if err := p.base.Stop(ctx); err != nil {
		return err
	}
	if err := p.base.TravelTo(ctx, cp.X, cp.Y); err != nil {
		return err
	}
	st.lastSaved = cp
	return nil
}
