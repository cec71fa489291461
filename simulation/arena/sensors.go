package arena

import (
	"context"
	"math"

	"github.com/golang/geo/r2"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/flagbot-robotics/flagbot/components/sensor"
	"github.com/flagbot-robotics/flagbot/utils"
)

// beamRays is how many rays sample the beam against the walls.
const beamRays = 9

// ambientColor is what the color sensor sees with nothing in front of it.
var ambientColor = colorful.Color{R: 0.04, G: 0.04, B: 0.04}

// mountPoseInLock is the sensor's position and pointing direction in the arena frame.
func (w *World) mountPoseInLock(m Mount) (r2.Point, float64) {
	return w.toWorldInLock(r2.Point{X: m.X, Y: m.Y}), utils.ModAngDeg(w.pose.Theta + m.Z)
}

// RangeSensor is a simulated ultrasonic sensor with a conical beam.
type RangeSensor struct {
	world *World
	mount Mount
}

var _ sensor.RangeSensor = (*RangeSensor)(nil)

// LeftRange is the left forward range sensor.
func (w *World) LeftRange() *RangeSensor { return &RangeSensor{world: w, mount: w.cfg.LeftRange} }

// RightRange is the right forward range sensor.
func (w *World) RightRange() *RangeSensor { return &RangeSensor{world: w, mount: w.cfg.RightRange} }

// Ping returns the distance to the closest wall or loose block inside the beam.
func (s *RangeSensor) Ping(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	w := s.world
	w.mu.Lock()
	defer w.mu.Unlock()

	origin, heading := w.mountPoseInLock(s.mount)
	half := w.cfg.BeamHalfAngleDeg
	best := math.Inf(1)
	for i := 0; i < beamRays; i++ {
		angle := heading - half + 2*half*float64(i)/float64(beamRays-1)
		best = math.Min(best, w.wallDistanceInLock(origin, angle))
	}
	for _, b := range w.blocks {
		if b == w.held {
			continue
		}
		rel := b.Center.Sub(origin)
		dist := rel.Norm()
		if dist <= b.RadiusCM {
			best = 0
			continue
		}
		bearing := utils.RadToDeg(math.Atan2(rel.Y, rel.X))
		spread := utils.RadToDeg(math.Asin(b.RadiusCM / dist))
		if utils.AngleDiffDeg(bearing, heading)-spread <= half {
			best = math.Min(best, dist-b.RadiusCM)
		}
	}
	if best >= sensor.NoEcho {
		return sensor.NoEcho, nil
	}
	return int(math.Round(best)), nil
}

// EnableContinuous is a no-op; simulated pings are always fresh.
func (s *RangeSensor) EnableContinuous(ctx context.Context) error {
	return ctx.Err()
}

// wallDistanceInLock casts a ray from inside the arena to the wall.
func (w *World) wallDistanceInLock(origin r2.Point, headingDeg float64) float64 {
	rad := utils.DegToRad(headingDeg)
	dx, dy := math.Cos(rad), math.Sin(rad)
	t := math.Inf(1)
	if dx > 1e-9 {
		t = math.Min(t, (w.walls.X.Hi-origin.X)/dx)
	} else if dx < -1e-9 {
		t = math.Min(t, (w.walls.X.Lo-origin.X)/dx)
	}
	if dy > 1e-9 {
		t = math.Min(t, (w.walls.Y.Hi-origin.Y)/dy)
	} else if dy < -1e-9 {
		t = math.Min(t, (w.walls.Y.Lo-origin.Y)/dy)
	}
	return math.Max(t, 0)
}

// ColorSensor is the forward facing color sensor used to identify blocks.
type ColorSensor struct {
	world *World
	mount Mount
	on    bool
}

var _ sensor.ColorSensor = (*ColorSensor)(nil)

// ColorSensor returns the block identification sensor.
func (w *World) ColorSensor() *ColorSensor { return &ColorSensor{world: w, mount: w.cfg.ColorSensor} }

// ColorComponents reads the color of a block right in front of the sensor.
func (s *ColorSensor) ColorComponents(ctx context.Context) (int, int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, 0, err
	}
	w := s.world
	w.mu.Lock()
	defer w.mu.Unlock()

	origin, heading := w.mountPoseInLock(s.mount)
	seen := ambientColor
	best := w.cfg.ColorRangeCM
	for _, b := range w.blocks {
		if b == w.held {
			continue
		}
		rel := b.Center.Sub(origin)
		surface := rel.Norm() - b.RadiusCM
		bearing := utils.RadToDeg(math.Atan2(rel.Y, rel.X))
		if surface <= best && utils.AngleDiffDeg(bearing, heading) <= 45 {
			seen, best = b.Color, surface
		}
	}
	r, g, b := seen.RGB255()
	return int(r), int(g), int(b), nil
}

// RawIntensity is the mean of the color components.
func (s *ColorSensor) RawIntensity(ctx context.Context) (int, error) {
	r, g, b, err := s.ColorComponents(ctx)
	return (r + g + b) / 3, err
}

// SetIlluminator toggles the sensor light.
func (s *ColorSensor) SetIlluminator(ctx context.Context, on bool) error {
	s.world.mu.Lock()
	defer s.world.mu.Unlock()
	s.on = on
	return nil
}

// FloorSensor is a downward facing light sensor that sees gridlines.
type FloorSensor struct {
	world *World
	mount Mount
}

var _ sensor.ColorSensor = (*FloorSensor)(nil)

// LeftFloor is the left downward light sensor.
func (w *World) LeftFloor() *FloorSensor { return &FloorSensor{world: w, mount: w.cfg.LeftFloor} }

// RightFloor is the right downward light sensor.
func (w *World) RightFloor() *FloorSensor { return &FloorSensor{world: w, mount: w.cfg.RightFloor} }

// LineFloor is the downward light sensor used to correct odometry.
func (w *World) LineFloor() *FloorSensor { return &FloorSensor{world: w, mount: w.cfg.LineFloor} }

// RawIntensity is dark over a gridline and bright elsewhere.
func (s *FloorSensor) RawIntensity(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	w := s.world
	w.mu.Lock()
	defer w.mu.Unlock()
	p, _ := w.mountPoseInLock(s.mount)
	if w.onGridlineInLock(p.X) || w.onGridlineInLock(p.Y) {
		return w.cfg.LineLevel, nil
	}
	return w.cfg.FloorLevel, nil
}

// ColorComponents reports the intensity on every channel.
func (s *FloorSensor) ColorComponents(ctx context.Context) (int, int, int, error) {
	v, err := s.RawIntensity(ctx)
	return v, v, v, err
}

// SetIlluminator is a no-op; the floor sensor always lights the floor.
func (s *FloorSensor) SetIlluminator(ctx context.Context, on bool) error {
	return nil
}

// onGridlineInLock reports whether coord lies on one of the gridlines at 0, tile, 2*tile ...
func (w *World) onGridlineInLock(coord float64) bool {
	k := math.Round(coord / w.cfg.TileCM)
	if k < 0 || k > float64(w.cfg.Tiles) {
		return false
	}
	return math.Abs(coord-k*w.cfg.TileCM) <= w.cfg.LineWidthCM/2
}
