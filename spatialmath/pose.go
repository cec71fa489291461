// Package spatialmath defines the planar pose and heading conventions shared by the robot's
// components and services.
//
// Distances are centimeters and headings are degrees in [0, 360). Heading 0 points along +X
// and headings grow counter-clockwise, so heading 90 points along +Y.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"github.com/flagbot-robotics/flagbot/utils"
)

// Pose is the robot's position and heading in the arena frame.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// NewPose returns a pose with its heading normalized.
func NewPose(x, y, theta float64) Pose {
	return Pose{X: x, Y: y, Theta: utils.ModAngDeg(theta)}
}

// Point drops the heading.
func (p Pose) Point() r2.Point {
	return r2.Point{X: p.X, Y: p.Y}
}

// DistanceTo is the straight line distance from the pose to (x, y).
func (p Pose) DistanceTo(x, y float64) float64 {
	return math.Hypot(x-p.X, y-p.Y)
}

// BearingTo is the heading that points from the pose at (x, y).
func (p Pose) BearingTo(x, y float64) float64 {
	return utils.ModAngDeg(utils.RadToDeg(math.Atan2(y-p.Y, x-p.X)))
}

// Forward is the unit vector along the heading.
func (p Pose) Forward() r2.Point {
	rad := utils.DegToRad(p.Theta)
	return r2.Point{X: math.Cos(rad), Y: math.Sin(rad)}
}

// Apply overwrites the components of p selected by mask with those of update.
func (p Pose) Apply(update Pose, mask Mask) Pose {
	if mask&MaskX != 0 {
		p.X = update.X
	}
	if mask&MaskY != 0 {
		p.Y = update.Y
	}
	if mask&MaskTheta != 0 {
		p.Theta = utils.ModAngDeg(update.Theta)
	}
	return p
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.1f°)", p.X, p.Y, p.Theta)
}

// Mask selects pose components for a partial write.
type Mask uint8

// The pose components.
const (
	MaskX Mask = 1 << iota
	MaskY
	MaskTheta

	MaskAll = MaskX | MaskY | MaskTheta
)

// Direction is one of the four axis aligned travel directions.
type Direction int

// The travel directions, in the order the greedy path planner prefers them.
const (
	Up Direction = iota
	Right
	Down
	Left
)

// Heading of the direction.
func (d Direction) Heading() float64 {
	return float64(d) * 90
}

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Right:
		return "right"
	case Down:
		return "down"
	case Left:
		return "left"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// NearestAxisIsX reports whether heading is closer to the X axis (0 or 180) than to the Y
// axis (90 or 270).
func NearestAxisIsX(heading float64) bool {
	quadrant := int(math.Round(utils.ModAngDeg(heading)/90)) % 4
	return quadrant%2 == 0
}
