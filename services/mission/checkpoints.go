package mission

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// ErrCheckpointsExhausted is returned when backtracking runs out of checkpoints.
var ErrCheckpointsExhausted = errors.New("no checkpoint left to backtrack to")

// CheckpointStack records positions known to be reachable, most recent last.
type CheckpointStack struct {
	points []r2.Point
}

// Push records p.
func (s *CheckpointStack) Push(p r2.Point) {
	s.points = append(s.points, p)
}

// Pop removes and returns the most recent checkpoint.
func (s *CheckpointStack) Pop() (r2.Point, bool) {
	if len(s.points) == 0 {
		return r2.Point{}, false
	}
	p := s.points[len(s.points)-1]
	s.points = s.points[:len(s.points)-1]
	return p, true
}

// Len is the number of checkpoints left.
func (s *CheckpointStack) Len() int {
	return len(s.points)
}

// PopFarFrom discards checkpoints until it finds one at least minDist from p.
func (s *CheckpointStack) PopFarFrom(p r2.Point, minDist float64) (r2.Point, error) {
	for {
		cp, ok := s.Pop()
		if !ok {
			return r2.Point{}, ErrCheckpointsExhausted
		}
		if cp.Sub(p).Norm() >= minDist {
			return cp, nil
		}
	}
}
