package mission

import (
	"github.com/pkg/errors"
)

// DefaultGridSize is the number of tiles along each side of the field.
const DefaultGridSize = 10

// TransformToCorner maps a point given in the field frame, where corner 1 is the origin, into
// the frame of the corner the robot starts in. Corners are numbered counter-clockwise starting
// at the origin, and each one sees the field rotated a further quarter turn.
func TransformToCorner(x, y float64, corner int, gridSize float64) (float64, float64, error) {
	switch corner {
	case 1:
		return x, y, nil
	case 2:
		return y, gridSize - x, nil
	case 3:
		return gridSize - x, gridSize - y, nil
	case 4:
		return gridSize - y, x, nil
	default:
		return 0, 0, errors.Errorf("starting corner must be 1-4, got %d", corner)
	}
}
