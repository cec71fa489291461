package mission

import (
	"github.com/golang/geo/r2"
)

// TileLengthCM is the side of one floor tile.
const TileLengthCM = 30.48

// Zone is an axis aligned region of the field in centimeters.
type Zone struct {
	r2.Rect
}

// ZoneFromTiles spans the tiles between two gridline intersections given in tile units,
// grown by padding on every side.
func ZoneFromTiles(lowerLeft, upperRight TilePoint, tileLength, padding float64) Zone {
	lo := lowerLeft.Point().Mul(tileLength)
	hi := upperRight.Point().Mul(tileLength)
	return Zone{r2.RectFromPoints(lo, hi).ExpandedByMargin(padding)}
}

// TileZone is the single tile whose lower left corner is at tile.
func TileZone(tile TilePoint, tileLength, padding float64) Zone {
	return ZoneFromTiles(tile, TilePoint{X: tile.X + 1, Y: tile.Y + 1}, tileLength, padding)
}

// Contains reports whether p lies strictly inside the zone.
func (z Zone) Contains(p r2.Point) bool {
	return z.InteriorContainsPoint(p)
}

// Transformed maps the zone through a rigid transform that keeps it axis aligned.
func (z Zone) Transformed(f func(r2.Point) r2.Point) Zone {
	return Zone{r2.RectFromPoints(f(z.Lo()), f(z.Hi()))}
}
