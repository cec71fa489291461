package mission

import (
	"math"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/flagbot-robotics/flagbot/services/detection"
)

// TilePoint is a gridline intersection in tile units.
type TilePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Point is the intersection as a vector in tile units.
func (t TilePoint) Point() r2.Point {
	return r2.Point{X: t.X, Y: t.Y}
}

// Params are the mission parameters received from the handshake. Coordinates are in tile
// units of the field frame, which has corner 1 at its origin.
type Params struct {
	FlagLowerLeft  TilePoint            `json:"flag_lower_left"`
	FlagUpperRight TilePoint            `json:"flag_upper_right"`
	Delivery       TilePoint            `json:"delivery"`
	Avoid          TilePoint            `json:"avoid"`
	TargetColor    detection.BlockClass `json:"target_color"`
	Corner         int                  `json:"corner"`
}

// Validate ensures the parameters describe a mission the planner can run.
func (p *Params) Validate() error {
	if p.FlagUpperRight.X <= p.FlagLowerLeft.X || p.FlagUpperRight.Y <= p.FlagLowerLeft.Y {
		return errors.New("flag zone upper right must be above and right of its lower left")
	}
	if !p.TargetColor.IsFlag() {
		return errors.Errorf("target color %s is not a flag color", p.TargetColor)
	}
	if p.Corner < 1 || p.Corner > 4 {
		return errors.Errorf("starting corner must be 1-4, got %d", p.Corner)
	}
	return nil
}

// InCornerFrame re-expresses every zone in the frame of the starting corner, where the robot
// starts at the origin. The result is marked as corner 1.
func (p Params) InCornerFrame(gridSize float64) (Params, error) {
	if p.Corner == 1 {
		return p, nil
	}
	toFrame := func(lo, hi TilePoint) (TilePoint, TilePoint, error) {
		x1, y1, err := TransformToCorner(lo.X, lo.Y, p.Corner, gridSize)
		if err != nil {
			return TilePoint{}, TilePoint{}, err
		}
		x2, y2, err := TransformToCorner(hi.X, hi.Y, p.Corner, gridSize)
		if err != nil {
			return TilePoint{}, TilePoint{}, err
		}
		return TilePoint{X: math.Min(x1, x2), Y: math.Min(y1, y2)}, TilePoint{X: math.Max(x1, x2), Y: math.Max(y1, y2)}, nil
	}
	tileToFrame := func(t TilePoint) (TilePoint, error) {
		lo, _, err := toFrame(t, TilePoint{X: t.X + 1, Y: t.Y + 1})
		return lo, err
	}

	out := p
	var err error
	if out.FlagLowerLeft, out.FlagUpperRight, err = toFrame(p.FlagLowerLeft, p.FlagUpperRight); err != nil {
		return Params{}, err
	}
	if out.Delivery, err = tileToFrame(p.Delivery); err != nil {
		return Params{}, err
	}
	if out.Avoid, err = tileToFrame(p.Avoid); err != nil {
		return Params{}, err
	}
	out.Corner = 1
	return out, nil
}

// DecodeParams decodes the handshake payload. Colors may be given by id or by name.
func DecodeParams(attributes map[string]interface{}) (Params, error) {
	var params Params
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      &params,
		ErrorUnused: true,
		DecodeHook:  blockClassHook,
	})
	if err != nil {
		return Params{}, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return Params{}, errors.Wrap(err, "decoding mission parameters")
	}
	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}

var blockClassType = reflect.TypeOf(detection.None)

func blockClassHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != blockClassType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return detection.ParseBlockClass(v)
	case float64:
		if v != math.Trunc(v) {
			return nil, errors.Errorf("color id %v is not an integer", v)
		}
		return detection.BlockClass(int(v)), nil
	case int:
		return detection.BlockClass(v), nil
	default:
		return data, nil
	}
}
