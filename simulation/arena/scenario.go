package arena

import (
	"encoding/json"
	"os"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"github.com/flagbot-robotics/flagbot/spatialmath"
)

// BlockPlacement places one block in a scenario. Color is a hex string such as "#c81e1e".
type BlockPlacement struct {
	Name     string  `json:"name"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	RadiusCM float64 `json:"radius_cm"`
	Color    string  `json:"color"`
}

// Scenario is a starting pose for the robot and the blocks on the floor.
type Scenario struct {
	Start  spatialmath.Pose `json:"start"`
	Blocks []BlockPlacement `json:"blocks"`
}

// DefaultScenario has a red block in the first tiles past the corner, a wooden block further
// away, and the robot somewhere in its corner tile.
func DefaultScenario() Scenario {
	return Scenario{
		Start: spatialmath.NewPose(-15, -15, 30),
		Blocks: []BlockPlacement{
			{Name: "red", X: 40, Y: 30.48, RadiusCM: 3.5, Color: "#c81e1e"},
			{Name: "wood", X: 20, Y: 150, RadiusCM: 3.5, Color: "#a0603c"},
		},
	}
}

// ReadScenario reads a JSON scenario file.
func ReadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, errors.Wrapf(err, "cannot read scenario %q", path)
	}
	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return Scenario{}, errors.Wrapf(err, "cannot parse scenario %q", path)
	}
	return s, nil
}

// Build creates a world for the scenario. The world is not started.
func (s Scenario) Build(cfg Config, logger golog.Logger) (*World, error) {
	w, err := NewWorld(cfg, s.Start, logger)
	if err != nil {
		return nil, err
	}
	for i, b := range s.Blocks {
		color, err := colorful.Hex(b.Color)
		if err != nil {
			return nil, errors.Wrapf(err, "blocks[%d].color", i)
		}
		if b.RadiusCM <= 0 {
			return nil, errors.Errorf("blocks[%d]: radius_cm must be positive", i)
		}
		name := b.Name
		if name == "" {
			name = color.Hex()
		}
		w.AddBlock(Block{Name: name, Center: r2.Point{X: b.X, Y: b.Y}, RadiusCM: b.RadiusCM, Color: color})
	}
	return w, nil
}
