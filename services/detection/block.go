package detection

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// BlockClass is the identity of an object on the field. The numeric values are the color ids
// used by the mission handshake.
type BlockClass int

// The known object classes. None means the object could not be classified.
const (
	None BlockClass = iota
	LightBlue
	Red
	Yellow
	White
	DarkBlue
	Wood
)

var blockClassNames = map[BlockClass]string{
	None:      "none",
	LightBlue: "light blue",
	Red:       "red",
	Yellow:    "yellow",
	White:     "white",
	DarkBlue:  "dark blue",
	Wood:      "wood",
}

func (c BlockClass) String() string {
	if name, ok := blockClassNames[c]; ok {
		return name
	}
	return fmt.Sprintf("block(%d)", int(c))
}

// IsFlag reports whether c is a color that can be assigned as the flag.
func (c BlockClass) IsFlag() bool {
	return c >= LightBlue && c <= DarkBlue
}

// ParseBlockClass converts a class name such as "dark blue" or "dark_blue" into a BlockClass.
func ParseBlockClass(value string) (BlockClass, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.NewReplacer("_", " ", "-", " ").Replace(normalized)
	for class, name := range blockClassNames {
		if name == normalized {
			return class, nil
		}
	}
	return None, errors.Errorf("unknown block class %q", value)
}
