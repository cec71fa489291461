// Package detection identifies objects by their color and reports how far away they are.
package detection

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/flagbot-robotics/flagbot/components/sensor"
	"github.com/flagbot-robotics/flagbot/utils"
)

const (
	defaultAverageSamples = 10
	defaultSettleDelay    = 50 * time.Millisecond
	defaultWallDistance   = 20
)

// Thresholds are the channel ratios that separate the classes. They were tuned against the
// real blocks under the sensor's own illuminator.
type Thresholds struct {
	RedOverBlue         float64 `json:"red_over_blue"`
	RedOverGreen        float64 `json:"red_over_green"`
	YellowRedOverBlue   float64 `json:"yellow_red_over_blue"`
	YellowGreenOverBlue float64 `json:"yellow_green_over_blue"`
	DarkBlueOverRed     float64 `json:"dark_blue_over_red"`
	WoodRedOverGreen    float64 `json:"wood_red_over_green"`
	WoodRedOverBlue     float64 `json:"wood_red_over_blue"`
	WhiteRedOverBlue    float64 `json:"white_red_over_blue"`
}

// DefaultThresholds are the tuned ratios.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RedOverBlue:         2.5,
		RedOverGreen:        2.5,
		YellowRedOverBlue:   2,
		YellowGreenOverBlue: 2,
		DarkBlueOverRed:     1.8,
		WoodRedOverGreen:    1.4,
		WoodRedOverBlue:     1.4,
		WhiteRedOverBlue:    1.1,
	}
}

// Classify applies the ratio rules in order; the first match wins and light blue is the
// fallback.
func Classify(r, g, b int, th Thresholds) BlockClass {
	red, green, blue := float64(r), float64(g), float64(b)
	switch {
	case red > th.RedOverBlue*blue && red > th.RedOverGreen*green:
		return Red
	case red > th.YellowRedOverBlue*blue && green > th.YellowGreenOverBlue*blue:
		return Yellow
	case blue > th.DarkBlueOverRed*red:
		return DarkBlue
	case red > th.WoodRedOverGreen*green && red > th.WoodRedOverBlue*blue:
		return Wood
	case red > th.WhiteRedOverBlue*blue:
		return White
	default:
		return LightBlue
	}
}

// Config holds the classifier constants.
type Config struct {
	Thresholds     *Thresholds   `json:"thresholds,omitempty"`
	AverageSamples int           `json:"average_samples"`
	SettleDelay    time.Duration `json:"settle_delay"`
	WallDistanceCM int           `json:"wall_distance_cm"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.AverageSamples < 0 {
		return errors.Errorf("%s: average_samples must not be negative", path)
	}
	if cfg.SettleDelay < 0 {
		return errors.Errorf("%s: settle_delay must not be negative", path)
	}
	return nil
}

// Classifier reads the forward color sensor and the two range sensors.
type Classifier struct {
	color       sensor.ColorSensor
	left, right sensor.RangeSensor
	thresholds  Thresholds
	cfg         Config
	clk         clock.Clock
	logger      golog.Logger
}

// New returns a classifier. Zero config values take the defaults.
func New(
	color sensor.ColorSensor,
	left, right sensor.RangeSensor,
	cfg Config,
	clk clock.Clock,
	logger golog.Logger,
) (*Classifier, error) {
	if err := cfg.Validate("detection"); err != nil {
		return nil, err
	}
	thresholds := DefaultThresholds()
	if cfg.Thresholds != nil {
		thresholds = *cfg.Thresholds
	}
	if cfg.AverageSamples == 0 {
		cfg.AverageSamples = defaultAverageSamples
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.WallDistanceCM == 0 {
		cfg.WallDistanceCM = defaultWallDistance
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Classifier{
		color:      color,
		left:       left,
		right:      right,
		thresholds: thresholds,
		cfg:        cfg,
		clk:        clk,
		logger:     logger,
	}, nil
}

// SampleRGB reads the raw color components of whatever is in front of the color sensor.
func (c *Classifier) SampleRGB(ctx context.Context) (r, g, b int, err error) {
	r, g, b, err = c.color.ColorComponents(ctx)
	if err != nil {
		return 0, 0, 0, errors.Wrap(err, "color sensor")
	}
	return r, g, b, nil
}

// ClassifyObject samples the color sensor once and classifies the reading.
func (c *Classifier) ClassifyObject(ctx context.Context) (BlockClass, error) {
	r, g, b, err := c.SampleRGB(ctx)
	if err != nil {
		return None, err
	}
	class := Classify(r, g, b, c.thresholds)
	c.logger.Debugw("classified object",
		"rgb", colorful.Color{R: clamp01(r), G: clamp01(g), B: clamp01(b)}.Hex(),
		"class", class.String())
	return class, nil
}

// DistanceLeftOnce is a single left range reading.
func (c *Classifier) DistanceLeftOnce(ctx context.Context) (int, error) {
	return c.once(ctx, c.left, "left")
}

// DistanceRightOnce is a single right range reading.
func (c *Classifier) DistanceRightOnce(ctx context.Context) (int, error) {
	return c.once(ctx, c.right, "right")
}

// DistanceLeftAveraged is the mean of several left readings taken a settle delay apart.
func (c *Classifier) DistanceLeftAveraged(ctx context.Context) (float64, error) {
	return c.averaged(ctx, c.left, "left")
}

// DistanceRightAveraged is the mean of several right readings taken a settle delay apart.
func (c *Classifier) DistanceRightAveraged(ctx context.Context) (float64, error) {
	return c.averaged(ctx, c.right, "right")
}

// WallInFront reports whether either sensor reads closer than the wall distance.
func (c *Classifier) WallInFront(ctx context.Context) (bool, error) {
	left, right, err := c.bothOnce(ctx)
	if err != nil {
		return false, err
	}
	return left < c.cfg.WallDistanceCM || right < c.cfg.WallDistanceCM, nil
}

// WallInFrontOfBoth reports whether both sensors read closer than the wall distance.
func (c *Classifier) WallInFrontOfBoth(ctx context.Context) (bool, error) {
	left, right, err := c.bothOnce(ctx)
	if err != nil {
		return false, err
	}
	return left < c.cfg.WallDistanceCM && right < c.cfg.WallDistanceCM, nil
}

func (c *Classifier) bothOnce(ctx context.Context) (int, int, error) {
	left, err := c.DistanceLeftOnce(ctx)
	if err != nil {
		return 0, 0, err
	}
	right, err := c.DistanceRightOnce(ctx)
	if err != nil {
		return 0, 0, err
	}
	return left, right, nil
}

func (c *Classifier) once(ctx context.Context, rs sensor.RangeSensor, side string) (int, error) {
	d, err := rs.Ping(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "%s range sensor", side)
	}
	return d, nil
}

func (c *Classifier) averaged(ctx context.Context, rs sensor.RangeSensor, side string) (float64, error) {
	samples := make(stats.Float64Data, 0, c.cfg.AverageSamples)
	for i := 0; i < c.cfg.AverageSamples; i++ {
		if i > 0 && !utils.SleepContext(ctx, c.clk, c.cfg.SettleDelay) {
			return 0, ctx.Err()
		}
		d, err := c.once(ctx, rs, side)
		if err != nil {
			return 0, err
		}
		samples = append(samples, float64(d))
	}
	return samples.Mean()
}

// clamp01 maps a raw channel reading onto colorful's unit range for logging.
func clamp01(v int) float64 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 1
	default:
		return float64(v) / 255
	}
}
