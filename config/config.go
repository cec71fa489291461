// Package config defines the structures to configure the robot and its services, and reads them
// from a JSON file.
package config

import (
	"encoding/json"
	"time"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"github.com/flagbot-robotics/flagbot/components/base/wheeled"
	"github.com/flagbot-robotics/flagbot/components/gripper"
	"github.com/flagbot-robotics/flagbot/components/movementsensor/odometer"
	"github.com/flagbot-robotics/flagbot/logging"
	"github.com/flagbot-robotics/flagbot/services/detection"
	"github.com/flagbot-robotics/flagbot/services/linecorrector"
	"github.com/flagbot-robotics/flagbot/services/localizer"
	"github.com/flagbot-robotics/flagbot/services/mission"
	"github.com/flagbot-robotics/flagbot/services/obstacle"
)

const defaultOdometryPeriod = odometer.DefaultPeriod

// Config describes the whole robot: its drive, every service, and logging.
type Config struct {
	Drive          wheeled.Config `json:"drive"`
	OdometryPeriod time.Duration  `json:"odometry_period"`

	LineCorrection        linecorrector.Config `json:"line_correction"`
	DisableLineCorrection bool                 `json:"disable_line_correction"`

	Obstacle     obstacle.Config  `json:"obstacle"`
	Detection    detection.Config `json:"detection"`
	Claw         gripper.Config   `json:"claw"`
	Localization localizer.Config `json:"localization"`
	Mission      mission.Config   `json:"mission"`
	Logging      logging.Config   `json:"logging"`
}

// Default is the configuration the robot was tuned with.
func Default() Config {
	thresholds := detection.DefaultThresholds()
	return Config{
		Drive: wheeled.Config{
			WheelRadiusCM:       2.1,
			TrackWidthCM:        17.25,
			TravelSpeed:         200,
			TurnSpeed:           160,
			HeadingToleranceDeg: 5,
			MaxHeadingRetries:   10,
		},
		OdometryPeriod: defaultOdometryPeriod,
		LineCorrection: linecorrector.Config{
			Period:         10 * time.Millisecond,
			LightThreshold: 490,
			LineSpacingCM:  mission.TileLengthCM,
		},
		Obstacle: obstacle.Config{
			WindowSize:    10,
			MaxDistanceCM: 20,
			PollInterval:  time.Millisecond,
		},
		Detection: detection.Config{
			Thresholds:     &thresholds,
			AverageSamples: 10,
			SettleDelay:    50 * time.Millisecond,
			WallDistanceCM: 20,
		},
		Claw: gripper.Config{
			ClosedPosition: -200,
			DegsPerSec:     120,
		},
		Localization: localizer.DefaultConfig(),
		Mission:      mission.DefaultConfig(),
		Logging:      logging.Config{Level: "info"},
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	if err := c.Drive.Validate("drive"); err != nil {
		return err
	}
	if c.OdometryPeriod < 0 {
		return errors.New("odometry_period must not be negative")
	}
	if !c.DisableLineCorrection {
		if err := c.LineCorrection.Validate("line_correction"); err != nil {
			return err
		}
	}
	if err := c.Obstacle.Validate("obstacle"); err != nil {
		return err
	}
	if err := c.Detection.Validate("detection"); err != nil {
		return err
	}
	if c.Claw.DegsPerSec < 0 {
		return errors.New("claw: degs_per_sec must not be negative")
	}
	if err := c.Localization.Validate("localization"); err != nil {
		return err
	}
	if err := c.Mission.Validate("mission"); err != nil {
		return err
	}
	return c.Logging.Validate("logging")
}

// OdometerConfig derives the odometer settings from the drive geometry.
func (c *Config) OdometerConfig() odometer.Config {
	return odometer.Config{
		WheelRadiusCM: c.Drive.WheelRadiusCM,
		TrackWidthCM:  c.Drive.TrackWidthCM,
		Period:        c.OdometryPeriod,
	}
}

// FromAttributes overlays attrs on the defaults and validates the result. Durations may be
// given as strings such as "20ms" or as nanoseconds.
func FromAttributes(attrs map[string]interface{}) (*Config, error) {
	cfg := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		ErrorUnused: true,
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
		Result:      &cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attrs); err != nil {
		return nil, errors.Wrap(err, "cannot decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromJSON parses a JSON document into a config.
func FromJSON(data []byte) (*Config, error) {
	attrs := map[string]interface{}{}
	if len(data) != 0 {
		if err := json.Unmarshal(data, &attrs); err != nil {
			return nil, errors.Wrap(err, "cannot parse config")
		}
	}
	return FromAttributes(attrs)
}

// Read reads the config file at filePath, expanding environment variables first.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %q", filePath)
	}
	return FromJSON(buf)
}
