// Package robot assembles the components and services of one flagbot from its hardware and
// configuration.
package robot

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/flagbot-robotics/flagbot/components/base/wheeled"
	"github.com/flagbot-robotics/flagbot/components/gripper"
	"github.com/flagbot-robotics/flagbot/components/motor"
	"github.com/flagbot-robotics/flagbot/components/movementsensor/odometer"
	"github.com/flagbot-robotics/flagbot/components/sensor"
	"github.com/flagbot-robotics/flagbot/config"
	"github.com/flagbot-robotics/flagbot/services/detection"
	"github.com/flagbot-robotics/flagbot/services/linecorrector"
	"github.com/flagbot-robotics/flagbot/services/localizer"
	"github.com/flagbot-robotics/flagbot/services/mission"
	"github.com/flagbot-robotics/flagbot/services/obstacle"
	"github.com/flagbot-robotics/flagbot/spatialmath"
)

// Hardware is the set of devices a robot is built from.
type Hardware struct {
	LeftWheel, RightWheel motor.Motor
	ClawArms              []motor.Motor

	// LeftRange also serves the localizer.
	LeftRange, RightRange sensor.RangeSensor
	Color                 sensor.ColorSensor
	LeftFloor, RightFloor sensor.ColorSensor

	// LineLight may be nil when line correction is disabled.
	LineLight sensor.ColorSensor
}

// Robot owns every component and service.
type Robot struct {
	cfg    config.Config
	logger golog.Logger

	Odometer   *odometer.Odometer
	Base       *wheeled.Base
	Corrector  *linecorrector.Corrector
	Filter     *obstacle.Filter
	Classifier *detection.Classifier
	Claw       *gripper.Claw
	Localizer  *localizer.Localizer
	Planner    *mission.Planner
}

// New builds a stopped robot. cfg is validated first.
func New(cfg config.Config, hw Hardware, clk clock.Clock, logger golog.Logger) (*Robot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	r := &Robot{cfg: cfg, logger: logger}

	var err error
	r.Odometer, err = odometer.New(hw.LeftWheel, hw.RightWheel, cfg.OdometerConfig(), clk, logger.Named("odometer"))
	if err != nil {
		return nil, err
	}
	r.Base, err = wheeled.New(hw.LeftWheel, hw.RightWheel, r.Odometer, cfg.Drive, logger.Named("base"))
	if err != nil {
		return nil, err
	}

	var grid mission.GridAligner
	if !cfg.DisableLineCorrection {
		if hw.LineLight == nil {
			return nil, errors.New("line correction is enabled but there is no line light sensor")
		}
		r.Corrector, err = linecorrector.New(hw.LineLight, r.Odometer, r.Base, cfg.LineCorrection, logger.Named("line_correction"))
		if err != nil {
			return nil, err
		}
		grid = r.Corrector
	}

	r.Filter, err = obstacle.New(hw.LeftRange, hw.RightRange, cfg.Obstacle, logger.Named("obstacle"))
	if err != nil {
		return nil, err
	}
	r.Classifier, err = detection.New(hw.Color, hw.LeftRange, hw.RightRange, cfg.Detection, clk, logger.Named("detection"))
	if err != nil {
		return nil, err
	}
	r.Claw, err = gripper.NewClaw(cfg.Claw, logger.Named("claw"), hw.ClawArms...)
	if err != nil {
		return nil, err
	}
	r.Localizer, err = localizer.New(
		r.Base, r.Odometer, hw.LeftRange, hw.LeftFloor, hw.RightFloor,
		cfg.Localization, clk, logger.Named("localization"),
	)
	if err != nil {
		return nil, err
	}
	r.Planner, err = mission.New(
		r.Base, r.Odometer, r.Filter, r.Classifier, r.Claw, grid,
		cfg.Mission, clk, logger.Named("mission"),
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Start records the tachometer baseline at start and begins dead reckoning and line
// correction.
func (r *Robot) Start(ctx context.Context, start spatialmath.Pose) error {
	r.Odometer.Reset()
	if err := r.Odometer.Tick(ctx); err != nil {
		return err
	}
	r.Odometer.SetPose(start, spatialmath.MaskAll)
	r.Odometer.Start()
	if r.Corrector != nil {
		r.Corrector.Start()
	}
	r.logger.Infow("robot started", "pose", start.String())
	return nil
}

// Localize finds the robot's pose in its corner. Line correction is paused meanwhile since
// the pose is unknown until localization ends.
func (r *Robot) Localize(ctx context.Context) error {
	if r.Corrector != nil {
		if err := r.Corrector.Close(); err != nil {
			return err
		}
		defer r.Corrector.Start()
	}
	return r.Localizer.Localize(ctx)
}

// RunMission carries out the mission described by params.
func (r *Robot) RunMission(ctx context.Context, params mission.Params) error {
	return r.Planner.Run(ctx, params)
}

// Pose is the current pose estimate.
func (r *Robot) Pose() spatialmath.Pose {
	return r.Odometer.Pose()
}

// Close stops every background loop and every motor.
func (r *Robot) Close(ctx context.Context) error {
	r.Filter.Stop()
	var err error
	if r.Corrector != nil {
		err = multierr.Combine(err, r.Corrector.Close())
	}
	return multierr.Combine(
		err,
		r.Base.Close(ctx),
		r.Claw.Stop(ctx),
		r.Odometer.Close(),
	)
}
