// Package main runs flagbot missions in the simulated arena and checks configuration files.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/a8m/envsubst"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/flagbot-robotics/flagbot/components/motor"
	"github.com/flagbot-robotics/flagbot/config"
	"github.com/flagbot-robotics/flagbot/logging"
	"github.com/flagbot-robotics/flagbot/robot"
	"github.com/flagbot-robotics/flagbot/services/detection"
	"github.com/flagbot-robotics/flagbot/services/mission"
	"github.com/flagbot-robotics/flagbot/simulation/arena"
	"github.com/flagbot-robotics/flagbot/spatialmath"
)

const (
	// Flags.
	flagConfig       = "config"
	flagParams       = "params"
	flagScenario     = "scenario"
	flagDebug        = "debug"
	flagLogFile      = "log-file"
	flagSkipLocalize = "skip-localize"
)

func main() {
	app := &cli.App{
		Name:  "flagbot",
		Usage: "run capture the flag missions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load robot configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to a rotating `FILE`",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "simulate",
				Usage: "localize and run a full mission in the simulated arena",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagParams,
						Usage: "read mission parameters from `FILE`",
					},
					&cli.StringFlag{
						Name:  flagScenario,
						Usage: "read the arena layout from `FILE`",
					},
					&cli.BoolFlag{
						Name:  flagSkipLocalize,
						Usage: "trust the scenario's start pose instead of localizing",
					},
				},
				Action: simulateAction,
			},
			{
				Name:  "localize",
				Usage: "run localization only in the simulated arena",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagScenario,
						Usage: "read the arena layout from `FILE`",
					},
				},
				Action: localizeAction,
			},
			{
				Name:  "check-config",
				Usage: "validate the robot configuration and, optionally, mission parameters",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagParams,
						Usage: "read mission parameters from `FILE`",
					},
				},
				Action: checkConfigAction,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the configuration named by the global flags and applies the logging flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		read, err := config.Read(path)
		if err != nil {
			return nil, err
		}
		cfg = *read
	}
	if c.Bool(flagDebug) {
		cfg.Logging.Level = "debug"
	}
	if path := c.String(flagLogFile); path != "" {
		cfg.Logging.File = path
	}
	return &cfg, nil
}

// defaultParams is the mission used when no parameters are given.
func defaultParams() mission.Params {
	return mission.Params{
		FlagLowerLeft:  mission.TilePoint{X: 0, Y: 0},
		FlagUpperRight: mission.TilePoint{X: 2, Y: 2},
		Delivery:       mission.TilePoint{X: 4, Y: 2},
		Avoid:          mission.TilePoint{X: 4, Y: 0},
		TargetColor:    detection.Red,
		Corner:         1,
	}
}

func loadParams(c *cli.Context) (mission.Params, error) {
	path := c.String(flagParams)
	if path == "" {
		return defaultParams(), nil
	}
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return mission.Params{}, errors.Wrapf(err, "cannot read mission parameters %q", path)
	}
	attrs := map[string]interface{}{}
	if err := json.Unmarshal(buf, &attrs); err != nil {
		return mission.Params{}, errors.Wrapf(err, "cannot parse mission parameters %q", path)
	}
	return mission.DecodeParams(attrs)
}

func loadScenario(c *cli.Context) (arena.Scenario, error) {
	if path := c.String(flagScenario); path != "" {
		return arena.ReadScenario(path)
	}
	return arena.DefaultScenario(), nil
}

// simulation is a robot running in a started arena.
type simulation struct {
	world  *arena.World
	robot  *robot.Robot
	logger golog.Logger
	closer func() error
}

func newSimulation(ctx context.Context, c *cli.Context) (*simulation, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	scenario, err := loadScenario(c)
	if err != nil {
		return nil, err
	}
	logger, closer, err := logging.NewLogger("flagbot", cfg.Logging)
	if err != nil {
		return nil, err
	}

	world, err := scenario.Build(arena.DefaultConfig(), logger.Named("arena"))
	if err != nil {
		return nil, multierr.Combine(err, closer())
	}
	hw := robot.Hardware{
		LeftWheel:  world.LeftWheel(),
		RightWheel: world.RightWheel(),
		ClawArms:   []motor.Motor{world.LeftArm(), world.RightArm()},
		LeftRange:  world.LeftRange(),
		RightRange: world.RightRange(),
		Color:      world.ColorSensor(),
		LeftFloor:  world.LeftFloor(),
		RightFloor: world.RightFloor(),
		LineLight:  world.LineFloor(),
	}
	r, err := robot.New(*cfg, hw, nil, logger)
	if err != nil {
		return nil, multierr.Combine(err, world.Close(), closer())
	}
	world.Start()
	if err := r.Start(ctx, spatialmath.Pose{}); err != nil {
		return nil, multierr.Combine(err, r.Close(ctx), world.Close(), closer())
	}
	return &simulation{world: world, robot: r, logger: logger, closer: closer}, nil
}

// report logs the estimated pose against the simulated truth.
func (s *simulation) report() {
	s.logger.Infow("final pose",
		"estimate", s.robot.Pose().String(),
		"truth", s.world.RobotPose().String(),
		"claw_closed", s.robot.Claw.Holding(),
	)
	for _, b := range s.world.Blocks() {
		s.logger.Infow("block", "name", b.Name, "at", fmt.Sprintf("(%.1f, %.1f)", b.Center.X, b.Center.Y))
	}
}

func (s *simulation) Close(ctx context.Context) error {
	return multierr.Combine(s.robot.Close(ctx), s.world.Close(), s.closer())
}

func simulateAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	params, err := loadParams(c)
	if err != nil {
		return err
	}
	sim, err := newSimulation(ctx, c)
	if err != nil {
		return err
	}

	err = func() error {
		if c.Bool(flagSkipLocalize) {
			sim.robot.Odometer.SetPose(sim.world.RobotPose(), spatialmath.MaskAll)
		} else if err := sim.robot.Localize(ctx); err != nil {
			return err
		}
		return sim.robot.RunMission(ctx, params)
	}()
	sim.report()
	return multierr.Combine(err, sim.Close(context.Background()))
}

func localizeAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	sim, err := newSimulation(ctx, c)
	if err != nil {
		return err
	}
	err = sim.robot.Localize(ctx)
	sim.report()
	return multierr.Combine(err, sim.Close(context.Background()))
}

func checkConfigAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if c.String(flagParams) != "" {
		params, err := loadParams(c)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "mission: flag zone %v-%v, deliver to %v, avoid %v, target %s, corner %d\n",
			params.FlagLowerLeft, params.FlagUpperRight, params.Delivery, params.Avoid,
			params.TargetColor, params.Corner)
	}
	fmt.Fprintln(c.App.Writer, "config ok")
	return nil
}
