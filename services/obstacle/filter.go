// Package obstacle watches the two forward range sensors and raises a sticky flag when either
// one keeps reporting something close.
package obstacle

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"

	"github.com/flagbot-robotics/flagbot/components/sensor"
	"github.com/flagbot-robotics/flagbot/utils"
)

const (
	defaultWindowSize   = 10
	defaultMaxDistance  = 20
	defaultPollInterval = time.Millisecond
)

// Config holds the filter constants.
type Config struct {
	WindowSize    int           `json:"window_size"`
	MaxDistanceCM float64       `json:"max_distance_cm"`
	PollInterval  time.Duration `json:"poll_interval"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.WindowSize < 0 {
		return errors.Errorf("%s: window_size must not be negative", path)
	}
	if cfg.MaxDistanceCM < 0 || cfg.MaxDistanceCM >= sensor.NoEcho {
		return errors.Errorf("%s: max_distance_cm must be in [0, %d)", path, sensor.NoEcho)
	}
	return nil
}

// Filter keeps a window of recent readings per sensor. Windows start, and are refilled, at
// sensor.NoEcho, so a window must fill with close readings before its average drops under the
// limit. The wall flag stays set until a caller clears it.
type Filter struct {
	left, right sensor.RangeSensor
	cfg         Config
	logger      golog.Logger

	wall atomic.Bool

	mu          sync.Mutex
	leftWindow  *utils.RollingWindow
	rightWindow *utils.RollingWindow

	workersMu sync.Mutex
	workers   utils.StoppableWorkers
}

// New returns a stopped filter. Zero config values take the defaults.
func New(left, right sensor.RangeSensor, cfg Config, logger golog.Logger) (*Filter, error) {
	if err := cfg.Validate("obstacle"); err != nil {
		return nil, err
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = defaultWindowSize
	}
	if cfg.MaxDistanceCM == 0 {
		cfg.MaxDistanceCM = defaultMaxDistance
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Filter{
		left:        left,
		right:       right,
		cfg:         cfg,
		logger:      logger,
		leftWindow:  utils.NewRollingWindow(cfg.WindowSize, sensor.NoEcho),
		rightWindow: utils.NewRollingWindow(cfg.WindowSize, sensor.NoEcho),
	}, nil
}

// Start begins polling. Calling Start on a running filter does nothing.
func (f *Filter) Start() {
	f.workersMu.Lock()
	defer f.workersMu.Unlock()
	if f.workers != nil {
		return
	}
	f.workers = utils.NewStoppableWorkers(f.poll)
}

// Stop ends polling. The filter can be started again.
func (f *Filter) Stop() {
	f.workersMu.Lock()
	defer f.workersMu.Unlock()
	if f.workers == nil {
		return
	}
	f.workers.Stop()
	f.workers = nil
}

func (f *Filter) poll(ctx context.Context) {
	throttle := utils.ErrorThrottle{RemindEvery: int(10 * time.Second / f.cfg.PollInterval)}
	for {
		err := f.Sample(ctx)
		if ctx.Err() != nil {
			return
		}
		throttle.Observe(f.logger, "error reading range sensors", err)
		if !goutils.SelectContextOrWait(ctx, f.cfg.PollInterval) {
			return
		}
	}
}

// Sample reads each sensor once and updates the windows and the wall flag. A failed read
// leaves the windows untouched.
func (f *Filter) Sample(ctx context.Context) error {
	left, err := f.left.Ping(ctx)
	if err != nil {
		return errors.Wrap(err, "left range sensor")
	}
	right, err := f.right.Ping(ctx)
	if err != nil {
		return errors.Wrap(err, "right range sensor")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.leftWindow.Add(float64(left))
	f.rightWindow.Add(float64(right))
	leftAvg, rightAvg := f.leftWindow.Average(), f.rightWindow.Average()
	if leftAvg < f.cfg.MaxDistanceCM || rightAvg < f.cfg.MaxDistanceCM {
		f.logger.Debugw("wall detected", "left", leftAvg, "right", rightAvg)
		f.leftWindow.Fill(sensor.NoEcho)
		f.rightWindow.Fill(sensor.NoEcho)
		f.wall.Store(true)
	}
	return nil
}

// IsWall reports the sticky wall flag.
func (f *Filter) IsWall() bool {
	return f.wall.Load()
}

// SetIsWall overwrites the wall flag.
func (f *Filter) SetIsWall(wall bool) {
	f.wall.Store(wall)
}

// ReinitializeWindows refills both windows with sensor.NoEcho.
func (f *Filter) ReinitializeWindows() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leftWindow.Fill(sensor.NoEcho)
	f.rightWindow.Fill(sensor.NoEcho)
}

// Averages returns the windowed average distance of each sensor.
func (f *Filter) Averages() (left, right float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leftWindow.Average(), f.rightWindow.Average()
}
