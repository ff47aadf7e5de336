package tick

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LoopConfig configures the frame driver.
type LoopConfig struct {
	FrameRate int           `mapstructure:"frame_rate"` // Target frames per second (default: 60)
	MaxDelta  time.Duration `mapstructure:"max_delta"`  // Largest dt handed to Dispatch (default: 100ms)
}

// DefaultLoopConfig returns sensible defaults
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		FrameRate: 60,
		MaxDelta:  100 * time.Millisecond,
	}
}

// LoopStats summarizes a driver run.
type LoopStats struct {
	Frames   uint64
	Failures uint64
	Elapsed  time.Duration
}

// Loop is the external frame driver: the one caller of Scheduler.Dispatch.
type Loop struct {
	scheduler *Scheduler
	config    LoopConfig
	logger    zerolog.Logger

	stats LoopStats
	now   func() time.Time
}

// NewLoop creates a driver for scheduler.
func NewLoop(scheduler *Scheduler, config LoopConfig, logger zerolog.Logger) *Loop {
	def := DefaultLoopConfig()
	if config.FrameRate <= 0 {
		config.FrameRate = def.FrameRate
	}
	if config.MaxDelta <= 0 {
		config.MaxDelta = def.MaxDelta
	}
	return &Loop{
		scheduler: scheduler,
		config:    config,
		logger:    logger.With().Str("component", "loop").Logger(),
		now:       time.Now,
	}
}

// Run dispatches frames in real time until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(l.config.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := l.now()
	last := start
	l.logger.Info().Int("fps", l.config.FrameRate).Msg("Frame loop started")

	for {
		select {
		case <-ctx.Done():
			l.stats.Elapsed = l.now().Sub(start)
			l.logger.Info().
				Uint64("frames", l.stats.Frames).
				Uint64("failures", l.stats.Failures).
				Dur("elapsed", l.stats.Elapsed).
				Msg("Frame loop stopped")
			return ctx.Err()
		case <-ticker.C:
			now := l.now()
			delta := now.Sub(last)
			last = now
			if delta > l.config.MaxDelta {
				delta = l.config.MaxDelta
			}
			l.frame(float32(delta.Seconds()))
		}
	}
}

// Step dispatches n frames of fixed dt without waiting. Used for headless
// runs and deterministic playback.
func (l *Loop) Step(n int, dt float32) LoopStats {
	maxDt := float32(l.config.MaxDelta.Seconds())
	if dt > maxDt {
		dt = maxDt
	}
	for i := 0; i < n; i++ {
		l.frame(dt)
	}
	l.stats.Elapsed += time.Duration(float64(n) * float64(dt) * float64(time.Second))
	return l.stats
}

func (l *Loop) frame(dt float32) {
	l.stats.Frames++
	if err := l.scheduler.Dispatch(dt); err != nil {
		l.stats.Failures++
	}
}

// Stats returns counters for the frames driven so far.
func (l *Loop) Stats() LoopStats {
	return l.stats
}
