// Package scheduler triggers crawl runs on an interval or a cron expression.
// Runs are serialized: a tick that fires while a run is active is dropped.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Mode selects how ticks are generated
type Mode string

const (
	ModeInterval Mode = "interval"
	ModeCron     Mode = "cron"
)

// RunFunc executes one crawl run
type RunFunc func(ctx context.Context) error

// Config configures the scheduler
type Config struct {
	Mode            Mode
	IntervalMinutes int
	CronExpression  string
	RunImmediately  bool
}

// DefaultConfig returns scheduler defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:            ModeInterval,
		IntervalMinutes: 60,
		CronExpression:  "0 */6 * * *",
		RunImmediately:  true,
	}
}

// Scheduler drives periodic crawls
type Scheduler struct {
	config  *Config
	run     RunFunc
	running atomic.Bool
	active  atomic.Bool

	onComplete func(err error)

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a scheduler around a run function
func New(config *Config, run RunFunc) (*Scheduler, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Mode != ModeInterval && config.Mode != ModeCron {
		return nil, fmt.Errorf("unknown scheduler mode %q", config.Mode)
	}
	if config.Mode == ModeInterval && config.IntervalMinutes < 1 {
		return nil, fmt.Errorf("interval must be at least 1 minute, got %d", config.IntervalMinutes)
	}
	if config.Mode == ModeCron {
		if _, err := cron.ParseStandard(config.CronExpression); err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", config.CronExpression, err)
		}
	}
	return &Scheduler{config: config, run: run}, nil
}

// OnComplete registers a callback invoked after every run
func (s *Scheduler) OnComplete(fn func(err error)) {
	s.onComplete = fn
}

// Running reports whether a crawl run is currently active
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Start blocks until ctx is cancelled, firing runs per the configured mode.
// A cancelled context lets the active run observe the cancellation and
// drain; no new ticks are accepted afterwards.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.active.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already started")
	}
	defer s.active.Store(false)

	log.Info().
		Str("mode", string(s.config.Mode)).
		Int("interval_minutes", s.config.IntervalMinutes).
		Str("cron", s.config.CronExpression).
		Bool("run_immediately", s.config.RunImmediately).
		Msg("Scheduler started")

	if s.config.RunImmediately {
		s.tick(ctx)
	}

	switch s.config.Mode {
	case ModeCron:
		return s.runCron(ctx)
	default:
		return s.runInterval(ctx)
	}
}

func (s *Scheduler) runInterval(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(s.config.IntervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopped")
			return nil
		}
	}
}

func (s *Scheduler) runCron(ctx context.Context) error {
	s.mu.Lock()
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.config.CronExpression, func() { s.tick(ctx) })
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("register cron job: %w", err)
	}
	s.cron.Start()
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	stopCtx := s.cron.Stop()
	s.mu.Unlock()
	<-stopCtx.Done()

	log.Info().Msg("Scheduler stopped")
	return nil
}

// tick fires one run unless another is still active, in which case the tick
// is dropped
func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		log.Warn().Msg("Previous run still active, dropping tick")
		return
	}
	defer s.running.Store(false)

	log.Info().Msg("Scheduled crawl starting")
	err := s.run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled crawl failed")
	} else {
		log.Info().Msg("Scheduled crawl finished")
	}

	if s.onComplete != nil {
		s.onComplete(err)
	}
}
