package worker

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pratik-mahalle/secwatch/internal/detector"
	"github.com/pratik-mahalle/secwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/secwatch/internal/pkg/metrics"
)

// Cleaner drops idle per-key state and reports how much was removed
type Cleaner interface {
	Cleanup() int
}

// TrackerSweeper periodically evicts idle keys from the failed login rate
// tracker and any other registered per-client state
type TrackerSweeper struct {
	tracker  *detector.RateWindowTracker
	cleaners []Cleaner
	schedule string
	logger   *logger.Logger
	now      func() time.Time

	mu        sync.Mutex
	scheduler *cron.Cron
}

// NewTrackerSweeper creates a sweeper. schedule uses the standard cron
// syntax or a descriptor such as "@every 1m".
func NewTrackerSweeper(tracker *detector.RateWindowTracker, schedule string, log *logger.Logger, cleaners ...Cleaner) (*TrackerSweeper, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}
	return &TrackerSweeper{
		tracker:  tracker,
		cleaners: cleaners,
		schedule: schedule,
		logger:   log,
		now:      time.Now,
	}, nil
}

// Start schedules the sweep
func (s *TrackerSweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler != nil {
		return fmt.Errorf("sweeper is already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	c.Start()
	s.scheduler = c

	s.logger.WithFields(map[string]interface{}{
		"schedule": s.schedule,
	}).Info("Tracker sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *TrackerSweeper) Stop() {
	s.mu.Lock()
	c := s.scheduler
	s.scheduler = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("Tracker sweeper stopped")
}

// Sweep runs one pass and returns the number of tracker keys evicted
func (s *TrackerSweeper) Sweep() int {
	removed := s.tracker.Sweep(s.now())
	remaining := s.tracker.Len()
	metrics.SetTrackedKeys(remaining)

	cleaned := 0
	for _, c := range s.cleaners {
		cleaned += c.Cleanup()
	}

	if removed > 0 || cleaned > 0 {
		s.logger.WithFields(map[string]interface{}{
			"evicted":   removed,
			"remaining": remaining,
			"cleaned":   cleaned,
		}).Debug("Swept idle tracker keys")
	}
	return removed
}
