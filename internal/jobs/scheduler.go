// Package jobs runs periodic background work.
package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a named task run every Interval.
type Job struct {
	Name     string
	Interval time.Duration
	// RunAtStart runs the job once as soon as the scheduler starts.
	RunAtStart bool
	Run        func(ctx context.Context) error
}

// Scheduler runs each job on its own goroutine. Runs of one job never
// overlap; a run that overlaps its next tick skips that tick.
type Scheduler struct {
	jobs   []Job
	log    *zap.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	once sync.Once
}

func NewScheduler(log *zap.Logger, jobs ...Job) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:   jobs,
		log:    log,
		stopCh: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) Start() {
	for _, j := range s.jobs {
		if j.Interval <= 0 || j.Run == nil {
			s.log.Warn("skipping job", zap.String("job", j.Name), zap.Duration("interval", j.Interval))
			continue
		}
		s.wg.Add(1)
		go s.loop(j)
	}
	s.log.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop cancels in-flight runs and waits for every job loop to exit.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		close(s.stopCh)
		s.cancel()
	})
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) loop(j Job) {
	defer s.wg.Done()

	if j.RunAtStart {
		s.run(j)
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.run(j)
		}
	}
}

func (s *Scheduler) run(j Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", zap.String("job", j.Name), zap.Any("panic", r))
		}
	}()
	if err := j.Run(s.ctx); err != nil {
		s.log.Error("job failed", zap.String("job", j.Name), zap.Error(err), zap.Duration("took", time.Since(start)))
		return
	}
	s.log.Debug("job done", zap.String("job", j.Name), zap.Duration("took", time.Since(start)))
}
