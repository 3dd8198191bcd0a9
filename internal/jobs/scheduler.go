package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/moneymapper/authcore/internal/metrics"
	"github.com/moneymapper/authcore/pkg/logger"
)

// Task is one unit of periodic maintenance.
type Task func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	run      Task
}

// Scheduler runs each registered job on its own ticker. A job never
// overlaps itself; a slow run delays the next tick instead.
type Scheduler struct {
	mu      sync.Mutex
	jobs    []job
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	timeout time.Duration
}

func NewScheduler() *Scheduler {
	return &Scheduler{timeout: 5 * time.Minute}
}

// Add registers a job. A non-positive interval disables it.
func (s *Scheduler) Add(name string, interval time.Duration, run Task) {
	if interval <= 0 {
		logger.Info("job_disabled", map[string]interface{}{"job": name})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job{name: name, interval: interval, run: run})
}

func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.name
	}
	return names
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
		logger.Info("job_scheduled", map[string]interface{}{
			"job":      j.name,
			"interval": j.interval.String(),
		})
	}
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.execute(ctx, j)
		}
	}
}

// Stop cancels the tickers and waits for in-flight runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// RunNow executes a registered job once, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var found *job
	for i := range s.jobs {
		if s.jobs[i].name == name {
			found = &s.jobs[i]
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.execute(ctx, *found)
}

func (s *Scheduler) execute(ctx context.Context, j job) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
		metrics.JobDuration.WithLabelValues(j.name).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.JobRuns.WithLabelValues(j.name, "failed").Inc()
			logger.Error("job_failed", err, map[string]interface{}{"job": j.name})
			return
		}
		metrics.JobRuns.WithLabelValues(j.name, "success").Inc()
	}()

	return j.run(ctx)
}
