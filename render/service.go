package render

import (
	"context"
	"sync/atomic"

	"github.com/use-agent/pagerender/models"
	"golang.org/x/sync/semaphore"
)

// Stats is a snapshot of a Service's load.
type Stats struct {
	MaxConcurrent int
	Active        int
	Completed     int64
	Failed        int64
}

// Service runs one-shot renders for many callers, bounding how many browsers
// run at once. Each Render launches and closes its own browser; nothing is
// reused between calls. It is safe for concurrent use.
type Service struct {
	launch      LaunchConfig
	sessionOpts []SessionOption
	max         int
	sem         *semaphore.Weighted

	active    atomic.Int32
	completed atomic.Int64
	failed    atomic.Int64
}

// NewService creates a Service allowing maxConcurrent simultaneous browsers.
func NewService(launch LaunchConfig, maxConcurrent int, sessionOpts ...SessionOption) *Service {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	// Sessions are cheap until Init; this one only resolves the logger.
	NewSession(launch, sessionOpts...).logger.Info("render service created", "maxConcurrent", maxConcurrent)
	return &Service{
		launch:      launch,
		sessionOpts: sessionOpts,
		max:         maxConcurrent,
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Render waits for a free slot, then renders url with Get.
func (s *Service) Render(ctx context.Context, url string, opts RequestOptions) (*Result, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, models.NewRenderError(models.ErrCodeTimeout, "no render slot available", err)
	}
	defer s.sem.Release(1)

	s.active.Add(1)
	defer s.active.Add(-1)

	res, err := Get(ctx, url, s.launch, opts, s.sessionOpts...)
	if err != nil {
		s.failed.Add(1)
		return nil, err
	}
	s.completed.Add(1)
	return res, nil
}

// Stats returns a snapshot of the service's current state.
func (s *Service) Stats() Stats {
	return Stats{
		MaxConcurrent: s.max,
		Active:        int(s.active.Load()),
		Completed:     s.completed.Load(),
		Failed:        s.failed.Load(),
	}
}
