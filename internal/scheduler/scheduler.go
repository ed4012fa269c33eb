package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Job is a periodic task. Run receives the tick time so the underlying
// operation stays testable without waiting on the wall clock.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context, now time.Time) error
}

type Scheduler struct {
	jobs []Job
	wg   sync.WaitGroup
}

func New(jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs}
}

// Start launches one goroutine per job. Jobs tick until ctx is
// cancelled; a failing run is logged and the ticker keeps going.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runJob(ctx, job)
	}
}

// Wait blocks until all job goroutines have stopped.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	defer s.wg.Done()

	log.Info().Str("job", job.Name).Dur("interval", job.Interval).Msg("scheduler: job started")

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("job", job.Name).Msg("scheduler: job stopping")
			return
		case now := <-ticker.C:
			if err := job.Run(ctx, now.UTC()); err != nil {
				log.Error().Err(err).Str("job", job.Name).Msg("scheduler: job run failed")
			}
		}
	}
}
