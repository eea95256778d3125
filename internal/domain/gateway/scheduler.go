package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Schedule is how often a job runs when no external cron drives it.
type Schedule struct {
	Job      Job
	Interval time.Duration
}

// Scheduler runs sweeps on tickers and on demand when a job name arrives on
// the wake channel.
type Scheduler struct {
	runner    *Runner
	schedules []Schedule
	wake      <-chan string
	timeout   time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewScheduler(runner *Runner, wake <-chan string, schedules ...Schedule) *Scheduler {
	return &Scheduler{
		runner:    runner,
		schedules: schedules,
		wake:      wake,
		timeout:   30 * time.Minute,
		stopCh:    make(chan struct{}),
	}
}

// Start begins one loop per schedule plus the wake listener.
func (s *Scheduler) Start() {
	log.Info().Int("jobs", len(s.schedules)).Msg("Starting settlement scheduler...")
	for _, sc := range s.schedules {
		s.wg.Add(1)
		go s.loop(sc)
	}
	if s.wake != nil {
		s.wg.Add(1)
		go s.listen()
	}
}

// Stop waits for running sweeps to finish.
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping settlement scheduler...")
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) loop(sc Schedule) {
	defer s.wg.Done()
	ticker := time.NewTicker(sc.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.run(sc.Job)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) listen() {
	defer s.wg.Done()
	for {
		select {
		case job, ok := <-s.wake:
			if !ok {
				return
			}
			s.run(Job(job))
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	report, err := s.runner.Run(ctx, job)
	if err != nil {
		log.Error().Err(err).Str("job", string(job)).Msg("Scheduled sweep failed")
		return
	}
	if report.Failed > 0 {
		log.Warn().Str("job", string(job)).Int("failed", report.Failed).Msg("Scheduled sweep finished with errors")
	}
}
