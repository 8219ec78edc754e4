package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// EvaluationScheduler sweeps every user with active challenges on a fixed
// interval so time-based outcomes (expiry, streak completion, end-of-window
// spending limits) land even when no transactions arrive.
type EvaluationScheduler struct {
	challenges *ChallengeService
	interval   time.Duration
	stopChan   chan struct{}
	wg         sync.WaitGroup
}

func NewEvaluationScheduler(challenges *ChallengeService, interval time.Duration) *EvaluationScheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &EvaluationScheduler{
		challenges: challenges,
		interval:   interval,
		stopChan:   make(chan struct{}),
	}
}

func (s *EvaluationScheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *EvaluationScheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// One sweep at startup so restarts don't leave expired challenges
	// hanging until the first tick.
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopChan:
			return
		}
	}
}

func (s *EvaluationScheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	users, err := s.challenges.UsersWithActiveChallenges(ctx)
	if err != nil {
		log.Printf("Scheduler: failed to list users: %v", err)
		return
	}

	for _, userID := range users {
		if ctx.Err() != nil {
			log.Printf("Scheduler: sweep timed out with users remaining")
			return
		}
		if _, err := s.challenges.RunScheduledEvaluation(ctx, userID); err != nil {
			log.Printf("Scheduler: evaluation failed for user %s: %v", userID, err)
		}
	}
}

func (s *EvaluationScheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}
