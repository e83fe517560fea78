package storage

import (
	"context"
	"sync"
	"time"

	"kioskhelper/internal/logger"
	"kioskhelper/internal/models"
	"kioskhelper/internal/repository"
)

// DecisionBuffer collects match decisions and writes them to the repository in
// batches. When the buffer is full new decisions are dropped until the next
// flush.
type DecisionBuffer struct {
	repo        repository.DecisionRepository
	logger      *logger.Logger
	decisions   []models.MatchDecision
	bufferLimit int
	dropped     int
	mu          sync.Mutex
}

func NewDecisionBuffer(repo repository.DecisionRepository, bufferLimit int, logger *logger.Logger) *DecisionBuffer {
	return &DecisionBuffer{
		repo:        repo,
		logger:      logger,
		bufferLimit: bufferLimit,
		decisions:   make([]models.MatchDecision, 0, bufferLimit),
	}
}

// Run flushes on every tick until ctx is done, then flushes once more.
func (s *DecisionBuffer) Run(ctx context.Context, flushInterval time.Duration) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush()
		case <-ctx.Done():
			s.Flush()
			return
		}
	}
}

// Add queues a decision and reports whether it was accepted.
func (s *DecisionBuffer) Add(d models.MatchDecision) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.decisions) >= s.bufferLimit {
		s.dropped++
		return false
	}
	s.decisions = append(s.decisions, d)
	return true
}

// Len is the number of decisions waiting for the next flush.
func (s *DecisionBuffer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.decisions)
}

// Flush writes the buffered decisions. On a write error they are kept for
// the next attempt.
func (s *DecisionBuffer) Flush() {
	s.mu.Lock()
	if len(s.decisions) == 0 {
		s.mu.Unlock()
		return
	}
	batch := make([]models.MatchDecision, len(s.decisions))
	copy(batch, s.decisions)
	dropped := s.dropped
	s.mu.Unlock()

	if err := s.repo.InsertBatch(batch); err != nil {
		s.logger.Error("Error saving %d decisions: %v", len(batch), err)
		return
	}

	s.mu.Lock()
	s.decisions = append(s.decisions[:0], s.decisions[len(batch):]...)
	s.dropped -= dropped
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Warning("⚠️  Decision buffer full, dropped %d decision(s)", dropped)
	}
	s.logger.Info("💾 Flushed %d decisions to database", len(batch))
}
