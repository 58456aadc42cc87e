package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/unclebandit/followup-engine/internal/model"
	"github.com/unclebandit/followup-engine/internal/queue"
	"github.com/unclebandit/followup-engine/internal/repository"
)

const defaultScanBatch = 100

// DueScanner publishes a dispatch job for every due message, in send_at
// order. Each pending row is offered once per scanner: a message whose send
// fails stays pending and is not picked up again until the process restarts.
// Every tick reads the full due set, so rows created or rescheduled into the
// past are still found.
type DueScanner struct {
	Messages  repository.ScheduledMessageRepositoryInterface
	Queue     queue.Queue
	Topic     string
	BatchSize int
	Log       *slog.Logger

	mu sync.Mutex
	// offered holds ids published while their row stayed pending and due.
	offered map[string]struct{}
}

// Enqueue publishes jobs for rows due at or before now that this scanner
// has not offered yet, and returns how many it published.
func (s *DueScanner) Enqueue(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.offered == nil {
		s.offered = make(map[string]struct{})
	}

	limit := s.BatchSize
	if limit <= 0 {
		limit = defaultScanBatch
	}

	seen := make(map[string]struct{}, len(s.offered))
	published := 0

	var cursor model.DueCursor
	for {
		due, err := s.Messages.FindDueAfter(ctx, cursor, now, limit)
		if err != nil {
			return published, err
		}

		for _, msg := range due {
			cursor = cursor.Advance(msg)
			seen[msg.ID] = struct{}{}

			if _, ok := s.offered[msg.ID]; ok {
				continue
			}

			job := queue.DispatchJob{ID: msg.ID, UserID: msg.UserID}
			if err := s.Queue.Publish(ctx, s.Topic, job); err != nil {
				// not marked offered, so the next tick retries the publish
				return published, err
			}
			s.offered[msg.ID] = struct{}{}
			published++
		}

		if len(due) < limit {
			break
		}
	}

	// Rows that left the due set were sent, deleted or rescheduled.
	for id := range s.offered {
		if _, ok := seen[id]; !ok {
			delete(s.offered, id)
		}
	}

	return published, nil
}

// Run scans every interval until ctx is cancelled.
func (s *DueScanner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := s.Enqueue(ctx, time.Now())
		switch {
		case err != nil && ctx.Err() == nil:
			s.Log.Error("due scan failed", "published", n, "error", err)
		case n > 0:
			s.Log.Info("due messages enqueued", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
