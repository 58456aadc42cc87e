package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler processes one job. A returned error asks the queue to redeliver.
type Handler func(ctx context.Context, job DispatchJob) error

// Queue carries dispatch jobs from the scanner to the workers.
type Queue interface {
	Publish(ctx context.Context, topic string, job DispatchJob) error
	Subscribe(topic string, handler Handler) error
}

// InMemoryQueue delivers jobs to in-process subscribers with retry
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	wg       sync.WaitGroup

	MaxRetries int
	Backoff    time.Duration
	Log        *slog.Logger
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log *slog.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
		Log:        log,
	}
}

// jobEnvelope wraps a job with retry info
type jobEnvelope struct {
	Job        DispatchJob
	RetryCount int
	MaxRetries int
}

// Publish sends a job to all subscribers of topic
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, job DispatchJob) error {
	if err := job.validate(); err != nil {
		return err
	}

	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	env := jobEnvelope{
		Job:        job,
		MaxRetries: q.MaxRetries,
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(context.WithoutCancel(ctx), handler, env)
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(ctx context.Context, handler Handler, env jobEnvelope) {
	defer q.wg.Done()

	for env.RetryCount <= env.MaxRetries {
		err := handler(ctx, env.Job)
		if err == nil {
			q.Log.Debug("job processed", "id", env.Job.ID)
			return
		}

		env.RetryCount++
		q.Log.Warn("job failed",
			"id", env.Job.ID,
			"attempt", env.RetryCount,
			"max_retries", env.MaxRetries,
			"error", err,
		)

		if env.RetryCount > env.MaxRetries {
			q.Log.Error("job permanently failed", "id", env.Job.ID, "attempts", env.RetryCount)
			return
		}

		// linear backoff before retry
		time.Sleep(time.Duration(env.RetryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has been handled or given up on.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

var _ Queue = (*InMemoryQueue)(nil)
