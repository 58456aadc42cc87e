package service

import (
	"context"
	"errors"
	"log/slog"

	appErrors "github.com/unclebandit/followup-engine/internal/errors"
	"github.com/unclebandit/followup-engine/internal/model"
	"github.com/unclebandit/followup-engine/internal/queue"
)

// Sender is the dispatch operation the worker drives.
type Sender interface {
	SendNow(ctx context.Context, id, userID string) (*model.ScheduledMessage, error)
}

// Worker processes dispatch jobs
type Worker struct {
	Sender Sender
	Log    *slog.Logger
}

// Constructor
func NewWorker(sender Sender, log *slog.Logger) *Worker {
	return &Worker{
		Sender: sender,
		Log:    log,
	}
}

// Handle sends the job's message. Only infrastructure failures are returned,
// so queue redelivery never causes a second attempt at a failed send.
func (w *Worker) Handle(ctx context.Context, job queue.DispatchJob) error {
	_, err := w.Sender.SendNow(ctx, job.ID, job.UserID)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, appErrors.ErrSendUnrecorded):
		w.Log.Error("message sent but not marked; not retrying", "scheduled_message_id", job.ID, "error", err)
		return nil
	case errors.Is(err, appErrors.ErrAlreadySent), appErrors.IsNotFound(err):
		w.Log.Info("job skipped", "scheduled_message_id", job.ID, "reason", err)
		return nil
	case appErrors.IsClientError(err),
		errors.Is(err, appErrors.ErrAccountMissing),
		errors.Is(err, appErrors.ErrTransport):
		w.Log.Warn("job dropped; message left pending", "scheduled_message_id", job.ID, "error", err)
		return nil
	default:
		return err
	}
}
