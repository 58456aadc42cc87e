package service

import (
	"context"
	"fmt"
	"log/slog"
)

// CampaignPauser is the store operation recovery needs.
type CampaignPauser interface {
	PauseSending(ctx context.Context) ([]int, error)
}

// RecoveryReport lists what a recovery run changed.
type RecoveryReport struct {
	PausedCampaignIDs []int
}

func (r RecoveryReport) Paused() int {
	return len(r.PausedCampaignIDs)
}

// Recover moves every campaign left in sending by a previous process to
// paused. It must finish before the process serves traffic; an error is
// fatal to startup.
func Recover(ctx context.Context, store CampaignPauser, log *slog.Logger) (RecoveryReport, error) {
	ids, err := store.PauseSending(ctx)
	if err != nil {
		return RecoveryReport{}, fmt.Errorf("pause interrupted campaigns: %w", err)
	}

	for _, id := range ids {
		log.Warn("campaign paused on recovery", "campaign_id", id)
	}
	log.Info("recovery complete", "paused", len(ids))

	return RecoveryReport{PausedCampaignIDs: ids}, nil
}
