package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/followup-engine/internal/logger"
	"github.com/unclebandit/followup-engine/internal/model"
)

type memCampaigns struct {
	campaigns []*model.Campaign
	err       error
}

func (m *memCampaigns) PauseSending(ctx context.Context) ([]int, error) {
	if m.err != nil {
		return nil, m.err
	}

	ids := []int{}
	for _, c := range m.campaigns {
		if c.Status == model.CampaignSending {
			c.Status = model.CampaignPaused
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

func TestRecover_PausesOnlySendingCampaigns(t *testing.T) {
	store := &memCampaigns{campaigns: []*model.Campaign{
		{ID: 1, Name: "Spring launch", Status: model.CampaignSending},
		{ID: 2, Name: "Newsletter", Status: model.CampaignDraft},
	}}

	report, err := Recover(context.Background(), store, logger.Discard())

	require.NoError(t, err)
	assert.Equal(t, []int{1}, report.PausedCampaignIDs)
	assert.Equal(t, 1, report.Paused())
	assert.Equal(t, model.CampaignPaused, store.campaigns[0].Status)
	assert.Equal(t, model.CampaignDraft, store.campaigns[1].Status)
}

func TestRecover_NothingToDo(t *testing.T) {
	store := &memCampaigns{campaigns: []*model.Campaign{
		{ID: 1, Status: model.CampaignCompleted},
	}}

	report, err := Recover(context.Background(), store, logger.Discard())

	require.NoError(t, err)
	assert.Zero(t, report.Paused())
}

func TestRecover_StoreFailureIsReturned(t *testing.T) {
	cause := errors.New("relation \"campaigns\" does not exist")

	_, err := Recover(context.Background(), &memCampaigns{err: cause}, logger.Discard())

	assert.ErrorIs(t, err, cause)
}
