package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryNewestFirstWithDeliveries(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC))
	owner := store.addUser(1)
	other := store.addUser(2)
	ctx := context.Background()

	var ids []uint
	for i := 0; i < 3; i++ {
		event := domain.AlertEvent{OwnerID: owner.ID, Symbol: "AAPL", TriggerType: domain.TriggerStopHit, TriggeredAt: clock.Now()}
		require.NoError(t, store.Events().Create(ctx, &event))
		ids = append(ids, event.ID)
	}
	foreign := domain.AlertEvent{OwnerID: other.ID, Symbol: "MSFT"}
	require.NoError(t, store.Events().Create(ctx, &foreign))
	require.NoError(t, store.Deliveries().Create(ctx, &domain.DeliveryAttempt{AlertEventID: ids[2], Channel: "telegram", Status: domain.DeliverySent, MaxAttempts: 3}))

	uc := NewHistoryUsecase(store.Users(), store.Events(), store.Deliveries(), clock.Now)

	items, err := uc.History(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, ids[2], items[0].Event.ID)
	assert.Equal(t, ids[1], items[1].Event.ID)
	require.Len(t, items[0].Deliveries, 1)
	assert.Equal(t, domain.DeliverySent, items[0].Deliveries[0].Status)
	assert.Empty(t, items[1].Deliveries)

	items, err = uc.OwnerHistory(ctx, owner.ID, 0)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	_, err = uc.History(ctx, 42, 5)
	assert.ErrorIs(t, err, ErrUserNotRegistered)
}

func TestAcknowledgeAndDismiss(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC))
	owner := store.addUser(1)
	store.addUser(2)
	ctx := context.Background()
	event := domain.AlertEvent{OwnerID: owner.ID, Symbol: "AAPL"}
	require.NoError(t, store.Events().Create(ctx, &event))

	uc := NewHistoryUsecase(store.Users(), store.Events(), store.Deliveries(), clock.Now)

	assert.ErrorIs(t, uc.Acknowledge(ctx, 2, event.ID), ErrAlertNotFound)
	assert.ErrorIs(t, uc.Acknowledge(ctx, 1, 999), ErrAlertNotFound)

	require.NoError(t, uc.Acknowledge(ctx, 1, event.ID))
	stored, err := store.Events().GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.True(t, stored.Acknowledged)
	require.NotNil(t, stored.AcknowledgedAt)
	assert.Equal(t, clock.Now(), *stored.AcknowledgedAt)

	require.NoError(t, uc.DismissEvent(ctx, event.ID))
	stored, err = store.Events().GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.True(t, stored.Dismissed)
	assert.ErrorIs(t, uc.DismissEvent(ctx, 999), ErrAlertNotFound)
}

func TestStartOrGetUser(t *testing.T) {
	store := newMemStore()
	uc := NewUserUsecase(store.Users())
	ctx := context.Background()

	created, err := uc.StartOrGetUser(ctx, 77, " @trader ")
	require.NoError(t, err)
	assert.Equal(t, "trader", created.Username)

	again, err := uc.StartOrGetUser(ctx, 77, "renamed")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
}
