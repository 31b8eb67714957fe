package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"bike-marketplace/internal/broker"
	"bike-marketplace/internal/models"
	"bike-marketplace/internal/service"
	"bike-marketplace/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationRouterDeliversOnce(t *testing.T) {
	repo := memstore.New()
	notifications := service.NewNotificationService(repo)
	pub := broker.NewEventPublisher(broker.NewLocalSink(NotificationRouter(notifications).HandleMessage))
	ctx := context.Background()

	event := &models.WithdrawalEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-w1",
			EventType: models.EventTypeWithdrawalProcessed,
			Timestamp: time.Now().UTC(),
		},
		WithdrawalID: 3,
		UserID:       42,
		Amount:       2000000,
		Status:       models.WithdrawalStatusApproved,
	}

	require.NoError(t, pub.PublishWithdrawal(ctx, event))
	require.NoError(t, pub.PublishWithdrawal(ctx, event))

	got, err := notifications.List(ctx, &models.Principal{UserID: 42, Role: models.RoleSeller}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Withdrawal #3 of 2000000 is APPROVED", got[0].Message)
}

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) RefreshOverdue(context.Context) (int, error) {
	r.calls.Add(1)
	return 1, r.err
}

func TestModerationSLAWorkerScansUntilCancelled(t *testing.T) {
	refresher := &countingRefresher{err: errors.New("db down")}
	w := NewModerationSLAWorker(refresher, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	assert.Eventually(t, func() bool { return refresher.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
