package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/orderdesk/internal/domain/validation"
	"github.com/xenking/orderdesk/internal/notify"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusConfirmed, StatusPreparing, true},
		{StatusPreparing, StatusReady, true},
		{StatusReady, StatusOutForDelivery, true},
		{StatusOutForDelivery, StatusDelivered, true},
		{StatusPending, StatusCancelled, true},
		{StatusOutForDelivery, StatusCancelled, true},
		{StatusPreparing, StatusPreparing, true},

		{StatusPending, StatusPreparing, false},
		{StatusReady, StatusConfirmed, false},
		{StatusDelivered, StatusPending, false},
		{StatusDelivered, StatusDelivered, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCanTransitionPayment(t *testing.T) {
	assert.True(t, CanTransitionPayment(PaymentPending, PaymentCompleted))
	assert.True(t, CanTransitionPayment(PaymentPending, PaymentFailed))
	assert.True(t, CanTransitionPayment(PaymentCompleted, PaymentRefunded))

	assert.False(t, CanTransitionPayment(PaymentPending, PaymentPending))
	assert.False(t, CanTransitionPayment(PaymentPending, PaymentRefunded))
	assert.False(t, CanTransitionPayment(PaymentFailed, PaymentCompleted))
	assert.False(t, CanTransitionPayment(PaymentRefunded, PaymentCompleted))
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("OUT_FOR_DELIVERY")
	require.NoError(t, err)
	assert.Equal(t, StatusOutForDelivery, st)

	_, err = ParseStatus("shipped")
	var vErr *validation.Error
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "status", vErr.Field)

	_, err = ParsePaymentStatus("PAID")
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "paymentStatus", vErr.Field)
}

func seedOrder(f *fixture, status Status, payment PaymentStatus) {
	f.orders.byID["order-1"] = &Order{
		ID:            "order-1",
		OrderNumber:   "ORD42",
		StoreSlug:     "siddhi",
		CustomerName:  "Asha",
		Status:        status,
		PaymentStatus: payment,
		EstimatedTime: 30,
	}
}

func TestService_UpdatePaymentStatus(t *testing.T) {
	t.Run("completed confirms pending order", func(t *testing.T) {
		f := newFixture(t, Config{})
		seedOrder(f, StatusPending, PaymentPending)

		o, err := f.svc.UpdatePaymentStatus(context.Background(), "order-1", PaymentCompleted)
		require.NoError(t, err)
		assert.Equal(t, PaymentCompleted, o.PaymentStatus)
		assert.Equal(t, StatusConfirmed, o.Status)

		assert.Equal(t, State{Status: StatusPending, PaymentStatus: PaymentPending, EstimatedTime: 30}, f.orders.prev)
		assert.Equal(t, StatusConfirmed, f.orders.next.Status)

		require.Len(t, f.events.events, 2)
		assert.Equal(t, notify.PaymentUpdated, f.events.events[0].Name)
		assert.Equal(t, "order-order-1", f.events.events[0].Channel)
		assert.Equal(t, notify.OrderPaymentUpdated, f.events.events[1].Name)
		assert.Equal(t, "store-siddhi", f.events.events[1].Channel)
		data := f.events.events[1].Data.(notify.PaymentData)
		assert.Equal(t, "COMPLETED", data.PaymentStatus)
		assert.Equal(t, "Asha", data.CustomerName)
	})

	t.Run("completed keeps an advanced status", func(t *testing.T) {
		f := newFixture(t, Config{})
		seedOrder(f, StatusPreparing, PaymentPending)

		o, err := f.svc.UpdatePaymentStatus(context.Background(), "order-1", PaymentCompleted)
		require.NoError(t, err)
		assert.Equal(t, StatusPreparing, o.Status)
	})

	t.Run("failed leaves status", func(t *testing.T) {
		f := newFixture(t, Config{})
		seedOrder(f, StatusPending, PaymentPending)

		o, err := f.svc.UpdatePaymentStatus(context.Background(), "order-1", PaymentFailed)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, o.Status)
		assert.Equal(t, PaymentFailed, o.PaymentStatus)
	})

	t.Run("illegal edge", func(t *testing.T) {
		f := newFixture(t, Config{})
		seedOrder(f, StatusPending, PaymentFailed)

		_, err := f.svc.UpdatePaymentStatus(context.Background(), "order-1", PaymentRefunded)
		require.ErrorIs(t, err, ErrInvalidTransition)
		var trErr *InvalidTransitionError
		require.True(t, errors.As(err, &trErr))
		assert.Equal(t, "FAILED", trErr.From)
		assert.Zero(t, f.orders.transCalls)
		assert.Empty(t, f.events.events)
	})

	t.Run("missing order", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.svc.UpdatePaymentStatus(context.Background(), "nope", PaymentCompleted)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("lost race", func(t *testing.T) {
		f := newFixture(t, Config{})
		seedOrder(f, StatusPending, PaymentPending)
		f.orders.transErr = ErrConcurrentUpdate

		_, err := f.svc.UpdatePaymentStatus(context.Background(), "order-1", PaymentCompleted)
		require.ErrorIs(t, err, ErrConcurrentUpdate)
		assert.Empty(t, f.events.events)
	})
}

func TestService_UpdateStatus(t *testing.T) {
	delivered := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)

	t.Run("delivery stamps deliveredAt", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.svc.now = func() time.Time { return delivered }
		seedOrder(f, StatusOutForDelivery, PaymentCompleted)

		o, err := f.svc.UpdateStatus(context.Background(), "order-1", StatusDelivered, nil)
		require.NoError(t, err)
		require.NotNil(t, o.DeliveredAt)
		assert.Equal(t, delivered, *o.DeliveredAt)
		assert.Equal(t, delivered, *f.orders.next.DeliveredAt)

		require.Len(t, f.events.events, 2)
		assert.Equal(t, notify.OrderUpdated, f.events.events[0].Name)
		assert.Equal(t, notify.OrderStatusChanged, f.events.events[1].Name)
	})

	t.Run("other statuses leave deliveredAt unset", func(t *testing.T) {
		f := newFixture(t, Config{})
		seedOrder(f, StatusConfirmed, PaymentCompleted)

		o, err := f.svc.UpdateStatus(context.Background(), "order-1", StatusPreparing, nil)
		require.NoError(t, err)
		assert.Nil(t, o.DeliveredAt)
		assert.Nil(t, f.orders.next.DeliveredAt)
	})

	t.Run("same status revises estimate", func(t *testing.T) {
		f := newFixture(t, Config{})
		seedOrder(f, StatusPreparing, PaymentPending)
		eta := 45

		o, err := f.svc.UpdateStatus(context.Background(), "order-1", StatusPreparing, &eta)
		require.NoError(t, err)
		assert.Equal(t, 45, o.EstimatedTime)
		assert.Equal(t, 45, f.orders.next.EstimatedTime)
	})

	t.Run("non-positive estimate", func(t *testing.T) {
		f := newFixture(t, Config{})
		seedOrder(f, StatusPreparing, PaymentPending)
		eta := 0

		_, err := f.svc.UpdateStatus(context.Background(), "order-1", StatusReady, &eta)
		var vErr *validation.Error
		require.True(t, errors.As(err, &vErr))
	})

	t.Run("estimate above limit", func(t *testing.T) {
		f := newFixture(t, Config{})
		seedOrder(f, StatusPreparing, PaymentPending)
		eta := MaxEstimatedTime + 1

		_, err := f.svc.UpdateStatus(context.Background(), "order-1", StatusReady, &eta)
		var vErr *validation.Error
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "estimatedTime", vErr.Field)
		assert.Zero(t, f.orders.transCalls)
	})

	t.Run("regression rejected", func(t *testing.T) {
		f := newFixture(t, Config{})
		seedOrder(f, StatusDelivered, PaymentCompleted)

		_, err := f.svc.UpdateStatus(context.Background(), "order-1", StatusPending, nil)
		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.Zero(t, f.orders.transCalls)
	})

	t.Run("skipping a step rejected", func(t *testing.T) {
		f := newFixture(t, Config{})
		seedOrder(f, StatusPending, PaymentPending)

		_, err := f.svc.UpdateStatus(context.Background(), "order-1", StatusReady, nil)
		require.ErrorIs(t, err, ErrInvalidTransition)
	})
}
