package order

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/orderdesk/internal/domain/validation"
	"github.com/xenking/orderdesk/internal/notify"
)

// statusTransitions lists the allowed next statuses. DELIVERED and CANCELLED
// are terminal.
var statusTransitions = map[Status][]Status{
	StatusPending:        {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusPreparing, StatusCancelled},
	StatusPreparing:      {StatusReady, StatusCancelled},
	StatusReady:          {StatusOutForDelivery, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered, StatusCancelled},
	StatusDelivered:      nil,
	StatusCancelled:      nil,
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentCompleted, PaymentFailed},
	PaymentCompleted: {PaymentRefunded},
	PaymentFailed:    nil,
	PaymentRefunded:  nil,
}

// ParseStatus validates a client-supplied order status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := statusTransitions[st]; !ok {
		return "", validation.New("status", "unknown order status "+s)
	}
	return st, nil
}

// ParsePaymentStatus validates a client-supplied payment status.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	ps := PaymentStatus(s)
	if _, ok := paymentTransitions[ps]; !ok {
		return "", validation.New("paymentStatus", "unknown payment status "+s)
	}
	return ps, nil
}

// Terminal reports whether no further status change is possible.
func (s Status) Terminal() bool {
	return len(statusTransitions[s]) == 0
}

// CanTransition reports whether from → to is allowed. Staying in a
// non-terminal status is allowed so the estimate can be revised.
func CanTransition(from, to Status) bool {
	if from == to {
		return !from.Terminal()
	}
	return slices.Contains(statusTransitions[from], to)
}

// CanTransitionPayment reports whether from → to is an allowed payment change.
func CanTransitionPayment(from, to PaymentStatus) bool {
	return slices.Contains(paymentTransitions[from], to)
}

// UpdatePaymentStatus moves the order's payment status to next. A completed
// payment confirms an order that is still pending; orders further along keep
// their status.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id string, next PaymentStatus) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdatePaymentStatus",
		trace.WithAttributes(attribute.String("order.id", id), attribute.String("payment_status", string(next))))
	defer span.End()

	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransitionPayment(o.PaymentStatus, next) {
		return nil, &InvalidTransitionError{Field: "paymentStatus", From: string(o.PaymentStatus), To: string(next)}
	}

	prev := stateOf(o)
	upd := prev
	upd.PaymentStatus = next
	if next == PaymentCompleted && o.Status == StatusPending {
		upd.Status = StatusConfirmed
	}

	if err := s.orders.Transition(ctx, id, prev, upd); err != nil {
		return nil, errors.Wrap(err, "update payment status")
	}
	s.apply(o, upd)
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("field", "payment_status"),
		attribute.String("to", string(next)),
	))

	data := notify.PaymentData{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		PaymentStatus: string(o.PaymentStatus),
		Status:        string(o.Status),
		CustomerName:  o.CustomerName,
	}
	s.events.Publish(ctx, notify.Event{Channel: notify.OrderChannel(o.ID), Name: notify.PaymentUpdated, Data: data})
	s.events.Publish(ctx, notify.Event{Channel: notify.StoreChannel(o.StoreSlug), Name: notify.OrderPaymentUpdated, Data: data})

	return o, nil
}

// UpdateStatus moves the order to next, optionally revising the estimated
// preparation time. Delivery stamps DeliveredAt.
func (s *Service) UpdateStatus(ctx context.Context, id string, next Status, estimatedTime *int) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus",
		trace.WithAttributes(attribute.String("order.id", id), attribute.String("status", string(next))))
	defer span.End()

	if estimatedTime != nil && (*estimatedTime < 1 || *estimatedTime > MaxEstimatedTime) {
		return nil, validation.New("estimatedTime", fmt.Sprintf("must be between 1 and %d minutes", MaxEstimatedTime))
	}

	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, next) {
		return nil, &InvalidTransitionError{Field: "status", From: string(o.Status), To: string(next)}
	}

	prev := stateOf(o)
	upd := prev
	upd.Status = next
	if estimatedTime != nil {
		upd.EstimatedTime = *estimatedTime
	}
	if next == StatusDelivered {
		now := s.now()
		upd.DeliveredAt = &now
	}

	if err := s.orders.Transition(ctx, id, prev, upd); err != nil {
		return nil, errors.Wrap(err, "update status")
	}
	s.apply(o, upd)
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("field", "status"),
		attribute.String("to", string(next)),
	))

	data := notify.StatusData{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        string(o.Status),
		EstimatedTime: o.EstimatedTime,
		DeliveredAt:   o.DeliveredAt,
		CustomerName:  o.CustomerName,
	}
	s.events.Publish(ctx, notify.Event{Channel: notify.OrderChannel(o.ID), Name: notify.OrderUpdated, Data: data})
	s.events.Publish(ctx, notify.Event{Channel: notify.StoreChannel(o.StoreSlug), Name: notify.OrderStatusChanged, Data: data})

	return o, nil
}

func (s *Service) load(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

func (s *Service) apply(o *Order, st State) {
	o.Status = st.Status
	o.PaymentStatus = st.PaymentStatus
	o.EstimatedTime = st.EstimatedTime
	o.DeliveredAt = st.DeliveredAt
	o.UpdatedAt = s.now()
}

func stateOf(o *Order) State {
	return State{
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		EstimatedTime: o.EstimatedTime,
		DeliveredAt:   o.DeliveredAt,
	}
}
