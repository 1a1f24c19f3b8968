package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Publisher accepts events for asynchronous delivery. Publish must not block
// and must not fail the caller.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Sink is a transport that delivers encoded events, e.g. websocket
// subscribers or a message broker.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event, body []byte) error
}

// Dispatcher is a buffered Publisher that fans events out to sinks from a
// single background goroutine. When the buffer is full new events are dropped.
type Dispatcher struct {
	sinks   []Sink
	queue   chan Event
	lg      *zap.Logger
	timeout time.Duration
	now     func() time.Time

	sent    metric.Int64Counter
	dropped metric.Int64Counter

	done chan struct{}
}

// DispatcherConfig tunes the Dispatcher.
type DispatcherConfig struct {
	BufferSize  int
	SendTimeout time.Duration
}

// NewDispatcher creates a Dispatcher. Call Run to start delivery.
func NewDispatcher(cfg DispatcherConfig, lg *zap.Logger, mp metric.MeterProvider, sinks ...Sink) (*Dispatcher, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}

	meter := mp.Meter("orderdesk/notify")
	sent, err := meter.Int64Counter("notify.events.sent",
		metric.WithDescription("Events delivered to a sink"))
	if err != nil {
		return nil, errors.Wrap(err, "create sent counter")
	}
	dropped, err := meter.Int64Counter("notify.events.dropped",
		metric.WithDescription("Events dropped because the queue was full"))
	if err != nil {
		return nil, errors.Wrap(err, "create dropped counter")
	}

	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan Event, cfg.BufferSize),
		lg:      lg,
		timeout: cfg.SendTimeout,
		now:     time.Now,
		sent:    sent,
		dropped: dropped,
		done:    make(chan struct{}),
	}, nil
}

// Publish enqueues ev without blocking.
func (d *Dispatcher) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = d.now()
	}
	select {
	case d.queue <- ev:
	default:
		d.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("event", ev.Name)))
		zctx.From(ctx).Warn("Notification queue full, dropping event",
			zap.String("event", ev.Name),
			zap.String("channel", ev.Channel),
		)
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is left.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

// Wait blocks until Run has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) drain() {
	ctx := context.Background()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	body := Marshal(ev)
	for _, s := range d.sinks {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		err := s.Send(sendCtx, ev, body)
		cancel()
		if err != nil {
			d.lg.Warn("Deliver event",
				zap.String("sink", s.Name()),
				zap.String("event", ev.Name),
				zap.String("channel", ev.Channel),
				zap.Error(err),
			)
			continue
		}
		d.sent.Add(ctx, 1, metric.WithAttributes(
			attribute.String("sink", s.Name()),
			attribute.String("event", ev.Name),
		))
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
