package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/config"
	"github.com/Additional-Code/atelier/internal/messaging"
)

// Notifier accepts fire-and-forget notification requests. Notify never
// blocks on delivery and never reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

// ErrQueueFull is logged when a message is dropped because the queue is saturated.
var ErrQueueFull = errors.New("notification queue full")

// Dispatcher buffers messages in memory and hands them to the bus from a
// background loop. With messaging disabled it delivers to the mailer directly.
type Dispatcher struct {
	queue          chan Message
	publisher      messaging.Client
	mailer         Mailer
	useBus         bool
	publishTimeout time.Duration
	logger         *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Params defines dependencies for constructing Dispatcher.
type Params struct {
	fx.In

	Config    config.Config
	Publisher messaging.Client
	Mailer    Mailer
	Logger    *zap.Logger
}

// NewDispatcher builds a dispatcher; call Start before sending.
func NewDispatcher(p Params) *Dispatcher {
	size := p.Config.Notification.QueueSize
	if size <= 0 {
		size = 1
	}
	timeout := p.Config.Notification.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		queue:          make(chan Message, size),
		publisher:      p.Publisher,
		mailer:         p.Mailer,
		useBus:         p.Config.Messaging.Enabled && p.Config.Messaging.Driver != "noop",
		publishTimeout: timeout,
		logger:         p.Logger,
	}
}

// Notify enqueues msg. A full queue drops the message with an error log.
func (d *Dispatcher) Notify(_ context.Context, msg Message) {
	select {
	case d.queue <- msg:
	default:
		d.deadLetter(msg, ErrQueueFull)
	}
}

// Start launches the delivery loop.
func (d *Dispatcher) Start(context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop(runCtx)
	}()
	d.logger.Info("notification dispatcher started", zap.Bool("bus", d.useBus), zap.Int("queue", cap(d.queue)))
	return nil
}

// Stop drains what is already queued and stops the loop.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		d.logger.Info("notification dispatcher stopped")
		return nil
	}
}

func (d *Dispatcher) loop(ctx context.Context) {
	for {
		select {
		case msg := <-d.queue:
			d.deliver(msg)
		case <-ctx.Done():
			for {
				select {
				case msg := <-d.queue:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.publishTimeout)
	defer cancel()

	var err error
	if d.useBus {
		err = d.publish(ctx, msg)
	} else {
		err = d.mailer.Send(ctx, msg)
	}
	if err != nil {
		d.deadLetter(msg, err)
	}
}

func (d *Dispatcher) publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return d.publisher.Publish(ctx, messaging.Envelope{
		Key:     []byte(msg.OrderCode),
		Value:   payload,
		Headers: map[string]string{HeaderKind: string(msg.Kind)},
	})
}

func (d *Dispatcher) deadLetter(msg Message, err error) {
	d.logger.Error("notification dropped",
		zap.String("kind", string(msg.Kind)),
		zap.String("order_code", msg.OrderCode),
		zap.String("notification_id", msg.ID.String()),
		zap.Error(err),
	)
}
