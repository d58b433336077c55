package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/mail"
	"github.com/spec-kit/account-service/internal/observability"
)

const receiveBackoff = time.Second

// Renderer turns an activation link into an HTML body.
type Renderer interface {
	Activation(email, link string) (string, error)
}

// Options tunes the notification worker.
type Options struct {
	// Name prefixes consumer names; keep it stable per host so pending
	// deliveries are picked up again after a restart.
	Name        string
	Concurrency int
	SendTimeout time.Duration
	From        string
	Subject     string
}

// NotificationWorker mails activation links pulled from the channel.
type NotificationWorker struct {
	consumers events.ConsumerFactory
	renderer  Renderer
	sender    mail.Sender
	logger    *zap.Logger
	metrics   *observability.Metrics
	opts      Options
}

// NewNotificationWorker wires the worker.
func NewNotificationWorker(consumers events.ConsumerFactory, renderer Renderer, sender mail.Sender, logger *zap.Logger, metrics *observability.Metrics, opts Options) *NotificationWorker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.Name == "" {
		opts.Name = "mailer"
	}
	return &NotificationWorker{
		consumers: consumers,
		renderer:  renderer,
		sender:    sender,
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
	}
}

// Run starts the consumers and blocks until ctx is done and every consumer
// has finished its in-flight message.
func (w *NotificationWorker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.opts.Concurrency; i++ {
		name := fmt.Sprintf("%s-%d", w.opts.Name, i)
		consumer := w.consumers.NewConsumer(name)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx, name, consumer)
		}()
	}
	w.logger.Info("notification worker started", zap.Int("consumers", w.opts.Concurrency))
	wg.Wait()
	w.logger.Info("notification worker stopped")
}

func (w *NotificationWorker) consume(ctx context.Context, name string, consumer events.Consumer) {
	logger := w.logger.With(zap.String("consumer", name))
	for {
		if ctx.Err() != nil {
			return
		}

		delivery, err := consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, events.ErrQueueClosed) {
				return
			}
			logger.Warn("receive notification failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveBackoff):
			}
			continue
		}
		if delivery == nil {
			continue
		}

		w.handle(ctx, logger, consumer, delivery)
	}
}

// handle processes one delivery on a context detached from shutdown so an
// in-flight send can finish.
func (w *NotificationWorker) handle(ctx context.Context, logger *zap.Logger, consumer events.Consumer, d *events.Delivery) {
	workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.SendTimeout)
	defer cancel()

	logger = logger.With(zap.String("delivery_id", d.ID))

	n, err := events.DecodeActivationNotification(d.Payload)
	if err != nil {
		// Unreadable payloads will never succeed; acknowledge so they are not redelivered.
		w.metrics.Incr(observability.EventNotificationRejected)
		logger.Error("discarding malformed notification", zap.Error(err))
		w.ack(workCtx, logger, consumer, d)
		return
	}

	if err := w.deliver(workCtx, n); err != nil {
		w.metrics.Incr(observability.EventNotificationFailed)
		logger.Error("activation mail failed; left for redelivery",
			zap.String("account_id", n.AccountID),
			zap.Error(err))
		return
	}

	w.metrics.Incr(observability.EventNotificationSent)
	logger.Info("activation mail sent", zap.String("account_id", n.AccountID), zap.String("to", n.Email))
	w.ack(workCtx, logger, consumer, d)
}

func (w *NotificationWorker) deliver(ctx context.Context, n events.ActivationNotification) error {
	body, err := w.renderer.Activation(n.Email, n.ActivationLink)
	if err != nil {
		return err
	}
	return w.sender.Send(ctx, mail.Message{
		From:     w.opts.From,
		To:       n.Email,
		Subject:  w.opts.Subject,
		HTMLBody: body,
	})
}

func (w *NotificationWorker) ack(ctx context.Context, logger *zap.Logger, consumer events.Consumer, d *events.Delivery) {
	if err := consumer.Ack(ctx, d); err != nil {
		logger.Warn("ack notification failed", zap.Error(err))
	}
}
