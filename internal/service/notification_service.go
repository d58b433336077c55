package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/observability"
)

// ActivationRequest identifies where an activation link must be sent.
type ActivationRequest struct {
	AccountID      string
	Email          string
	ActivationLink string
}

// Notifier hands activation requests to the delivery pipeline. It never fails
// the caller; problems are logged.
type Notifier interface {
	Dispatch(ctx context.Context, req ActivationRequest)
}

// NotificationDispatcher publishes activation notifications to the channel.
type NotificationDispatcher struct {
	publisher events.Publisher
	logger    *zap.Logger
	metrics   *observability.Metrics
	timeout   time.Duration
	now       func() time.Time
}

// NewNotificationDispatcher creates the dispatcher. timeout bounds each publish.
func NewNotificationDispatcher(publisher events.Publisher, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) *NotificationDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NotificationDispatcher{
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Dispatch serializes and publishes the notification. The publish outlives
// cancellation of ctx but not the dispatcher timeout.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, req ActivationRequest) {
	payload, err := events.ActivationNotification{
		AccountID:      req.AccountID,
		Email:          req.Email,
		ActivationLink: req.ActivationLink,
		RequestedAt:    d.now().UTC(),
	}.Encode()
	if err != nil {
		d.fail(req, err)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if err := d.publisher.Publish(pubCtx, payload); err != nil {
		d.fail(req, err)
		return
	}
	d.metrics.Incr(observability.EventNotificationQueued)
	d.logger.Debug("activation notification queued", zap.String("account_id", req.AccountID))
}

func (d *NotificationDispatcher) fail(req ActivationRequest, err error) {
	d.metrics.Incr(observability.EventNotificationDropped)
	d.logger.Error("activation notification dispatch failed",
		zap.String("account_id", req.AccountID),
		zap.String("email", req.Email),
		zap.Error(err))
}
