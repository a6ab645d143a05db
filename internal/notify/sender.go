package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/bidfinderz-backend/pkg/logger"
)

const defaultPublishTimeout = 10 * time.Second

// Kind identifies the notification event being sent.
type Kind string

const (
	KindBidInvitation Kind = "bid_invitation"
	KindOfferAccepted Kind = "offer_accepted"
	KindOfferRejected Kind = "offer_rejected"
)

// Notification is one message addressed to a store.
type Notification struct {
	Kind           Kind           `json:"kind"`
	RecipientStore uuid.UUID      `json:"recipientStoreId"`
	OrderID        uuid.UUID      `json:"orderId"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// Sender delivers notifications. Delivery is best-effort: callers treat a
// returned error as loggable, not as a reason to fail the triggering
// operation.
type Sender interface {
	Send(ctx context.Context, notification Notification) error
}

type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type gcpPublisher struct {
	*pubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return p.Publisher.Publish(ctx, msg)
}

// pubsubSender publishes notification events for a downstream delivery
// worker to fan out.
type pubsubSender struct {
	pub  publisher
	logg *logger.Logger
}

// NewPubSubSender wraps a Pub/Sub publisher as a Sender.
func NewPubSubSender(pub *pubsub.Publisher, logg *logger.Logger) (Sender, error) {
	if pub == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &pubsubSender{pub: &gcpPublisher{Publisher: pub}, logg: logg}, nil
}

func (s *pubsubSender) Send(ctx context.Context, notification Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"kind":               string(notification.Kind),
			"recipient_store_id": notification.RecipientStore.String(),
			"order_id":           notification.OrderID.String(),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := s.pub.Publish(publishCtx, msg)
	if result == nil {
		return fmt.Errorf("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// logSender writes notifications to the structured log. Used when Pub/Sub
// is not configured, typically local development.
type logSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) (Sender, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &logSender{logg: logg}, nil
}

func (s *logSender) Send(ctx context.Context, notification Notification) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"kind":               string(notification.Kind),
		"recipient_store_id": notification.RecipientStore.String(),
		"order_id":           notification.OrderID.String(),
	})
	s.logg.Info(logCtx, "notification dispatched")
	return nil
}
