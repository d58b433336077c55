package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Delivery is one message handed to a consumer. It must be acknowledged once
// handled; unacknowledged deliveries may be redelivered.
type Delivery struct {
	ID      string
	Payload []byte
}

// Publisher places opaque payloads onto a channel.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Consumer pulls deliveries from a channel.
type Consumer interface {
	// Receive waits for the next delivery. It returns (nil, nil) when the
	// poll window elapses without a message.
	Receive(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
}

// ConsumerFactory hands out named consumers sharing one channel.
type ConsumerFactory interface {
	NewConsumer(name string) Consumer
}

// ActivationNotification asks for the activation link to be mailed to Email.
type ActivationNotification struct {
	AccountID      string    `json:"account_id"`
	Email          string    `json:"email"`
	ActivationLink string    `json:"activation_link"`
	RequestedAt    time.Time `json:"requested_at"`
}

// Encode serializes the notification for the channel.
func (n ActivationNotification) Encode() ([]byte, error) {
	return json.Marshal(n)
}

// DecodeActivationNotification parses a payload produced by Encode.
func DecodeActivationNotification(payload []byte) (ActivationNotification, error) {
	var n ActivationNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return n, fmt.Errorf("decode activation notification: %w", err)
	}
	if n.Email == "" || n.ActivationLink == "" {
		return n, fmt.Errorf("decode activation notification: missing email or link")
	}
	return n, nil
}
