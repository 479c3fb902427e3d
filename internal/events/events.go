// Package events publishes auth lifecycle events to the message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agronect/apiserver/internal/mq"
)

type Type string

const (
	UserSignedUp  Type = "user.signed_up"
	UserSignedIn  Type = "user.signed_in"
	UserSignedOut Type = "user.signed_out"
)

// attrType doubles as the rabbitmq routing key, so consumers can bind per type.
const attrType = mq.RoutingKeyAttribute

// Event is the JSON body of a published auth event.
type Event struct {
	Type   Type      `json:"type"`
	UserID string    `json:"user_id,omitempty"`
	Email  string    `json:"email,omitempty"`
	At     time.Time `json:"at"`
}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }

// Discard drops every event.
var Discard discard

// Publisher encodes events and sends them to a single broker channel.
type Publisher struct {
	mq      *mq.MQ
	channel string
}

func NewPublisher(m *mq.MQ, channel string) *Publisher {
	return &Publisher{mq: m, channel: channel}
}

// Publish sends event to the configured channel with a "type" attribute.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := p.mq.Publish(ctx, p.channel, data, map[string]string{attrType: string(event.Type)}); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Tail decodes every event on the channel and passes it to fn until ctx is done.
// Messages that fail to decode are acknowledged and skipped.
func (p *Publisher) Tail(ctx context.Context, fn func(ctx context.Context, event Event) error) error {
	return p.mq.Subscribe(ctx, p.channel, func(ctx context.Context, msg mq.Message) error {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return nil
		}
		return fn(ctx, event)
	})
}

// Close closes the underlying broker connection.
func (p *Publisher) Close() error {
	return p.mq.Close()
}
