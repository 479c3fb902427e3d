package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agronect/apiserver/config"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RoutingKeyAttribute names the attribute used as the topic routing key.
const RoutingKeyAttribute = "type"

const matchAll = "#"

// RabbitMQClient publishes to a topic exchange named after the channel. Each
// subscriber queue, also named after the channel, is bound with bindingKeys.
type RabbitMQClient struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	durable     bool
	autoDelete  bool
	bindingKeys []string
}

func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
	}

	return &RabbitMQClient{
		conn:        conn,
		channel:     ch,
		durable:     cfg.QueueDurable,
		autoDelete:  cfg.QueueAutoDelete,
		bindingKeys: bindingKeys(cfg.BindingKeys),
	}, nil
}

// Publish sends data to the channel's exchange, routed by the "type" attribute.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}
	if _, err := r.declareTopology(channel); err != nil {
		return "", err
	}

	headers := amqp.Table{}
	for key, value := range attrs {
		headers[key] = value
	}

	deliveryMode := amqp.Transient
	if r.durable {
		deliveryMode = amqp.Persistent
	}

	key := routingKey(channel, attrs)
	messageID := uuid.NewString()
	err := r.channel.PublishWithContext(ctx, channel, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: deliveryMode,
		MessageId:    messageID,
		Type:         key,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         data,
	})
	if err != nil {
		return "", fmt.Errorf("publish %s to %s: %w", key, channel, err)
	}
	return messageID, nil
}

// Subscribe binds the channel queue to its exchange and consumes until ctx is done.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}
	queue, err := r.declareTopology(channel)
	if err != nil {
		return err
	}

	consumerTag := "agronect-" + uuid.NewString()
	deliveries, err := r.channel.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.channel.Cancel(consumerTag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			if err := handler(ctx, deliveryToMessage(delivery)); err != nil {
				_ = delivery.Nack(false, true)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

func (r *RabbitMQClient) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// declareTopology declares the channel's exchange and queue and binds them, so
// events published before any consumer attaches wait in the queue.
func (r *RabbitMQClient) declareTopology(channel string) (string, error) {
	if err := r.channel.ExchangeDeclare(channel, amqp.ExchangeTopic, r.durable, r.autoDelete, false, false, nil); err != nil {
		return "", err
	}
	queue, err := r.channel.QueueDeclare(channel, r.durable, r.autoDelete, false, false, nil)
	if err != nil {
		return "", err
	}
	for _, key := range r.bindingKeys {
		if err := r.channel.QueueBind(queue.Name, key, channel, false, nil); err != nil {
			return "", fmt.Errorf("bind %s to %s: %w", key, channel, err)
		}
	}
	return queue.Name, nil
}

// routingKey uses the event type when present so subscribers can bind per type.
func routingKey(channel string, attrs map[string]string) string {
	if key := strings.TrimSpace(attrs[RoutingKeyAttribute]); key != "" {
		return key
	}
	return channel
}

func bindingKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key = strings.TrimSpace(key); key != "" {
			out = append(out, key)
		}
	}
	if len(out) == 0 {
		return []string{matchAll}
	}
	return out
}

// deliveryToMessage copies headers into attributes. The routing key fills the
// "type" attribute when a publisher did not set the header.
func deliveryToMessage(delivery amqp.Delivery) Message {
	attrs := tableToAttributes(delivery.Headers)
	if _, ok := attrs[RoutingKeyAttribute]; !ok && delivery.RoutingKey != "" {
		if attrs == nil {
			attrs = map[string]string{}
		}
		attrs[RoutingKeyAttribute] = delivery.RoutingKey
	}
	return Message{
		ID:         delivery.MessageId,
		Data:       delivery.Body,
		Attributes: attrs,
	}
}

func tableToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}
