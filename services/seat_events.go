package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"seat-reservation/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	SeatExchangeName = "seats"
	SeatExchangeKind = "topic"
)

// SeatEventPublisher announces seat state changes. Publishing is best effort:
// the seat map is the source of truth.
type SeatEventPublisher interface {
	PublishSeatEvent(ctx context.Context, event models.SeatEvent) error
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSeatEventPublisher publishes seat events to a topic exchange, routed
// by event type (seat.locked, seat.released, seat.sold).
type AMQPSeatEventPublisher struct {
	conn    *amqp.Connection
	channel amqpChannel
}

func NewAMQPSeatEventPublisher(url string) (*AMQPSeatEventPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(SeatExchangeName, SeatExchangeKind, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}

	return &AMQPSeatEventPublisher{conn: conn, channel: ch}, nil
}

func (p *AMQPSeatEventPublisher) PublishSeatEvent(ctx context.Context, event models.SeatEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal seat event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx, SeatExchangeName, event.Type, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   event.ID,
		Timestamp:   event.OccurredAt,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}

	slog.Debug("Published seat event", "type", event.Type, "event_id", event.EventID, "seats", len(event.SeatIDs))
	return nil
}

func (p *AMQPSeatEventPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
