package mq

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

type Publisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel

	mu            sync.Mutex
	delayDeclared map[string]bool
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := DeclareDLQExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}

	return &Publisher{
		conn:          conn,
		channel:       ch,
		delayDeclared: make(map[string]bool),
	}, nil
}

func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// IsConnected checks if the publisher connection is still alive.
func (p *Publisher) IsConnected() bool {
	if p.conn == nil || p.channel == nil {
		return false
	}
	if p.conn.IsClosed() {
		return false
	}
	return true
}

// Publish publishes an event to the exchange with the given routing key.
func (p *Publisher) Publish(routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.channel.Publish(
		ExchangeName,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
		},
	)
}

// PublishDelayed re-enqueues a payload onto the given work queue after delay.
// It routes the message through a per-delay holding queue whose TTL dead
// letters back into the work queue, so the broker owns the timer and a
// worker restart cannot lose a scheduled retry. A zero delay publishes
// straight to the work queue.
func (p *Publisher) PublishDelayed(workQueue string, payload any, delay time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	target := workQueue
	if delay > 0 {
		target = fmt.Sprintf("%s.delay.%d", workQueue, delay.Milliseconds())
		if err := p.ensureDelayQueue(target, workQueue, delay); err != nil {
			return err
		}
	}

	// Default exchange routes by queue name.
	return p.channel.Publish(
		"",
		target,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
		},
	)
}

func (p *Publisher) ensureDelayQueue(name, workQueue string, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.delayDeclared[name] {
		return nil
	}

	_, err := p.channel.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp091.Table{
			"x-message-ttl":             delay.Milliseconds(),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": workQueue,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare delay queue %s: %w", name, err)
	}

	p.delayDeclared[name] = true
	return nil
}
