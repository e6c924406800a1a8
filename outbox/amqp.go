package outbox

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher publishes outbox messages to a durable topic exchange, using the
// message topic as routing key. A closed connection or channel is redialed on the
// next publish.
type AMQPPublisher struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url, exchange: exchange}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect requires p.mu held once p is shared.
func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("outbox: dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("outbox: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("outbox: declare exchange: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *AMQPPublisher) dropLocked() {
	if p.conn != nil && !p.conn.IsClosed() {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		p.dropLocked()
		if err := p.connect(); err != nil {
			return fmt.Errorf("outbox: reconnect: %w", err)
		}
	}

	err := p.ch.PublishWithContext(ctx, p.exchange, msg.Topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.CreatedAt,
		Type:         msg.Topic,
		Body:         msg.Payload,
	})
	if err != nil {
		if p.ch.IsClosed() {
			p.dropLocked()
		}
		return fmt.Errorf("outbox: publish %s: %w", msg.ID, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		return nil
	}
	if err := p.ch.Close(); err != nil {
		p.dropLocked()
		return fmt.Errorf("outbox: close channel: %w", err)
	}
	err := p.conn.Close()
	p.conn, p.ch = nil, nil
	return err
}
