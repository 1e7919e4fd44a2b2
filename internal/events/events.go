// Package events publishes domain events to a RabbitMQ topic exchange.
// Publishing is best effort: it happens after the owning transaction has
// committed and a failure never undoes the change it describes.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys.
const (
	BookScanned     = "book.scanned"
	RequestCreated  = "request.created"
	RequestApproved = "request.approved"
	RequestPartial  = "request.partial"
	RequestRejected = "request.rejected"
)

type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// Envelope is the body of every published message.
type Envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Rabbit publishes to a durable topic exchange. A nil *Rabbit is a valid
// publisher that drops everything.
type Rabbit struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	mu       sync.Mutex
}

// NewRabbit connects and declares the exchange. It returns nil, nil when url
// is empty so events can be switched off by configuration.
func NewRabbit(url, exchange string) (*Rabbit, error) {
	if url == "" {
		return nil, nil
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Rabbit{conn: conn, ch: ch, exchange: exchange}, nil
}

func (r *Rabbit) Publish(ctx context.Context, eventType string, payload any) error {
	if r == nil || r.ch == nil {
		return nil
	}
	body, err := json.Marshal(Envelope{Type: eventType, Timestamp: time.Now().UTC(), Payload: payload})
	if err != nil {
		return err
	}
	// amqp channels are not safe for concurrent publishes.
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ch.PublishWithContext(ctx, r.exchange, eventType, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (r *Rabbit) Close() {
	if r == nil {
		return
	}
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
	err    error
}

func (r *Recorder) Publish(_ context.Context, eventType string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, Envelope{Type: eventType, Timestamp: time.Now().UTC(), Payload: payload})
	return nil
}

// FailWith makes subsequent publishes fail with err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Types returns the routing keys published so far, in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.events...)
}
