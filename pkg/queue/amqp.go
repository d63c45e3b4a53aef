package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP is a RabbitMQ-backed queue. Unlike a shared global channel, the
// connection lifecycle is explicit: Dial opens it, Close tears it down, and
// a dropped connection is re-established lazily with the configured delay.
type AMQP struct {
	url            string
	reconnectDelay time.Duration

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	lastDial time.Time
}

// DialAMQP connects to the broker and declares the durable processing queue.
// reconnectDelay bounds how often a dropped connection is re-dialed; zero
// means a 5 second default.
func DialAMQP(url string, reconnectDelay time.Duration) (*AMQP, error) {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	q := &AMQP{url: url, reconnectDelay: reconnectDelay}
	if err := q.connect(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *AMQP) connect() error {
	conn, err := amqp.Dial(q.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	// queue survives broker restart; messages are published persistent
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp queue declare: %w", err)
	}
	q.conn = conn
	q.ch = ch
	return nil
}

// channel returns a usable channel, reconnecting once if the previous
// connection died. Re-dials are rate-limited to reconnectDelay; callers in
// between get an immediate error instead of waiting behind a sleep.
func (q *AMQP) channel() (*amqp.Channel, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.conn != nil && !q.conn.IsClosed() {
		return q.ch, nil
	}
	if time.Since(q.lastDial) < q.reconnectDelay {
		return nil, errors.New("amqp connection down, reconnect pending")
	}
	log.Printf("WARN amqp connection lost, reconnecting")
	q.lastDial = time.Now()
	if err := q.connect(); err != nil {
		return nil, err
	}
	return q.ch, nil
}

// Publish enqueues a job as a persistent JSON message.
func (q *AMQP) Publish(ctx context.Context, job Job) error {
	ch, err := q.channel()
	if err != nil {
		return err
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return ch.PublishWithContext(ctx, "", QueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Consume delivers jobs to handle one at a time (prefetch 1) until ctx is
// cancelled or the connection drops. The caller is expected to loop.
func (q *AMQP) Consume(ctx context.Context, handle Handler) error {
	ch, err := q.channel()
	if err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("amqp qos: %w", err)
	}
	deliveries, err := ch.Consume(QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			var job Job
			if err := json.Unmarshal(msg.Body, &job); err != nil {
				// malformed payload can never succeed; drop it
				log.Printf("ERROR dropping unparseable job: %v", err)
				_ = msg.Ack(false)
				continue
			}
			if err := handle(ctx, job, msg.Redelivered); err != nil {
				log.Printf("WARN job for dataset %s failed, requeueing: %v", job.DatasetID, err)
				_ = msg.Nack(false, true)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}

// Close tears down the channel and connection.
func (q *AMQP) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
