package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

// AMQPQueue publishes and consumes dispatch jobs over RabbitMQ. Each topic
// maps onto a durable queue of the same name.
type AMQPQueue struct {
	conn *amqp.Connection
	log  *slog.Logger

	mu      sync.Mutex
	pub     *amqp.Channel
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

func DialAMQP(url string, log *slog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &AMQPQueue{
		conn:   conn,
		log:    log,
		pub:    ch,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func declare(ch *amqp.Channel, topic string) error {
	_, err := ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	return nil
}

// Publish sends job as a persistent JSON message.
func (q *AMQPQueue) Publish(ctx context.Context, topic string, job DispatchJob) error {
	body, err := EncodeJob(job)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := declare(q.pub, topic); err != nil {
		return err
	}

	return q.pub.Publish(
		"",
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Subscribe starts a consumer on its own channel with manual acks. A
// handler error requeues the delivery once; a redelivered job that fails
// again is dropped.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	if err := declare(ch, topic); err != nil {
		ch.Close()
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("register consumer: %w", err)
	}

	q.workers.Add(1)
	go func() {
		defer q.workers.Done()
		defer ch.Close()

		for d := range deliveries {
			q.handle(d, handler)
		}
	}()

	return nil
}

func (q *AMQPQueue) handle(d amqp.Delivery, handler Handler) {
	job, err := DecodeJob(d.Body)
	if err != nil {
		q.log.Warn("dropping malformed job", "error", err)
		d.Ack(false)
		return
	}

	if err := handler(q.ctx, job); err != nil {
		requeue := !d.Redelivered
		q.log.Warn("job failed", "id", job.ID, "requeue", requeue, "error", err)
		d.Nack(false, requeue)
		return
	}

	d.Ack(false)
}

// Close stops consumers and closes the connection.
func (q *AMQPQueue) Close() error {
	q.cancel()

	q.mu.Lock()
	q.pub.Close()
	q.mu.Unlock()

	err := q.conn.Close()
	q.workers.Wait()

	return err
}

var _ Queue = (*AMQPQueue)(nil)
