package feed

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DialAMQP opens the connection shared by every AMQPSource.
func DialAMQP(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// AMQPSource consumes one durable queue on its own channel. Deliveries that
// are already waiting are folded into the same batch and acknowledged
// together once it has been dispatched.
type AMQPSource struct {
	conn      *amqp.Connection
	queue     string
	batchSize int
	log       *zap.SugaredLogger
}

func NewAMQPSource(conn *amqp.Connection, queue string, batchSize int, logger *zap.SugaredLogger) *AMQPSource {
	if batchSize <= 0 {
		batchSize = 500
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AMQPSource{conn: conn, queue: queue, batchSize: batchSize, log: logger}
}

func (s *AMQPSource) Name() string { return "amqp:" + s.queue }

func (s *AMQPSource) SubscribeToChanges(ctx context.Context, onBatch func([][]byte)) error {
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("could not open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(
		s.queue, // name
		true,    // durable
		false,   // auto-delete
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	); err != nil {
		return fmt.Errorf("could not declare queue %s: %w", s.queue, err)
	}
	if err := ch.Qos(s.batchSize, 0, false); err != nil {
		return fmt.Errorf("could not set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, s.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("could not consume %s: %w", s.queue, err)
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr, ok := <-closed:
			if ok && amqpErr != nil {
				return fmt.Errorf("channel closed: %w", amqpErr)
			}
			return ErrSourceClosed
		case d, ok := <-deliveries:
			if !ok {
				return ErrSourceClosed
			}
			batch := [][]byte{d.Body}
			last := d
		fill:
			for len(batch) < s.batchSize {
				select {
				case next, ok := <-deliveries:
					if !ok {
						break fill
					}
					batch = append(batch, next.Body)
					last = next
				default:
					break fill
				}
			}
			onBatch(batch)
			if err := last.Ack(true); err != nil {
				s.log.Warnw("amqp_ack_failed", "queue", s.queue, "err", err)
			}
		}
	}
}
