package feed

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type KafkaConfig struct {
	Brokers   []string
	GroupID   string
	Topic     string
	BatchSize int
	BatchWait time.Duration
	Logger    *zap.SugaredLogger
}

// KafkaSource reads one topic. Messages are collected into batches of up to
// BatchSize, waiting at most BatchWait after the first message, and
// committed after the batch has been dispatched.
type KafkaSource struct {
	cfg    KafkaConfig
	reader *kafka.Reader
	log    *zap.SugaredLogger
}

func NewKafkaSource(cfg KafkaConfig) *KafkaSource {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.BatchWait <= 0 {
		cfg.BatchWait = 10 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  cfg.BatchWait,
		Dialer: &kafka.Dialer{
			Timeout:   30 * time.Second,
			DualStack: true,
			KeepAlive: 30 * time.Second,
		},
		ReadBatchTimeout: cfg.BatchWait,
	})
	return &KafkaSource{cfg: cfg, reader: reader, log: cfg.Logger}
}

func (s *KafkaSource) Name() string { return "kafka:" + s.cfg.Topic }

func (s *KafkaSource) SubscribeToChanges(ctx context.Context, onBatch func([][]byte)) error {
	defer s.reader.Close()

	for {
		first, err := s.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		msgs := []kafka.Message{first}

		for len(msgs) < s.cfg.BatchSize {
			fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.BatchWait)
			m, err := s.reader.FetchMessage(fetchCtx)
			cancel()
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
					break
				}
				return err
			}
			msgs = append(msgs, m)
		}

		batch := make([][]byte, len(msgs))
		for i, m := range msgs {
			batch[i] = m.Value
		}
		onBatch(batch)

		if s.cfg.GroupID != "" {
			if err := s.reader.CommitMessages(ctx, msgs...); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Warnw("kafka_commit_failed", "topic", s.cfg.Topic, "messages", len(msgs), "err", err)
			}
		}
	}
}
