package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/port"
	kafka "github.com/segmentio/kafka-go"
)

type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// Publisher writes book updates to a topic, keyed by pair so that updates
// of one pair stay ordered within a partition.
type Publisher struct {
	w *kafka.Writer
}

var _ port.Publisher = (*Publisher)(nil)

func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: empty topic")
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Async:                  true,
	}
	return &Publisher{w: w}, nil
}

func (p *Publisher) Publish(ctx context.Context, update domain.BookUpdate) error {
	msg, err := message(update)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, msg)
}

func message(update domain.BookUpdate) (kafka.Message, error) {
	b, err := json.Marshal(update)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(update.Pair),
		Value: b,
		Time:  update.Timestamp,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte("orderbook_update")},
		},
	}, nil
}

func (p *Publisher) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}
