package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"guildledger/pkg/platform/circuit"
)

// Producer is the subset of *kgo.Client the Kafka publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher writes events to a Kafka topic keyed by guild address, so
// all events of one guild land on one partition in commit order. While the
// broker is failing, the breaker routes events to the fallback publisher.
type KafkaPublisher struct {
	producer Producer
	topic    string
	fallback Publisher
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type KafkaOption func(*KafkaPublisher)

func WithFallback(p Publisher) KafkaOption {
	return func(k *KafkaPublisher) {
		k.fallback = p
	}
}

func WithBreaker(b *circuit.Breaker) KafkaOption {
	return func(k *KafkaPublisher) {
		k.breaker = b
	}
}

func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(k *KafkaPublisher) {
		k.logger = logger
	}
}

func NewKafkaPublisher(producer Producer, topic string, opts ...KafkaOption) *KafkaPublisher {
	k := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		breaker:  circuit.New("kafka-events"),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *KafkaPublisher) Publish(ctx context.Context, event Event) {
	if k.breaker.IsOpen() {
		// Probe the broker on every event while open; successes close the breaker.
		if err := k.produce(ctx, event); err != nil {
			k.breaker.RecordFailure()
			k.publishFallback(ctx, event)
			return
		}
		if _, change := k.breaker.RecordSuccess(); change.Closed {
			k.log(ctx, slog.LevelInfo, "event broker recovered")
		}
		return
	}

	if err := k.produce(ctx, event); err != nil {
		_, change := k.breaker.RecordFailure()
		if change.Opened {
			k.log(ctx, slog.LevelWarn, "event broker failing; routing events to fallback", "error", err)
		}
		k.publishFallback(ctx, event)
		return
	}
	k.breaker.RecordSuccess()
}

func (k *KafkaPublisher) produce(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic: k.topic,
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if event.Guild != nil {
		record.Key = []byte(event.Guild.String())
	}
	return k.producer.ProduceSync(ctx, record).FirstErr()
}

func (k *KafkaPublisher) publishFallback(ctx context.Context, event Event) {
	if k.fallback != nil {
		k.fallback.Publish(ctx, event)
	}
}

func (k *KafkaPublisher) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if k.logger != nil {
		k.logger.Log(ctx, level, msg, append(args, "topic", k.topic)...)
	}
}
