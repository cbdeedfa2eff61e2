package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"elnksync.local/internal/app/linksync"
)

// KafkaConsumer 从事件总线消费生命周期事件并逐条对账。
// group id 固定：多实例部署时同一事件只被一个实例处理。
type KafkaConsumer struct {
	reader     *kafka.Reader
	reconciler *linksync.Reconciler
	timeout    time.Duration
}

func NewKafkaConsumer(brokers []string, topic string, reconciler *linksync.Reconciler) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  "linksync-consumer",
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		reconciler: reconciler,
		timeout:    60 * time.Second,
	}
}

func (k *KafkaConsumer) Run(ctx context.Context) {
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("kafka read failed", "err", err)
			continue
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			slog.Error("unmarshal event failed", "err", err)
			continue
		}

		evctx, cancel := context.WithTimeout(context.Background(), k.timeout)
		Apply(evctx, k.reconciler, event)
		cancel()
	}
}

func (k *KafkaConsumer) Close() {
	k.reader.Close()
}
