package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/andrej220/secuaudit/internal/lg"
	"github.com/andrej220/secuaudit/pkg/audit"
	"github.com/andrej220/secuaudit/pkg/report"
)

type messageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

// ResultMessage is the value of every Kafka message.
type ResultMessage struct {
	RunID       string       `json:"run_id"`
	Target      string       `json:"target"`
	GeneratedAt time.Time    `json:"generated_at"`
	Result      audit.Result `json:"result"`
}

// KafkaSink sends one message per result, keyed by run id. It logs through
// the logger attached to the Publish context.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

var _ Sink = (*KafkaSink)(nil)

func NewKafka(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			Async:                  false,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

func (k *KafkaSink) Publish(ctx context.Context, r report.Report) error {
	if len(r.Results) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(r.Results))
	for _, res := range r.Results {
		value, err := json.Marshal(ResultMessage{
			RunID:       r.RunID,
			Target:      r.Target,
			GeneratedAt: r.GeneratedAt,
			Result:      res,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal result %s: %w", res.RuleID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.RunID),
			Value: value,
			Time:  r.GeneratedAt,
		})
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		if errors.Is(err, kafka.UnknownTopicOrPartition) {
			lg.FromContext(ctx).Error("Kafka topic does not exist",
				lg.String("topic", k.topic),
				lg.String("action", "Create the topic manually or enable auto-creation"))
		}
		return fmt.Errorf("failed to publish run %s to Kafka: %w", r.RunID, err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
