package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/GTDGit/gtd_catalog/internal/models"
)

// Audit event kinds carried in the "kind" field of every message.
const (
	KindSyncSummary = "catalog.sync.summary"
	KindBrandMerge  = "catalog.brand.merge"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes catalog audit events as JSON.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			WriteTimeout:           10 * time.Second,
		},
		now: time.Now,
	}
}

type syncSummaryMessage struct {
	Kind    string              `json:"kind"`
	At      time.Time           `json:"at"`
	Summary *models.SyncSummary `json:"summary"`
}

type mergeMessage struct {
	Kind   string             `json:"kind"`
	At     time.Time          `json:"at"`
	Mode   models.MergeMode   `json:"mode"`
	Record models.MergeRecord `json:"record"`
}

// PublishSyncSummary publishes summary keyed by its run id.
func (p *KafkaPublisher) PublishSyncSummary(ctx context.Context, summary *models.SyncSummary) error {
	return p.publish(ctx, summary.RunID, syncSummaryMessage{
		Kind:    KindSyncSummary,
		At:      p.now(),
		Summary: summary,
	})
}

// PublishMerge publishes record keyed by its canonical code.
func (p *KafkaPublisher) PublishMerge(ctx context.Context, mode models.MergeMode, record models.MergeRecord) error {
	return p.publish(ctx, record.CanonicalCode, mergeMessage{
		Kind:   KindBrandMerge,
		At:     p.now(),
		Mode:   mode,
		Record: record,
	})
}

func (p *KafkaPublisher) publish(ctx context.Context, key string, event any) error {
	v, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: v,
		Time:  p.now(),
	})
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
