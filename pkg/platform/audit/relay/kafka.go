package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "govengine/pkg/platform/audit"
)

// KafkaSink publishes audit events to a Kafka topic, keyed by event id.
type KafkaSink struct {
	client  *kgo.Client
	brokers []string
	topic   string
}

// NewKafkaSink connects to brokers and makes sure topic exists.
func NewKafkaSink(ctx context.Context, brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := ensureTopic(ctx, kadm.NewClient(client), topic); err != nil {
		client.Close()
		return nil, err
	}
	return &KafkaSink{client: client, brokers: brokers, topic: topic}, nil
}

func ensureTopic(ctx context.Context, adm *kadm.Client, topic string) error {
	resp, err := adm.CreateTopics(ctx, 1, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	topics, err := adm.ListTopics(ctx, topic)
	if err != nil {
		return fmt.Errorf("describe topic %s: %w", topic, err)
	}
	return checkSinglePartition(topic, topics)
}

// checkSinglePartition requires exactly one partition. Records are produced
// in seq order and resume reads only the tail of partition 0, which holds
// only while the topic has one partition.
func checkSinglePartition(topic string, topics kadm.TopicDetails) error {
	detail, ok := topics[topic]
	if !ok {
		return fmt.Errorf("topic %s not found after creation", topic)
	}
	if detail.Err != nil {
		return fmt.Errorf("describe topic %s: %w", topic, detail.Err)
	}
	if n := len(detail.Partitions); n != 1 {
		return fmt.Errorf("topic %s has %d partitions, the audit relay requires exactly 1", topic, n)
	}
	return nil
}

// Publish produces the batch synchronously and fails if any record failed.
func (k *KafkaSink) Publish(ctx context.Context, events []audit.Event) error {
	records := make([]*kgo.Record, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal audit event %s: %w", e.ID, err)
		}
		records = append(records, &kgo.Record{
			Topic: k.topic,
			Key:   []byte(e.ID.String()),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "event_type", Value: []byte(e.Type)},
				{Key: "stream", Value: []byte(e.Stream())},
			},
		})
	}
	if err := k.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce audit events: %w", err)
	}
	return nil
}

// LastRelayedSeq reads the newest record of the topic and returns its
// sequence number, or 0 for an empty topic. The relay resumes after it.
func (k *KafkaSink) LastRelayedSeq(ctx context.Context) (int64, error) {
	ends, err := kadm.NewClient(k.client).ListEndOffsets(ctx, k.topic)
	if err != nil {
		return 0, fmt.Errorf("list end offsets of %s: %w", k.topic, err)
	}
	end, ok := ends.Lookup(k.topic, 0)
	if !ok {
		return 0, fmt.Errorf("topic %s has no partition 0", k.topic)
	}
	if end.Err != nil {
		return 0, fmt.Errorf("list end offsets of %s: %w", k.topic, end.Err)
	}
	if end.Offset <= 0 {
		return 0, nil
	}

	tail, err := kgo.NewClient(
		kgo.SeedBrokers(k.brokers...),
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
			k.topic: {0: kgo.NewOffset().At(end.Offset - 1)},
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("create kafka tail reader: %w", err)
	}
	defer tail.Close()

	for {
		fetches := tail.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("read last audit record: %w", err)
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			return 0, fmt.Errorf("read last audit record: %w", errs[0].Err)
		}
		var (
			last      audit.Event
			found     bool
			decodeErr error
		)
		fetches.EachRecord(func(r *kgo.Record) {
			if err := json.Unmarshal(r.Value, &last); err != nil {
				decodeErr = err
				return
			}
			found = true
		})
		if decodeErr != nil {
			return 0, fmt.Errorf("decode last audit record: %w", decodeErr)
		}
		if found {
			return last.Seq, nil
		}
	}
}

func (k *KafkaSink) Close() {
	k.client.Close()
}
