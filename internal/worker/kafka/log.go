// Package kafka adapts github.com/twmb/franz-go to domain.Log: Poll/Commit
// over a single consumer group. Grounded on the CV evaluator's
// internal/adapter/queue/redpanda/consumer.go client construction, simplified
// from its transactional, worker-pool, multi-partition-fanout session down to
// the single sequential poll-decode-process-commit loop spec.md describes:
// no EOS transactional session and no parallel worker pool, since nothing in
// this core needs exactly-once semantics beyond the idempotent upsert the
// storage layer already provides.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/jobmatch/core/internal/domain"
)

// Log adapts a franz-go client to domain.Log.
type Log struct {
	client *kgo.Client
	topic  string
	buf    []*kgo.Record
}

// New connects to brokers and joins groupID as a consumer of topic.
func New(brokers []string, groupID, topic string) (*Log, error) {
	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	kotelSvc := kotel.NewKotel(kotel.WithTracer(tracer))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.WithHooks(kotelSvc.Hooks()...),
		kgo.DialTimeout(10*time.Second),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: new client: %w", err)
	}
	return &Log{client: client, topic: topic}, nil
}

// Poll returns the oldest uncommitted buffered record, fetching a new batch
// from the broker if the buffer is empty. The record stays at the head of
// the buffer until Commit is called for it, so an uncommitted message is
// returned again by the next Poll. Returns (nil, nil) on timeout with no
// message available, matching domain.Log's "message | none" contract.
func (l *Log) Poll(ctx context.Context, timeout time.Duration) (*domain.LogMessage, error) {
	if len(l.buf) == 0 {
		pollCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		fetches := l.client.PollFetches(pollCtx)
		if fetches.IsClientClosed() {
			return nil, fmt.Errorf("kafka: client closed")
		}
		var fetchErr error
		fetches.EachError(func(_ string, _ int32, err error) {
			if fetchErr == nil {
				fetchErr = err
			}
		})
		if fetchErr != nil && len(fetches.Records()) == 0 {
			if pollCtx.Err() != nil {
				return nil, nil
			}
			return nil, fmt.Errorf("kafka: fetch: %w", fetchErr)
		}
		l.buf = fetches.Records()
		if len(l.buf) == 0 {
			return nil, nil
		}
	}

	rec := l.buf[0]
	return &domain.LogMessage{Raw: rec.Value, Partition: rec.Partition, Offset: rec.Offset}, nil
}

// Commit marks msg's offset as processed and drops it from the head of the
// buffer. The caller is expected to call Commit in partition/offset order
// per partition; franz-go's CommitRecords handles the group-commit protocol.
func (l *Log) Commit(ctx context.Context, msg *domain.LogMessage) error {
	rec := &kgo.Record{Topic: l.topic, Partition: msg.Partition, Offset: msg.Offset}
	if err := l.client.CommitRecords(ctx, rec); err != nil {
		return fmt.Errorf("kafka: commit: %w", err)
	}
	if len(l.buf) > 0 && l.buf[0].Partition == msg.Partition && l.buf[0].Offset == msg.Offset {
		l.buf = l.buf[1:]
	}
	return nil
}

// Close releases the underlying client.
func (l *Log) Close() { l.client.Close() }

var _ domain.Log = (*Log)(nil)
