// Package kafkabus carries update requests over Kafka so several gateway
// replicas can feed the same schedulers. Each entity type has its own topic;
// records are keyed by the target's external id.
package kafkabus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"muniapi/internal/platform/kafka"
	"muniapi/internal/updater"
	"muniapi/pkg/platform/sentinel"
)

// Publisher implements updater.Bus on top of a franz-go producer.
type Publisher struct {
	client *kgo.Client
	prefix string
}

func NewPublisher(client *kgo.Client, topicPrefix string) *Publisher {
	return &Publisher{client: client, prefix: topicPrefix}
}

func (p *Publisher) Publish(ctx context.Context, req updater.Request) error {
	value, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode update request: %w", err)
	}
	record := &kgo.Record{
		Topic: kafka.TopicFor(p.prefix, req.Target.Type),
		Key:   []byte(req.Target.Key()),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish update request: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

// ConsumerOpts returns the client options of a group consumer reading every
// update-request topic.
func ConsumerOpts(group string, topics ...string) []kgo.Opt {
	return []kgo.Opt{
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}
}

// Consumer polls update-request topics and forwards every decoded request to
// a local bus, normally the ChannelBus of this replica's schedulers.
// Delivery is at-least-once; duplicates collapse in the scheduler queue.
type Consumer struct {
	client *kgo.Client
	local  updater.Bus
	logger *slog.Logger
}

type Option func(*Consumer)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

func NewConsumer(client *kgo.Client, local updater.Bus, opts ...Option) *Consumer {
	c := &Consumer{client: client, local: local, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run polls until ctx is done or the client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.WarnContext(ctx, "kafka fetch failed",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			c.deliver(ctx, record)
		})
	}
}

func (c *Consumer) deliver(ctx context.Context, record *kgo.Record) {
	var req updater.Request
	if err := json.Unmarshal(record.Value, &req); err != nil {
		c.logger.WarnContext(ctx, "discarding malformed update request",
			"topic", record.Topic,
			"offset", record.Offset,
			"error", err,
		)
		return
	}
	if err := c.local.Publish(ctx, req); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.logger.WarnContext(ctx, "update request not delivered",
			"target", req.Target.Key(),
			"error", err,
		)
	}
}
