// Package kafka builds franz-go clients and provisions topics for the update-request bus.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"muniapi/internal/platform/config"
	"muniapi/pkg/domain"
)

// TopicFor returns the update-request topic of one entity type.
func TopicFor(prefix string, t domain.EntityType) string {
	return prefix + ".update-requests." + string(t)
}

// Topics returns the topics of every entity type.
func Topics(prefix string) []string {
	types := domain.EntityTypes()
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, TopicFor(prefix, t))
	}
	return out
}

// NewClient creates a franz-go client seeded with the configured brokers.
// Returns nil, nil when no brokers are configured.
func NewClient(cfg config.KafkaConfig, opts ...kgo.Opt) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	all := append([]kgo.Opt{kgo.SeedBrokers(cfg.Brokers...)}, opts...)
	client, err := kgo.NewClient(all...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopics creates missing topics. Existing topics are left untouched.
func EnsureTopics(ctx context.Context, client *kgo.Client, cfg config.KafkaConfig, topics ...string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, cfg.Partitions, cfg.ReplicationFactor, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}
