// Package kafka provisions the lifecycle topic and reports broker health.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Admin wraps a kadm client.
type Admin struct {
	client *kgo.Client
	adm    *kadm.Client
}

// NewAdmin connects to the comma separated brokers.
func NewAdmin(brokers string) (*Admin, error) {
	seeds := splitBrokers(brokers)
	if len(seeds) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(seeds...))
	if err != nil {
		return nil, fmt.Errorf("create kafka admin client: %w", err)
	}
	return &Admin{client: client, adm: kadm.NewClient(client)}, nil
}

// EnsureTopic creates topic with broker default replication. An existing
// topic is left untouched.
func (a *Admin) EnsureTopic(ctx context.Context, topic string, partitions int32) error {
	resp, err := a.adm.CreateTopics(ctx, partitions, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Health succeeds when the cluster reports at least one broker.
func (a *Admin) Health(ctx context.Context) error {
	brokers, err := a.adm.ListBrokers(ctx)
	if err != nil {
		return fmt.Errorf("list kafka brokers: %w", err)
	}
	if len(brokers) == 0 {
		return fmt.Errorf("no kafka brokers reachable")
	}
	return nil
}

func (a *Admin) Close() {
	a.client.Close()
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
