//go:build integration

package producer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"credtrust/internal/platform/kafka/producer"
	"credtrust/pkg/testutil/containers"
)

type ProducerIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestProducerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerIntegrationSuite))
}

func (s *ProducerIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())

	prod, err := producer.New(producer.DefaultConfig(s.kafka.Brokers), nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *ProducerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close()
	}
}

// Produce only returns after the broker acknowledged the record.
func (s *ProducerIntegrationSuite) TestProduceDelivers() {
	ctx := context.Background()
	topic := "credtrust-produce-test"
	s.Require().NoError(s.kafka.CreateTopic(ctx, topic))

	err := s.producer.Produce(ctx, &producer.Message{
		Topic:   topic,
		Key:     []byte("urn:uuid:1"),
		Value:   []byte(`{"type":"credential_revoked"}`),
		Headers: map[string]string{"event_type": "credential_revoked"},
	})
	s.Require().NoError(err)

	consumer, err := s.kafka.NewConsumer("produce-test", topic)
	s.Require().NoError(err)
	defer consumer.Close()

	rec := s.kafka.WaitForRecord(ctx, consumer, 15*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == "urn:uuid:1"
	})
	s.Require().NotNil(rec)
	s.JSONEq(`{"type":"credential_revoked"}`, string(rec.Value))
}

func (s *ProducerIntegrationSuite) TestProduceAfterCloseFails() {
	prod, err := producer.New(producer.DefaultConfig(s.kafka.Brokers), nil)
	s.Require().NoError(err)
	s.Require().NoError(prod.Close())

	err = prod.Produce(context.Background(), &producer.Message{Topic: "x"})
	s.ErrorIs(err, producer.ErrClosed)
}
