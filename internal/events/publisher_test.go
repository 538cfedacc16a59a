package events

//go:generate mockgen -source=sinks.go -destination=mocks/mocks.go -package=mocks Producer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"credtrust/internal/events/mocks"
	"credtrust/internal/platform/kafka/producer"
	"credtrust/pkg/requestcontext"
)

func TestEmitStampsRequestMetadata(t *testing.T) {
	sink := NewMemorySink()
	p := NewPublisher(sink)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), at)
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	ctx = requestcontext.WithAPIKeyID(ctx, "ab12cd34")

	p.Emit(ctx, Event{Type: CredentialRevoked, Subject: "urn:uuid:1"})

	got := sink.Events()
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, at, got[0].OccurredAt)
	assert.Equal(t, "req-1", got[0].RequestID)
	assert.Equal(t, "ab12cd34", got[0].Actor)
}

func TestNilPublisherIsNoop(t *testing.T) {
	var p *Publisher
	assert.NotPanics(t, func() {
		p.Emit(context.Background(), Event{Type: CredentialIssued})
		p.Close()
	})
}

func TestAsyncPublisherDrainsOnClose(t *testing.T) {
	sink := NewMemorySink()
	p := NewPublisher(sink, WithAsyncBuffer(8))
	for i := 0; i < 5; i++ {
		p.Emit(context.Background(), Event{Type: CredentialIssued})
	}
	p.Close()
	assert.Len(t, sink.Events(), 5)
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	var buf bytes.Buffer
	sink := NewMemorySink()
	p := NewPublisher(sink, WithAsyncBuffer(8), WithPublisherLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	p.Emit(context.Background(), Event{Type: CredentialIssued})
	p.Close()

	assert.NotPanics(t, func() {
		p.Emit(context.Background(), Event{Type: CredentialRevoked, Subject: "urn:uuid:late"})
		p.Close()
	})
	assert.Len(t, sink.Events(), 1)
	assert.Contains(t, buf.String(), "publisher closed, event dropped")
}

type failingSink struct{}

func (failingSink) Append(context.Context, Event) error { return errors.New("broker down") }

func TestEmitLogsSinkFailure(t *testing.T) {
	var buf bytes.Buffer
	p := NewPublisher(failingSink{}, WithPublisherLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	p.Emit(context.Background(), Event{Type: CredentialRevoked, Subject: "urn:uuid:1"})

	assert.Contains(t, buf.String(), "failed to publish event")
	assert.Contains(t, buf.String(), "broker down")
}

func TestKafkaSinkProducesKeyedRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	prod := mocks.NewMockProducer(ctrl)

	prod.EXPECT().Produce(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg *producer.Message) error {
		assert.Equal(t, "credtrust.lifecycle", msg.Topic)
		assert.Equal(t, []byte("urn:uuid:1"), msg.Key)
		assert.Equal(t, "credential_revoked", msg.Headers["event_type"])

		var decoded Event
		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		assert.Equal(t, CredentialRevoked, decoded.Type)
		return nil
	})

	sink := NewKafkaSink(prod, "credtrust.lifecycle")
	require.NoError(t, sink.Append(context.Background(), Event{ID: "e1", Type: CredentialRevoked, Subject: "urn:uuid:1"}))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, sink.Append(context.Background(), Event{Type: TwoFactorEnabled, Subject: "did:example:university"}))
	assert.Contains(t, buf.String(), `"type":"twofactor_enabled"`)
}
