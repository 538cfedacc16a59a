package producer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresBrokers(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
}

func TestToRecordCopiesHeaders(t *testing.T) {
	rec := toRecord(&Message{
		Topic:   "credtrust.lifecycle",
		Key:     []byte("urn:uuid:1"),
		Value:   []byte(`{}`),
		Headers: map[string]string{"event_type": "credential_revoked"},
	})

	assert.Equal(t, "credtrust.lifecycle", rec.Topic)
	assert.Equal(t, []byte("urn:uuid:1"), rec.Key)
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, "event_type", rec.Headers[0].Key)
	assert.Equal(t, []byte("credential_revoked"), rec.Headers[0].Value)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("localhost:9092")
	assert.Equal(t, "all", cfg.Acks)
	assert.Equal(t, 3, cfg.Retries)
}
