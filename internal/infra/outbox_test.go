package infra

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sessionguard/platform/internal/domain"
	"github.com/sessionguard/platform/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	topic string
	key   string
	value []byte
}

type fakePublisher struct {
	sent   []sentMessage
	failAt int // 1-based call that fails; 0 never fails
	calls  int
}

func (p *fakePublisher) Publish(_ context.Context, topic string, key, value []byte) error {
	p.calls++
	if p.failAt > 0 && p.calls == p.failAt {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, sentMessage{topic: topic, key: string(key), value: value})
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedOutbox(t *testing.T, store *repository.MemoryStore, userID uuid.UUID, n int) {
	t.Helper()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		draft := domain.NewSessionRevokedEvent(uuid.New(), userID, domain.KickedReasonNewLogin, at)
		require.NoError(t, store.Outbox().Insert(context.Background(), draft))
	}
}

func TestOutboxRelay_DrainPublishesAndDeletes(t *testing.T) {
	store := repository.NewMemoryStore()
	userID := uuid.New()
	seedOutbox(t, store, userID, 3)

	pub := &fakePublisher{}
	relay := NewOutboxRelay(store.Outbox(), pub, discardLogger(), RelayOptions{TopicPrefix: "sg"})

	n, err := relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, pub.sent, 3)

	msg := pub.sent[0]
	assert.Equal(t, "sg.session.session.revoked", msg.topic)
	assert.Equal(t, userID.String(), msg.key)

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.value, &env))
	assert.Equal(t, "session.revoked", env["event_type"])
	payload, ok := env["payload"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, domain.KickedReasonNewLogin, payload["reason"])

	left, err := store.Outbox().FetchUnpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, left)

	n, err = relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxRelay_StopsAtFirstFailure(t *testing.T) {
	store := repository.NewMemoryStore()
	seedOutbox(t, store, uuid.New(), 3)

	pub := &fakePublisher{failAt: 2}
	relay := NewOutboxRelay(store.Outbox(), pub, discardLogger(), RelayOptions{})

	n, err := relay.Drain(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, pub.calls, "events after the failure are not attempted")

	left, err := store.Outbox().FetchUnpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, left, 2)

	n, err = relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOutboxRelay_BatchSize(t *testing.T) {
	store := repository.NewMemoryStore()
	seedOutbox(t, store, uuid.New(), 5)

	relay := NewOutboxRelay(store.Outbox(), &fakePublisher{}, discardLogger(), RelayOptions{BatchSize: 2})

	n, err := relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestKafkaProducer_DisabledIsNoop(t *testing.T) {
	p := NewKafkaProducer([]string{"localhost:9092"}, false, discardLogger())
	assert.NoError(t, p.Publish(context.Background(), "t", nil, []byte("x")))
	assert.NoError(t, p.Close())
}
