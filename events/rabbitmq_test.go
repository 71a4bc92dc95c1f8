package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func TestForwarderPublishesEnvelope(t *testing.T) {
	ch := &fakeChannel{}
	f := newForwarder(ch, "ezf.events", zap.NewNop())

	id := uuid.New()
	require.NoError(t, f.Handle(context.Background(), OrderRefunded{OrderID: id, Amount: 1250, Full: true}))

	assert.Equal(t, "ezf.events", ch.exchange)
	assert.Equal(t, NameOrderRefunded, ch.key)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)

	var body map[string]any
	require.NoError(t, json.Unmarshal(ch.msg.Body, &body))
	assert.Equal(t, NameOrderRefunded, body["event"])
	assert.Equal(t, id.String(), body["key"])
	payload := body["payload"].(map[string]any)
	assert.Equal(t, "12.50", payload["amount"])
}

func TestForwarderSurfacesBrokerError(t *testing.T) {
	f := newForwarder(&fakeChannel{err: errors.New("channel closed")}, "x", zap.NewNop())
	err := f.Handle(context.Background(), OrderCreated{OrderID: uuid.New()})
	assert.ErrorContains(t, err, "channel closed")
}
