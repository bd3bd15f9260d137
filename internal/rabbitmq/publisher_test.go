package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/market-intel/pkg/eventbus"
	"github.com/Checker-Finance/market-intel/pkg/model"
)

type published struct {
	key string
	msg amqp.Publishing
}

type mockChannel struct {
	mu     sync.Mutex
	msgs   []published
	fail   bool
	closed bool
}

func (m *mockChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("channel closed")
	}
	m.msgs = append(m.msgs, published{key: key, msg: msg})
	return nil
}

func (m *mockChannel) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *mockChannel) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

func TestPublisher_ForwardsBusEvents(t *testing.T) {
	bus := eventbus.New[model.InventoryEvent]()
	ch := &mockChannel{}
	p := NewPublisher(ch, "", bus, zap.NewNop())
	defer p.Close()

	id := uuid.New()
	bus.PublishSync(model.InventoryEvent{
		Type:      model.EventSaleCreated,
		OwnerID:   "user-1",
		EntityID:  id,
		Total:     "150.00",
		Timestamp: time.Now().UTC(),
	})

	require.Equal(t, 1, ch.count())
	got := ch.msgs[0]
	assert.Equal(t, DefaultRoutingKey, got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, model.EventSaleCreated, got.msg.Type)
	assert.Equal(t, id.String(), got.msg.MessageId)
	assert.Zero(t, got.msg.Priority)

	var ev model.InventoryEvent
	require.NoError(t, json.Unmarshal(got.msg.Body, &ev))
	assert.Equal(t, "150.00", ev.Total)
}

func TestPublisher_StockLowHasPriority(t *testing.T) {
	ch := &mockChannel{}
	p := NewPublisher(ch, "inv", nil, zap.NewNop())

	stock := 1
	require.NoError(t, p.Publish(context.Background(), model.InventoryEvent{
		Type: model.EventStockLow, OwnerID: "user-1", EntityID: uuid.New(), Stock: &stock,
	}))
	assert.Equal(t, uint8(10), ch.msgs[0].msg.Priority)
	assert.Equal(t, "inv", ch.msgs[0].key)
}

func TestPublisher_RejectsInvalidEvent(t *testing.T) {
	ch := &mockChannel{}
	p := NewPublisher(ch, "", nil, zap.NewNop())
	assert.Error(t, p.Publish(context.Background(), model.InventoryEvent{Type: model.EventSaleCreated}))
	assert.Equal(t, 0, ch.count())
}

func TestPublisher_PublishError(t *testing.T) {
	p := NewPublisher(&mockChannel{fail: true}, "", nil, zap.NewNop())
	err := p.Publish(context.Background(), model.InventoryEvent{Type: model.EventSaleDeleted, OwnerID: "u"})
	assert.Error(t, err)
}

func TestPublisher_CloseUnsubscribes(t *testing.T) {
	bus := eventbus.New[model.InventoryEvent]()
	ch := &mockChannel{}
	p := NewPublisher(ch, "", bus, zap.NewNop())
	require.NoError(t, p.Close())

	assert.True(t, ch.closed)
	assert.Equal(t, 0, bus.SubscriberCount())
}
