package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/market-intel/pkg/model"
)

type mockJetStream struct {
	published []*nats.Msg
	fail      bool
}

func (m *mockJetStream) PublishMsg(msg *nats.Msg, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if m.fail {
		return nil, errors.New("mock publish error")
	}
	m.published = append(m.published, msg)
	return &nats.PubAck{Stream: "mock-stream"}, nil
}

func TestPublishEnvelope_UsesTopicAndHeaders(t *testing.T) {
	js := &mockJetStream{}
	p := NewWithJetStream(js, "evt.default", "market-intel")

	env, err := model.NewEnvelope("evt.market.analysis.completed.v1", "market.analysis.completed", model.AnalysisCompleted{Product: "mouse", Score: 42})
	require.NoError(t, err)
	env.CorrelationID = "req-1"

	require.NoError(t, p.PublishEnvelope(context.Background(), env))
	require.Len(t, js.published, 1)

	msg := js.published[0]
	assert.Equal(t, "evt.market.analysis.completed.v1", msg.Subject)
	assert.Equal(t, "market.analysis.completed", msg.Header.Get("event_type"))
	assert.Equal(t, "req-1", msg.Header.Get("correlation_id"))
	assert.Equal(t, "market-intel", msg.Header.Get("service"))
	assert.Empty(t, msg.Header.Get("owner_id"))

	var decoded model.Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	var payload model.AnalysisCompleted
	require.NoError(t, json.Unmarshal(decoded.Payload, &payload))
	assert.Equal(t, 42, payload.Score)
}

func TestPublishEnvelope_DefaultSubject(t *testing.T) {
	js := &mockJetStream{}
	p := NewWithJetStream(js, "evt.default", "market-intel")

	env := &model.Envelope{EventType: "x", OwnerID: "user-1"}
	require.NoError(t, p.PublishEnvelope(context.Background(), env))
	assert.Equal(t, "evt.default", js.published[0].Subject)
	assert.Equal(t, "user-1", js.published[0].Header.Get("owner_id"))
}

func TestPublishEnvelope_Error(t *testing.T) {
	p := NewWithJetStream(&mockJetStream{fail: true}, "evt.default", "market-intel")
	err := p.PublishEnvelope(context.Background(), &model.Envelope{Topic: "evt.x"})
	assert.Error(t, err)
}

func TestPublish_Raw(t *testing.T) {
	js := &mockJetStream{}
	p := NewWithJetStream(js, "evt.default", "market-intel")

	require.NoError(t, p.Publish(context.Background(), "evt.raw", map[string]int{"n": 1}))
	require.Len(t, js.published, 1)
	assert.Equal(t, "market-intel", js.published[0].Header.Get("source"))
	assert.JSONEq(t, `{"n":1}`, string(js.published[0].Data))
}

func TestClose_NilConn(t *testing.T) {
	p := NewWithJetStream(&mockJetStream{}, "", "")
	assert.NotPanics(t, p.Close)
}
