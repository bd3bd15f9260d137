package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/market-intel/internal/metrics"
	"github.com/Checker-Finance/market-intel/pkg/logger"
	"github.com/Checker-Finance/market-intel/pkg/model"
)

// JetStream is the subset of nats.JetStreamContext used for publishing.
type JetStream interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher publishes market events to NATS JetStream.
type Publisher struct {
	nc      *nats.Conn
	js      JetStream
	subject string
	service string
}

// New creates a Publisher with JetStream enabled.
func New(nc *nats.Conn, subject, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		subject: subject,
		service: service,
	}, nil
}

// NewWithJetStream builds a Publisher over an existing JetStream handle.
func NewWithJetStream(js JetStream, subject, service string) *Publisher {
	return &Publisher{js: js, subject: subject, service: service}
}

// PublishEnvelope serializes env and publishes it on env.Topic, or on the
// default subject when the envelope has none.
func (p *Publisher) PublishEnvelope(ctx context.Context, env *model.Envelope) error {
	subject := env.Topic
	if subject == "" {
		subject = p.subject
	}

	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
		},
	}
	if env.OwnerID != "" {
		msg.Header.Set("owner_id", env.OwnerID)
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg, nats.Context(ctx))
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	logger.S().Debugw("publisher.publish_success",
		"subject", subject,
		"event_type", env.EventType,
	)
	metrics.IncNATSMessage(subject, "ok")
	return nil
}

// Publish publishes a raw JSON payload.
func (p *Publisher) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{"source": []string{p.service}},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg, nats.Context(ctx))
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	metrics.IncNATSMessage(subject, "ok")
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
