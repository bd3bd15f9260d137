package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical event envelope published to NATS and RabbitMQ.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	OwnerID       string          `json:"owner_id,omitempty"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into a fresh envelope.
func NewEnvelope(topic, eventType string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:        uuid.New(),
		Topic:     topic,
		EventType: eventType,
		Version:   "v1",
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// Status is a request lifecycle state exposed to UI clients.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Progress reports batch completion.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// StatusEvent is one transition of the request status stream.
type StatusEvent struct {
	Status   Status    `json:"status"`
	Kind     string    `json:"kind,omitempty"`
	Key      string    `json:"key,omitempty"`
	Message  string    `json:"message,omitempty"`
	Cached   bool      `json:"cached,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
	At       time.Time `json:"at"`
}

// Inventory event types.
const (
	EventSaleCreated     = "sale.created"
	EventSaleUpdated     = "sale.updated"
	EventSaleDeleted     = "sale.deleted"
	EventPurchaseCreated = "purchase.created"
	EventPurchaseUpdated = "purchase.updated"
	EventPurchaseDeleted = "purchase.deleted"
	EventProductCreated  = "product.created"
	EventProductDeleted  = "product.deleted"
	EventStockLow        = "stock.low"
)

// InventoryEvent is emitted after a committed inventory change.
type InventoryEvent struct {
	Type      string    `json:"type"`
	OwnerID   string    `json:"owner_id"`
	EntityID  uuid.UUID `json:"entity_id"`
	Total     string    `json:"total,omitempty"`
	Stock     *int      `json:"stock,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AnalysisCompleted is the payload of evt.market.analysis.completed.v1.
type AnalysisCompleted struct {
	RequestID    string  `json:"request_id"`
	Product      string  `json:"product"`
	Key          string  `json:"key"`
	Price        float64 `json:"price"`
	AveragePrice float64 `json:"average_price"`
	Score        int     `json:"score"`
	Competitors  int     `json:"competitors"`
	Degraded     bool    `json:"degraded"`
}

// CalendarRefreshed is the payload of evt.market.calendar.refreshed.v1.
type CalendarRefreshed struct {
	Year     int       `json:"year"`
	Holidays int       `json:"holidays"`
	At       time.Time `json:"at"`
}
