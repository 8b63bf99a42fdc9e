package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced          = "ORDER_PLACED"
	EventTypeOrderStatusChanged   = "ORDER_STATUS_CHANGED"
	EventTypePaymentStatusChanged = "PAYMENT_STATUS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type carried in the envelope
func (e BaseEvent) Type() string {
	return e.EventType
}

// OrderPlacedEvent published after the checkout transaction commits
type OrderPlacedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      *string         `json:"user_id,omitempty"`
	Total       decimal.Decimal `json:"total"`
	Items       []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published after an admin moves an order
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID string      `json:"order_id"`
	From    OrderStatus `json:"from"`
	To      OrderStatus `json:"to"`
}

// PaymentStatusChangedEvent published after an admin records a payment outcome
type PaymentStatusChangedEvent struct {
	BaseEvent
	OrderID string        `json:"order_id"`
	Status  PaymentStatus `json:"status"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}
