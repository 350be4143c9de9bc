package model

import (
	"strings"
	"time"
)

// OrderStatus is the derived lifecycle state of an order. It is recomputed
// after every structural change and never set directly after creation.
type OrderStatus string

// Order status constants.
const (
	OrderPlaced             OrderStatus = "PLACED"
	OrderPartiallyCancelled OrderStatus = "PARTIALLY_CANCELLED"
	OrderCancelled          OrderStatus = "CANCELLED"
	OrderPartiallyShipped   OrderStatus = "PARTIALLY_SHIPPED"
	OrderShipped            OrderStatus = "SHIPPED"
	OrderInTransit          OrderStatus = "IN_TRANSIT"
	OrderOutForDelivery     OrderStatus = "OUT_FOR_DELIVERY"
	OrderPartiallyDelivered OrderStatus = "PARTIALLY_DELIVERED"
	OrderDelivered          OrderStatus = "DELIVERED"
	OrderClosed             OrderStatus = "CLOSED"
	OrderDeliveryException  OrderStatus = "DELIVERY_EXCEPTION"
	OrderReturnInProgress   OrderStatus = "RETURN_IN_PROGRESS"
	OrderReturnReceived     OrderStatus = "RETURN_RECEIVED"
	OrderRefunded           OrderStatus = "REFUNDED"
	OrderInferred           OrderStatus = "INFERRED"
)

// Order represents one purchase aggregated from many messages.
type Order struct {
	OrderDate          time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Reference          string // merchant order number, not globally unique
	RetailerName       string
	Status             OrderStatus
	CreatedByMessageID string
	UpdatedByMessageID string
	ID                 int64
	Subtotal           float64
	Shipping           float64
	Tax                float64
	Discount           float64
	Total              float64
	Inferred           bool // stub created before its confirmation arrived
}

// NormalizeReference strips the leading # and surrounding whitespace from a
// merchant order number. Merchants format the same number inconsistently
// across message types, so lookups compare normalized forms.
func NormalizeReference(ref string) string {
	return strings.TrimLeft(strings.TrimSpace(ref), "#")
}

// LineStatus is the per-line lifecycle state.
type LineStatus string

// Order line status constants.
const (
	LineOrdered         LineStatus = "ORDERED"
	LineShipped         LineStatus = "SHIPPED"
	LineDelivered       LineStatus = "DELIVERED"
	LineCancelled       LineStatus = "CANCELLED"
	LineReturnInitiated LineStatus = "RETURN_INITIATED"
	LineReturned        LineStatus = "RETURNED"
	LineRefunded        LineStatus = "REFUNDED"
)

// OrderLine is one product line, owned exclusively by its order.
type OrderLine struct {
	ProductName string
	Status      LineStatus
	ID          int64
	OrderID     int64
	LineNumber  int
	Quantity    int
	UnitPrice   float64
}
