package model

import "time"

// OrderEventType labels a timeline entry.
type OrderEventType string

// Order event type constants.
const (
	EventOrderCreated     OrderEventType = "ORDER_CREATED"
	EventOrderEnriched    OrderEventType = "ORDER_ENRICHED"
	EventLinesAdded       OrderEventType = "LINES_ADDED"
	EventLinesCancelled   OrderEventType = "LINES_CANCELLED"
	EventShipmentRecorded OrderEventType = "SHIPMENT_RECORDED"
	EventShipmentUpdated  OrderEventType = "SHIPMENT_UPDATED"
	EventDeliveryRecorded OrderEventType = "DELIVERY_RECORDED"
	EventReturnRecorded   OrderEventType = "RETURN_RECORDED"
	EventReturnUpdated    OrderEventType = "RETURN_UPDATED"
	EventRefundRecorded   OrderEventType = "REFUND_RECORDED"
	EventLinesReconciled  OrderEventType = "LINES_RECONCILED"
	EventStatusChanged    OrderEventType = "STATUS_CHANGED"
)

// OrderEvent is one append-only timeline entry. Every state-changing action in
// the pipeline produces one.
type OrderEvent struct {
	CreatedAt   time.Time
	MessageID   string
	Type        OrderEventType
	Description string
	ID          int64
	OrderID     int64
}
