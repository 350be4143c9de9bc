package model

import "time"

// ShipmentStatus tracks a physical shipment between the warehouse and the
// customer's door.
type ShipmentStatus string

// Shipment status constants.
const (
	ShipmentShipped        ShipmentStatus = "SHIPPED"
	ShipmentInTransit      ShipmentStatus = "IN_TRANSIT"
	ShipmentOutForDelivery ShipmentStatus = "OUT_FOR_DELIVERY"
	ShipmentDelivered      ShipmentStatus = "DELIVERED"
)

// Shipment is one physical shipment under an order. When the order had no
// lines at creation time the shipment carries zero lines and RawItems holds a
// serialized snapshot of the extracted items for later reconciliation.
type Shipment struct {
	ShippedAt          time.Time
	CreatedAt          time.Time
	TrackingNumber     string
	Carrier            string
	Status             ShipmentStatus
	RawItems           string // JSON snapshot of extracted items, empty once linked
	CreatedByMessageID string
	ID                 int64
	OrderID            int64
}

// ShipmentLine links a shipment to an order line with a carried quantity.
type ShipmentLine struct {
	ID          int64
	ShipmentID  int64
	OrderLineID int64
	Quantity    int
}

// DeliveryStatus is the terminal or attempted outcome of a shipment.
type DeliveryStatus string

// Delivery status constants.
const (
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryAttempted DeliveryStatus = "ATTEMPTED"
	DeliveryHadIssue  DeliveryStatus = "DELIVERED_WITH_ISSUE"
	DeliveryLost      DeliveryStatus = "LOST"
)

// Delivery records the outcome for a shipment, 1:1.
type Delivery struct {
	DeliveredAt        time.Time
	CreatedAt          time.Time
	Status             DeliveryStatus
	Issue              string // optional issue classification
	CreatedByMessageID string
	ID                 int64
	ShipmentID         int64
}

// Problem reports whether the delivery demands attention.
func (d *Delivery) Problem() bool {
	return d.Status == DeliveryHadIssue || d.Status == DeliveryLost
}
