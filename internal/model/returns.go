package model

import "time"

// ReturnStatus tracks an RMA flow from initiation to receipt.
type ReturnStatus string

// Return status constants.
const (
	ReturnInitiated   ReturnStatus = "INITIATED"
	ReturnLabelIssued ReturnStatus = "LABEL_ISSUED"
	ReturnShipped     ReturnStatus = "SHIPPED"
	ReturnReceived    ReturnStatus = "RECEIVED"
)

// Return is one RMA under an order. Like Shipment, it keeps a raw-item
// snapshot when its order had no lines at creation.
type Return struct {
	InitiatedAt        time.Time
	CreatedAt          time.Time
	RMA                string
	Status             ReturnStatus
	RawItems           string
	CreatedByMessageID string
	ID                 int64
	OrderID            int64
}

// Open reports whether the return is still in flight.
func (r *Return) Open() bool {
	switch r.Status {
	case ReturnInitiated, ReturnLabelIssued, ReturnShipped:
		return true
	default:
		return false
	}
}

// ReturnLine links a return to the order line being sent back.
type ReturnLine struct {
	ID          int64
	ReturnID    int64
	OrderLineID int64
	Quantity    int
}

// Refund is a monetary refund tied to an order and optionally a return.
type Refund struct {
	IssuedAt           time.Time
	CreatedAt          time.Time
	CreatedByMessageID string
	ID                 int64
	OrderID            int64
	ReturnID           int64 // 0 when not tied to a return
	Amount             float64
}
