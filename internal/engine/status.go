package engine

import (
	"time"

	"github.com/Veraticus/ordertrail/internal/model"
)

// closedAfter is how long after final delivery an order with no open or
// received returns rolls up from Delivered to Closed.
const closedAfter = 30 * 24 * time.Hour

// OrderSnapshot is a freshly loaded view of an order and all of its children.
// Status derivation works only on snapshots; nothing is updated incrementally.
type OrderSnapshot struct {
	Order      model.Order
	Lines      []model.OrderLine
	Shipments  []model.Shipment
	Deliveries []model.Delivery
	Returns    []model.Return
	Refunds    []model.Refund
}

// DeriveStatus computes the order status from a snapshot. Exception and
// return/refund states outrank shipping progress because they demand more
// attention. First match wins.
func DeriveStatus(snap OrderSnapshot, now time.Time) model.OrderStatus {
	if len(snap.Lines) == 0 {
		return deriveStubStatus(snap)
	}
	return deriveLineStatus(snap, now)
}

// deriveStubStatus handles orders that have not been enriched with lines yet.
func deriveStubStatus(snap OrderSnapshot) model.OrderStatus {
	for _, r := range snap.Returns {
		if r.Status == model.ReturnReceived {
			return model.OrderReturnReceived
		}
	}
	for _, r := range snap.Returns {
		if r.Open() {
			return model.OrderReturnInProgress
		}
	}
	if len(snap.Refunds) > 0 {
		return model.OrderRefunded
	}
	for _, d := range snap.Deliveries {
		if d.Problem() {
			return model.OrderDeliveryException
		}
	}
	for _, d := range snap.Deliveries {
		if d.Status == model.DeliveryDelivered {
			return model.OrderDelivered
		}
	}
	for _, s := range snap.Shipments {
		if s.Status == model.ShipmentOutForDelivery {
			return model.OrderOutForDelivery
		}
	}
	for _, s := range snap.Shipments {
		if s.Status == model.ShipmentInTransit {
			return model.OrderInTransit
		}
	}
	if len(snap.Shipments) > 0 {
		return model.OrderShipped
	}
	if snap.Order.Inferred {
		return model.OrderInferred
	}
	return model.OrderPlaced
}

func deriveLineStatus(snap OrderSnapshot, now time.Time) model.OrderStatus {
	var orderedQty, cancelledQty, deliveredQty, shippedQty int
	var refundedCount int
	allRefundedOrCancelled := true

	for _, line := range snap.Lines {
		orderedQty += line.Quantity
		switch line.Status {
		case model.LineCancelled:
			cancelledQty += line.Quantity
		case model.LineRefunded:
			refundedCount++
		default:
			allRefundedOrCancelled = false
		}
		if line.Status == model.LineDelivered {
			deliveredQty += line.Quantity
		}
		if line.Status == model.LineShipped {
			shippedQty += line.Quantity
		}
	}

	activeQty := orderedQty - cancelledQty
	if activeQty <= 0 {
		return model.OrderCancelled
	}
	if refundedCount > 0 && allRefundedOrCancelled {
		return model.OrderRefunded
	}

	for _, d := range snap.Deliveries {
		if d.Problem() {
			return model.OrderDeliveryException
		}
	}
	for _, r := range snap.Returns {
		if r.Status == model.ReturnReceived {
			return model.OrderReturnReceived
		}
	}
	for _, r := range snap.Returns {
		if r.Open() {
			return model.OrderReturnInProgress
		}
	}

	if deliveredQty >= activeQty {
		if readyToClose(snap, now) {
			return model.OrderClosed
		}
		return model.OrderDelivered
	}
	if deliveredQty > 0 {
		return model.OrderPartiallyDelivered
	}

	for _, s := range snap.Shipments {
		if s.Status == model.ShipmentOutForDelivery {
			return model.OrderOutForDelivery
		}
	}
	for _, s := range snap.Shipments {
		if s.Status == model.ShipmentInTransit {
			return model.OrderInTransit
		}
	}

	if shippedQty >= activeQty {
		return model.OrderShipped
	}
	if shippedQty > 0 {
		return model.OrderPartiallyShipped
	}

	if cancelledQty > 0 {
		return model.OrderPartiallyCancelled
	}
	return model.OrderPlaced
}

// readyToClose reports whether a fully delivered order can roll up to Closed:
// the latest delivery is more than thirty days old and no return is open or
// received.
func readyToClose(snap OrderSnapshot, now time.Time) bool {
	var latest time.Time
	for _, d := range snap.Deliveries {
		if d.DeliveredAt.After(latest) {
			latest = d.DeliveredAt
		}
	}
	if latest.IsZero() || now.Sub(latest) <= closedAfter {
		return false
	}
	for _, r := range snap.Returns {
		if r.Open() || r.Status == model.ReturnReceived {
			return false
		}
	}
	return true
}
