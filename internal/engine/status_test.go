package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/ordertrail/internal/model"
)

func TestDeriveStatus_StubOrders(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		snap OrderSnapshot
		want model.OrderStatus
	}{
		{
			name: "inferred order with no children",
			snap: OrderSnapshot{Order: model.Order{Inferred: true}},
			want: model.OrderInferred,
		},
		{
			name: "confirmed order with no lines",
			snap: OrderSnapshot{Order: model.Order{Inferred: false}},
			want: model.OrderPlaced,
		},
		{
			name: "stub with a shipment",
			snap: OrderSnapshot{
				Order:     model.Order{Inferred: true},
				Shipments: []model.Shipment{{Status: model.ShipmentShipped}},
			},
			want: model.OrderShipped,
		},
		{
			name: "stub with an in-transit shipment",
			snap: OrderSnapshot{
				Order:     model.Order{Inferred: true},
				Shipments: []model.Shipment{{Status: model.ShipmentInTransit}},
			},
			want: model.OrderInTransit,
		},
		{
			name: "stub out for delivery outranks in transit",
			snap: OrderSnapshot{
				Order: model.Order{Inferred: true},
				Shipments: []model.Shipment{
					{Status: model.ShipmentInTransit},
					{Status: model.ShipmentOutForDelivery},
				},
			},
			want: model.OrderOutForDelivery,
		},
		{
			name: "stub delivered",
			snap: OrderSnapshot{
				Order:      model.Order{Inferred: true},
				Shipments:  []model.Shipment{{ID: 1, Status: model.ShipmentDelivered}},
				Deliveries: []model.Delivery{{ShipmentID: 1, Status: model.DeliveryDelivered}},
			},
			want: model.OrderDelivered,
		},
		{
			name: "stub delivery exception outranks delivered",
			snap: OrderSnapshot{
				Order: model.Order{Inferred: true},
				Deliveries: []model.Delivery{
					{Status: model.DeliveryDelivered},
					{Status: model.DeliveryHadIssue},
				},
			},
			want: model.OrderDeliveryException,
		},
		{
			name: "stub open return outranks everything below it",
			snap: OrderSnapshot{
				Order:      model.Order{Inferred: true},
				Deliveries: []model.Delivery{{Status: model.DeliveryDelivered}},
				Returns:    []model.Return{{Status: model.ReturnShipped}},
			},
			want: model.OrderReturnInProgress,
		},
		{
			name: "stub received return outranks open return",
			snap: OrderSnapshot{
				Order: model.Order{Inferred: true},
				Returns: []model.Return{
					{Status: model.ReturnInitiated},
					{Status: model.ReturnReceived},
				},
			},
			want: model.OrderReturnReceived,
		},
		{
			name: "stub refund",
			snap: OrderSnapshot{
				Order:   model.Order{Inferred: true},
				Refunds: []model.Refund{{Amount: 19.99}},
			},
			want: model.OrderRefunded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.snap, now))
		})
	}
}

func TestDeriveStatus_LineOrders(t *testing.T) {
	now := time.Now()

	lines := func(statuses ...model.LineStatus) []model.OrderLine {
		out := make([]model.OrderLine, len(statuses))
		for i, s := range statuses {
			out[i] = model.OrderLine{ID: int64(i + 1), LineNumber: i + 1, Quantity: 1, Status: s}
		}
		return out
	}

	tests := []struct {
		name string
		snap OrderSnapshot
		want model.OrderStatus
	}{
		{
			name: "all ordered",
			snap: OrderSnapshot{Lines: lines(model.LineOrdered, model.LineOrdered)},
			want: model.OrderPlaced,
		},
		{
			name: "one of two shipped",
			snap: OrderSnapshot{Lines: lines(model.LineShipped, model.LineOrdered)},
			want: model.OrderPartiallyShipped,
		},
		{
			name: "all shipped",
			snap: OrderSnapshot{Lines: lines(model.LineShipped, model.LineShipped)},
			want: model.OrderShipped,
		},
		{
			name: "one of two delivered",
			snap: OrderSnapshot{Lines: lines(model.LineDelivered, model.LineShipped)},
			want: model.OrderPartiallyDelivered,
		},
		{
			name: "all delivered",
			snap: OrderSnapshot{Lines: lines(model.LineDelivered, model.LineDelivered)},
			want: model.OrderDelivered,
		},
		{
			name: "all cancelled",
			snap: OrderSnapshot{Lines: lines(model.LineCancelled, model.LineCancelled)},
			want: model.OrderCancelled,
		},
		{
			name: "cancelled line leaves remainder partially cancelled",
			snap: OrderSnapshot{Lines: lines(model.LineCancelled, model.LineOrdered)},
			want: model.OrderPartiallyCancelled,
		},
		{
			name: "cancelled line does not block delivery of the rest",
			snap: OrderSnapshot{Lines: lines(model.LineCancelled, model.LineDelivered)},
			want: model.OrderDelivered,
		},
		{
			name: "refunded line with the rest cancelled",
			snap: OrderSnapshot{Lines: lines(model.LineRefunded, model.LineCancelled)},
			want: model.OrderRefunded,
		},
		{
			name: "delivery exception outranks delivered lines",
			snap: OrderSnapshot{
				Lines:      lines(model.LineDelivered, model.LineDelivered),
				Deliveries: []model.Delivery{{Status: model.DeliveryLost}},
			},
			want: model.OrderDeliveryException,
		},
		{
			name: "open return outranks delivered lines",
			snap: OrderSnapshot{
				Lines:   lines(model.LineDelivered, model.LineDelivered),
				Returns: []model.Return{{Status: model.ReturnLabelIssued}},
			},
			want: model.OrderReturnInProgress,
		},
		{
			name: "out for delivery outranks partial shipment math",
			snap: OrderSnapshot{
				Lines:     lines(model.LineShipped, model.LineOrdered),
				Shipments: []model.Shipment{{Status: model.ShipmentOutForDelivery}},
			},
			want: model.OrderOutForDelivery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.snap, now))
		})
	}
}

func TestDeriveStatus_ClosedRollup(t *testing.T) {
	now := time.Now()

	delivered := OrderSnapshot{
		Lines: []model.OrderLine{
			{ID: 1, LineNumber: 1, Quantity: 1, Status: model.LineDelivered},
		},
	}

	t.Run("recent delivery stays delivered", func(t *testing.T) {
		snap := delivered
		snap.Deliveries = []model.Delivery{{
			Status:      model.DeliveryDelivered,
			DeliveredAt: now.Add(-48 * time.Hour),
		}}
		assert.Equal(t, model.OrderDelivered, DeriveStatus(snap, now))
	})

	t.Run("old delivery rolls up to closed", func(t *testing.T) {
		snap := delivered
		snap.Deliveries = []model.Delivery{{
			Status:      model.DeliveryDelivered,
			DeliveredAt: now.Add(-31 * 24 * time.Hour),
		}}
		assert.Equal(t, model.OrderClosed, DeriveStatus(snap, now))
	})

	t.Run("old delivery with open return does not close", func(t *testing.T) {
		snap := delivered
		snap.Deliveries = []model.Delivery{{
			Status:      model.DeliveryDelivered,
			DeliveredAt: now.Add(-31 * 24 * time.Hour),
		}}
		snap.Returns = []model.Return{{Status: model.ReturnInitiated}}
		assert.Equal(t, model.OrderReturnInProgress, DeriveStatus(snap, now))
	})
}
