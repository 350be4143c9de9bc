package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/ordertrail/internal/extract"
	"github.com/Veraticus/ordertrail/internal/model"
)

// A shipping confirmation arriving before its order confirmation must store
// an item snapshot, and the later confirmation must turn that snapshot into
// real shipment-line links.
func TestReconcile_ShippingBeforeConfirmation(t *testing.T) {
	ctx := context.Background()
	eng, db, extractor := newTestEngine(t)

	ship := db.MustSaveMessage(model.Message{
		ID: "msg-ship-first", Sender: "ship@acme.example", ReceivedAt: time.Now(),
		Kind: model.KindShippingConfirmation,
	})
	confirm := db.MustSaveMessage(model.Message{
		ID: "msg-confirm-later", Sender: "orders@acme.example", ReceivedAt: time.Now(),
		Kind: model.KindOrderConfirmation,
	})

	extractor.SetExtractResponse(model.KindShippingConfirmation, extract.Result{
		Extraction: &model.Extraction{
			Kind:           model.KindShippingConfirmation,
			OrderReference: "XYZ-001",
			TrackingNumber: "TRK-77",
			Carrier:        "FedEx",
			Items: []model.ExtractedItem{
				{Name: "Linen Throw Pillow", Quantity: 2},
			},
		},
		Confidence: 0.9,
	})
	extractor.SetExtractResponse(model.KindOrderConfirmation, extract.Result{
		Extraction: &model.Extraction{
			Kind:           model.KindOrderConfirmation,
			OrderReference: "XYZ-001",
			Total:          79.98,
			Items: []model.ExtractedItem{
				{Name: "Linen Throw Pillow", Quantity: 2, UnitPrice: 29.99},
				{Name: "Wool Blanket", Quantity: 1, UnitPrice: 20.00},
			},
		},
		Confidence: 0.9,
	})

	// Shipping first: stub order, zero-line shipment, snapshot stored.
	require.NoError(t, eng.ProcessMessage(ctx, ship.ID))

	order, err := db.Storage.GetOrderByReference(ctx, "XYZ-001")
	require.NoError(t, err)
	assert.True(t, order.Inferred)
	assert.Equal(t, model.OrderShipped, order.Status)

	shipment, err := db.Storage.GetShipmentByTracking(ctx, "TRK-77")
	require.NoError(t, err)
	assert.NotEmpty(t, shipment.RawItems)

	links, err := db.Storage.GetShipmentLines(ctx, shipment.ID)
	require.NoError(t, err)
	assert.Empty(t, links)

	// Confirmation second: lines created and the snapshot reconciled.
	require.NoError(t, eng.ProcessMessage(ctx, confirm.ID))

	order, err = db.Storage.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, order.Inferred)

	lines, err := db.Storage.GetOrderLines(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	links, err = db.Storage.GetShipmentLines(ctx, shipment.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)

	// Only the shipped line advanced; the unshipped one stays ordered.
	byName := make(map[string]model.LineStatus, len(lines))
	for _, line := range lines {
		byName[line.ProductName] = line.Status
	}
	assert.Equal(t, model.LineShipped, byName["Linen Throw Pillow"])
	assert.Equal(t, model.LineOrdered, byName["Wool Blanket"])

	order, err = db.Storage.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPartiallyShipped, order.Status)

	events, err := db.Storage.GetOrderEvents(ctx, order.ID)
	require.NoError(t, err)
	types := make([]model.OrderEventType, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	assert.Contains(t, types, model.EventLinesReconciled)
}

func TestRecoverItems(t *testing.T) {
	ctx := context.Background()
	eng, db, extractor := newTestEngine(t)

	t.Run("snapshot wins over re-extraction", func(t *testing.T) {
		items, err := eng.recoverItems(ctx, `[{"name":"Ceramic Mug","quantity":2}]`, "", model.KindShippingConfirmation)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Ceramic Mug", items[0].Name)
		assert.Equal(t, 0, extractor.ExtractCalls)
	})

	t.Run("corrupt snapshot is an error", func(t *testing.T) {
		_, err := eng.recoverItems(ctx, `{not json`, "", model.KindShippingConfirmation)
		assert.Error(t, err)
	})

	t.Run("missing message yields nothing", func(t *testing.T) {
		items, err := eng.recoverItems(ctx, "", "no-such-message", model.KindShippingConfirmation)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("falls back to re-extraction of the stored message", func(t *testing.T) {
		msg := db.MustSaveMessage(model.Message{
			ID: "msg-reextract", Sender: "ship@acme.example", ReceivedAt: time.Now(),
			Kind: model.KindShippingConfirmation,
		})
		extractor.SetExtractResponse(model.KindShippingConfirmation, extract.Result{
			Extraction: &model.Extraction{
				Kind:  model.KindShippingConfirmation,
				Items: []model.ExtractedItem{{Name: "Wool Blanket", Quantity: 1}},
			},
			Confidence: 0.9,
		})

		items, err := eng.recoverItems(ctx, "", msg.ID, model.KindShippingConfirmation)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Wool Blanket", items[0].Name)
	})
}
