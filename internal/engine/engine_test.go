package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/ordertrail/internal/extract"
	"github.com/Veraticus/ordertrail/internal/model"
	"github.com/Veraticus/ordertrail/internal/testutil"
)

func newTestEngine(t *testing.T) (*Engine, *testutil.TestDB, *MockExtractor) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	extractor := NewMockExtractor()
	eng := New(db.Storage, extractor, &MockMatcher{}, nil, nil)
	return eng, db, extractor
}

func confirmationResult(ref string, confidence float64) extract.Result {
	return extract.Result{
		Extraction: &model.Extraction{
			Kind:           model.KindOrderConfirmation,
			OrderReference: ref,
			Merchant:       "Acme",
			Total:          59.98,
			Items: []model.ExtractedItem{
				{Name: "Walnut Desk Organizer", Quantity: 1, UnitPrice: 39.99},
				{Name: "Brass Pen Holder", Quantity: 1, UnitPrice: 19.99},
			},
		},
		Confidence:  confidence,
		NeedsReview: confidence < extract.ConfidenceThreshold,
	}
}

func TestEngine_ConfirmationCreatesOrder(t *testing.T) {
	ctx := context.Background()
	eng, db, extractor := newTestEngine(t)

	msg := db.MustSaveMessage(model.Message{
		ID:         "msg-1",
		Sender:     "orders@acme.example",
		Subject:    "Your order ABC-123",
		ReceivedAt: time.Now(),
		Kind:       model.KindOrderConfirmation,
	})
	extractor.SetExtractResponse(model.KindOrderConfirmation, confirmationResult("ABC-123", 0.95))

	require.NoError(t, eng.ProcessMessage(ctx, msg.ID))

	stored, err := db.Storage.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageParsed, stored.Status)

	order, err := db.Storage.GetOrderByReference(ctx, "ABC-123")
	require.NoError(t, err)
	assert.False(t, order.Inferred)
	assert.Equal(t, model.OrderPlaced, order.Status)
	assert.Equal(t, "Acme", order.RetailerName)
	assert.InDelta(t, 59.98, order.Total, 0.001)

	lines, err := db.Storage.GetOrderLines(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, model.LineOrdered, lines[0].Status)

	events, err := db.Storage.GetOrderEvents(ctx, order.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestEngine_ConfidenceGate(t *testing.T) {
	ctx := context.Background()

	t.Run("below threshold routes to review", func(t *testing.T) {
		eng, db, extractor := newTestEngine(t)

		msg := db.MustSaveMessage(model.Message{
			ID:         "msg-low",
			Sender:     "orders@acme.example",
			ReceivedAt: time.Now(),
			Kind:       model.KindOrderConfirmation,
		})
		extractor.SetExtractResponse(model.KindOrderConfirmation, confirmationResult("LOW-555", 0.65))

		require.NoError(t, eng.ProcessMessage(ctx, msg.ID))

		stored, err := db.Storage.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MessageManualReview, stored.Status)

		// Nothing was applied.
		_, err = db.Storage.GetOrderByReference(ctx, "LOW-555")
		assert.Error(t, err)
	})

	t.Run("at threshold applies", func(t *testing.T) {
		eng, db, extractor := newTestEngine(t)

		msg := db.MustSaveMessage(model.Message{
			ID:         "msg-ok",
			Sender:     "orders@acme.example",
			ReceivedAt: time.Now(),
			Kind:       model.KindOrderConfirmation,
		})
		extractor.SetExtractResponse(model.KindOrderConfirmation, confirmationResult("OK-700", 0.70))

		require.NoError(t, eng.ProcessMessage(ctx, msg.ID))

		stored, err := db.Storage.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MessageParsed, stored.Status)
	})

	t.Run("approve force-applies a gated message", func(t *testing.T) {
		eng, db, extractor := newTestEngine(t)

		msg := db.MustSaveMessage(model.Message{
			ID:         "msg-approve",
			Sender:     "orders@acme.example",
			ReceivedAt: time.Now(),
			Kind:       model.KindOrderConfirmation,
		})
		extractor.SetExtractResponse(model.KindOrderConfirmation, confirmationResult("FORCE-9", 0.40))

		require.NoError(t, eng.ProcessMessage(ctx, msg.ID))
		stored, err := db.Storage.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		require.Equal(t, model.MessageManualReview, stored.Status)

		require.NoError(t, eng.ApproveMessage(ctx, msg.ID))

		stored, err = db.Storage.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MessageParsed, stored.Status)

		order, err := db.Storage.GetOrderByReference(ctx, "FORCE-9")
		require.NoError(t, err)
		assert.False(t, order.Inferred)
	})
}

func TestEngine_PromotionalDismissed(t *testing.T) {
	ctx := context.Background()
	eng, db, extractor := newTestEngine(t)

	msg := db.MustSaveMessage(model.Message{
		ID:         "msg-promo",
		Sender:     "deals@acme.example",
		Subject:    "50% off everything!",
		ReceivedAt: time.Now(),
	})
	extractor.SetClassifyResponse(model.KindPromotional, 0.99, nil)

	require.NoError(t, eng.ProcessMessage(ctx, msg.ID))

	stored, err := db.Storage.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageDismissed, stored.Status)
	assert.Equal(t, model.KindPromotional, stored.Kind)
	assert.Equal(t, 0, extractor.ExtractCalls)
}

func TestEngine_RedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	eng, db, extractor := newTestEngine(t)

	msg := db.MustSaveMessage(model.Message{
		ID:         "msg-idem",
		Sender:     "orders@acme.example",
		ReceivedAt: time.Now(),
		Kind:       model.KindOrderConfirmation,
	})
	extractor.SetExtractResponse(model.KindOrderConfirmation, confirmationResult("IDEM-1", 0.9))

	require.NoError(t, eng.ProcessMessage(ctx, msg.ID))
	firstCalls := extractor.ExtractCalls

	// Redelivery of a parsed message is a no-op.
	require.NoError(t, eng.ProcessMessage(ctx, msg.ID))
	assert.Equal(t, firstCalls, extractor.ExtractCalls)

	order, err := db.Storage.GetOrderByReference(ctx, "IDEM-1")
	require.NoError(t, err)
	lines, err := db.Storage.GetOrderLines(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestEngine_ShipmentRerunKeepsStatus(t *testing.T) {
	ctx := context.Background()
	eng, db, extractor := newTestEngine(t)

	confirm := db.MustSaveMessage(model.Message{
		ID: "msg-rr-c", Sender: "orders@acme.example", ReceivedAt: time.Now(),
		Kind: model.KindOrderConfirmation,
	})
	ship := db.MustSaveMessage(model.Message{
		ID: "msg-rr-s", Sender: "orders@acme.example", ReceivedAt: time.Now(),
		Kind: model.KindShippingConfirmation,
	})

	extractor.SetExtractResponse(model.KindOrderConfirmation, confirmationResult("RERUN-1", 0.9))
	extractor.SetExtractResponse(model.KindShippingConfirmation, extract.Result{
		Extraction: &model.Extraction{
			Kind:           model.KindShippingConfirmation,
			OrderReference: "RERUN-1",
			TrackingNumber: "1Z777",
			Carrier:        "UPS",
		},
		Confidence: 0.9,
	})

	require.NoError(t, eng.ProcessMessage(ctx, confirm.ID))
	require.NoError(t, eng.ProcessMessage(ctx, ship.ID))

	shipment, err := db.Storage.GetShipmentByTracking(ctx, "1Z777")
	require.NoError(t, err)
	require.Equal(t, model.ShipmentShipped, shipment.Status)

	events, err := db.Storage.GetOrderEvents(ctx, shipment.OrderID)
	require.NoError(t, err)
	eventCount := len(events)

	// A run interrupted before the message went terminal leaves it pending;
	// running it again must not move the shipment it created.
	require.NoError(t, db.Storage.UpdateMessageStatus(ctx, ship.ID, model.MessagePending, ""))
	require.NoError(t, eng.ProcessMessage(ctx, ship.ID))

	shipment, err = db.Storage.GetShipmentByTracking(ctx, "1Z777")
	require.NoError(t, err)
	assert.Equal(t, model.ShipmentShipped, shipment.Status)

	events, err = db.Storage.GetOrderEvents(ctx, shipment.OrderID)
	require.NoError(t, err)
	assert.Len(t, events, eventCount)

	// A fresh carrier update for the same tracking still means movement.
	update := db.MustSaveMessage(model.Message{
		ID: "msg-rr-u", Sender: "orders@acme.example", ReceivedAt: time.Now(),
		Kind: model.KindShippingConfirmation,
	})
	require.NoError(t, eng.ProcessMessage(ctx, update.ID))

	shipment, err = db.Storage.GetShipmentByTracking(ctx, "1Z777")
	require.NoError(t, err)
	assert.Equal(t, model.ShipmentInTransit, shipment.Status)
}

func TestEngine_DeliveryAfterShipment(t *testing.T) {
	ctx := context.Background()
	eng, db, extractor := newTestEngine(t)

	confirm := db.MustSaveMessage(model.Message{
		ID: "msg-c", Sender: "orders@acme.example", ReceivedAt: time.Now(),
		Kind: model.KindOrderConfirmation,
	})
	ship := db.MustSaveMessage(model.Message{
		ID: "msg-s", Sender: "orders@acme.example", ReceivedAt: time.Now(),
		Kind: model.KindShippingConfirmation,
	})
	deliver := db.MustSaveMessage(model.Message{
		ID: "msg-d", Sender: "orders@acme.example", ReceivedAt: time.Now(),
		Kind: model.KindDeliveryConfirmation,
	})

	extractor.SetExtractResponse(model.KindOrderConfirmation, confirmationResult("SHIP-1", 0.9))
	extractor.SetExtractResponse(model.KindShippingConfirmation, extract.Result{
		Extraction: &model.Extraction{
			Kind:           model.KindShippingConfirmation,
			OrderReference: "SHIP-1",
			TrackingNumber: "1Z999",
			Carrier:        "UPS",
			Items: []model.ExtractedItem{
				{Name: "Walnut Desk Organizer", Quantity: 1},
				{Name: "Brass Pen Holder", Quantity: 1},
			},
		},
		Confidence: 0.9,
	})
	extractor.SetExtractResponse(model.KindDeliveryConfirmation, extract.Result{
		Extraction: &model.Extraction{
			Kind:           model.KindDeliveryConfirmation,
			TrackingNumber: "1Z999",
		},
		Confidence: 0.9,
	})

	require.NoError(t, eng.ProcessMessage(ctx, confirm.ID))
	require.NoError(t, eng.ProcessMessage(ctx, ship.ID))

	order, err := db.Storage.GetOrderByReference(ctx, "SHIP-1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderShipped, order.Status)

	require.NoError(t, eng.ProcessMessage(ctx, deliver.ID))

	order, err = db.Storage.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderDelivered, order.Status)

	shipment, err := db.Storage.GetShipmentByTracking(ctx, "1Z999")
	require.NoError(t, err)
	assert.Equal(t, model.ShipmentDelivered, shipment.Status)

	delivery, err := db.Storage.GetDeliveryByShipment(ctx, shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryDelivered, delivery.Status)

	lines, err := db.Storage.GetOrderLines(ctx, order.ID)
	require.NoError(t, err)
	for _, line := range lines {
		assert.Equal(t, model.LineDelivered, line.Status)
	}
}

func TestEngine_ExtractionFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	eng, db, extractor := newTestEngine(t)

	msg := db.MustSaveMessage(model.Message{
		ID: "msg-fail", Sender: "orders@acme.example", ReceivedAt: time.Now(),
		Kind: model.KindOrderConfirmation,
	})
	extractor.SetExtractError(assert.AnError)

	require.Error(t, eng.ProcessMessage(ctx, msg.ID))

	stored, err := db.Storage.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.NotEmpty(t, stored.ErrorDetail)
}

func TestEngine_DeadLetterSkipped(t *testing.T) {
	ctx := context.Background()
	eng, db, extractor := newTestEngine(t)

	db.MustSaveMessage(model.Message{
		ID: "msg-dead", Sender: "orders@acme.example", ReceivedAt: time.Now(),
		Kind: model.KindOrderConfirmation, RetryCount: DeadLetterThreshold,
	})
	extractor.SetExtractResponse(model.KindOrderConfirmation, confirmationResult("DEAD-1", 0.9))

	processed, err := eng.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Equal(t, 0, extractor.ExtractCalls)
}
