package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/ordertrail/internal/model"
)

func TestLookupOrder_FuzzyReferenceMatch(t *testing.T) {
	ctx := context.Background()
	eng, db, _ := newTestEngine(t)

	created := db.MustCreateOrder(model.Order{
		Reference: "#112-9387462-1029384",
		Status:    model.OrderPlaced,
	})

	tests := []struct {
		name  string
		ref   string
		found bool
	}{
		{name: "exact raw reference", ref: "#112-9387462-1029384", found: true},
		{name: "normalized reference without hash", ref: "112-9387462-1029384", found: true},
		{name: "trailing fragment", ref: "9387462-1029384", found: true},
		{name: "short fragment never matches", ref: "112", found: false},
		{name: "unrelated reference", ref: "999-0000000-0000000", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := eng.lookupOrder(ctx, tt.ref)
			require.NoError(t, err)
			if tt.found {
				require.NotNil(t, order)
				assert.Equal(t, created.ID, order.ID)
			} else {
				assert.Nil(t, order)
			}
		})
	}
}

func TestResolveOrder_CreatesInferredStub(t *testing.T) {
	ctx := context.Background()
	eng, db, _ := newTestEngine(t)

	msg := db.MustSaveMessage(model.Message{
		ID: "msg-stub", Sender: "ship@acme.example", ReceivedAt: time.Now(),
	})

	extraction := &model.Extraction{
		Kind:           model.KindShippingConfirmation,
		OrderReference: "XYZ-001",
	}
	retailer := &model.Retailer{Name: "Acme"}

	order, created, err := eng.resolveOrder(ctx, &msg, extraction, retailer)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, order.Inferred)
	assert.Equal(t, "XYZ-001", order.Reference)
	assert.Equal(t, "Acme", order.RetailerName)
	assert.Equal(t, msg.ID, order.CreatedByMessageID)

	events, err := db.Storage.GetOrderEvents(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventOrderCreated, events[0].Type)

	// A second message with the same reference resolves instead of creating.
	again, created, err := eng.resolveOrder(ctx, &msg, extraction, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, order.ID, again.ID)
}

func TestResolveOrder_MissingReferenceGetsPlaceholder(t *testing.T) {
	ctx := context.Background()
	eng, db, _ := newTestEngine(t)

	msg := db.MustSaveMessage(model.Message{
		ID: "msg-noref", Sender: "ship@acme.example", ReceivedAt: time.Now(),
	})

	order, created, err := eng.resolveOrder(ctx, &msg, &model.Extraction{
		Kind: model.KindShippingConfirmation,
	}, nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, order.Inferred)
	assert.Contains(t, order.Reference, "unknown-")
}

func TestEnrichOrder_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	eng, db, _ := newTestEngine(t)

	msg := db.MustSaveMessage(model.Message{
		ID: "msg-enrich", Sender: "orders@acme.example", ReceivedAt: time.Now(),
	})
	order := db.MustCreateOrder(model.Order{
		Reference: "ENR-1",
		Status:    model.OrderInferred,
		Inferred:  true,
	})

	extraction := &model.Extraction{
		Kind:           model.KindOrderConfirmation,
		OrderReference: "ENR-1",
		Total:          25.00,
		Items: []model.ExtractedItem{
			{Name: "Ceramic Mug", Quantity: 2, UnitPrice: 12.50},
		},
	}

	stored, err := db.Storage.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.NoError(t, eng.enrichOrder(ctx, &msg, stored, extraction, nil))

	lines, err := db.Storage.GetOrderLines(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	// A duplicate confirmation changes nothing structural.
	stored, err = db.Storage.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.NoError(t, eng.enrichOrder(ctx, &msg, stored, extraction, nil))

	lines, err = db.Storage.GetOrderLines(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, lines, 1)

	final, err := db.Storage.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, final.Inferred)
	assert.InDelta(t, 25.00, final.Total, 0.001)
}
