package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Veraticus/ordertrail/internal/common"
	"github.com/Veraticus/ordertrail/internal/model"
)

// minSubstringLen is the shortest normalized reference allowed to match by
// substring containment. Shorter fragments produce false positives.
const minSubstringLen = 5

// resolveOrder finds the order an extraction belongs to, creating an inferred
// stub when nothing matches. Lookup order: exact raw reference, exact
// normalized reference, then substring containment for fragments of at least
// minSubstringLen characters. Returns the order and whether it was created.
func (e *Engine) resolveOrder(ctx context.Context, msg *model.Message, extraction *model.Extraction, retailer *model.Retailer) (*model.Order, bool, error) {
	ref := extraction.OrderReference

	if ref != "" {
		order, err := e.lookupOrder(ctx, ref)
		if err != nil {
			return nil, false, err
		}
		if order != nil {
			return order, false, nil
		}
	}

	// Nothing matched: every downstream entity still needs a parent, so
	// create a minimal stub. Two workers racing on a never-seen reference can
	// each create one; later arrivals always merge into whichever exists.
	order := &model.Order{
		Reference: ref,
		Status:    model.OrderPlaced,
		Inferred:  true,
	}
	if order.Reference == "" {
		order.Reference = "unknown-" + uuid.NewString()
	}
	if retailer != nil {
		order.RetailerName = retailer.Name
	}
	if !extraction.OrderDate.IsZero() {
		order.OrderDate = extraction.OrderDate.Time
	}
	order.CreatedByMessageID = msg.ID
	order.UpdatedByMessageID = msg.ID

	if err := e.storage.CreateOrder(ctx, order); err != nil {
		return nil, false, fmt.Errorf("failed to create stub order: %w", err)
	}

	e.logger.Info("created inferred stub order",
		"order_id", order.ID,
		"reference", order.Reference,
		"message_id", msg.ID)

	if err := e.appendEvent(ctx, order.ID, msg.ID, model.EventOrderCreated,
		fmt.Sprintf("inferred order created for reference %q", order.Reference)); err != nil {
		return nil, false, err
	}

	return order, true, nil
}

func (e *Engine) lookupOrder(ctx context.Context, ref string) (*model.Order, error) {
	order, err := e.storage.GetOrderByReference(ctx, ref)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if order != nil {
		return order, nil
	}

	normalized := model.NormalizeReference(ref)
	if normalized == "" {
		return nil, nil
	}

	order, err = e.storage.GetOrderByNormalizedReference(ctx, normalized)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if order != nil {
		return order, nil
	}

	if len(normalized) < minSubstringLen {
		return nil, nil
	}

	order, err = e.storage.FindOrderByReferenceSubstring(ctx, normalized)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	return order, nil
}

// enrichOrder merges confirmation data into an existing order in place. The
// merge is idempotent: lines are only created when the order has none, and a
// second confirmation for the same reference changes nothing structural.
func (e *Engine) enrichOrder(ctx context.Context, msg *model.Message, order *model.Order, extraction *model.Extraction, retailer *model.Retailer) error {
	wasInferred := order.Inferred

	order.Inferred = false
	if !extraction.OrderDate.IsZero() {
		order.OrderDate = extraction.OrderDate.Time
	}
	if extraction.Subtotal > 0 {
		order.Subtotal = extraction.Subtotal
	}
	if extraction.ShippingCost > 0 {
		order.Shipping = extraction.ShippingCost
	}
	if extraction.Tax > 0 {
		order.Tax = extraction.Tax
	}
	if extraction.Discount > 0 {
		order.Discount = extraction.Discount
	}
	if extraction.Total > 0 {
		order.Total = extraction.Total
	}
	if order.RetailerName == "" {
		if retailer != nil {
			order.RetailerName = retailer.Name
		} else if extraction.Merchant != "" {
			order.RetailerName = extraction.Merchant
		}
	}
	order.UpdatedByMessageID = msg.ID

	if err := e.storage.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("failed to enrich order %d: %w", order.ID, err)
	}

	lines, err := e.storage.GetOrderLines(ctx, order.ID)
	if err != nil {
		return err
	}

	addedLines := false
	if len(lines) == 0 && len(extraction.Items) > 0 {
		for i, item := range extraction.Items {
			qty := item.Quantity
			if qty <= 0 {
				qty = 1
			}
			line := &model.OrderLine{
				OrderID:     order.ID,
				LineNumber:  i + 1,
				ProductName: item.Name,
				Quantity:    qty,
				UnitPrice:   item.UnitPrice,
				Status:      model.LineOrdered,
			}
			if err := e.storage.CreateOrderLine(ctx, line); err != nil {
				return fmt.Errorf("failed to create order line: %w", err)
			}
		}
		addedLines = true
	}

	if wasInferred {
		if err := e.appendEvent(ctx, order.ID, msg.ID, model.EventOrderEnriched,
			fmt.Sprintf("inferred order enriched from confirmation %q", extraction.OrderReference)); err != nil {
			return err
		}
	}
	if addedLines {
		if err := e.appendEvent(ctx, order.ID, msg.ID, model.EventLinesAdded,
			fmt.Sprintf("%d order lines added", len(extraction.Items))); err != nil {
			return err
		}
		// The order just gained its first lines; retry deferred item links.
		if err := e.reconcileOrder(ctx, order, msg); err != nil {
			return err
		}
	}

	return nil
}

// refreshStatus reloads the order's children and recomputes its status. Every
// structural mutation ends here.
func (e *Engine) refreshStatus(ctx context.Context, orderID int64, messageID string) error {
	snap, err := e.loadSnapshot(ctx, orderID)
	if err != nil {
		return err
	}

	status := DeriveStatus(*snap, e.now())
	if status == snap.Order.Status {
		return nil
	}

	if err := e.storage.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	return e.appendEvent(ctx, orderID, messageID, model.EventStatusChanged,
		fmt.Sprintf("status %s -> %s", snap.Order.Status, status))
}

// loadSnapshot builds the full snapshot status derivation works on.
func (e *Engine) loadSnapshot(ctx context.Context, orderID int64) (*OrderSnapshot, error) {
	order, err := e.storage.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	lines, err := e.storage.GetOrderLines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	shipments, err := e.storage.GetShipmentsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	deliveries, err := e.storage.GetDeliveriesByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	returns, err := e.storage.GetReturnsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	refunds, err := e.storage.GetRefundsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &OrderSnapshot{
		Order:      *order,
		Lines:      lines,
		Shipments:  shipments,
		Deliveries: deliveries,
		Returns:    returns,
		Refunds:    refunds,
	}, nil
}

// appendEvent writes one append-only timeline entry.
func (e *Engine) appendEvent(ctx context.Context, orderID int64, messageID string, eventType model.OrderEventType, description string) error {
	event := &model.OrderEvent{
		OrderID:     orderID,
		MessageID:   messageID,
		Type:        eventType,
		Description: description,
		CreatedAt:   e.now(),
	}
	if err := e.storage.AppendOrderEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to append order event: %w", err)
	}
	return nil
}
