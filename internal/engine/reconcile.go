package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Veraticus/ordertrail/internal/common"
	"github.com/Veraticus/ordertrail/internal/extract"
	"github.com/Veraticus/ordertrail/internal/model"
)

// reconcileOrder retries deferred item linkage for every shipment and return
// under an order that just gained its first lines. Items come from the stored
// raw snapshot when one exists; otherwise the original parser is re-invoked
// on the creating message's body. Both paths are idempotent.
func (e *Engine) reconcileOrder(ctx context.Context, order *model.Order, msg *model.Message) error {
	lines, err := e.storage.GetOrderLines(ctx, order.ID)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}

	shipments, err := e.storage.GetShipmentsByOrder(ctx, order.ID)
	if err != nil {
		return err
	}

	reconciled := 0
	for i := range shipments {
		shipment := &shipments[i]

		existing, err := e.storage.GetShipmentLines(ctx, shipment.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}

		items, err := e.recoverItems(ctx, shipment.RawItems, shipment.CreatedByMessageID, model.KindShippingConfirmation)
		if err != nil {
			e.logger.Warn("could not recover shipment items for reconciliation",
				"shipment_id", shipment.ID,
				"error", err)
			continue
		}
		if len(items) == 0 {
			continue
		}

		lineStatus := model.LineShipped
		if shipment.Status == model.ShipmentDelivered {
			lineStatus = model.LineDelivered
		}
		if err := e.createShipmentLinks(ctx, shipment, lines, items, lineStatus); err != nil {
			return err
		}
		reconciled++
	}

	returns, err := e.storage.GetReturnsByOrder(ctx, order.ID)
	if err != nil {
		return err
	}

	for i := range returns {
		ret := &returns[i]

		existing, err := e.storage.GetReturnLines(ctx, ret.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}

		items, err := e.recoverItems(ctx, ret.RawItems, ret.CreatedByMessageID, model.KindReturnInitiated)
		if err != nil {
			e.logger.Warn("could not recover return items for reconciliation",
				"return_id", ret.ID,
				"error", err)
			continue
		}
		if len(items) == 0 {
			continue
		}

		if err := e.createReturnLinks(ctx, ret, lines, items); err != nil {
			return err
		}
		if ret.Status == model.ReturnReceived {
			if err := e.advanceReturnLines(ctx, ret, model.LineReturned); err != nil {
				return err
			}
		}
		reconciled++
	}

	if reconciled > 0 {
		if err := e.appendEvent(ctx, order.ID, msg.ID, model.EventLinesReconciled,
			fmt.Sprintf("%d deferred item sets reconciled", reconciled)); err != nil {
			return err
		}
	}

	return nil
}

// recoverItems returns the item list for a deferred link attempt: the stored
// snapshot when present, else a fresh extraction from the original message.
func (e *Engine) recoverItems(ctx context.Context, rawItems, messageID string, kind model.MessageKind) ([]model.ExtractedItem, error) {
	if rawItems != "" {
		var items []model.ExtractedItem
		if err := json.Unmarshal([]byte(rawItems), &items); err != nil {
			return nil, fmt.Errorf("corrupt item snapshot: %w", err)
		}
		return items, nil
	}

	if messageID == "" {
		return nil, nil
	}

	msg, err := e.storage.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if msg.Kind != "" {
		kind = msg.Kind
	}

	result, err := e.extractor.Extract(ctx, kind, extract.Input{
		Subject: msg.Subject,
		Body:    e.messageBody(ctx, msg),
		Sender:  msg.Sender,
	})
	if err != nil {
		return nil, err
	}
	if result.Extraction == nil {
		return nil, nil
	}
	return result.Extraction.Items, nil
}
