package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/ordertrail/internal/common"
	"github.com/Veraticus/ordertrail/internal/model"
)

// apply routes a gated extraction to its kind-specific handler, then
// recomputes the order's status. Handlers are idempotent: re-applying the
// same message creates no duplicate entities.
func (e *Engine) apply(ctx context.Context, msg *model.Message, extraction *model.Extraction, retailer *model.Retailer) error {
	var orderID int64
	var err error

	switch extraction.Kind {
	case model.KindOrderConfirmation, model.KindPaymentReceipt:
		orderID, err = e.applyConfirmation(ctx, msg, extraction, retailer)
	case model.KindShippingConfirmation:
		orderID, err = e.applyShipment(ctx, msg, extraction, retailer)
	case model.KindOutForDelivery:
		orderID, err = e.applyShipmentProgress(ctx, msg, extraction, retailer, model.ShipmentOutForDelivery)
	case model.KindDeliveryConfirmation:
		orderID, err = e.applyDelivery(ctx, msg, extraction, retailer, model.DeliveryDelivered)
	case model.KindDeliveryException:
		status := model.DeliveryHadIssue
		if extraction.Lost {
			status = model.DeliveryLost
		}
		orderID, err = e.applyDelivery(ctx, msg, extraction, retailer, status)
	case model.KindLineCancellation:
		orderID, err = e.applyLineCancellation(ctx, msg, extraction, retailer)
	case model.KindOrderCancellation:
		orderID, err = e.applyOrderCancellation(ctx, msg, extraction, retailer)
	case model.KindReturnInitiated, model.KindReturnLabel, model.KindReturnShipped, model.KindReturnReceived:
		orderID, err = e.applyReturn(ctx, msg, extraction, retailer)
	case model.KindRefundIssued:
		orderID, err = e.applyRefund(ctx, msg, extraction, retailer)
	default:
		return fmt.Errorf("%w: %s", common.ErrUnknownKind, extraction.Kind)
	}

	if err != nil {
		return err
	}

	return e.refreshStatus(ctx, orderID, msg.ID)
}

func (e *Engine) applyConfirmation(ctx context.Context, msg *model.Message, extraction *model.Extraction, retailer *model.Retailer) (int64, error) {
	order, _, err := e.resolveOrder(ctx, msg, extraction, retailer)
	if err != nil {
		return 0, err
	}
	if err := e.enrichOrder(ctx, msg, order, extraction, retailer); err != nil {
		return 0, err
	}
	return order.ID, nil
}

func (e *Engine) applyShipment(ctx context.Context, msg *model.Message, extraction *model.Extraction, retailer *model.Retailer) (int64, error) {
	shipment, err := e.findShipment(ctx, extraction.TrackingNumber)
	if err != nil {
		return 0, err
	}

	if shipment != nil {
		// A repeat carrier update for a known shipment means it is moving.
		// The message that created the shipment doesn't count: re-running it
		// must leave the shipment exactly as it wrote it.
		if shipment.Status == model.ShipmentShipped && shipment.CreatedByMessageID != msg.ID {
			shipment.Status = model.ShipmentInTransit
			if err := e.storage.UpdateShipment(ctx, shipment); err != nil {
				return 0, err
			}
			if err := e.appendEvent(ctx, shipment.OrderID, msg.ID, model.EventShipmentUpdated,
				fmt.Sprintf("shipment %s in transit", shipment.TrackingNumber)); err != nil {
				return 0, err
			}
		}
		return shipment.OrderID, nil
	}

	order, _, err := e.resolveOrder(ctx, msg, extraction, retailer)
	if err != nil {
		return 0, err
	}

	shipment = &model.Shipment{
		OrderID:            order.ID,
		TrackingNumber:     extraction.TrackingNumber,
		Carrier:            extraction.Carrier,
		Status:             model.ShipmentShipped,
		ShippedAt:          extraction.EventDate.Time,
		CreatedByMessageID: msg.ID,
	}
	if err := e.storage.CreateShipment(ctx, shipment); err != nil {
		return 0, fmt.Errorf("failed to create shipment: %w", err)
	}

	if err := e.linkShipmentItems(ctx, order, shipment, extraction.Items, model.LineShipped); err != nil {
		return 0, err
	}

	if err := e.appendEvent(ctx, order.ID, msg.ID, model.EventShipmentRecorded,
		fmt.Sprintf("shipment %s recorded via %s", shipment.TrackingNumber, shipment.Carrier)); err != nil {
		return 0, err
	}

	return order.ID, nil
}

func (e *Engine) applyShipmentProgress(ctx context.Context, msg *model.Message, extraction *model.Extraction, retailer *model.Retailer, status model.ShipmentStatus) (int64, error) {
	shipment, order, err := e.shipmentForUpdate(ctx, msg, extraction, retailer)
	if err != nil {
		return 0, err
	}

	if shipmentRank(status) > shipmentRank(shipment.Status) {
		shipment.Status = status
		if err := e.storage.UpdateShipment(ctx, shipment); err != nil {
			return 0, err
		}
		if err := e.appendEvent(ctx, order.ID, msg.ID, model.EventShipmentUpdated,
			fmt.Sprintf("shipment %s now %s", shipment.TrackingNumber, status)); err != nil {
			return 0, err
		}
	}

	return order.ID, nil
}

func (e *Engine) applyDelivery(ctx context.Context, msg *model.Message, extraction *model.Extraction, retailer *model.Retailer, status model.DeliveryStatus) (int64, error) {
	shipment, order, err := e.shipmentForUpdate(ctx, msg, extraction, retailer)
	if err != nil {
		return 0, err
	}

	delivery, err := e.storage.GetDeliveryByShipment(ctx, shipment.ID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return 0, err
	}

	if delivery == nil {
		delivery = &model.Delivery{
			ShipmentID:         shipment.ID,
			Status:             status,
			Issue:              extraction.DeliveryIssue,
			DeliveredAt:        extraction.EventDate.Time,
			CreatedByMessageID: msg.ID,
		}
		if delivery.DeliveredAt.IsZero() {
			delivery.DeliveredAt = msg.ReceivedAt
		}
		if err := e.storage.CreateDelivery(ctx, delivery); err != nil {
			return 0, fmt.Errorf("failed to create delivery: %w", err)
		}
	} else if delivery.Status != status {
		// An exception after a clean delivery (or the reverse) overwrites the
		// 1:1 outcome rather than duplicating it.
		delivery.Status = status
		if extraction.DeliveryIssue != "" {
			delivery.Issue = extraction.DeliveryIssue
		}
		if err := e.storage.UpdateDelivery(ctx, delivery); err != nil {
			return 0, err
		}
	}

	if status == model.DeliveryDelivered && shipmentRank(model.ShipmentDelivered) > shipmentRank(shipment.Status) {
		shipment.Status = model.ShipmentDelivered
		if err := e.storage.UpdateShipment(ctx, shipment); err != nil {
			return 0, err
		}
	}

	if status == model.DeliveryDelivered {
		if err := e.advanceShipmentLines(ctx, shipment, model.LineDelivered); err != nil {
			return 0, err
		}
	}

	if err := e.appendEvent(ctx, order.ID, msg.ID, model.EventDeliveryRecorded,
		fmt.Sprintf("delivery %s for shipment %s", status, shipment.TrackingNumber)); err != nil {
		return 0, err
	}

	return order.ID, nil
}

func (e *Engine) applyLineCancellation(ctx context.Context, msg *model.Message, extraction *model.Extraction, retailer *model.Retailer) (int64, error) {
	order, _, err := e.resolveOrder(ctx, msg, extraction, retailer)
	if err != nil {
		return 0, err
	}

	lines, err := e.storage.GetOrderLines(ctx, order.ID)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, item := range extraction.Items {
		line := matchLineByName(lines, item.Name)
		if line == nil || line.Status == model.LineCancelled || line.Status == model.LineDelivered {
			continue
		}
		if err := e.storage.UpdateOrderLineStatus(ctx, line.ID, model.LineCancelled); err != nil {
			return 0, err
		}
		cancelled++
	}

	if cancelled > 0 {
		if err := e.appendEvent(ctx, order.ID, msg.ID, model.EventLinesCancelled,
			fmt.Sprintf("%d lines cancelled", cancelled)); err != nil {
			return 0, err
		}
	}

	return order.ID, nil
}

func (e *Engine) applyOrderCancellation(ctx context.Context, msg *model.Message, extraction *model.Extraction, retailer *model.Retailer) (int64, error) {
	order, _, err := e.resolveOrder(ctx, msg, extraction, retailer)
	if err != nil {
		return 0, err
	}

	lines, err := e.storage.GetOrderLines(ctx, order.ID)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, line := range lines {
		if line.Status == model.LineCancelled || line.Status == model.LineDelivered {
			continue
		}
		if err := e.storage.UpdateOrderLineStatus(ctx, line.ID, model.LineCancelled); err != nil {
			return 0, err
		}
		cancelled++
	}

	if cancelled > 0 {
		if err := e.appendEvent(ctx, order.ID, msg.ID, model.EventLinesCancelled,
			fmt.Sprintf("order cancelled, %d lines affected", cancelled)); err != nil {
			return 0, err
		}
	}

	return order.ID, nil
}

func (e *Engine) applyReturn(ctx context.Context, msg *model.Message, extraction *model.Extraction, retailer *model.Retailer) (int64, error) {
	targetStatus := returnStatusForKind(extraction.Kind)

	var ret *model.Return
	if extraction.RMA != "" {
		existing, err := e.storage.GetReturnByRMA(ctx, extraction.RMA)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return 0, err
		}
		ret = existing
	}

	var order *model.Order
	if ret == nil {
		var err error
		order, _, err = e.resolveOrder(ctx, msg, extraction, retailer)
		if err != nil {
			return 0, err
		}

		ret = &model.Return{
			OrderID:            order.ID,
			RMA:                extraction.RMA,
			Status:             targetStatus,
			InitiatedAt:        extraction.EventDate.Time,
			CreatedByMessageID: msg.ID,
		}
		if ret.InitiatedAt.IsZero() {
			ret.InitiatedAt = msg.ReceivedAt
		}
		if err := e.storage.CreateReturn(ctx, ret); err != nil {
			return 0, fmt.Errorf("failed to create return: %w", err)
		}

		if err := e.linkReturnItems(ctx, order, ret, extraction.Items); err != nil {
			return 0, err
		}

		if err := e.appendEvent(ctx, order.ID, msg.ID, model.EventReturnRecorded,
			fmt.Sprintf("return %s recorded as %s", ret.RMA, ret.Status)); err != nil {
			return 0, err
		}
	} else {
		var err error
		order, err = e.storage.GetOrder(ctx, ret.OrderID)
		if err != nil {
			return 0, err
		}

		if returnRank(targetStatus) > returnRank(ret.Status) {
			ret.Status = targetStatus
			if err := e.storage.UpdateReturn(ctx, ret); err != nil {
				return 0, err
			}
			if err := e.appendEvent(ctx, order.ID, msg.ID, model.EventReturnUpdated,
				fmt.Sprintf("return %s now %s", ret.RMA, ret.Status)); err != nil {
				return 0, err
			}
		}
	}

	lineStatus := model.LineReturnInitiated
	if ret.Status == model.ReturnReceived {
		lineStatus = model.LineReturned
	}
	if err := e.advanceReturnLines(ctx, ret, lineStatus); err != nil {
		return 0, err
	}

	return order.ID, nil
}

func (e *Engine) applyRefund(ctx context.Context, msg *model.Message, extraction *model.Extraction, retailer *model.Retailer) (int64, error) {
	var order *model.Order
	var ret *model.Return

	if extraction.RMA != "" {
		existing, err := e.storage.GetReturnByRMA(ctx, extraction.RMA)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return 0, err
		}
		ret = existing
	}

	if ret != nil {
		var err error
		order, err = e.storage.GetOrder(ctx, ret.OrderID)
		if err != nil {
			return 0, err
		}
	} else {
		var err error
		order, _, err = e.resolveOrder(ctx, msg, extraction, retailer)
		if err != nil {
			return 0, err
		}
	}

	// Natural-key idempotency: one refund per creating message.
	refunds, err := e.storage.GetRefundsByOrder(ctx, order.ID)
	if err != nil {
		return 0, err
	}
	for _, r := range refunds {
		if r.CreatedByMessageID == msg.ID {
			return order.ID, nil
		}
	}

	refund := &model.Refund{
		OrderID:            order.ID,
		Amount:             extraction.RefundAmount,
		IssuedAt:           extraction.EventDate.Time,
		CreatedByMessageID: msg.ID,
	}
	if refund.IssuedAt.IsZero() {
		refund.IssuedAt = msg.ReceivedAt
	}
	if ret != nil {
		refund.ReturnID = ret.ID
	}
	if err := e.storage.CreateRefund(ctx, refund); err != nil {
		return 0, fmt.Errorf("failed to create refund: %w", err)
	}

	if ret != nil {
		if err := e.advanceReturnLines(ctx, ret, model.LineRefunded); err != nil {
			return 0, err
		}
	}

	if err := e.appendEvent(ctx, order.ID, msg.ID, model.EventRefundRecorded,
		fmt.Sprintf("refund of %.2f recorded", refund.Amount)); err != nil {
		return 0, err
	}

	return order.ID, nil
}

// shipmentForUpdate finds the shipment a carrier update refers to, by
// tracking number first and by order reference second, creating both the
// stub order and the shipment when neither exists yet.
func (e *Engine) shipmentForUpdate(ctx context.Context, msg *model.Message, extraction *model.Extraction, retailer *model.Retailer) (*model.Shipment, *model.Order, error) {
	shipment, err := e.findShipment(ctx, extraction.TrackingNumber)
	if err != nil {
		return nil, nil, err
	}
	if shipment != nil {
		order, err := e.storage.GetOrder(ctx, shipment.OrderID)
		if err != nil {
			return nil, nil, err
		}
		return shipment, order, nil
	}

	order, _, err := e.resolveOrder(ctx, msg, extraction, retailer)
	if err != nil {
		return nil, nil, err
	}

	shipments, err := e.storage.GetShipmentsByOrder(ctx, order.ID)
	if err != nil {
		return nil, nil, err
	}
	if extraction.TrackingNumber == "" && len(shipments) == 1 {
		// A single-shipment order needs no tracking number to disambiguate.
		return &shipments[0], order, nil
	}

	shipment = &model.Shipment{
		OrderID:            order.ID,
		TrackingNumber:     extraction.TrackingNumber,
		Carrier:            extraction.Carrier,
		Status:             model.ShipmentShipped,
		ShippedAt:          extraction.EventDate.Time,
		CreatedByMessageID: msg.ID,
	}
	if err := e.storage.CreateShipment(ctx, shipment); err != nil {
		return nil, nil, fmt.Errorf("failed to create shipment: %w", err)
	}
	if err := e.linkShipmentItems(ctx, order, shipment, extraction.Items, model.LineShipped); err != nil {
		return nil, nil, err
	}
	if err := e.appendEvent(ctx, order.ID, msg.ID, model.EventShipmentRecorded,
		fmt.Sprintf("shipment %s recorded", shipment.TrackingNumber)); err != nil {
		return nil, nil, err
	}

	return shipment, order, nil
}

func (e *Engine) findShipment(ctx context.Context, trackingNumber string) (*model.Shipment, error) {
	if trackingNumber == "" {
		return nil, nil
	}
	shipment, err := e.storage.GetShipmentByTracking(ctx, trackingNumber)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	return shipment, nil
}

// linkShipmentItems matches extracted items to order lines by name. When the
// order has no lines yet the raw items are persisted as a snapshot so
// reconciliation can retry once lines exist.
func (e *Engine) linkShipmentItems(ctx context.Context, order *model.Order, shipment *model.Shipment, items []model.ExtractedItem, lineStatus model.LineStatus) error {
	if len(items) == 0 {
		return nil
	}

	lines, err := e.storage.GetOrderLines(ctx, order.ID)
	if err != nil {
		return err
	}

	if len(lines) == 0 {
		raw, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("failed to serialize item snapshot: %w", err)
		}
		shipment.RawItems = string(raw)
		if err := e.storage.UpdateShipment(ctx, shipment); err != nil {
			return fmt.Errorf("failed to store item snapshot: %w", err)
		}
		e.logger.Debug("deferred shipment item linkage, snapshot stored",
			"shipment_id", shipment.ID,
			"items", len(items))
		return nil
	}

	return e.createShipmentLinks(ctx, shipment, lines, items, lineStatus)
}

// createShipmentLinks creates the missing line links for a shipment. A link
// is created only if an equivalent one does not already exist.
func (e *Engine) createShipmentLinks(ctx context.Context, shipment *model.Shipment, lines []model.OrderLine, items []model.ExtractedItem, lineStatus model.LineStatus) error {
	existing, err := e.storage.GetShipmentLines(ctx, shipment.ID)
	if err != nil {
		return err
	}
	linked := make(map[int64]bool, len(existing))
	for _, l := range existing {
		linked[l.OrderLineID] = true
	}

	for _, item := range items {
		line := matchLineByName(lines, item.Name)
		if line == nil || linked[line.ID] {
			continue
		}

		qty := item.Quantity
		if qty <= 0 {
			qty = line.Quantity
		}
		if err := e.storage.CreateShipmentLine(ctx, &model.ShipmentLine{
			ShipmentID:  shipment.ID,
			OrderLineID: line.ID,
			Quantity:    qty,
		}); err != nil {
			return fmt.Errorf("failed to link shipment line: %w", err)
		}
		linked[line.ID] = true

		if lineRank(lineStatus) > lineRank(line.Status) {
			if err := e.storage.UpdateOrderLineStatus(ctx, line.ID, lineStatus); err != nil {
				return err
			}
		}
	}

	return nil
}

// linkReturnItems is the return-side analog of linkShipmentItems.
func (e *Engine) linkReturnItems(ctx context.Context, order *model.Order, ret *model.Return, items []model.ExtractedItem) error {
	if len(items) == 0 {
		return nil
	}

	lines, err := e.storage.GetOrderLines(ctx, order.ID)
	if err != nil {
		return err
	}

	if len(lines) == 0 {
		raw, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("failed to serialize item snapshot: %w", err)
		}
		ret.RawItems = string(raw)
		if err := e.storage.UpdateReturn(ctx, ret); err != nil {
			return fmt.Errorf("failed to store item snapshot: %w", err)
		}
		return nil
	}

	return e.createReturnLinks(ctx, ret, lines, items)
}

func (e *Engine) createReturnLinks(ctx context.Context, ret *model.Return, lines []model.OrderLine, items []model.ExtractedItem) error {
	existing, err := e.storage.GetReturnLines(ctx, ret.ID)
	if err != nil {
		return err
	}
	linked := make(map[int64]bool, len(existing))
	for _, l := range existing {
		linked[l.OrderLineID] = true
	}

	for _, item := range items {
		line := matchLineByName(lines, item.Name)
		if line == nil || linked[line.ID] {
			continue
		}

		qty := item.Quantity
		if qty <= 0 {
			qty = line.Quantity
		}
		if err := e.storage.CreateReturnLine(ctx, &model.ReturnLine{
			ReturnID:    ret.ID,
			OrderLineID: line.ID,
			Quantity:    qty,
		}); err != nil {
			return fmt.Errorf("failed to link return line: %w", err)
		}
		linked[line.ID] = true

		if lineRank(model.LineReturnInitiated) > lineRank(line.Status) {
			if err := e.storage.UpdateOrderLineStatus(ctx, line.ID, model.LineReturnInitiated); err != nil {
				return err
			}
		}
	}

	return nil
}

// advanceShipmentLines moves every line carried by the shipment forward to
// the given status, never backward.
func (e *Engine) advanceShipmentLines(ctx context.Context, shipment *model.Shipment, status model.LineStatus) error {
	links, err := e.storage.GetShipmentLines(ctx, shipment.ID)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}

	lines, err := e.storage.GetOrderLines(ctx, shipment.OrderID)
	if err != nil {
		return err
	}
	byID := make(map[int64]model.OrderLine, len(lines))
	for _, line := range lines {
		byID[line.ID] = line
	}

	for _, link := range links {
		line, ok := byID[link.OrderLineID]
		if ok && lineRank(status) > lineRank(line.Status) {
			if err := e.storage.UpdateOrderLineStatus(ctx, line.ID, status); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) advanceReturnLines(ctx context.Context, ret *model.Return, status model.LineStatus) error {
	links, err := e.storage.GetReturnLines(ctx, ret.ID)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}

	lines, err := e.storage.GetOrderLines(ctx, ret.OrderID)
	if err != nil {
		return err
	}
	byID := make(map[int64]model.OrderLine, len(lines))
	for _, line := range lines {
		byID[line.ID] = line
	}

	for _, link := range links {
		line, ok := byID[link.OrderLineID]
		if ok && lineRank(status) > lineRank(line.Status) {
			if err := e.storage.UpdateOrderLineStatus(ctx, line.ID, status); err != nil {
				return err
			}
		}
	}
	return nil
}

// matchLineByName matches an extracted item to an order line by
// case-insensitive substring containment in either direction.
func matchLineByName(lines []model.OrderLine, name string) *model.OrderLine {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}
	for i := range lines {
		haystack := strings.ToLower(lines[i].ProductName)
		if strings.Contains(haystack, needle) || strings.Contains(needle, haystack) {
			return &lines[i]
		}
	}
	return nil
}

func returnStatusForKind(kind model.MessageKind) model.ReturnStatus {
	switch kind {
	case model.KindReturnLabel:
		return model.ReturnLabelIssued
	case model.KindReturnShipped:
		return model.ReturnShipped
	case model.KindReturnReceived:
		return model.ReturnReceived
	default:
		return model.ReturnInitiated
	}
}

// lineRank orders line statuses along the fulfillment path so updates never
// regress a line. Cancelled sits above Delivered so a delivered line is never
// cancelled by a late message; refund outranks everything.
func lineRank(status model.LineStatus) int {
	switch status {
	case model.LineOrdered:
		return 0
	case model.LineShipped:
		return 1
	case model.LineDelivered:
		return 2
	case model.LineCancelled:
		return 3
	case model.LineReturnInitiated:
		return 4
	case model.LineReturned:
		return 5
	case model.LineRefunded:
		return 6
	default:
		return 0
	}
}

func shipmentRank(status model.ShipmentStatus) int {
	switch status {
	case model.ShipmentShipped:
		return 0
	case model.ShipmentInTransit:
		return 1
	case model.ShipmentOutForDelivery:
		return 2
	case model.ShipmentDelivered:
		return 3
	default:
		return 0
	}
}

func returnRank(status model.ReturnStatus) int {
	switch status {
	case model.ReturnInitiated:
		return 0
	case model.ReturnLabelIssued:
		return 1
	case model.ReturnShipped:
		return 2
	case model.ReturnReceived:
		return 3
	default:
		return 0
	}
}
