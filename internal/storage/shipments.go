package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/ordertrail/internal/common"
	"github.com/Veraticus/ordertrail/internal/model"
)

// CreateShipment inserts a shipment and fills in its generated id.
func (s *SQLiteStorage) CreateShipment(ctx context.Context, shipment *model.Shipment) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if shipment == nil || shipment.OrderID == 0 {
		return fmt.Errorf("%w: shipment", ErrNilParameter)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO shipments (order_id, tracking_number, carrier, status, shipped_at, raw_items, created_by_message_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, shipment.OrderID, shipment.TrackingNumber, shipment.Carrier,
		string(shipment.Status), nullTime(shipment.ShippedAt), shipment.RawItems,
		shipment.CreatedByMessageID)
	if err != nil {
		return fmt.Errorf("failed to create shipment: %w", err)
	}

	shipment.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get shipment id: %w", err)
	}
	return nil
}

// UpdateShipment rewrites a shipment's mutable fields.
func (s *SQLiteStorage) UpdateShipment(ctx context.Context, shipment *model.Shipment) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if shipment == nil || shipment.ID == 0 {
		return fmt.Errorf("%w: shipment", ErrNilParameter)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE shipments
		SET tracking_number = ?, carrier = ?, status = ?, shipped_at = ?, raw_items = ?
		WHERE id = ?
	`, shipment.TrackingNumber, shipment.Carrier, string(shipment.Status),
		nullTime(shipment.ShippedAt), shipment.RawItems, shipment.ID)
	if err != nil {
		return fmt.Errorf("failed to update shipment: %w", err)
	}
	return nil
}

// GetShipmentsByOrder lists an order's shipments, oldest first.
func (s *SQLiteStorage) GetShipmentsByOrder(ctx context.Context, orderID int64) ([]model.Shipment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, tracking_number, carrier, status, shipped_at, raw_items, created_by_message_id, created_at
		FROM shipments WHERE order_id = ? ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query shipments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var shipments []model.Shipment
	for rows.Next() {
		shipment, err := scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shipment: %w", err)
		}
		shipments = append(shipments, *shipment)
	}
	return shipments, rows.Err()
}

// GetShipmentByTracking looks up a shipment by its carrier tracking number,
// the natural key for carrier updates.
func (s *SQLiteStorage) GetShipmentByTracking(ctx context.Context, trackingNumber string) (*model.Shipment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(trackingNumber, "trackingNumber"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, tracking_number, carrier, status, shipped_at, raw_items, created_by_message_id, created_at
		FROM shipments WHERE tracking_number = ? ORDER BY id LIMIT 1
	`, trackingNumber)

	shipment, err := scanShipment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("shipment %s: %w", trackingNumber, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get shipment: %w", err)
	}
	return shipment, nil
}

func scanShipment(row rowScanner) (*model.Shipment, error) {
	var shipment model.Shipment
	var status string
	var trackingNumber, carrier, rawItems, createdBy sql.NullString
	var shippedAt sql.NullTime
	var createdAt time.Time

	err := row.Scan(&shipment.ID, &shipment.OrderID, &trackingNumber, &carrier,
		&status, &shippedAt, &rawItems, &createdBy, &createdAt)
	if err != nil {
		return nil, err
	}

	shipment.TrackingNumber = trackingNumber.String
	shipment.Carrier = carrier.String
	shipment.RawItems = rawItems.String
	shipment.CreatedByMessageID = createdBy.String
	shipment.Status = model.ShipmentStatus(status)
	shipment.ShippedAt = shippedAt.Time
	shipment.CreatedAt = createdAt
	return &shipment, nil
}

// CreateShipmentLine links a shipment to an order line. The schema rejects
// duplicate links, so callers can insert blindly after checking.
func (s *SQLiteStorage) CreateShipmentLine(ctx context.Context, line *model.ShipmentLine) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if line == nil || line.ShipmentID == 0 || line.OrderLineID == 0 {
		return fmt.Errorf("%w: shipment line", ErrNilParameter)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO shipment_lines (shipment_id, order_line_id, quantity)
		VALUES (?, ?, ?)
	`, line.ShipmentID, line.OrderLineID, line.Quantity)
	if err != nil {
		return fmt.Errorf("failed to create shipment line: %w", err)
	}

	line.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get shipment line id: %w", err)
	}
	return nil
}

// GetShipmentLines lists the order-line links for a shipment.
func (s *SQLiteStorage) GetShipmentLines(ctx context.Context, shipmentID int64) ([]model.ShipmentLine, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shipment_id, order_line_id, quantity
		FROM shipment_lines WHERE shipment_id = ? ORDER BY id
	`, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query shipment lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []model.ShipmentLine
	for rows.Next() {
		var line model.ShipmentLine
		if err := rows.Scan(&line.ID, &line.ShipmentID, &line.OrderLineID, &line.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan shipment line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// CreateDelivery inserts the 1:1 delivery outcome for a shipment.
func (s *SQLiteStorage) CreateDelivery(ctx context.Context, delivery *model.Delivery) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if delivery == nil || delivery.ShipmentID == 0 {
		return fmt.Errorf("%w: delivery", ErrNilParameter)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO deliveries (shipment_id, status, issue, delivered_at, created_by_message_id)
		VALUES (?, ?, ?, ?, ?)
	`, delivery.ShipmentID, string(delivery.Status), delivery.Issue,
		nullTime(delivery.DeliveredAt), delivery.CreatedByMessageID)
	if err != nil {
		return fmt.Errorf("failed to create delivery: %w", err)
	}

	delivery.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get delivery id: %w", err)
	}
	return nil
}

// UpdateDelivery rewrites a delivery's outcome.
func (s *SQLiteStorage) UpdateDelivery(ctx context.Context, delivery *model.Delivery) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if delivery == nil || delivery.ID == 0 {
		return fmt.Errorf("%w: delivery", ErrNilParameter)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE deliveries SET status = ?, issue = ?, delivered_at = ? WHERE id = ?
	`, string(delivery.Status), delivery.Issue, nullTime(delivery.DeliveredAt), delivery.ID)
	if err != nil {
		return fmt.Errorf("failed to update delivery: %w", err)
	}
	return nil
}

// GetDeliveryByShipment loads the delivery outcome for a shipment.
func (s *SQLiteStorage) GetDeliveryByShipment(ctx context.Context, shipmentID int64) (*model.Delivery, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, shipment_id, status, issue, delivered_at, created_by_message_id, created_at
		FROM deliveries WHERE shipment_id = ?
	`, shipmentID)

	delivery, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("delivery for shipment %d: %w", shipmentID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}
	return delivery, nil
}

// GetDeliveriesByOrder lists delivery outcomes across all of an order's
// shipments.
func (s *SQLiteStorage) GetDeliveriesByOrder(ctx context.Context, orderID int64) ([]model.Delivery, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.shipment_id, d.status, d.issue, d.delivered_at, d.created_by_message_id, d.created_at
		FROM deliveries d
		JOIN shipments s ON s.id = d.shipment_id
		WHERE s.order_id = ?
		ORDER BY d.id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deliveries []model.Delivery
	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, *delivery)
	}
	return deliveries, rows.Err()
}

func scanDelivery(row rowScanner) (*model.Delivery, error) {
	var delivery model.Delivery
	var status string
	var issue, createdBy sql.NullString
	var deliveredAt sql.NullTime
	var createdAt time.Time

	err := row.Scan(&delivery.ID, &delivery.ShipmentID, &status, &issue,
		&deliveredAt, &createdBy, &createdAt)
	if err != nil {
		return nil, err
	}

	delivery.Issue = issue.String
	delivery.CreatedByMessageID = createdBy.String
	delivery.Status = model.DeliveryStatus(status)
	delivery.DeliveredAt = deliveredAt.Time
	delivery.CreatedAt = createdAt
	return &delivery, nil
}
