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

const orderColumns = `id, reference, normalized_reference, retailer_name, order_date,
	status, inferred, subtotal, shipping, tax, discount, total,
	created_by_message_id, updated_by_message_id, created_at, updated_at`

// CreateOrder inserts an order and fills in its generated id.
func (s *SQLiteStorage) CreateOrder(ctx context.Context, order *model.Order) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("%w: order", ErrNilParameter)
	}
	if err := validateString(order.Reference, "order.Reference"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (
			reference, normalized_reference, retailer_name, order_date, status,
			inferred, subtotal, shipping, tax, discount, total,
			created_by_message_id, updated_by_message_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, order.Reference, model.NormalizeReference(order.Reference), order.RetailerName,
		nullTime(order.OrderDate), string(order.Status), order.Inferred,
		order.Subtotal, order.Shipping, order.Tax, order.Discount, order.Total,
		order.CreatedByMessageID, order.UpdatedByMessageID)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	order.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get order id: %w", err)
	}
	return nil
}

// UpdateOrder rewrites an order's mutable fields.
func (s *SQLiteStorage) UpdateOrder(ctx context.Context, order *model.Order) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if order == nil || order.ID == 0 {
		return fmt.Errorf("%w: order", ErrNilParameter)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET reference = ?, normalized_reference = ?, retailer_name = ?,
		    order_date = ?, inferred = ?, subtotal = ?, shipping = ?, tax = ?,
		    discount = ?, total = ?, updated_by_message_id = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, order.Reference, model.NormalizeReference(order.Reference), order.RetailerName,
		nullTime(order.OrderDate), order.Inferred, order.Subtotal, order.Shipping,
		order.Tax, order.Discount, order.Total, order.UpdatedByMessageID, order.ID)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return nil
}

// UpdateOrderStatus sets the derived status. This is the only writer of the
// status column after creation.
func (s *SQLiteStorage) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

// GetOrder loads one order by id.
func (s *SQLiteStorage) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getOrderWhere(ctx, "id = ?", id)
}

// GetOrderByReference looks up an order by the exact raw reference.
func (s *SQLiteStorage) GetOrderByReference(ctx context.Context, ref string) (*model.Order, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ref, "ref"); err != nil {
		return nil, err
	}
	return s.getOrderWhere(ctx, "reference = ?", ref)
}

// GetOrderByNormalizedReference looks up an order by the normalized reference.
func (s *SQLiteStorage) GetOrderByNormalizedReference(ctx context.Context, ref string) (*model.Order, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ref, "ref"); err != nil {
		return nil, err
	}
	return s.getOrderWhere(ctx, "normalized_reference = ?", ref)
}

// FindOrderByReferenceSubstring matches a reference fragment by containment
// in either direction. Callers enforce the minimum fragment length; the
// reverse direction applies the same floor to the stored reference so a
// short stub reference cannot swallow every longer fragment.
func (s *SQLiteStorage) FindOrderByReferenceSubstring(ctx context.Context, ref string) (*model.Order, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ref, "ref"); err != nil {
		return nil, err
	}
	return s.getOrderWhere(ctx,
		`(instr(normalized_reference, ?) > 0
			OR (length(normalized_reference) >= 5 AND instr(?, normalized_reference) > 0))`,
		ref, ref)
}

// ListOrders returns all orders, newest first.
func (s *SQLiteStorage) ListOrders(ctx context.Context) ([]model.Order, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM orders ORDER BY created_at DESC", orderColumns))
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (s *SQLiteStorage) getOrderWhere(ctx context.Context, where string, args ...any) (*model.Order, error) {
	query := fmt.Sprintf("SELECT %s FROM orders WHERE %s ORDER BY id LIMIT 1", orderColumns, where)
	order, err := scanOrder(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order: %w", common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var order model.Order
	var status string
	var normalizedRef string
	var retailerName, createdBy, updatedBy sql.NullString
	var orderDate sql.NullTime
	var createdAt, updatedAt time.Time

	err := row.Scan(&order.ID, &order.Reference, &normalizedRef, &retailerName,
		&orderDate, &status, &order.Inferred, &order.Subtotal, &order.Shipping,
		&order.Tax, &order.Discount, &order.Total, &createdBy, &updatedBy,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	order.RetailerName = retailerName.String
	order.CreatedByMessageID = createdBy.String
	order.UpdatedByMessageID = updatedBy.String
	order.Status = model.OrderStatus(status)
	order.OrderDate = orderDate.Time
	order.CreatedAt = createdAt
	order.UpdatedAt = updatedAt
	return &order, nil
}

// CreateOrderLine inserts a line; duplicate (order, line number) pairs are
// rejected by the schema.
func (s *SQLiteStorage) CreateOrderLine(ctx context.Context, line *model.OrderLine) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateOrderLine(line); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO order_lines (order_id, line_number, product_name, quantity, unit_price, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, line.OrderID, line.LineNumber, line.ProductName, line.Quantity, line.UnitPrice, string(line.Status))
	if err != nil {
		return fmt.Errorf("failed to create order line: %w", err)
	}

	line.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get order line id: %w", err)
	}
	return nil
}

// GetOrderLines lists an order's lines in line-number order.
func (s *SQLiteStorage) GetOrderLines(ctx context.Context, orderID int64) ([]model.OrderLine, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, line_number, product_name, quantity, unit_price, status
		FROM order_lines WHERE order_id = ? ORDER BY line_number
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []model.OrderLine
	for rows.Next() {
		var line model.OrderLine
		var status string
		if err := rows.Scan(&line.ID, &line.OrderID, &line.LineNumber,
			&line.ProductName, &line.Quantity, &line.UnitPrice, &status); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		line.Status = model.LineStatus(status)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// UpdateOrderLineStatus sets one line's status.
func (s *SQLiteStorage) UpdateOrderLineStatus(ctx context.Context, id int64, status model.LineStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE order_lines SET status = ? WHERE id = ?
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update order line status: %w", err)
	}
	return nil
}

// nullTime maps the zero time to NULL so unknown dates stay unknown.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
