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

// CreateReturn inserts a return and fills in its generated id.
func (s *SQLiteStorage) CreateReturn(ctx context.Context, ret *model.Return) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if ret == nil || ret.OrderID == 0 {
		return fmt.Errorf("%w: return", ErrNilParameter)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO returns (order_id, rma, status, raw_items, initiated_at, created_by_message_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ret.OrderID, ret.RMA, string(ret.Status), ret.RawItems,
		nullTime(ret.InitiatedAt), ret.CreatedByMessageID)
	if err != nil {
		return fmt.Errorf("failed to create return: %w", err)
	}

	ret.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get return id: %w", err)
	}
	return nil
}

// UpdateReturn rewrites a return's mutable fields.
func (s *SQLiteStorage) UpdateReturn(ctx context.Context, ret *model.Return) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if ret == nil || ret.ID == 0 {
		return fmt.Errorf("%w: return", ErrNilParameter)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE returns SET rma = ?, status = ?, raw_items = ?, initiated_at = ? WHERE id = ?
	`, ret.RMA, string(ret.Status), ret.RawItems, nullTime(ret.InitiatedAt), ret.ID)
	if err != nil {
		return fmt.Errorf("failed to update return: %w", err)
	}
	return nil
}

// GetReturnsByOrder lists an order's returns, oldest first.
func (s *SQLiteStorage) GetReturnsByOrder(ctx context.Context, orderID int64) ([]model.Return, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, rma, status, raw_items, initiated_at, created_by_message_id, created_at
		FROM returns WHERE order_id = ? ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query returns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var returns []model.Return
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan return: %w", err)
		}
		returns = append(returns, *ret)
	}
	return returns, rows.Err()
}

// GetReturnByRMA looks up a return by its RMA, the natural key for the
// return flow.
func (s *SQLiteStorage) GetReturnByRMA(ctx context.Context, rma string) (*model.Return, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(rma, "rma"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, rma, status, raw_items, initiated_at, created_by_message_id, created_at
		FROM returns WHERE rma = ? ORDER BY id LIMIT 1
	`, rma)

	ret, err := scanReturn(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("return %s: %w", rma, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get return: %w", err)
	}
	return ret, nil
}

func scanReturn(row rowScanner) (*model.Return, error) {
	var ret model.Return
	var status string
	var rma, rawItems, createdBy sql.NullString
	var initiatedAt sql.NullTime
	var createdAt time.Time

	err := row.Scan(&ret.ID, &ret.OrderID, &rma, &status, &rawItems,
		&initiatedAt, &createdBy, &createdAt)
	if err != nil {
		return nil, err
	}

	ret.RMA = rma.String
	ret.RawItems = rawItems.String
	ret.CreatedByMessageID = createdBy.String
	ret.Status = model.ReturnStatus(status)
	ret.InitiatedAt = initiatedAt.Time
	ret.CreatedAt = createdAt
	return &ret, nil
}

// CreateReturnLine links a return to the order line being sent back.
func (s *SQLiteStorage) CreateReturnLine(ctx context.Context, line *model.ReturnLine) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if line == nil || line.ReturnID == 0 || line.OrderLineID == 0 {
		return fmt.Errorf("%w: return line", ErrNilParameter)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO return_lines (return_id, order_line_id, quantity)
		VALUES (?, ?, ?)
	`, line.ReturnID, line.OrderLineID, line.Quantity)
	if err != nil {
		return fmt.Errorf("failed to create return line: %w", err)
	}

	line.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get return line id: %w", err)
	}
	return nil
}

// GetReturnLines lists the order-line links for a return.
func (s *SQLiteStorage) GetReturnLines(ctx context.Context, returnID int64) ([]model.ReturnLine, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, return_id, order_line_id, quantity
		FROM return_lines WHERE return_id = ? ORDER BY id
	`, returnID)
	if err != nil {
		return nil, fmt.Errorf("failed to query return lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []model.ReturnLine
	for rows.Next() {
		var line model.ReturnLine
		if err := rows.Scan(&line.ID, &line.ReturnID, &line.OrderLineID, &line.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan return line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// CreateRefund inserts a refund and fills in its generated id.
func (s *SQLiteStorage) CreateRefund(ctx context.Context, refund *model.Refund) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if refund == nil || refund.OrderID == 0 {
		return fmt.Errorf("%w: refund", ErrNilParameter)
	}

	var returnID any
	if refund.ReturnID != 0 {
		returnID = refund.ReturnID
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO refunds (order_id, return_id, amount, issued_at, created_by_message_id)
		VALUES (?, ?, ?, ?, ?)
	`, refund.OrderID, returnID, refund.Amount, nullTime(refund.IssuedAt), refund.CreatedByMessageID)
	if err != nil {
		return fmt.Errorf("failed to create refund: %w", err)
	}

	refund.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get refund id: %w", err)
	}
	return nil
}

// GetRefundsByOrder lists an order's refunds, oldest first.
func (s *SQLiteStorage) GetRefundsByOrder(ctx context.Context, orderID int64) ([]model.Refund, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, return_id, amount, issued_at, created_by_message_id, created_at
		FROM refunds WHERE order_id = ? ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query refunds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var refunds []model.Refund
	for rows.Next() {
		var refund model.Refund
		var returnID sql.NullInt64
		var createdBy sql.NullString
		var issuedAt sql.NullTime
		var createdAt time.Time
		if err := rows.Scan(&refund.ID, &refund.OrderID, &returnID, &refund.Amount,
			&issuedAt, &createdBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan refund: %w", err)
		}
		refund.ReturnID = returnID.Int64
		refund.CreatedByMessageID = createdBy.String
		refund.IssuedAt = issuedAt.Time
		refund.CreatedAt = createdAt
		refunds = append(refunds, refund)
	}
	return refunds, rows.Err()
}
