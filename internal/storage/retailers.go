package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/ordertrail/internal/common"
	"github.com/Veraticus/ordertrail/internal/model"
)

// GetRetailers returns the full retailer list. Domain matching loads this
// once and caches it, so no filtering happens here.
func (s *SQLiteStorage) GetRetailers(ctx context.Context) ([]model.Retailer, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, domains FROM retailers ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query retailers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var retailers []model.Retailer
	for rows.Next() {
		var retailer model.Retailer
		var domains string
		if err := rows.Scan(&retailer.ID, &retailer.Name, &domains); err != nil {
			return nil, fmt.Errorf("failed to scan retailer: %w", err)
		}
		if err := json.Unmarshal([]byte(domains), &retailer.Domains); err != nil {
			return nil, fmt.Errorf("failed to decode domains for %s: %w", retailer.Name, err)
		}
		retailers = append(retailers, retailer)
	}
	return retailers, rows.Err()
}

// CreateRetailer inserts a retailer. Names are unique; duplicates surface as
// ErrDuplicateEntry.
func (s *SQLiteStorage) CreateRetailer(ctx context.Context, retailer *model.Retailer) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if retailer == nil {
		return fmt.Errorf("%w: retailer", ErrNilParameter)
	}
	if err := validateString(retailer.Name, "retailer.Name"); err != nil {
		return err
	}
	if len(retailer.Domains) == 0 {
		return fmt.Errorf("%w: retailer.Domains", ErrNilParameter)
	}

	domains, err := json.Marshal(retailer.Domains)
	if err != nil {
		return fmt.Errorf("failed to encode domains: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO retailers (name, domains) VALUES (?, ?)
	`, retailer.Name, string(domains))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("retailer %s: %w", retailer.Name, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create retailer: %w", err)
	}

	retailer.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get retailer id: %w", err)
	}
	return nil
}

// AppendOrderEvent writes one timeline entry. Events are append-only; there
// is no update or delete path.
func (s *SQLiteStorage) AppendOrderEvent(ctx context.Context, event *model.OrderEvent) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if event == nil || event.OrderID == 0 {
		return fmt.Errorf("%w: event", ErrNilParameter)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO order_events (order_id, message_id, event_type, description)
		VALUES (?, ?, ?, ?)
	`, event.OrderID, event.MessageID, string(event.Type), event.Description)
	if err != nil {
		return fmt.Errorf("failed to append order event: %w", err)
	}

	event.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event id: %w", err)
	}
	return nil
}

// GetOrderEvents returns an order's timeline in insertion order.
func (s *SQLiteStorage) GetOrderEvents(ctx context.Context, orderID int64) ([]model.OrderEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, message_id, event_type, description, created_at
		FROM order_events WHERE order_id = ? ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.OrderEvent
	for rows.Next() {
		var event model.OrderEvent
		var eventType string
		var messageID, description sql.NullString
		var createdAt time.Time
		if err := rows.Scan(&event.ID, &event.OrderID, &messageID, &eventType,
			&description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan order event: %w", err)
		}
		event.MessageID = messageID.String
		event.Description = description.String
		event.Type = model.OrderEventType(eventType)
		event.CreatedAt = createdAt
		events = append(events, event)
	}
	return events, rows.Err()
}

// GetPollCheckpoint returns the timestamp of the last successful mailbox
// poll, or the zero time if no poll has completed yet.
func (s *SQLiteStorage) GetPollCheckpoint(ctx context.Context) (time.Time, error) {
	if err := validateContext(ctx); err != nil {
		return time.Time{}, err
	}

	var at time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT polled_at FROM poll_checkpoint WHERE id = 1").Scan(&at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to get poll checkpoint: %w", err)
	}
	return at, nil
}

// SavePollCheckpoint records the end of a successful mailbox poll.
func (s *SQLiteStorage) SavePollCheckpoint(ctx context.Context, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO poll_checkpoint (id, polled_at) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET polled_at = excluded.polled_at
	`, at)
	if err != nil {
		return fmt.Errorf("failed to save poll checkpoint: %w", err)
	}
	return nil
}
