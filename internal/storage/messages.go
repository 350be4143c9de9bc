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

// SaveMessage inserts a message if it does not already exist. Redelivered
// messages keep their original row, which is what makes ingestion idempotent.
func (s *SQLiteStorage) SaveMessage(ctx context.Context, msg *model.Message) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("%w: msg", ErrNilParameter)
	}
	if err := validateString(msg.ID, "msg.ID"); err != nil {
		return err
	}

	status := msg.Status
	if status == "" {
		status = model.MessagePending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages (
			id, sender, original_sender, subject, received_at,
			body_url, snippet, kind, confidence, status, error_detail, retry_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.Sender, msg.OriginalSender, msg.Subject, msg.ReceivedAt,
		msg.BodyURL, msg.Snippet, string(msg.Kind), msg.Confidence, string(status),
		msg.ErrorDetail, msg.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetMessage loads one message by id.
func (s *SQLiteStorage) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, sender, original_sender, subject, received_at, body_url,
		       snippet, kind, confidence, status, error_detail, retry_count,
		       created_at, updated_at
		FROM messages WHERE id = ?
	`, id)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// GetMessagesByStatus lists messages in a given processing state, oldest first.
func (s *SQLiteStorage) GetMessagesByStatus(ctx context.Context, status model.MessageStatus) ([]model.Message, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, original_sender, subject, received_at, body_url,
		       snippet, kind, confidence, status, error_detail, retry_count,
		       created_at, updated_at
		FROM messages WHERE status = ?
		ORDER BY received_at ASC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// UpdateMessageStatus moves a message to a new processing state.
func (s *SQLiteStorage) UpdateMessageStatus(ctx context.Context, id string, status model.MessageStatus, errorDetail string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET status = ?, error_detail = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(status), errorDetail, id)
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}
	return nil
}

// UpdateMessageClassification records the classifier's verdict.
func (s *SQLiteStorage) UpdateMessageClassification(ctx context.Context, id string, kind model.MessageKind, confidence float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET kind = ?, confidence = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(kind), confidence, id)
	if err != nil {
		return fmt.Errorf("failed to update message classification: %w", err)
	}
	return nil
}

// IncrementMessageRetry bumps the retry counter after a terminal failure.
func (s *SQLiteStorage) IncrementMessageRetry(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET retry_count = retry_count + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	return nil
}

// ResetMessageRetry zeroes the retry counter so a dead-lettered message can
// run through the pipeline again.
func (s *SQLiteStorage) ResetMessageRetry(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET retry_count = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to reset retry count: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var msg model.Message
	var kind, status string
	var originalSender, subject, bodyURL, snippet, errorDetail sql.NullString
	var createdAt, updatedAt time.Time

	err := row.Scan(&msg.ID, &msg.Sender, &originalSender, &subject, &msg.ReceivedAt,
		&bodyURL, &snippet, &kind, &msg.Confidence, &status, &errorDetail,
		&msg.RetryCount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	msg.OriginalSender = originalSender.String
	msg.Subject = subject.String
	msg.BodyURL = bodyURL.String
	msg.Snippet = snippet.String
	msg.ErrorDetail = errorDetail.String
	msg.Kind = model.MessageKind(kind)
	msg.Status = model.MessageStatus(status)
	msg.CreatedAt = createdAt
	msg.UpdatedAt = updatedAt
	return &msg, nil
}
