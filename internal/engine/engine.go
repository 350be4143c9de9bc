// Package engine implements the aggregation pipeline: it routes classified
// messages through extraction, resolves the order they belong to, merges
// child entities, reconciles deferred item links, and recomputes order status.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/ordertrail/internal/common"
	"github.com/Veraticus/ordertrail/internal/extract"
	"github.com/Veraticus/ordertrail/internal/model"
	"github.com/Veraticus/ordertrail/internal/service"
)

// DeadLetterThreshold is the retry count at which a failed message stops
// being auto-reprocessed and waits in the review queue.
const DeadLetterThreshold = 5

// Engine processes messages end-to-end. One message is handled by a single
// worker; messages run concurrently across workers and contend only on order
// resolution.
type Engine struct {
	storage   service.Storage
	extractor Extractor
	matcher   RetailerMatcher
	bodies    service.BodyStore
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an engine with the given dependencies.
func New(storage service.Storage, extractor Extractor, matcher RetailerMatcher, bodies service.BodyStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		storage:   storage,
		extractor: extractor,
		matcher:   matcher,
		bodies:    bodies,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessPending runs the pipeline over every pending message. Messages past
// the dead-letter threshold are skipped. Returns how many messages were
// attempted.
func (e *Engine) ProcessPending(ctx context.Context) (int, error) {
	pending, err := e.storage.GetMessagesByStatus(ctx, model.MessagePending)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending messages: %w", err)
	}

	processed := 0
	for i := range pending {
		select {
		case <-ctx.Done():
			return processed, ctx.Err()
		default:
		}

		msg := &pending[i]
		if msg.RetryCount >= DeadLetterThreshold {
			e.logger.Warn("message past dead-letter threshold, leaving for review",
				"message_id", msg.ID,
				"retry_count", msg.RetryCount)
			continue
		}

		processed++
		if err := e.ProcessMessage(ctx, msg.ID); err != nil {
			// Already marked Failed; the outer queue owns redelivery.
			e.logger.Error("message processing failed",
				"message_id", msg.ID,
				"error", err)
		}
	}
	return processed, nil
}

// ProcessMessage runs one message through the full pipeline. Re-processing a
// message that already reached a terminal state is a no-op, which is what
// makes at-least-once redelivery safe.
func (e *Engine) ProcessMessage(ctx context.Context, messageID string) error {
	return e.process(ctx, messageID, false)
}

// ApproveMessage force-applies a message that was gated to manual review.
// The extraction is re-run and applied regardless of its confidence; only an
// empty extraction still refuses to apply.
func (e *Engine) ApproveMessage(ctx context.Context, messageID string) error {
	return e.process(ctx, messageID, true)
}

func (e *Engine) process(ctx context.Context, messageID string, force bool) error {
	msg, err := e.storage.GetMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to load message %s: %w", messageID, err)
	}

	if msg.Terminal() && !(force && msg.Status == model.MessageManualReview) {
		e.logger.Debug("message already terminal, skipping",
			"message_id", msg.ID,
			"status", msg.Status)
		return nil
	}

	body := e.messageBody(ctx, msg)
	retailer := e.matcher.Match(ctx, msg.Sender, msg.OriginalSender)

	in := extract.Input{
		Subject: msg.Subject,
		Body:    body,
		Sender:  msg.Sender,
	}
	if retailer != nil {
		in.MerchantHint = retailer.Name
	}

	kind := msg.Kind
	if kind == "" {
		if err := e.storage.UpdateMessageStatus(ctx, msg.ID, model.MessageClassifying, ""); err != nil {
			return err
		}

		var confidence float64
		kind, confidence, err = e.extractor.Classify(ctx, in)
		if err != nil {
			return e.fail(ctx, msg, fmt.Errorf("classification: %w", err))
		}
		if kind == "" {
			return e.review(ctx, msg, "classifier produced no usable kind")
		}

		msg.Kind = kind
		msg.Confidence = confidence
		if err := e.storage.UpdateMessageClassification(ctx, msg.ID, kind, confidence); err != nil {
			return err
		}
		if err := e.storage.UpdateMessageStatus(ctx, msg.ID, model.MessageClassified, ""); err != nil {
			return err
		}
	}

	// Promotional mail is dropped right after classification.
	if kind == model.KindPromotional {
		return e.storage.UpdateMessageStatus(ctx, msg.ID, model.MessageDismissed, "")
	}

	if err := e.storage.UpdateMessageStatus(ctx, msg.ID, model.MessageParsing, ""); err != nil {
		return err
	}

	result, err := e.extractor.Extract(ctx, kind, in)
	if err != nil {
		return e.fail(ctx, msg, fmt.Errorf("extraction: %w", err))
	}

	if result.NeedsReview && !force {
		return e.review(ctx, msg, fmt.Sprintf("extraction confidence %.2f below threshold", result.Confidence))
	}
	if result.Extraction == nil || result.Extraction.Empty() {
		return e.review(ctx, msg, "extraction produced no actionable data")
	}

	if err := e.apply(ctx, msg, result.Extraction, retailer); err != nil {
		return e.fail(ctx, msg, fmt.Errorf("apply: %w", err))
	}

	return e.storage.UpdateMessageStatus(ctx, msg.ID, model.MessageParsed, "")
}

// messageBody fetches the full body, falling back to the stored snippet.
func (e *Engine) messageBody(ctx context.Context, msg *model.Message) string {
	if msg.BodyURL == "" || e.bodies == nil {
		return msg.Snippet
	}
	body, err := e.bodies.Get(ctx, msg.BodyURL)
	if err != nil {
		if !errors.Is(err, common.ErrBodyNotFound) {
			e.logger.Warn("body fetch failed, using snippet",
				"message_id", msg.ID,
				"error", err)
		}
		return msg.Snippet
	}
	return body
}

// review parks the message for a human. No entities are created or mutated
// from untrusted data.
func (e *Engine) review(ctx context.Context, msg *model.Message, reason string) error {
	e.logger.Info("message routed to manual review",
		"message_id", msg.ID,
		"kind", msg.Kind,
		"reason", reason)
	return e.storage.UpdateMessageStatus(ctx, msg.ID, model.MessageManualReview, reason)
}

// fail marks the message Failed, bumps its retry count, and surfaces the
// error so the queue layer can redeliver.
func (e *Engine) fail(ctx context.Context, msg *model.Message, cause error) error {
	if err := e.storage.IncrementMessageRetry(ctx, msg.ID); err != nil {
		e.logger.Error("failed to increment retry count", "message_id", msg.ID, "error", err)
	}
	if err := e.storage.UpdateMessageStatus(ctx, msg.ID, model.MessageFailed, cause.Error()); err != nil {
		e.logger.Error("failed to mark message failed", "message_id", msg.ID, "error", err)
	}
	return cause
}
