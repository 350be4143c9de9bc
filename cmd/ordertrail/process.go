package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/ordertrail/internal/cli"
	"github.com/Veraticus/ordertrail/internal/config"
	"github.com/Veraticus/ordertrail/internal/engine"
	"github.com/Veraticus/ordertrail/internal/gmail"
	"github.com/Veraticus/ordertrail/internal/mailfile"
	"github.com/Veraticus/ordertrail/internal/model"
	"github.com/Veraticus/ordertrail/internal/service"
)

// mailSource is what the process command needs from a mailbox provider: the
// listing side for polling and the body side for extraction.
type mailSource interface {
	service.MailProvider
	service.BodyStore
}

// newMailSource builds the provider named by the --mailbox flag.
func newMailSource(ctx context.Context, name string) (mailSource, error) {
	switch name {
	case "gmail":
		cfg, err := config.LoadGmailConfig()
		if err != nil {
			return nil, err
		}
		cfg.Logger = slog.Default()
		return gmail.NewProvider(ctx, cfg)
	case "file":
		path, err := config.LoadMailboxFixturePath()
		if err != nil {
			return nil, err
		}
		return mailfile.NewProvider(path)
	default:
		return nil, fmt.Errorf("unknown mailbox provider %q (want gmail or file)", name)
	}
}

func processCmd() *cobra.Command {
	var (
		skipPoll bool
		retry    bool
		mailbox  string
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Poll the mailbox and process pending messages",
		Long: `Fetch new messages from the mailbox since the last poll, persist them,
and run every pending message through classification, extraction, and
aggregation. Messages that fail extraction are retried on later runs until
they hit the dead-letter threshold, then wait in the review queue.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var provider mailSource
			if !skipPoll {
				var err error
				provider, err = newMailSource(ctx, mailbox)
				if err != nil {
					return err
				}
			}

			// provider is also the body store; a nil provider falls back to
			// stored snippets.
			var bodies service.BodyStore
			if provider != nil {
				bodies = provider
			}

			eng, store, err := initEngine(ctx, bodies)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if provider != nil {
				if err := poll(ctx, store, provider); err != nil {
					return err
				}
			}

			if retry {
				if err := requeueFailed(ctx, store); err != nil {
					return err
				}
			}

			pending, err := store.GetMessagesByStatus(ctx, model.MessagePending)
			if err != nil {
				return fmt.Errorf("failed to count pending messages: %w", err)
			}
			if len(pending) == 0 {
				fmt.Println(cli.InfoStyle.Render("No pending messages."))
				return nil
			}

			bar := progressbar.NewOptions(len(pending),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("[cyan][bold]Processing messages...[reset]"),
			)

			processed := 0
			for i := range pending {
				if err := ctx.Err(); err != nil {
					return err
				}
				if pending[i].RetryCount >= engine.DeadLetterThreshold {
					_ = bar.Add(1)
					continue
				}
				if procErr := eng.ProcessMessage(ctx, pending[i].ID); procErr != nil {
					slog.Error("message processing failed",
						"message_id", pending[i].ID,
						"error", procErr)
				} else {
					processed++
				}
				_ = bar.Add(1)
			}
			_ = bar.Finish()
			fmt.Println()

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Processed %d of %d messages", processed, len(pending))))
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipPoll, "skip-poll", false, "Skip the mailbox poll and only process stored messages")
	cmd.Flags().BoolVar(&retry, "retry", false, "Requeue failed messages before processing")
	cmd.Flags().StringVar(&mailbox, "mailbox", "gmail", "Mailbox provider to poll (gmail or file)")

	return cmd
}

// poll lists mailbox messages since the stored checkpoint and saves them.
// Redelivered messages are ignored by the unique message id, so overlapping
// windows are harmless.
func poll(ctx context.Context, store service.Storage, provider service.MailProvider) error {
	since, err := store.GetPollCheckpoint(ctx)
	if err != nil {
		return err
	}
	polledAt := time.Now()

	incoming, err := provider.ListMessagesSince(ctx, since)
	if err != nil {
		return fmt.Errorf("mailbox poll failed: %w", err)
	}

	saved := 0
	for _, in := range incoming {
		msg := &model.Message{
			ID:             in.ID,
			Sender:         in.Sender,
			OriginalSender: in.OriginalSender,
			Subject:        in.Subject,
			ReceivedAt:     in.ReceivedAt,
			BodyURL:        in.BodyURL,
			Snippet:        in.Snippet,
		}
		if err := store.SaveMessage(ctx, msg); err != nil {
			return fmt.Errorf("failed to save message %s: %w", in.ID, err)
		}
		saved++
	}

	slog.Info("Mailbox poll complete", "listed", len(incoming), "saved", saved)

	return store.SavePollCheckpoint(ctx, polledAt)
}

// requeueFailed moves failed messages back to pending. Messages past the
// dead-letter threshold are still skipped by the engine.
func requeueFailed(ctx context.Context, store service.Storage) error {
	failed, err := store.GetMessagesByStatus(ctx, model.MessageFailed)
	if err != nil {
		return fmt.Errorf("failed to list failed messages: %w", err)
	}
	for i := range failed {
		if err := store.UpdateMessageStatus(ctx, failed[i].ID, model.MessagePending, ""); err != nil {
			return err
		}
	}
	if len(failed) > 0 {
		slog.Info("Requeued failed messages", "count", len(failed))
	}
	return nil
}
