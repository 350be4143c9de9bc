package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/ordertrail/internal/cli"
	"github.com/Veraticus/ordertrail/internal/model"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Manage the manual review queue",
		Long: `Messages land in the review queue when classification or extraction is
not confident enough to apply automatically. List them, approve them to
force-apply the extraction, or dismiss them.`,
	}

	cmd.AddCommand(listReviewCmd())
	cmd.AddCommand(approveReviewCmd())
	cmd.AddCommand(dismissReviewCmd())
	cmd.AddCommand(reprocessReviewCmd())

	return cmd
}

func listReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List messages waiting for review",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			messages, err := store.GetMessagesByStatus(ctx, model.MessageManualReview)
			if err != nil {
				return fmt.Errorf("failed to list review queue: %w", err)
			}
			failed, err := store.GetMessagesByStatus(ctx, model.MessageFailed)
			if err != nil {
				return fmt.Errorf("failed to list failed messages: %w", err)
			}
			messages = append(messages, failed...)

			if len(messages) == 0 {
				fmt.Println(cli.InfoStyle.Render("Review queue is empty."))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				cli.TableHeaderStyle.Render("ID"),
				cli.TableHeaderStyle.Render("Received"),
				cli.TableHeaderStyle.Render("Sender"),
				cli.TableHeaderStyle.Render("Kind"),
				cli.TableHeaderStyle.Render("Status"),
				cli.TableHeaderStyle.Render("Reason"))
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				strings.Repeat("-", 12),
				strings.Repeat("-", 16),
				strings.Repeat("-", 24),
				strings.Repeat("-", 20),
				strings.Repeat("-", 13),
				strings.Repeat("-", 40))

			for _, msg := range messages {
				kind := string(msg.Kind)
				if kind == "" {
					kind = cli.SubtleStyle.Render("(unclassified)")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					msg.ID,
					msg.ReceivedAt.Format("2006-01-02 15:04"),
					msg.Sender,
					kind,
					msg.Status,
					msg.ErrorDetail)
			}

			return nil
		},
	}
}

func approveReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <message-id>",
		Short: "Force-apply a message from the review queue",
		Long: `Re-run extraction for the message and apply the result regardless of its
confidence. Only an empty extraction still refuses to apply.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, store, err := initEngine(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := eng.ApproveMessage(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to approve message: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Applied message %s", args[0])))
			return nil
		},
	}
}

func dismissReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <message-id>",
		Short: "Dismiss a message without applying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			msg, err := store.GetMessage(ctx, args[0])
			if err != nil {
				return err
			}
			if msg.Status != model.MessageManualReview {
				return fmt.Errorf("message %s is %s, not in the review queue", msg.ID, msg.Status)
			}

			if err := store.UpdateMessageStatus(ctx, msg.ID, model.MessageDismissed, ""); err != nil {
				return fmt.Errorf("failed to dismiss message: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Dismissed message %s", msg.ID)))
			return nil
		},
	}
}

func reprocessReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <message-id>",
		Short: "Send a message back through the pipeline",
		Long: `Reset a failed or review-queued message to pending, clearing its error
and retry count, so the next process run picks it up again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			msg, err := store.GetMessage(ctx, args[0])
			if err != nil {
				return err
			}
			if msg.Status != model.MessageFailed && msg.Status != model.MessageManualReview {
				return fmt.Errorf("message %s is %s, not failed or in the review queue", msg.ID, msg.Status)
			}

			if err := store.UpdateMessageStatus(ctx, msg.ID, model.MessagePending, ""); err != nil {
				return fmt.Errorf("failed to reprocess message: %w", err)
			}
			if err := store.ResetMessageRetry(ctx, msg.ID); err != nil {
				return fmt.Errorf("failed to reset retry count: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Message %s queued for reprocessing", msg.ID)))
			return nil
		},
	}
}
