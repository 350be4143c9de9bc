package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Veraticus/ordertrail/internal/common"
	"github.com/Veraticus/ordertrail/internal/service"
)

// bodyURLPrefix marks body URLs that point back into the mailbox.
const bodyURLPrefix = "gmail://"

// Provider lists inbox messages and fetches their bodies through the Gmail
// API. It implements both service.MailProvider and service.BodyStore.
type Provider struct {
	svc       *gmailapi.Service
	logger    *slog.Logger
	query     string
	retryOpts service.RetryOptions
}

// Config configures the provider.
type Config struct {
	OAuth OAuth2Config
	// Query narrows which messages are listed, in Gmail search syntax.
	// The poll window is always appended to it.
	Query  string
	Logger *slog.Logger
}

// NewProvider authenticates against the Gmail API and returns a provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.OAuth.ClientID == "" || cfg.OAuth.ClientSecret == "" {
		return nil, fmt.Errorf("%w: gmail client credentials", common.ErrMissingConfig)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	token, err := GetOrCreateToken(ctx, cfg.OAuth)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate with gmail: %w", err)
	}

	client := oauth2.NewClient(ctx, oauthConfig(cfg.OAuth).TokenSource(ctx, token))
	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &Provider{
		svc:       svc,
		logger:    cfg.Logger,
		query:     cfg.Query,
		retryOpts: common.MailRetryOptions(),
	}, nil
}

// ListMessagesSince returns message metadata for everything received after
// the given timestamp. Bodies are not fetched here; each message carries a
// body URL the Get method understands.
func (p *Provider) ListMessagesSince(ctx context.Context, since time.Time) ([]service.IncomingMessage, error) {
	query := p.query
	if !since.IsZero() {
		query = strings.TrimSpace(fmt.Sprintf("%s after:%d", query, since.Unix()))
	}

	var ids []string
	list := func() error {
		ids = ids[:0]
		req := gmailapi.NewUsersMessagesService(p.svc).List("me").Context(ctx)
		if query != "" {
			req = req.Q(query)
		}
		err := req.Pages(ctx, func(page *gmailapi.ListMessagesResponse) error {
			for _, msg := range page.Messages {
				ids = append(ids, msg.Id)
			}
			return nil
		})
		return apiError(err)
	}
	if err := common.WithRetry(ctx, list, p.retryOpts); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	p.logger.Debug("Listed mailbox messages", "count", len(ids), "query", query)

	messages := make([]service.IncomingMessage, 0, len(ids))
	for _, id := range ids {
		msg, err := p.getMessage(ctx, id, "metadata")
		if err != nil {
			return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
		}
		messages = append(messages, toIncoming(msg))
	}
	return messages, nil
}

// Get fetches the full plain-text body for a gmail:// body URL.
func (p *Provider) Get(ctx context.Context, url string) (string, error) {
	id := strings.TrimPrefix(url, bodyURLPrefix)
	if id == url || id == "" {
		return "", fmt.Errorf("%w: unrecognized body url %q", common.ErrBodyNotFound, url)
	}

	msg, err := p.getMessage(ctx, id, "full")
	if err != nil {
		return "", err
	}

	body := extractBody(msg.Payload)
	if body == "" {
		return "", fmt.Errorf("message %s: %w", id, common.ErrBodyNotFound)
	}
	return body, nil
}

func (p *Provider) getMessage(ctx context.Context, id, format string) (*gmailapi.Message, error) {
	var msg *gmailapi.Message
	get := func() error {
		var err error
		msg, err = gmailapi.NewUsersMessagesService(p.svc).
			Get("me", id).Context(ctx).Format(format).Do()
		return apiError(err)
	}
	if err := common.WithRetry(ctx, get, p.retryOpts); err != nil {
		return nil, err
	}
	return msg, nil
}

func toIncoming(msg *gmailapi.Message) service.IncomingMessage {
	in := service.IncomingMessage{
		ID:         msg.Id,
		BodyURL:    bodyURLPrefix + msg.Id,
		Snippet:    msg.Snippet,
		ReceivedAt: time.UnixMilli(msg.InternalDate),
	}
	if msg.Payload == nil {
		return in
	}
	for _, header := range msg.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "from":
			in.Sender = header.Value
		case "subject":
			in.Subject = header.Value
		case "reply-to":
			in.OriginalSender = header.Value
		}
	}
	return in
}

// extractBody walks the MIME tree for the first text/plain part, falling
// back to text/html if no plain part exists.
func extractBody(part *gmailapi.MessagePart) string {
	if part == nil {
		return ""
	}
	if body := findPart(part, "text/plain"); body != "" {
		return body
	}
	return findPart(part, "text/html")
}

func findPart(part *gmailapi.MessagePart, mimeType string) string {
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		decoded, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return ""
		}
		return string(decoded)
	}
	for _, child := range part.Parts {
		if body := findPart(child, mimeType); body != "" {
			return body
		}
	}
	return ""
}

// apiError maps Gmail API failures onto the shared error taxonomy so the
// retry layer can tell throttling from terminal errors.
func apiError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: gmail returned 429: %v", common.ErrThrottled, gerr.Message)
		case gerr.Code >= 500:
			return fmt.Errorf("%w: gmail returned %d: %v", common.ErrServerError, gerr.Code, gerr.Message)
		}
		return err
	}
	// Transport failures are retryable server-side conditions.
	return fmt.Errorf("%w: gmail request failed: %v", common.ErrServerError, err)
}
