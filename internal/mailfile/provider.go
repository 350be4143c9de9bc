// Package mailfile serves messages from a JSON fixture file. It stands in
// for a live mailbox during local runs and replay, implementing the same
// provider and body-store contracts as the gmail package.
package mailfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Veraticus/ordertrail/internal/common"
	"github.com/Veraticus/ordertrail/internal/service"
)

// bodyURLPrefix marks body URLs that point back into the fixture file.
const bodyURLPrefix = "mailfile://"

// snippetLen bounds the derived snippet when the fixture omits one.
const snippetLen = 120

// fixtureMessage is one message as laid out in the fixture file.
type fixtureMessage struct {
	ReceivedAt     time.Time `json:"received_at"`
	ID             string    `json:"id"`
	Sender         string    `json:"sender"`
	OriginalSender string    `json:"original_sender,omitempty"`
	Subject        string    `json:"subject"`
	Snippet        string    `json:"snippet,omitempty"`
	Body           string    `json:"body"`
}

// Provider lists messages and fetches bodies from a fixture file loaded once
// at construction.
type Provider struct {
	bodies   map[string]string
	messages []fixtureMessage
}

// NewProvider reads and parses the fixture file.
func NewProvider(path string) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mailbox fixture: %w", err)
	}

	var messages []fixtureMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse mailbox fixture %s: %w", path, err)
	}

	bodies := make(map[string]string, len(messages))
	for i := range messages {
		if messages[i].ID == "" {
			return nil, fmt.Errorf("mailbox fixture %s: message %d has no id", path, i)
		}
		bodies[messages[i].ID] = messages[i].Body
	}

	return &Provider{messages: messages, bodies: bodies}, nil
}

// ListMessagesSince returns fixture messages received after the given
// timestamp, in file order.
func (p *Provider) ListMessagesSince(_ context.Context, since time.Time) ([]service.IncomingMessage, error) {
	var out []service.IncomingMessage
	for i := range p.messages {
		msg := &p.messages[i]
		if !since.IsZero() && !msg.ReceivedAt.After(since) {
			continue
		}
		out = append(out, service.IncomingMessage{
			ID:             msg.ID,
			Sender:         msg.Sender,
			OriginalSender: msg.OriginalSender,
			Subject:        msg.Subject,
			ReceivedAt:     msg.ReceivedAt,
			BodyURL:        bodyURLPrefix + msg.ID,
			Snippet:        snippetOf(msg),
		})
	}
	return out, nil
}

// Get fetches the body for a mailfile:// body URL.
func (p *Provider) Get(_ context.Context, url string) (string, error) {
	id := strings.TrimPrefix(url, bodyURLPrefix)
	if id == url || id == "" {
		return "", fmt.Errorf("%w: unrecognized body url %q", common.ErrBodyNotFound, url)
	}

	body, ok := p.bodies[id]
	if !ok || body == "" {
		return "", fmt.Errorf("message %s: %w", id, common.ErrBodyNotFound)
	}
	return body, nil
}

func snippetOf(msg *fixtureMessage) string {
	if msg.Snippet != "" {
		return msg.Snippet
	}
	snippet := strings.Join(strings.Fields(msg.Body), " ")
	if len(snippet) > snippetLen {
		snippet = snippet[:snippetLen]
	}
	return snippet
}
