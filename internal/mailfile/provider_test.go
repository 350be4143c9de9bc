package mailfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/ordertrail/internal/common"
)

const fixture = `[
	{
		"id": "fix-1",
		"sender": "orders@acme.example",
		"subject": "Your order ABC-123",
		"received_at": "2026-03-01T10:00:00Z",
		"body": "Thanks for your order ABC-123. Total $59.98."
	},
	{
		"id": "fix-2",
		"sender": "ship@acme.example",
		"original_sender": "orders@acme.example",
		"subject": "Your order has shipped",
		"received_at": "2026-03-03T09:30:00Z",
		"snippet": "Tracking 1Z999",
		"body": "Order ABC-123 shipped via UPS, tracking 1Z999."
	}
]`

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mailbox.json")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	p, err := NewProvider(path)
	require.NoError(t, err)
	return p
}

func TestProvider_ListMessagesSince(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	t.Run("zero time lists everything", func(t *testing.T) {
		msgs, err := p.ListMessagesSince(ctx, time.Time{})
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "fix-1", msgs[0].ID)
		assert.Equal(t, "mailfile://fix-1", msgs[0].BodyURL)
		assert.Equal(t, "orders@acme.example", msgs[0].Sender)
		// No snippet in the fixture, so one is derived from the body.
		assert.Contains(t, msgs[0].Snippet, "ABC-123")
		assert.Equal(t, "Tracking 1Z999", msgs[1].Snippet)
		assert.Equal(t, "orders@acme.example", msgs[1].OriginalSender)
	})

	t.Run("checkpoint filters older messages", func(t *testing.T) {
		since := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		msgs, err := p.ListMessagesSince(ctx, since)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "fix-2", msgs[0].ID)
	})
}

func TestProvider_Get(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	body, err := p.Get(ctx, "mailfile://fix-2")
	require.NoError(t, err)
	assert.Contains(t, body, "1Z999")

	_, err = p.Get(ctx, "mailfile://missing")
	assert.ErrorIs(t, err, common.ErrBodyNotFound)

	_, err = p.Get(ctx, "gmail://fix-2")
	assert.ErrorIs(t, err, common.ErrBodyNotFound)
}

func TestNewProvider_BadFixture(t *testing.T) {
	dir := t.TempDir()

	_, err := NewProvider(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, err = NewProvider(bad)
	assert.Error(t, err)

	noID := filepath.Join(dir, "noid.json")
	require.NoError(t, os.WriteFile(noID, []byte(`[{"sender":"a@b.example","body":"x"}]`), 0o600))
	_, err = NewProvider(noID)
	assert.Error(t, err)
}
