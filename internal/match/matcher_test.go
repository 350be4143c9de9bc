package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/ordertrail/internal/model"
	"github.com/Veraticus/ordertrail/internal/testutil"
)

func newTestMatcher(t *testing.T) (*Matcher, *testutil.TestDB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	db.SeedRetailers(
		model.Retailer{Name: "Acme", Domains: []string{"acme.example"}},
		model.Retailer{Name: "Rivertown", Domains: []string{"rivertown.example", "rivertown-orders.example"}},
	)
	return New(db.Storage, nil), db
}

func TestMatcher_Match(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMatcher(t)

	tests := []struct {
		name           string
		sender         string
		originalSender string
		want           string
	}{
		{name: "exact domain", sender: "orders@acme.example", want: "Acme"},
		{name: "subdomain suffix", sender: "noreply@mail.acme.example", want: "Acme"},
		{name: "display name form", sender: "Acme Orders <ship@acme.example>", want: "Acme"},
		{name: "secondary domain", sender: "receipts@rivertown-orders.example", want: "Rivertown"},
		{name: "case insensitive", sender: "ORDERS@ACME.EXAMPLE", want: "Acme"},
		{name: "forwarded mail falls back to original sender", sender: "me@personal.example", originalSender: "orders@acme.example", want: "Acme"},
		{name: "unknown domain", sender: "orders@nowhere.example", want: ""},
		{name: "suffix must be on a label boundary", sender: "orders@notacme.example", want: ""},
		{name: "malformed address", sender: "not-an-address", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Match(ctx, tt.sender, tt.originalSender)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestMatcher_RefreshPicksUpNewRetailers(t *testing.T) {
	ctx := context.Background()
	m, db := newTestMatcher(t)

	// Warm the cache, then add a retailer behind its back.
	require.NotNil(t, m.Match(ctx, "orders@acme.example", ""))
	db.SeedRetailers(model.Retailer{Name: "Brightside", Domains: []string{"brightside.example"}})

	assert.Nil(t, m.Match(ctx, "orders@brightside.example", ""))

	m.Refresh()
	got := m.Match(ctx, "orders@brightside.example", "")
	require.NotNil(t, got)
	assert.Equal(t, "Brightside", got.Name)
}

func TestMatcher_ReloadLoadsImmediately(t *testing.T) {
	ctx := context.Background()
	m, db := newTestMatcher(t)

	require.NotNil(t, m.Match(ctx, "orders@acme.example", ""))
	db.SeedRetailers(model.Retailer{Name: "Brightside", Domains: []string{"brightside.example"}})

	domains, err := m.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, domains)

	got := m.Match(ctx, "orders@brightside.example", "")
	require.NotNil(t, got)
	assert.Equal(t, "Brightside", got.Name)
}

func TestMatcher_ReloadStorageFailure(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	m := New(db.Storage, nil)

	require.NoError(t, db.Storage.Close())
	_, err := m.Reload(ctx)
	assert.Error(t, err)
}

func TestMatcher_StorageFailureLeavesUnlabeled(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	m := New(db.Storage, nil)

	require.NoError(t, db.Storage.Close())
	assert.Nil(t, m.Match(ctx, "orders@acme.example", ""))
}

func TestDomainOf(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "user@example.com", want: "example.com"},
		{in: "Name <user@Example.COM>", want: "example.com"},
		{in: "  user@example.com  ", want: "example.com"},
		{in: "no-at-sign", want: ""},
		{in: "trailing@", want: ""},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, domainOf(tt.in), "input %q", tt.in)
	}
}
