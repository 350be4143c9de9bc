package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/ordertrail/internal/common"
	"github.com/Veraticus/ordertrail/internal/model"
)

// scriptedClient returns canned completions in order.
type scriptedClient struct {
	responses []string
	errs      []error
	calls     int
}

func (c *scriptedClient) Complete(_ context.Context, _, _ string) (string, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return "", nil
}

func TestRouter_Classify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name           string
		response       string
		wantKind       model.MessageKind
		wantConfidence float64
	}{
		{
			name:           "plain JSON verdict",
			response:       `{"kind": "ORDER_CONFIRMATION", "confidence": 0.93}`,
			wantKind:       model.KindOrderConfirmation,
			wantConfidence: 0.93,
		},
		{
			name:           "markdown-fenced verdict",
			response:       "```json\n{\"kind\": \"SHIPPING_CONFIRMATION\", \"confidence\": 0.81}\n```",
			wantKind:       model.KindShippingConfirmation,
			wantConfidence: 0.81,
		},
		{
			name:           "lowercase kind is normalized",
			response:       `{"kind": "refund_issued", "confidence": 0.9}`,
			wantKind:       model.KindRefundIssued,
			wantConfidence: 0.9,
		},
		{
			name:           "promotional is a known kind",
			response:       `{"kind": "PROMOTIONAL", "confidence": 0.99}`,
			wantKind:       model.KindPromotional,
			wantConfidence: 0.99,
		},
		{
			name:           "unknown kind reads as unclassifiable",
			response:       `{"kind": "PIZZA_MENU", "confidence": 0.9}`,
			wantKind:       "",
			wantConfidence: 0,
		},
		{
			name:           "schema violation reads as unclassifiable",
			response:       "I think this is an order confirmation!",
			wantKind:       "",
			wantConfidence: 0,
		},
		{
			name:           "confidence above one is clamped",
			response:       `{"kind": "ORDER_CONFIRMATION", "confidence": 42}`,
			wantKind:       model.KindOrderConfirmation,
			wantConfidence: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(&scriptedClient{responses: []string{tt.response}}, nil)
			kind, confidence, err := router.Classify(ctx, Input{Subject: "test"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, kind)
			assert.InDelta(t, tt.wantConfidence, confidence, 0.001)
		})
	}
}

func TestRouter_Extract(t *testing.T) {
	ctx := context.Background()

	t.Run("confident extraction passes the gate", func(t *testing.T) {
		client := &scriptedClient{responses: []string{
			`{"order_reference": "ABC-123", "total": 42.50, "confidence": 0.88,
			  "items": [{"name": "Ceramic Mug", "quantity": 2, "unit_price": 12.50}]}`,
		}}
		router := NewRouter(client, nil)

		result, err := router.Extract(ctx, model.KindOrderConfirmation, Input{})
		require.NoError(t, err)
		assert.False(t, result.NeedsReview)
		require.NotNil(t, result.Extraction)
		assert.Equal(t, "ABC-123", result.Extraction.OrderReference)
		assert.Equal(t, model.KindOrderConfirmation, result.Extraction.Kind)
		assert.Len(t, result.Extraction.Items, 1)
	})

	t.Run("low confidence is flagged for review", func(t *testing.T) {
		client := &scriptedClient{responses: []string{
			`{"order_reference": "ABC-123", "confidence": 0.65}`,
		}}
		router := NewRouter(client, nil)

		result, err := router.Extract(ctx, model.KindOrderConfirmation, Input{})
		require.NoError(t, err)
		assert.True(t, result.NeedsReview)
		assert.NotNil(t, result.Extraction)
	})

	t.Run("schema violation is flagged for review", func(t *testing.T) {
		client := &scriptedClient{responses: []string{"not json at all"}}
		router := NewRouter(client, nil)

		result, err := router.Extract(ctx, model.KindOrderConfirmation, Input{})
		require.NoError(t, err)
		assert.True(t, result.NeedsReview)
		assert.Nil(t, result.Extraction)
	})

	t.Run("empty extraction is flagged for review", func(t *testing.T) {
		client := &scriptedClient{responses: []string{`{"confidence": 0.95}`}}
		router := NewRouter(client, nil)

		result, err := router.Extract(ctx, model.KindOrderConfirmation, Input{})
		require.NoError(t, err)
		assert.True(t, result.NeedsReview)
	})

	t.Run("unknown kind is an error", func(t *testing.T) {
		router := NewRouter(&scriptedClient{}, nil)

		_, err := router.Extract(ctx, model.MessageKind("PIZZA_MENU"), Input{})
		assert.ErrorIs(t, err, common.ErrUnknownKind)
	})

	t.Run("promotional has no parser", func(t *testing.T) {
		router := NewRouter(&scriptedClient{}, nil)

		_, err := router.Extract(ctx, model.KindPromotional, Input{})
		assert.ErrorIs(t, err, common.ErrUnknownKind)
	})

	t.Run("throttling is retried", func(t *testing.T) {
		client := &scriptedClient{
			errs: []error{common.ErrThrottled, nil},
			responses: []string{
				"",
				`{"order_reference": "RETRY-1", "confidence": 0.9}`,
			},
		}
		router := NewRouter(client, nil)
		router.retryOpts.InitialDelay = time.Millisecond
		router.retryOpts.MaxDelay = time.Millisecond

		result, err := router.Extract(ctx, model.KindOrderConfirmation, Input{})
		require.NoError(t, err)
		assert.Equal(t, "RETRY-1", result.Extraction.OrderReference)
		assert.Equal(t, 2, client.calls)
	})
}

func TestCleanMarkdownWrapper(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare json untouched", in: `{"a":1}`, want: `{"a":1}`},
		{name: "json fence stripped", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "anonymous fence stripped", in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "surrounding whitespace trimmed", in: "  {\"a\":1}\n", want: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanMarkdownWrapper(tt.in))
		})
	}
}

func TestBuildUserPrompt_IncludesMerchantHint(t *testing.T) {
	prompt := buildUserPrompt(Input{
		Subject:      "Your order shipped",
		Body:         "Tracking inside",
		Sender:       "ship@acme.example",
		MerchantHint: "Acme",
	})
	assert.Contains(t, prompt, "Your order shipped")
	assert.Contains(t, prompt, "ship@acme.example")
	assert.Contains(t, prompt, "Acme")
}
