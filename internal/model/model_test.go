package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeReference(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "#112-9387462-1029384", want: "112-9387462-1029384"},
		{in: "  #ABC-123  ", want: "ABC-123"},
		{in: "ABC-123", want: "ABC-123"},
		{in: "##42", want: "42"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeReference(tt.in), "input %q", tt.in)
	}
}

func TestFlexTime_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{name: "RFC3339", in: `"2026-08-30T12:00:00Z"`, want: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)},
		{name: "date only", in: `"2026-08-30"`, want: time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)},
		{name: "long month", in: `"August 30, 2026"`, want: time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)},
		{name: "short month", in: `"Aug 30, 2026"`, want: time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)},
		{name: "empty string", in: `""`, want: time.Time{}},
		{name: "null", in: `null`, want: time.Time{}},
		{name: "garbage is tolerated", in: `"next Tuesday"`, want: time.Time{}},
		{name: "wrong type is tolerated", in: `12345`, want: time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ft FlexTime
			require.NoError(t, json.Unmarshal([]byte(tt.in), &ft))
			assert.True(t, ft.Equal(tt.want), "got %v, want %v", ft.Time, tt.want)
		})
	}
}

func TestExtraction_Empty(t *testing.T) {
	assert.True(t, (*Extraction)(nil).Empty())
	assert.True(t, (&Extraction{Merchant: "Acme", Confidence: 0.9}).Empty())
	assert.False(t, (&Extraction{OrderReference: "ABC-123"}).Empty())
	assert.False(t, (&Extraction{TrackingNumber: "1Z999"}).Empty())
	assert.False(t, (&Extraction{RMA: "RMA-1"}).Empty())
	assert.False(t, (&Extraction{Items: []ExtractedItem{{Name: "Mug"}}}).Empty())
	assert.False(t, (&Extraction{RefundAmount: 5}).Empty())
}

func TestReturn_Open(t *testing.T) {
	for _, status := range []ReturnStatus{ReturnInitiated, ReturnLabelIssued, ReturnShipped} {
		assert.True(t, (&Return{Status: status}).Open(), "status %s", status)
	}
	assert.False(t, (&Return{Status: ReturnReceived}).Open())
}

func TestDelivery_Problem(t *testing.T) {
	assert.False(t, (&Delivery{Status: DeliveryDelivered}).Problem())
	assert.False(t, (&Delivery{Status: DeliveryAttempted}).Problem())
	assert.True(t, (&Delivery{Status: DeliveryHadIssue}).Problem())
	assert.True(t, (&Delivery{Status: DeliveryLost}).Problem())
}

func TestMessage_Terminal(t *testing.T) {
	terminal := []MessageStatus{MessageParsed, MessageFailed, MessageManualReview, MessageDismissed}
	for _, status := range terminal {
		assert.True(t, (&Message{Status: status}).Terminal(), "status %s", status)
	}
	for _, status := range []MessageStatus{MessagePending, MessageClassifying, MessageClassified, MessageParsing} {
		assert.False(t, (&Message{Status: status}).Terminal(), "status %s", status)
	}
}
