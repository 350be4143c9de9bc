package model

import (
	"encoding/json"
	"time"
)

// FlexTime tolerates the date formats extraction output actually uses.
// Unparseable or missing dates decode as the zero time rather than failing
// the whole document.
type FlexTime struct {
	time.Time
}

var flexTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"January 2, 2006",
	"Jan 2, 2006",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *FlexTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range flexTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	t.Time = time.Time{}
	return nil
}

// ExtractedItem is one product row as reported by the completion service.
type ExtractedItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Extraction is the structured draft a type-specific parser produced from one
// message. It is untrusted input: nothing here is applied until it clears the
// confidence gate. Which fields are populated depends on the message kind.
type Extraction struct {
	OrderDate      FlexTime        `json:"order_date"`
	EventDate      FlexTime        `json:"event_date"`
	Kind           MessageKind     `json:"-"`
	OrderReference string          `json:"order_reference"`
	Merchant       string          `json:"merchant"`
	TrackingNumber string          `json:"tracking_number"`
	Carrier        string          `json:"carrier"`
	RMA            string          `json:"rma"`
	DeliveryIssue  string          `json:"delivery_issue"`
	Notes          string          `json:"notes"`
	Items          []ExtractedItem `json:"items"`
	Subtotal       float64         `json:"subtotal"`
	ShippingCost   float64         `json:"shipping"`
	Tax            float64         `json:"tax"`
	Discount       float64         `json:"discount"`
	Total          float64         `json:"total"`
	RefundAmount   float64         `json:"refund_amount"`
	Confidence     float64         `json:"confidence"`
	Lost           bool            `json:"lost"`
}

// Empty reports whether the extraction carries no actionable root object.
// An empty extraction always needs review.
func (e *Extraction) Empty() bool {
	if e == nil {
		return true
	}
	return e.OrderReference == "" &&
		e.TrackingNumber == "" &&
		e.RMA == "" &&
		len(e.Items) == 0 &&
		e.RefundAmount == 0 &&
		e.Total == 0
}
