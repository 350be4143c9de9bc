package extract

import (
	"fmt"
	"strings"

	"github.com/Veraticus/ordertrail/internal/model"
)

const classifySystemPrompt = `You are an email classifier for purchase-related mail.
Classify the email into exactly one of these kinds:

ORDER_CONFIRMATION: a merchant confirms a new order with items and totals
SHIPPING_CONFIRMATION: items from an order have shipped, usually with tracking
OUT_FOR_DELIVERY: a carrier says a shipment is out for delivery today
DELIVERY_CONFIRMATION: a shipment was delivered
DELIVERY_EXCEPTION: a delivery failed, was damaged, lost, or delayed
LINE_CANCELLATION: some items of an order were cancelled
ORDER_CANCELLATION: an entire order was cancelled
RETURN_INITIATED: the customer started a return
RETURN_LABEL: a return shipping label was issued
RETURN_SHIPPED: a return package was handed to the carrier
RETURN_RECEIVED: the merchant received the returned items
REFUND_ISSUED: money was refunded
PAYMENT_RECEIPT: a payment or invoice receipt for an order
PROMOTIONAL: marketing, recommendations, anything not about a concrete order

Respond only with JSON: {"kind": "<KIND>", "confidence": <0.0-1.0>}`

const extractionFooter = `
Omit fields you cannot find. Use ISO 8601 for dates. Respond only with JSON,
no prose, and include "confidence" (0.0-1.0) reflecting how certain you are
that every extracted field is correct.`

// extractionPrompts maps each actionable message kind to the system prompt of
// its type-specific parser. The table is closed; the router resolves it once
// at startup.
var extractionPrompts = map[model.MessageKind]string{
	model.KindOrderConfirmation: `You extract order confirmations. Return JSON:
{"order_reference": string, "order_date": string, "merchant": string,
 "items": [{"name": string, "quantity": int, "unit_price": number}],
 "subtotal": number, "shipping": number, "tax": number, "discount": number,
 "total": number, "confidence": number}` + extractionFooter,

	model.KindShippingConfirmation: `You extract shipping confirmations. Return JSON:
{"order_reference": string, "tracking_number": string, "carrier": string,
 "event_date": string, "items": [{"name": string, "quantity": int}],
 "confidence": number}` + extractionFooter,

	model.KindOutForDelivery: `You extract out-for-delivery notices. Return JSON:
{"order_reference": string, "tracking_number": string, "carrier": string,
 "event_date": string, "confidence": number}` + extractionFooter,

	model.KindDeliveryConfirmation: `You extract delivery confirmations. Return JSON:
{"order_reference": string, "tracking_number": string, "event_date": string,
 "confidence": number}` + extractionFooter,

	model.KindDeliveryException: `You extract delivery problem notices. Return JSON:
{"order_reference": string, "tracking_number": string, "event_date": string,
 "delivery_issue": string, "lost": bool, "confidence": number}` + extractionFooter,

	model.KindLineCancellation: `You extract partial cancellation notices. Return JSON:
{"order_reference": string, "event_date": string,
 "items": [{"name": string, "quantity": int}], "confidence": number}` + extractionFooter,

	model.KindOrderCancellation: `You extract full order cancellations. Return JSON:
{"order_reference": string, "event_date": string, "confidence": number}` + extractionFooter,

	model.KindReturnInitiated: `You extract return initiations. Return JSON:
{"order_reference": string, "rma": string, "event_date": string,
 "items": [{"name": string, "quantity": int}], "confidence": number}` + extractionFooter,

	model.KindReturnLabel: `You extract return label notices. Return JSON:
{"order_reference": string, "rma": string, "tracking_number": string,
 "event_date": string, "confidence": number}` + extractionFooter,

	model.KindReturnShipped: `You extract return shipped notices. Return JSON:
{"order_reference": string, "rma": string, "tracking_number": string,
 "event_date": string, "confidence": number}` + extractionFooter,

	model.KindReturnReceived: `You extract return received notices. Return JSON:
{"order_reference": string, "rma": string, "event_date": string,
 "confidence": number}` + extractionFooter,

	model.KindRefundIssued: `You extract refund notices. Return JSON:
{"order_reference": string, "rma": string, "refund_amount": number,
 "event_date": string, "confidence": number}` + extractionFooter,

	model.KindPaymentReceipt: `You extract payment receipts. Return JSON:
{"order_reference": string, "order_date": string, "merchant": string,
 "total": number, "confidence": number}` + extractionFooter,
}

// buildUserPrompt assembles the user prompt from message parts. The merchant
// hint, when known, helps the model disambiguate templated emails.
func buildUserPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", in.Sender)
	fmt.Fprintf(&b, "Subject: %s\n", in.Subject)
	if in.MerchantHint != "" {
		fmt.Fprintf(&b, "Known merchant: %s\n", in.MerchantHint)
	}
	fmt.Fprintf(&b, "\n%s", in.Body)
	return b.String()
}
