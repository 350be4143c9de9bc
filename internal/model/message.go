// Package model defines the core domain models used throughout the application.
package model

import "time"

// MessageKind identifies what a purchase email is about. The set is closed;
// parser dispatch is built from it at startup.
type MessageKind string

// Message kind constants.
const (
	KindOrderConfirmation    MessageKind = "ORDER_CONFIRMATION"
	KindShippingConfirmation MessageKind = "SHIPPING_CONFIRMATION"
	KindOutForDelivery       MessageKind = "OUT_FOR_DELIVERY"
	KindDeliveryConfirmation MessageKind = "DELIVERY_CONFIRMATION"
	KindDeliveryException    MessageKind = "DELIVERY_EXCEPTION"
	KindLineCancellation     MessageKind = "LINE_CANCELLATION"
	KindOrderCancellation    MessageKind = "ORDER_CANCELLATION"
	KindReturnInitiated      MessageKind = "RETURN_INITIATED"
	KindReturnLabel          MessageKind = "RETURN_LABEL"
	KindReturnShipped        MessageKind = "RETURN_SHIPPED"
	KindReturnReceived       MessageKind = "RETURN_RECEIVED"
	KindRefundIssued         MessageKind = "REFUND_ISSUED"
	KindPaymentReceipt       MessageKind = "PAYMENT_RECEIPT"
	KindPromotional          MessageKind = "PROMOTIONAL"
)

// AllMessageKinds lists every kind the classifier may assign.
func AllMessageKinds() []MessageKind {
	return []MessageKind{
		KindOrderConfirmation,
		KindShippingConfirmation,
		KindOutForDelivery,
		KindDeliveryConfirmation,
		KindDeliveryException,
		KindLineCancellation,
		KindOrderCancellation,
		KindReturnInitiated,
		KindReturnLabel,
		KindReturnShipped,
		KindReturnReceived,
		KindRefundIssued,
		KindPaymentReceipt,
		KindPromotional,
	}
}

// MessageStatus tracks a message through the pipeline.
type MessageStatus string

// Message status constants.
const (
	MessagePending      MessageStatus = "PENDING"
	MessageClassifying  MessageStatus = "CLASSIFYING"
	MessageClassified   MessageStatus = "CLASSIFIED"
	MessageParsing      MessageStatus = "PARSING"
	MessageParsed       MessageStatus = "PARSED"
	MessageFailed       MessageStatus = "FAILED"
	MessageManualReview MessageStatus = "MANUAL_REVIEW"
	MessageDismissed    MessageStatus = "DISMISSED"
)

// Message represents one inbound email. Created by ingestion, mutated only by
// pipeline stages, never deleted.
type Message struct {
	ReceivedAt     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ID             string
	Sender         string
	OriginalSender string // pre-forward sender for forwarded mail
	Subject        string
	BodyURL        string
	Snippet        string
	Kind           MessageKind
	Status         MessageStatus
	ErrorDetail    string
	Confidence     float64
	RetryCount     int
}

// Terminal reports whether the message has reached a state the pipeline will
// not advance on its own.
func (m *Message) Terminal() bool {
	switch m.Status {
	case MessageParsed, MessageFailed, MessageManualReview, MessageDismissed:
		return true
	default:
		return false
	}
}
