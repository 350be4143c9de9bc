// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/ordertrail/internal/model"
)

// Storage defines the contract for our persistence layer. Tenant scoping, if
// any, is applied transparently beneath this interface.
type Storage interface {
	// Message operations
	SaveMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	GetMessagesByStatus(ctx context.Context, status model.MessageStatus) ([]model.Message, error)
	UpdateMessageStatus(ctx context.Context, id string, status model.MessageStatus, errorDetail string) error
	UpdateMessageClassification(ctx context.Context, id string, kind model.MessageKind, confidence float64) error
	IncrementMessageRetry(ctx context.Context, id string) error
	ResetMessageRetry(ctx context.Context, id string) error

	// Order operations
	CreateOrder(ctx context.Context, order *model.Order) error
	UpdateOrder(ctx context.Context, order *model.Order) error
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	GetOrderByReference(ctx context.Context, ref string) (*model.Order, error)
	GetOrderByNormalizedReference(ctx context.Context, ref string) (*model.Order, error)
	FindOrderByReferenceSubstring(ctx context.Context, ref string) (*model.Order, error)
	ListOrders(ctx context.Context) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) error

	// Order line operations
	CreateOrderLine(ctx context.Context, line *model.OrderLine) error
	GetOrderLines(ctx context.Context, orderID int64) ([]model.OrderLine, error)
	UpdateOrderLineStatus(ctx context.Context, id int64, status model.LineStatus) error

	// Shipment operations
	CreateShipment(ctx context.Context, shipment *model.Shipment) error
	UpdateShipment(ctx context.Context, shipment *model.Shipment) error
	GetShipmentsByOrder(ctx context.Context, orderID int64) ([]model.Shipment, error)
	GetShipmentByTracking(ctx context.Context, trackingNumber string) (*model.Shipment, error)
	CreateShipmentLine(ctx context.Context, line *model.ShipmentLine) error
	GetShipmentLines(ctx context.Context, shipmentID int64) ([]model.ShipmentLine, error)

	// Delivery operations
	CreateDelivery(ctx context.Context, delivery *model.Delivery) error
	UpdateDelivery(ctx context.Context, delivery *model.Delivery) error
	GetDeliveryByShipment(ctx context.Context, shipmentID int64) (*model.Delivery, error)
	GetDeliveriesByOrder(ctx context.Context, orderID int64) ([]model.Delivery, error)

	// Return operations
	CreateReturn(ctx context.Context, ret *model.Return) error
	UpdateReturn(ctx context.Context, ret *model.Return) error
	GetReturnsByOrder(ctx context.Context, orderID int64) ([]model.Return, error)
	GetReturnByRMA(ctx context.Context, rma string) (*model.Return, error)
	CreateReturnLine(ctx context.Context, line *model.ReturnLine) error
	GetReturnLines(ctx context.Context, returnID int64) ([]model.ReturnLine, error)

	// Refund operations
	CreateRefund(ctx context.Context, refund *model.Refund) error
	GetRefundsByOrder(ctx context.Context, orderID int64) ([]model.Refund, error)

	// Retailer operations
	GetRetailers(ctx context.Context) ([]model.Retailer, error)
	CreateRetailer(ctx context.Context, retailer *model.Retailer) error

	// Timeline operations
	AppendOrderEvent(ctx context.Context, event *model.OrderEvent) error
	GetOrderEvents(ctx context.Context, orderID int64) ([]model.OrderEvent, error)

	// Poll checkpoint
	GetPollCheckpoint(ctx context.Context) (time.Time, error)
	SavePollCheckpoint(ctx context.Context, at time.Time) error

	Migrate(ctx context.Context) error
	Close() error
}

// CompletionClient is the LLM completion service used for classification and
// extraction. Implementations must return ErrThrottled/ErrServerError wrapped
// failures for retryable conditions.
type CompletionClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// IncomingMessage is what the mailbox provider hands us per message.
type IncomingMessage struct {
	ReceivedAt     time.Time
	ID             string
	Sender         string
	OriginalSender string
	Subject        string
	BodyURL        string
	Snippet        string
}

// MailProvider lists inbound messages since a timestamp. Consumed by the
// process command, not by the pipeline core.
type MailProvider interface {
	ListMessagesSince(ctx context.Context, since time.Time) ([]IncomingMessage, error)
}

// BodyStore fetches full message bodies by URL. Callers fall back to the
// message snippet when the body cannot be fetched.
type BodyStore interface {
	Get(ctx context.Context, url string) (string, error)
}

// RetryOptions configures retry behavior for external service calls.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
