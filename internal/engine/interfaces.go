package engine

import (
	"context"

	"github.com/Veraticus/ordertrail/internal/extract"
	"github.com/Veraticus/ordertrail/internal/model"
)

// Extractor defines the contract for message classification and extraction.
type Extractor interface {
	Classify(ctx context.Context, in extract.Input) (model.MessageKind, float64, error)
	Extract(ctx context.Context, kind model.MessageKind, in extract.Input) (extract.Result, error)
}

// RetailerMatcher labels senders with known merchants.
type RetailerMatcher interface {
	Match(ctx context.Context, sender, originalSender string) *model.Retailer
}
