package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/ordertrail/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrInvalidLine  = errors.New("invalid order line")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateOrderLine checks the invariants storage enforces before insert.
func validateOrderLine(line *model.OrderLine) error {
	if line == nil {
		return fmt.Errorf("%w: line", ErrNilParameter)
	}
	if line.OrderID == 0 {
		return fmt.Errorf("%w: missing order id", ErrInvalidLine)
	}
	if line.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidLine)
	}
	if strings.TrimSpace(line.ProductName) == "" {
		return fmt.Errorf("%w: missing product name", ErrInvalidLine)
	}
	return nil
}
