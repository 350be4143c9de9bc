// Package testutil provides shared helpers for tests that need a real
// database.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/ordertrail/internal/model"
	"github.com/Veraticus/ordertrail/internal/service"
	"github.com/Veraticus/ordertrail/internal/storage"
)

// TestDB wraps an in-memory database for a single test.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates a migrated in-memory database and registers cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{
		Storage: store,
		t:       t,
	}
}

// SeedRetailers inserts the given retailers, failing the test on error.
func (db *TestDB) SeedRetailers(retailers ...model.Retailer) {
	db.t.Helper()

	ctx := context.Background()
	for i := range retailers {
		if err := db.Storage.CreateRetailer(ctx, &retailers[i]); err != nil {
			db.t.Fatalf("failed to seed retailer %q: %v", retailers[i].Name, err)
		}
	}
}

// MustCreateOrder inserts an order and returns it with its id filled in.
func (db *TestDB) MustCreateOrder(order model.Order) model.Order {
	db.t.Helper()

	if order.Status == "" {
		order.Status = model.OrderPlaced
	}
	if err := db.Storage.CreateOrder(context.Background(), &order); err != nil {
		db.t.Fatalf("failed to create order %q: %v", order.Reference, err)
	}
	return order
}

// MustCreateLine inserts an order line and returns it with its id filled in.
func (db *TestDB) MustCreateLine(line model.OrderLine) model.OrderLine {
	db.t.Helper()

	if line.Status == "" {
		line.Status = model.LineOrdered
	}
	if err := db.Storage.CreateOrderLine(context.Background(), &line); err != nil {
		db.t.Fatalf("failed to create order line %d: %v", line.LineNumber, err)
	}
	return line
}

// MustSaveMessage inserts a message, failing the test on error.
func (db *TestDB) MustSaveMessage(msg model.Message) model.Message {
	db.t.Helper()

	if err := db.Storage.SaveMessage(context.Background(), &msg); err != nil {
		db.t.Fatalf("failed to save message %q: %v", msg.ID, err)
	}
	return msg
}
