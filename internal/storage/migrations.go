package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS messages (
					id TEXT PRIMARY KEY,
					sender TEXT NOT NULL,
					original_sender TEXT,
					subject TEXT,
					received_at DATETIME NOT NULL,
					body_url TEXT,
					snippet TEXT,
					kind TEXT,
					confidence REAL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'PENDING',
					error_detail TEXT,
					retry_count INTEGER DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_messages_status ON messages(status)`,
				`CREATE INDEX idx_messages_received ON messages(received_at)`,

				`CREATE TABLE IF NOT EXISTS orders (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					reference TEXT NOT NULL,
					normalized_reference TEXT NOT NULL,
					retailer_name TEXT,
					order_date DATETIME,
					status TEXT NOT NULL,
					inferred INTEGER NOT NULL DEFAULT 0,
					subtotal REAL DEFAULT 0,
					shipping REAL DEFAULT 0,
					tax REAL DEFAULT 0,
					discount REAL DEFAULT 0,
					total REAL DEFAULT 0,
					created_by_message_id TEXT,
					updated_by_message_id TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_orders_reference ON orders(reference)`,
				`CREATE INDEX idx_orders_normalized ON orders(normalized_reference)`,

				`CREATE TABLE IF NOT EXISTS order_lines (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					order_id INTEGER NOT NULL,
					line_number INTEGER NOT NULL,
					product_name TEXT NOT NULL,
					quantity INTEGER NOT NULL CHECK (quantity > 0),
					unit_price REAL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'ORDERED',
					UNIQUE(order_id, line_number),
					FOREIGN KEY (order_id) REFERENCES orders(id)
				)`,

				`CREATE TABLE IF NOT EXISTS shipments (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					order_id INTEGER NOT NULL,
					tracking_number TEXT,
					carrier TEXT,
					status TEXT NOT NULL,
					shipped_at DATETIME,
					raw_items TEXT,
					created_by_message_id TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (order_id) REFERENCES orders(id)
				)`,
				`CREATE INDEX idx_shipments_tracking ON shipments(tracking_number)`,

				`CREATE TABLE IF NOT EXISTS shipment_lines (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					shipment_id INTEGER NOT NULL,
					order_line_id INTEGER NOT NULL,
					quantity INTEGER NOT NULL,
					UNIQUE(shipment_id, order_line_id),
					FOREIGN KEY (shipment_id) REFERENCES shipments(id),
					FOREIGN KEY (order_line_id) REFERENCES order_lines(id)
				)`,

				`CREATE TABLE IF NOT EXISTS deliveries (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					shipment_id INTEGER NOT NULL UNIQUE,
					status TEXT NOT NULL,
					issue TEXT,
					delivered_at DATETIME,
					created_by_message_id TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (shipment_id) REFERENCES shipments(id)
				)`,

				`CREATE TABLE IF NOT EXISTS returns (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					order_id INTEGER NOT NULL,
					rma TEXT,
					status TEXT NOT NULL,
					raw_items TEXT,
					initiated_at DATETIME,
					created_by_message_id TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (order_id) REFERENCES orders(id)
				)`,
				`CREATE INDEX idx_returns_rma ON returns(rma)`,

				`CREATE TABLE IF NOT EXISTS return_lines (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					return_id INTEGER NOT NULL,
					order_line_id INTEGER NOT NULL,
					quantity INTEGER NOT NULL,
					UNIQUE(return_id, order_line_id),
					FOREIGN KEY (return_id) REFERENCES returns(id),
					FOREIGN KEY (order_line_id) REFERENCES order_lines(id)
				)`,

				`CREATE TABLE IF NOT EXISTS refunds (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					order_id INTEGER NOT NULL,
					return_id INTEGER,
					amount REAL NOT NULL,
					issued_at DATETIME,
					created_by_message_id TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (order_id) REFERENCES orders(id)
				)`,

				`CREATE TABLE IF NOT EXISTS order_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					order_id INTEGER NOT NULL,
					message_id TEXT,
					event_type TEXT NOT NULL,
					description TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (order_id) REFERENCES orders(id)
				)`,
				`CREATE INDEX idx_order_events_order ON order_events(order_id)`,

				`CREATE TABLE IF NOT EXISTS retailers (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL UNIQUE,
					domains TEXT NOT NULL
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Poll checkpoint",
		Up: func(tx *sql.Tx) error {
			query := `CREATE TABLE IF NOT EXISTS poll_checkpoint (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				polled_at DATETIME NOT NULL
			)`
			if _, err := tx.Exec(query); err != nil {
				return fmt.Errorf("failed to execute query: %w", err)
			}
			return nil
		},
	},
}

// Migrate applies any outstanding schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
