package storage

import "fmt"

// Dialect carries the statements that differ between relational backends.
type Dialect struct {
	Name   string
	Driver string

	Schema           []string
	UpsertStock      string
	InsertAdjustment string
	SelectStock      string
	CountAdjustments string

	// Savepoints guards each write with a savepoint. Postgres aborts the
	// whole transaction on a failed statement, which would otherwise poison
	// every later write of the batch.
	Savepoints bool
}

var PostgresDialect = Dialect{
	Name:   "postgres",
	Driver: "pgx",
	Schema: []string{`
		CREATE TABLE IF NOT EXISTS stock_analytics (
			store_id TEXT NOT NULL,
			sku TEXT NOT NULL,
			quantity INT NOT NULL,
			last_updated TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (store_id, sku)
		)`, `
		CREATE TABLE IF NOT EXISTS stock_adjustments (
			id SERIAL PRIMARY KEY,
			store_id TEXT NOT NULL,
			sku TEXT NOT NULL,
			quantity INT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	UpsertStock: `
		INSERT INTO stock_analytics (store_id, sku, quantity, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (store_id, sku) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			last_updated = GREATEST(stock_analytics.last_updated, EXCLUDED.last_updated)`,
	InsertAdjustment: `
		INSERT INTO stock_adjustments (store_id, sku, quantity, created_at)
		VALUES ($1, $2, $3, $4)`,
	SelectStock: `
		SELECT quantity, last_updated FROM stock_analytics
		WHERE store_id = $1 AND sku = $2`,
	CountAdjustments: `SELECT COUNT(*) FROM stock_adjustments`,
	Savepoints:       true,
}

var MySQLDialect = Dialect{
	Name:   "mysql",
	Driver: "mysql",
	Schema: []string{`
		CREATE TABLE IF NOT EXISTS stock_analytics (
			store_id VARCHAR(64) NOT NULL,
			sku VARCHAR(64) NOT NULL,
			quantity INT NOT NULL,
			last_updated DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			PRIMARY KEY (store_id, sku)
		)`, `
		CREATE TABLE IF NOT EXISTS stock_adjustments (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			store_id VARCHAR(64) NOT NULL,
			sku VARCHAR(64) NOT NULL,
			quantity INT NOT NULL,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
		)`,
	},
	UpsertStock: `
		INSERT INTO stock_analytics (store_id, sku, quantity, last_updated)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			quantity = VALUES(quantity),
			last_updated = GREATEST(last_updated, VALUES(last_updated))`,
	InsertAdjustment: `
		INSERT INTO stock_adjustments (store_id, sku, quantity, created_at)
		VALUES (?, ?, ?, ?)`,
	SelectStock: `
		SELECT quantity, last_updated FROM stock_analytics
		WHERE store_id = ? AND sku = ?`,
	CountAdjustments: `SELECT COUNT(*) FROM stock_adjustments`,
}

func DialectFor(name string) (Dialect, error) {
	switch name {
	case PostgresDialect.Name:
		return PostgresDialect, nil
	case MySQLDialect.Name:
		return MySQLDialect, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported relational driver %q", name)
	}
}
