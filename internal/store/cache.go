// Package store persists binding predictions so repeated runs don't
// re-ask the predictor about windows it has already scored.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/tmooney/pVACtools/internal/predict"
)

// Cache is a Predictor that memoizes another Predictor in a SQL table.
type Cache struct {
	db     *sql.DB
	driver string

	// name of the wrapped predictor, part of every row's key
	name string

	next predict.Predictor
}

// Open connects to the cache at dsn. postgres:// and postgresql:// DSNs use
// pgx, anything else is a path to a SQLite database.
func Open(ctx context.Context, dsn, name string, next predict.Predictor) (*Cache, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "pgx"
	} else if dir := filepath.Dir(dsn); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1) // one writer, avoids SQLITE_BUSY under the worker pool
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s cache: %w", driver, err)
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS predictions (
		predictor TEXT NOT NULL,
		seq TEXT NOT NULL,
		allele TEXT NOT NULL,
		length INTEGER NOT NULL,
		ic50 DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (predictor, seq, allele, length)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create predictions table: %w", err)
	}

	return &Cache{db: db, driver: driver, name: name, next: next}, nil
}

// Predict returns the cached IC50 if there is one, otherwise it asks the
// wrapped predictor and saves the answer. Failures aren't cached.
func (c *Cache) Predict(ctx context.Context, seq, allele string, length int) (float64, error) {
	var ic50 float64
	err := c.db.QueryRowContext(ctx, c.rebind(
		`SELECT ic50 FROM predictions WHERE predictor = ? AND seq = ? AND allele = ? AND length = ?`),
		c.name, seq, allele, length,
	).Scan(&ic50)
	switch {
	case err == nil:
		return ic50, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("read cached prediction: %w", err)
	}

	if ic50, err = c.next.Predict(ctx, seq, allele, length); err != nil {
		return 0, err
	}

	if _, err := c.db.ExecContext(ctx, c.rebind(
		`INSERT INTO predictions (predictor, seq, allele, length, ic50) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (predictor, seq, allele, length) DO NOTHING`),
		c.name, seq, allele, length, ic50,
	); err != nil {
		return 0, fmt.Errorf("save prediction: %w", err)
	}

	return ic50, nil
}

// Supports defers to the wrapped predictor.
func (c *Cache) Supports(allele string, length int) bool {
	return predict.Supports(c.next, allele, length)
}

// Len returns the number of cached predictions.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count predictions: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// rebind swaps ? placeholders for $n ones on postgres.
func (c *Cache) rebind(query string) string {
	if c.driver != "pgx" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
