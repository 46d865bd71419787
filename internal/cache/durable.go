// Package cache implements the tiered data cache: a fast Redis hot
// tier backed by a durable SQLite tier of msgpack-blob collections, one per
// domain.DataCategory, with single-flight coalescing of concurrent misses.
package cache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// categoryTables maps each data category to its durable-tier table name.
// Keys are validated against this set before every query, which blocks SQL
// injection through the category value.
var categoryTables = map[domain.DataCategory]string{
	domain.CategoryBasicInfo:    "basic_info",
	domain.CategoryPrice:        "price",
	domain.CategoryFundamentals: "fundamentals",
	domain.CategoryNews:         "news",
	domain.CategoryTechnical:    "technical",
}

// Durable is the cold, persistent tier: msgpack blobs keyed by symbol, one
// table per category, with an expiry timestamp for staleness checks.
type Durable struct {
	db *sql.DB
}

// NewDurable creates a durable-tier store over an already-migrated database.
func NewDurable(db *sql.DB) *Durable {
	return &Durable{db: db}
}

func tableFor(category domain.DataCategory) (string, error) {
	table, ok := categoryTables[category]
	if !ok {
		return "", fmt.Errorf("invalid data category: %s", category)
	}
	return table, nil
}

// Store upserts a record, serializing its payload to msgpack. expiresAt is
// absolute (category TTLs are a concern of the coalescing layer above this).
func (d *Durable) Store(category domain.DataCategory, symbol, source string, payload any, fetchedAt, expiresAt time.Time) error {
	table, err := tableFor(category)
	if err != nil {
		return err
	}

	packed, err := msgpack.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload for %s: %w", category, symbol, err)
	}

	query := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (symbol, source, data, fetched_at, expires_at) VALUES (?, ?, ?, ?, ?)",
		table,
	)
	if _, err := d.db.Exec(query, symbol, source, packed, fetchedAt.Unix(), expiresAt.Unix()); err != nil {
		return fmt.Errorf("failed to store %s for %s: %w", category, symbol, err)
	}
	return nil
}

// row is the shape shared by GetIfFresh and Get.
type row struct {
	Source    string
	Data      []byte
	FetchedAt time.Time
	ExpiresAt time.Time
}

// GetIfFresh returns the cached row only if expires_at is in the future.
// Returns (nil, nil) on a miss or on expiry.
func (d *Durable) GetIfFresh(category domain.DataCategory, symbol string) (*row, error) {
	table, err := tableFor(category)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT source, data, fetched_at, expires_at FROM %s WHERE symbol = ? AND expires_at > ?", table)
	return d.scanRow(query, symbol, time.Now().Unix())
}

// Get returns the cached row regardless of expiry, for stale-data fallback
// when every live data source is unavailable.
func (d *Durable) Get(category domain.DataCategory, symbol string) (*row, error) {
	table, err := tableFor(category)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT source, data, fetched_at, expires_at FROM %s WHERE symbol = ?", table)
	return d.scanRow(query, symbol)
}

func (d *Durable) scanRow(query string, args ...any) (*row, error) {
	var (
		source              string
		data                []byte
		fetchedAt, expireAt int64
	)
	err := d.db.QueryRow(query, args...).Scan(&source, &data, &fetchedAt, &expireAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query durable cache: %w", err)
	}
	return &row{
		Source:    source,
		Data:      data,
		FetchedAt: time.Unix(fetchedAt, 0).UTC(),
		ExpiresAt: time.Unix(expireAt, 0).UTC(),
	}, nil
}

// Delete removes a single entry. Idempotent: deleting an absent key is not
// an error.
func (d *Durable) Delete(category domain.DataCategory, symbol string) error {
	table, err := tableFor(category)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE symbol = ?", table)
	if _, err := d.db.Exec(query, symbol); err != nil {
		return fmt.Errorf("failed to delete %s for %s: %w", category, symbol, err)
	}
	return nil
}

// DeleteExpired removes every expired row in one category and returns the
// count removed.
func (d *Durable) DeleteExpired(category domain.DataCategory) (int64, error) {
	table, err := tableFor(category)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", table)
	result, err := d.db.Exec(query, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired %s rows: %w", category, err)
	}
	return result.RowsAffected()
}

// DeleteAllExpired sweeps every category table, returning a per-category
// deletion count. Used by the cleanup job.
func (d *Durable) DeleteAllExpired() (map[domain.DataCategory]int64, error) {
	results := make(map[domain.DataCategory]int64, len(categoryTables))
	for category := range categoryTables {
		deleted, err := d.DeleteExpired(category)
		if err != nil {
			return results, err
		}
		results[category] = deleted
	}
	return results, nil
}

// exportRow is the shape snapshot serializes one table's rows into.
type exportRow struct {
	Symbol    string `msgpack:"symbol"`
	Source    string `msgpack:"source"`
	Data      []byte `msgpack:"data"`
	FetchedAt int64  `msgpack:"fetched_at"`
	ExpiresAt int64  `msgpack:"expires_at"`
}

// snapshot reads every non-expired row of a category's table and returns
// the row count plus a single msgpack-encoded blob of all of them, for
// cold-storage export.
func (d *Durable) snapshot(category domain.DataCategory) (int, []byte, error) {
	table, err := tableFor(category)
	if err != nil {
		return 0, nil, err
	}

	query := fmt.Sprintf("SELECT symbol, source, data, fetched_at, expires_at FROM %s WHERE expires_at > ?", table)
	rows, err := d.db.Query(query, time.Now().Unix())
	if err != nil {
		return 0, nil, fmt.Errorf("failed to snapshot %s: %w", category, err)
	}
	defer rows.Close()

	var exported []exportRow
	for rows.Next() {
		var r exportRow
		if err := rows.Scan(&r.Symbol, &r.Source, &r.Data, &r.FetchedAt, &r.ExpiresAt); err != nil {
			return 0, nil, fmt.Errorf("failed to scan %s snapshot row: %w", category, err)
		}
		exported = append(exported, r)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("failed to iterate %s snapshot rows: %w", category, err)
	}

	packed, err := msgpack.Marshal(exported)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal %s snapshot: %w", category, err)
	}
	return len(exported), packed, nil
}
