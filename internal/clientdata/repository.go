// Package clientdata provides persistent caching for market data client responses.
// Entries are stored as msgpack blobs with expiration timestamps for cache-first behavior.
package clientdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// SeriesKey identifies one cached price series request.
type SeriesKey struct {
	Symbol string
	Start  string // YYYY-MM-DD
	End    string // YYYY-MM-DD
}

// String implements fmt.Stringer.
func (k SeriesKey) String() string {
	return k.Symbol + ":" + k.Start + ":" + k.End
}

// Entry is a cached row.
type Entry struct {
	Key       SeriesKey
	Count     int
	FetchedAt time.Time
	ExpiresAt time.Time
}

// Repository provides cache operations over the price_series table.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new client data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Store encodes data with msgpack and saves it with expiration = now + ttl.
// count is the number of records in data, kept for status reporting.
func (r *Repository) Store(key SeriesKey, data interface{}, count int, ttl time.Duration) error {
	blob, err := msgpack.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	now := r.now()
	_, err = r.db.Exec(`
		INSERT OR REPLACE INTO price_series (symbol, start_date, end_date, bars, bar_count, fetched_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.Symbol, key.Start, key.End, blob, count, now.Unix(), now.Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// GetIfFresh decodes the entry into out only if expires_at > now.
// Returns false, nil if the key doesn't exist or data is expired.
// Use Get() to retrieve stale data as a fallback when API calls fail.
func (r *Repository) GetIfFresh(key SeriesKey, out interface{}) (bool, error) {
	var blob []byte
	err := r.db.QueryRow(`
		SELECT bars FROM price_series
		WHERE symbol = ? AND start_date = ? AND end_date = ? AND expires_at > ?`,
		key.Symbol, key.Start, key.End, r.now().Unix(),
	).Scan(&blob)
	return r.decode(key, blob, err, out)
}

// Get decodes the entry into out regardless of expiration status.
// Use this as a fallback when API calls fail - stale data is better than no data.
// Returns false, nil if the key doesn't exist.
func (r *Repository) Get(key SeriesKey, out interface{}) (bool, error) {
	var blob []byte
	err := r.db.QueryRow(`
		SELECT bars FROM price_series
		WHERE symbol = ? AND start_date = ? AND end_date = ?`,
		key.Symbol, key.Start, key.End,
	).Scan(&blob)
	return r.decode(key, blob, err, out)
}

func (r *Repository) decode(key SeriesKey, blob []byte, err error, out interface{}) (bool, error) {
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := msgpack.Unmarshal(blob, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Delete removes a specific entry.
func (r *Repository) Delete(key SeriesKey) error {
	_, err := r.db.Exec(`DELETE FROM price_series WHERE symbol = ? AND start_date = ? AND end_date = ?`,
		key.Symbol, key.Start, key.End)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// DeleteExpired removes all rows where expires_at < now.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM price_series WHERE expires_at < ?`, r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired price series: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// Entries lists cached rows, most recently fetched first.
func (r *Repository) Entries() ([]Entry, error) {
	rows, err := r.db.Query(`
		SELECT symbol, start_date, end_date, bar_count, fetched_at, expires_at
		FROM price_series ORDER BY fetched_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list price series: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                  Entry
			fetched, expiresAt int64
		)
		if err := rows.Scan(&e.Key.Symbol, &e.Key.Start, &e.Key.End, &e.Count, &fetched, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan price series: %w", err)
		}
		e.FetchedAt = time.Unix(fetched, 0)
		e.ExpiresAt = time.Unix(expiresAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of cached rows.
func (r *Repository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM price_series`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count price series: %w", err)
	}
	return n, nil
}
