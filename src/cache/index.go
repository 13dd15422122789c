package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Every index operation is its own transaction, committed before it
// returns, so other processes see each change as soon as the call ends.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func upsertEntry(ctx context.Context, db *sql.DB, path string, size, now int64) error {
	return withTx(ctx, db, func(tx *sql.Tx) error {
		query := "INSERT OR REPLACE INTO tiles (path, used, size) VALUES (?, ?, ?)"
		if _, err := tx.ExecContext(ctx, query, path, now, size); err != nil {
			return fmt.Errorf("failed to upsert tile entry: %w", err)
		}
		return nil
	})
}

func touchEntry(ctx context.Context, db *sql.DB, path string, now int64) error {
	return withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "UPDATE tiles SET used = ? WHERE path = ?", now, path); err != nil {
			return fmt.Errorf("failed to touch tile entry: %w", err)
		}
		return nil
	})
}

func removeEntry(ctx context.Context, db *sql.DB, path string) error {
	return withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM tiles WHERE path = ?", path); err != nil {
			return fmt.Errorf("failed to remove tile entry: %w", err)
		}
		return nil
	})
}

func totalSize(ctx context.Context, db *sql.DB) (int64, error) {
	var total int64
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		var sum sql.NullInt64
		if err := tx.QueryRowContext(ctx, "SELECT SUM(size) FROM tiles").Scan(&sum); err != nil {
			return fmt.Errorf("failed to sum tile sizes: %w", err)
		}
		total = sum.Int64
		return nil
	})
	return total, err
}

func countEntries(ctx context.Context, db *sql.DB) (int64, error) {
	var count int64
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM tiles").Scan(&count); err != nil {
			return fmt.Errorf("failed to count tile entries: %w", err)
		}
		return nil
	})
	return count, err
}

// oldestEntry returns the least recently used entry. Ties on used are
// broken by whatever order SQLite walks the tiles_used index.
func oldestEntry(ctx context.Context, db *sql.DB) (Entry, bool, error) {
	var entry Entry
	found := false
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		query := "SELECT path, used, size FROM tiles ORDER BY used ASC LIMIT 1"
		err := tx.QueryRowContext(ctx, query).Scan(&entry.Path, &entry.LastUsed, &entry.Size)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to query oldest tile entry: %w", err)
		}
		found = true
		return nil
	})
	return entry, found, err
}

func lookupEntry(ctx context.Context, db *sql.DB, path string) (Entry, bool, error) {
	entry := Entry{Path: path}
	found := false
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, "SELECT used, size FROM tiles WHERE path = ?", path).
			Scan(&entry.LastUsed, &entry.Size)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to query tile entry: %w", err)
		}
		found = true
		return nil
	})
	return entry, found, err
}
