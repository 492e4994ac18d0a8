// Package dbseq issues per-tenant sequence numbers from counter rows with a
// single upsert statement. Two callers never observe the same value.
package dbseq

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Counter describes a counter table: one row per key tuple, one integer column.
type Counter struct {
	Table      string
	KeyColumns []string
	SeqColumn  string
}

// Next increments (or initializes to 1) the row for keys and returns the new value.
// Postgres and SQLite ≥ 3.35 both accept the statement.
func Next(tx *gorm.DB, c Counter, keys ...any) (int64, error) {
	if len(keys) != len(c.KeyColumns) {
		return 0, fmt.Errorf("dbseq %s: want %d keys, got %d", c.Table, len(c.KeyColumns), len(keys))
	}
	cols := strings.Join(c.KeyColumns, ", ")
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")

	sql := fmt.Sprintf(
		`INSERT INTO %s (%s, %s) VALUES (%s, 1)
		 ON CONFLICT (%s) DO UPDATE SET %s = %s.%s + 1
		 RETURNING %s`,
		c.Table, cols, c.SeqColumn, marks,
		cols, c.SeqColumn, c.Table, c.SeqColumn,
		c.SeqColumn,
	)

	var seq int64
	if err := tx.Raw(sql, keys...).Scan(&seq).Error; err != nil {
		return 0, fmt.Errorf("dbseq %s: %w", c.Table, err)
	}
	if seq <= 0 {
		return 0, errors.New("dbseq " + c.Table + ": counter did not advance")
	}
	return seq, nil
}

// Peek reads the current value without writing; 0 when the row is absent.
func Peek(db *gorm.DB, c Counter, keys ...any) (int64, error) {
	if len(keys) != len(c.KeyColumns) {
		return 0, fmt.Errorf("dbseq %s: want %d keys, got %d", c.Table, len(c.KeyColumns), len(keys))
	}
	q := db.Table(c.Table).Select("COALESCE(MAX(" + c.SeqColumn + "), 0)")
	for i, col := range c.KeyColumns {
		q = q.Where(col+" = ?", keys[i])
	}
	var seq int64
	if err := q.Scan(&seq).Error; err != nil {
		return 0, fmt.Errorf("dbseq %s: %w", c.Table, err)
	}
	return seq, nil
}
