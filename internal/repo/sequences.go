package repo

import (
	"context"
	"database/sql"
	"fmt"
)

// NextSequence advances the counter of prefix past both its stored value and
// floor, and returns the new value. The upsert is a single statement so two
// writers never receive the same number.
func (r Repo) NextSequence(ctx context.Context, tx *sql.Tx, prefix string, floor int64) (int64, error) {
	query := fmt.Sprintf(`INSERT INTO id_sequences(prefix,last_value) VALUES (?,?)
		ON CONFLICT(prefix) DO UPDATE SET last_value=%s+1
		RETURNING last_value`, r.Dialect.Greatest("id_sequences.last_value", "excluded.last_value-1"))
	var next int64
	if err := r.on(tx).queryRow(ctx, query, prefix, floor+1).Scan(&next); err != nil {
		return 0, fmt.Errorf("advance sequence %s: %w", prefix, err)
	}
	return next, nil
}

// SequenceValue returns the last issued value of prefix, 0 when unused.
func (r Repo) SequenceValue(ctx context.Context, tx *sql.Tx, prefix string) (int64, error) {
	var v int64
	err := r.on(tx).queryRow(ctx, `SELECT last_value FROM id_sequences WHERE prefix=?`, prefix).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return v, err
}
