package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"traceline/internal/domain"
)

// RenameCounts reports how many dependent rows a rename rewrote.
type RenameCounts struct {
	Linkages int64 `json:"linkages"`
	Comments int64 `json:"comments"`
	Events   int64 `json:"events"`
	Joins    int64 `json:"joins"`
}

// RenameArtifact moves the artifact row and every reference to it from oldID
// to newID. It must run inside tx; the caller owns commit and rollback.
func (r Repo) RenameArtifact(ctx context.Context, tx *sql.Tx, k domain.Kind, oldID, newID, updatedAt string) (RenameCounts, error) {
	var counts RenameCounts
	c := r.on(tx)

	rest := []string{"project_id", "area", "status"}
	for _, col := range k.Columns {
		rest = append(rest, quote(col.Name))
	}
	rest = append(rest, "created_at")
	cols := strings.Join(rest, ",")
	clone := fmt.Sprintf(`INSERT INTO %s(%s,%s,updated_at) SELECT ?,%s,? FROM %s WHERE %s=?`,
		k.Table, k.Key, cols, cols, k.Table, k.Key)
	if err := affectOne(c.exec(ctx, clone, newID, updatedAt, oldID)); err != nil {
		return counts, err
	}

	n, err := rowsAffected(c.exec(ctx, `UPDATE linkages SET source_id=? WHERE source_id=? AND source_type=?`, newID, oldID, k.Type))
	if err != nil {
		return counts, fmt.Errorf("retarget linkage sources: %w", err)
	}
	counts.Linkages += n
	n, err = rowsAffected(c.exec(ctx, `UPDATE linkages SET target_id=? WHERE target_id=? AND target_type=?`, newID, oldID, k.Type))
	if err != nil {
		return counts, fmt.Errorf("retarget linkage targets: %w", err)
	}
	counts.Linkages += n

	if counts.Comments, err = rowsAffected(c.exec(ctx, `UPDATE comments SET artifact_aid=? WHERE artifact_aid=?`, newID, oldID)); err != nil {
		return counts, fmt.Errorf("retarget comments: %w", err)
	}
	if counts.Events, err = rowsAffected(c.exec(ctx, `UPDATE events SET entity_id=? WHERE entity_id=? AND entity_kind=?`, newID, oldID, k.Type)); err != nil {
		return counts, fmt.Errorf("retarget events: %w", err)
	}

	for _, j := range k.Joins {
		n, err := rowsAffected(c.exec(ctx, fmt.Sprintf(`UPDATE %s SET %s=? WHERE %s=?`, j.Table, j.OwnerCol, j.OwnerCol), newID, oldID))
		if err != nil {
			return counts, fmt.Errorf("retarget %s: %w", j.Table, err)
		}
		counts.Joins += n
	}

	if err := affectOne(c.exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s=?`, k.Table, k.Key), oldID)); err != nil {
		return counts, fmt.Errorf("remove %s: %w", oldID, err)
	}
	return counts, nil
}

func rowsAffected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
