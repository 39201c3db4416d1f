package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"traceline/internal/domain"
)

// StatsMatrix counts the artifacts of a project per type, area and status.
func (r Repo) StatsMatrix(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.StatsCell, error) {
	var (
		parts []string
		args  []any
	)
	for _, t := range domain.ArtifactTypes() {
		k, _ := domain.LookupKind(t)
		parts = append(parts, fmt.Sprintf(`SELECT '%s' AS artifact_type, area, status, COUNT(*) AS n FROM %s WHERE project_id=? GROUP BY area, status`, k.Type, k.Table))
		args = append(args, projectID)
	}
	query := strings.Join(parts, " UNION ALL ") + ` ORDER BY artifact_type, area, status`
	rows, err := r.on(tx).query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatsCell
	for rows.Next() {
		var c domain.StatsCell
		if err := rows.Scan(&c.ArtifactType, &c.Area, &c.Status, &c.Count); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
