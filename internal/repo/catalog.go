package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"traceline/internal/domain"
)

func catalogTable(kind string) (string, error) {
	table, ok := domain.CatalogTable(kind)
	if !ok {
		return "", domain.Validation("kind", fmt.Sprintf("unknown catalog kind %q", kind))
	}
	return table, nil
}

// catalogSelect lists the columns scanned by scanCatalogItem. Kinds without
// a type or content column read them as empty strings.
func catalogSelect(kind string) string {
	typeCol, contentCol := "''", "''"
	if domain.CatalogTypes(kind) != nil {
		typeCol = "type"
	}
	if kind == domain.CatalogDiagram {
		contentCol = "COALESCE(content,'')"
	}
	return "id,project_id,name,COALESCE(description,''),created_at," + typeCol + "," + contentCol
}

func scanCatalogItem(row rowScanner, kind string) (domain.CatalogItem, error) {
	item := domain.CatalogItem{Kind: kind}
	err := row.Scan(&item.ID, &item.ProjectID, &item.Name, &item.Description, &item.CreatedAt, &item.Type, &item.Content)
	if err == sql.ErrNoRows {
		return item, ErrNotFound
	}
	return item, err
}

func (r Repo) InsertCatalogItem(ctx context.Context, tx *sql.Tx, item domain.CatalogItem) error {
	table, err := catalogTable(item.Kind)
	if err != nil {
		return err
	}
	cols := []string{"id", "project_id", "name", "description", "created_at"}
	args := []any{item.ID, item.ProjectID, item.Name, nullable(item.Description), item.CreatedAt}
	if domain.CatalogTypes(item.Kind) != nil {
		cols = append(cols, "type")
		args = append(args, item.Type)
	}
	if item.Kind == domain.CatalogDiagram {
		cols = append(cols, "content")
		args = append(args, nullable(item.Content))
	}
	_, err = r.on(tx).exec(ctx, fmt.Sprintf(`INSERT INTO %s(%s) VALUES (%s)`, table, strings.Join(cols, ","), placeholders(len(cols))), args...)
	return err
}

func (r Repo) GetCatalogItem(ctx context.Context, tx *sql.Tx, kind, id string) (domain.CatalogItem, error) {
	table, err := catalogTable(kind)
	if err != nil {
		return domain.CatalogItem{}, err
	}
	return scanCatalogItem(r.on(tx).queryRow(ctx, `SELECT `+catalogSelect(kind)+` FROM `+table+` WHERE id=?`, id), kind)
}

func (r Repo) ListCatalogItems(ctx context.Context, tx *sql.Tx, kind, projectID string) ([]domain.CatalogItem, error) {
	table, err := catalogTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.on(tx).query(ctx, `SELECT `+catalogSelect(kind)+` FROM `+table+` WHERE project_id=? ORDER BY name, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CatalogItem
	for rows.Next() {
		item, err := scanCatalogItem(rows, kind)
		if err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, rows.Err()
}

// CatalogPatch holds the optional changes of a catalog item update. Type and
// Content only apply to the kinds carrying those columns.
type CatalogPatch struct {
	Name        *string
	Description *string
	Type        *string
	Content     *string
}

func (r Repo) UpdateCatalogItem(ctx context.Context, tx *sql.Tx, kind, id string, patch CatalogPatch) error {
	table, err := catalogTable(kind)
	if err != nil {
		return err
	}
	var (
		fields []string
		args   []any
	)
	if patch.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *patch.Name)
	}
	if patch.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*patch.Description))
	}
	if patch.Type != nil {
		fields = append(fields, "type=?")
		args = append(args, *patch.Type)
	}
	if patch.Content != nil {
		fields = append(fields, "content=?")
		args = append(args, nullable(*patch.Content))
	}
	if len(fields) == 0 {
		_, err := r.GetCatalogItem(ctx, tx, kind, id)
		return err
	}
	args = append(args, id)
	return affectOne(r.on(tx).exec(ctx, fmt.Sprintf(`UPDATE %s SET %s WHERE id=?`, table, strings.Join(fields, ",")), args...))
}

func (r Repo) DeleteCatalogItem(ctx context.Context, tx *sql.Tx, kind, id string) error {
	table, err := catalogTable(kind)
	if err != nil {
		return err
	}
	return affectOne(r.on(tx).exec(ctx, `DELETE FROM `+table+` WHERE id=?`, id))
}

// RowExists reports whether table holds a row whose key column equals id.
// Table and key always come from the static registries.
func (r Repo) RowExists(ctx context.Context, tx *sql.Tx, table, key, id string) (bool, error) {
	var one int
	err := r.on(tx).queryRow(ctx, `SELECT 1 FROM `+table+` WHERE `+key+`=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
