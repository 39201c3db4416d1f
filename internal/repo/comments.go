package repo

import (
	"context"
	"database/sql"

	"traceline/internal/domain"
)

const commentColumns = `id,artifact_aid,COALESCE(field_name,''),text,author,COALESCE(selected_text,''),created_at,resolved,COALESCE(resolved_at,''),COALESCE(resolved_by,''),COALESCE(resolution_action,'')`

func scanComment(row rowScanner) (domain.Comment, error) {
	var c domain.Comment
	err := row.Scan(&c.ID, &c.ArtifactID, &c.FieldName, &c.Text, &c.Author, &c.SelectedText, &c.CreatedAt,
		&c.Resolved, &c.ResolvedAt, &c.ResolvedBy, &c.ResolutionAction)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := r.on(tx).exec(ctx, `INSERT INTO comments(id,artifact_aid,field_name,text,author,selected_text,created_at,resolved,resolved_at,resolved_by,resolution_action)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ArtifactID, nullable(c.FieldName), c.Text, c.Author, nullable(c.SelectedText), c.CreatedAt,
		c.Resolved, nullable(c.ResolvedAt), nullable(c.ResolvedBy), nullable(c.ResolutionAction))
	return err
}

func (r Repo) GetComment(ctx context.Context, tx *sql.Tx, id string) (domain.Comment, error) {
	return scanComment(r.on(tx).queryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id=?`, id))
}

// ListComments returns the comments of an artifact, oldest first. A non-nil
// resolved restricts to that state.
func (r Repo) ListComments(ctx context.Context, tx *sql.Tx, artifactID string, resolved *bool) ([]domain.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE artifact_aid=?`
	args := []any{artifactID}
	if resolved != nil {
		query += ` AND resolved=?`
		args = append(args, *resolved)
	}
	query += ` ORDER BY created_at, id`
	rows, err := r.on(tx).query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) SetCommentResolution(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	return affectOne(r.on(tx).exec(ctx, `UPDATE comments SET resolved=?,resolved_at=?,resolved_by=?,resolution_action=? WHERE id=?`,
		c.Resolved, nullable(c.ResolvedAt), nullable(c.ResolvedBy), nullable(c.ResolutionAction), c.ID))
}

func (r Repo) DeleteComment(ctx context.Context, tx *sql.Tx, id string) error {
	return affectOne(r.on(tx).exec(ctx, `DELETE FROM comments WHERE id=?`, id))
}
