package repo

import (
	"context"
	"database/sql"

	"minijira/internal/domain"
)

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO comments(id,task_id,author_id,body,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.TaskID, nullable(c.AuthorID), c.Body, c.CreatedAt)
	return err
}

// ListComments returns a task's comments, newest first.
func (r Repo) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT c.id, c.task_id, COALESCE(c.author_id,''), COALESCE(u.email,''), c.body, c.created_at
FROM comments c LEFT JOIN users u ON u.id=c.author_id
WHERE c.task_id=?
ORDER BY c.created_at DESC, c.id DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.AuthorEmail, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
