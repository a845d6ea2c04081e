package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"minijira/internal/domain"
)

const projectColumns = `p.id, p.key, p.name, p.department_id, COALESCE(d.name,''), p.archived, COALESCE(p.created_by,''), p.created_at`

func scanProject(row rowScanner, extra ...any) (domain.Project, error) {
	var p domain.Project
	var archived int
	dest := append([]any{&p.ID, &p.Key, &p.Name, &p.DepartmentID, &p.DepartmentName, &archived, &p.CreatedBy, &p.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Project{}, err
	}
	p.Archived = archived != 0
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO projects(id,key,name,department_id,archived,created_by,created_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.Key, p.Name, p.DepartmentID, boolToInt(p.Archived), nullable(p.CreatedBy), p.CreatedAt)
	return conflictOr(err, "project key %s already exists", p.Key)
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects p LEFT JOIN departments d ON d.id=p.department_id WHERE p.id=?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, NotFoundError{Entity: "project"}
	}
	return p, err
}

func (r Repo) ProjectKeyExists(ctx context.Context, key string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE key=?`, key).Scan(&n)
	return n > 0, err
}

// ProjectFilter scopes a project listing to what a caller may see.
type ProjectFilter struct {
	// ViewerID is joined against memberships to fill MyRole.
	ViewerID string
	// All disables scoping (ADMIN).
	All bool
	// DepartmentID additionally admits projects of this department (MANAGER).
	DepartmentID    string
	Query           string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// ListProjects returns one page of visible projects, newest first, plus the
// total matching count.
func (r Repo) ListProjects(ctx context.Context, f ProjectFilter) ([]domain.Project, int, error) {
	clauses := []string{}
	args := []any{f.ViewerID}
	if !f.All {
		if f.DepartmentID != "" {
			clauses = append(clauses, "(pm.user_id IS NOT NULL OR p.department_id=?)")
			args = append(args, f.DepartmentID)
		} else {
			clauses = append(clauses, "pm.user_id IS NOT NULL")
		}
	}
	if !f.IncludeArchived {
		clauses = append(clauses, "p.archived=0")
	}
	if strings.TrimSpace(f.Query) != "" {
		clauses = append(clauses, `(LOWER(p.name) LIKE ? ESCAPE '\' OR LOWER(p.key) LIKE ? ESCAPE '\')`)
		pat := likePattern(f.Query)
		args = append(args, pat, pat)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	from := `FROM projects p
LEFT JOIN departments d ON d.id=p.department_id
LEFT JOIN project_members pm ON pm.project_id=p.id AND pm.user_id=?`

	var total int
	if err := r.DB.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) %s %s`, from, where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	query := fmt.Sprintf(`SELECT %s, COALESCE(pm.role,'') %s %s ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`, projectColumns, from, where)
	rows, err := r.DB.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	res := []domain.Project{}
	for rows.Next() {
		var role string
		p, err := scanProject(rows, &role)
		if err != nil {
			return nil, 0, err
		}
		p.MyRole = role
		res = append(res, p)
	}
	return res, total, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, id, name string, archived bool) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE projects SET name=?, archived=? WHERE id=?`, name, boolToInt(archived), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Entity: "project"}
	}
	return nil
}

// DeleteProjectCascade removes the project and everything hanging off it.
// Dependent rows are deleted explicitly so the result does not rely on the
// connection having foreign keys enabled. Audit rows stay but lose their
// project_id.
func (r Repo) DeleteProjectCascade(ctx context.Context, tx *sql.Tx, id string) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	stmts := []string{
		`DELETE FROM comments WHERE task_id IN (SELECT id FROM tasks WHERE project_id=?)`,
		`DELETE FROM task_assignees WHERE task_id IN (SELECT id FROM tasks WHERE project_id=?)`,
		`DELETE FROM tasks WHERE project_id=?`,
		`DELETE FROM project_members WHERE project_id=?`,
		`UPDATE events SET project_id=NULL WHERE project_id=?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Entity: "project"}
	}
	return nil
}

// ProjectFootprint counts rows tied to a project across dependent tables.
func (r Repo) ProjectFootprint(ctx context.Context, id string) (map[string]int, error) {
	queries := map[string]string{
		"projects":        `SELECT COUNT(*) FROM projects WHERE id=?`,
		"project_members": `SELECT COUNT(*) FROM project_members WHERE project_id=?`,
		"tasks":           `SELECT COUNT(*) FROM tasks WHERE project_id=?`,
		"task_assignees":  `SELECT COUNT(*) FROM task_assignees a JOIN tasks t ON t.id=a.task_id WHERE t.project_id=?`,
		"comments":        `SELECT COUNT(*) FROM comments c JOIN tasks t ON t.id=c.task_id WHERE t.project_id=?`,
		"events":          `SELECT COUNT(*) FROM events WHERE project_id=?`,
	}
	out := make(map[string]int, len(queries))
	for table, q := range queries {
		var n int
		if err := r.DB.QueryRowContext(ctx, q, id).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}
