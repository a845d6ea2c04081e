package repo

import (
	"context"
	"database/sql"
	"errors"

	"minijira/internal/domain"
)

func (r Repo) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM departments ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Department{}
	for rows.Next() {
		var d domain.Department
		if err := rows.Scan(&d.ID, &d.Name, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) GetDepartment(ctx context.Context, id string) (domain.Department, error) {
	var d domain.Department
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM departments WHERE id=?`, id).Scan(&d.ID, &d.Name, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, NotFoundError{Entity: "department"}
	}
	return d, err
}

func (r Repo) DepartmentExists(ctx context.Context, id string) (bool, error) {
	_, err := r.GetDepartment(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) InsertDepartment(ctx context.Context, tx *sql.Tx, d domain.Department) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO departments(id,name,created_at) VALUES (?,?,?)`, d.ID, d.Name, d.CreatedAt)
	return conflictOr(err, "department %s already exists", d.Name)
}

func (r Repo) RenameDepartment(ctx context.Context, tx *sql.Tx, id, name string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE departments SET name=? WHERE id=?`, name, id)
	if err != nil {
		return conflictOr(err, "department %s already exists", name)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Entity: "department"}
	}
	return nil
}

// DepartmentUsage counts users and projects referencing the department.
func (r Repo) DepartmentUsage(ctx context.Context, id string) (users, projects int, err error) {
	err = r.DB.QueryRowContext(ctx, `SELECT
 (SELECT COUNT(*) FROM users WHERE department_id=?),
 (SELECT COUNT(*) FROM projects WHERE department_id=?)`, id, id).Scan(&users, &projects)
	return users, projects, err
}

// DeleteDepartment reports whether a row was removed.
func (r Repo) DeleteDepartment(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM departments WHERE id=?`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
