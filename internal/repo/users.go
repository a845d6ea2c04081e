package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"minijira/internal/domain"
)

const userColumns = `u.id, u.email, COALESCE(u.name,''), u.password_hash, u.department_id, COALESCE(d.name,''), u.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var dept sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &dept, &u.DepartmentName, &u.CreatedAt); err != nil {
		return domain.User{}, err
	}
	u.DepartmentID = optionalString(dept)
	return u, nil
}

// InsertUser stores the user together with its global roles.
func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	q := r.q(tx)
	_, err := q.ExecContext(ctx, `INSERT INTO users(id,email,name,password_hash,department_id,created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, strings.TrimSpace(u.Email), nullable(u.Name), u.PasswordHash, nullableStringPtr(u.DepartmentID), u.CreatedAt)
	if err != nil {
		return conflictOr(err, "email %s already registered", u.Email)
	}
	return r.SetUserRoles(ctx, tx, u.ID, u.Roles)
}

func (r Repo) getUser(ctx context.Context, where string, arg any) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u LEFT JOIN departments d ON d.id=u.department_id WHERE `+where, arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, NotFoundError{Entity: "user"}
	}
	if err != nil {
		return domain.User{}, err
	}
	roles, err := r.UserRoles(ctx, u.ID)
	if err != nil {
		return domain.User{}, err
	}
	u.Roles = roles
	return u, nil
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return r.getUser(ctx, `u.id=?`, id)
}

// GetUserByEmail matches case-insensitively.
func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getUser(ctx, `u.email=? COLLATE NOCASE`, strings.TrimSpace(email))
}

func (r Repo) UserRoles(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role FROM user_roles WHERE user_id=?
ORDER BY CASE role WHEN 'USER' THEN 0 WHEN 'MANAGER' THEN 1 ELSE 2 END`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	roles := []string{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// SetUserRoles replaces the role set of a user.
func (r Repo) SetUserRoles(ctx context.Context, tx *sql.Tx, userID string, roles []string) error {
	if len(roles) == 0 {
		return errors.New("at least one role required")
	}
	q := r.q(tx)
	if _, err := q.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id=?`, userID); err != nil {
		return err
	}
	for _, role := range roles {
		if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO user_roles(user_id, role) VALUES (?,?)`, userID, role); err != nil {
			return fmt.Errorf("insert role %s: %w", role, err)
		}
	}
	return nil
}

func (r Repo) SetUserDepartment(ctx context.Context, tx *sql.Tx, userID string, departmentID *string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE users SET department_id=? WHERE id=?`, nullableStringPtr(departmentID), userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Entity: "user"}
	}
	return nil
}

func (r Repo) SetUserPassword(ctx context.Context, tx *sql.Tx, userID, hash string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE users SET password_hash=? WHERE id=?`, hash, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Entity: "user"}
	}
	return nil
}

type UserFilter struct {
	Query  string
	Limit  int
	Offset int
}

// ListUsers searches email and name, ordered by email.
func (r Repo) ListUsers(ctx context.Context, f UserFilter) ([]domain.User, int, error) {
	where := "1=1"
	var args []any
	if strings.TrimSpace(f.Query) != "" {
		where = `(LOWER(u.email) LIKE ? ESCAPE '\' OR LOWER(COALESCE(u.name,'')) LIKE ? ESCAPE '\')`
		pat := likePattern(f.Query)
		args = append(args, pat, pat)
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users u WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	query := `SELECT ` + userColumns + ` FROM users u LEFT JOIN departments d ON d.id=u.department_id WHERE ` + where +
		` ORDER BY u.email COLLATE NOCASE LIMIT ? OFFSET ?`
	rows, err := r.DB.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		users = append(users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range users {
		roles, err := r.UserRoles(ctx, users[i].ID)
		if err != nil {
			return nil, 0, err
		}
		users[i].Roles = roles
	}
	return users, total, nil
}

func (r Repo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
