package repo

import (
	"context"
	"database/sql"
	"errors"

	"minijira/internal/domain"
	"minijira/internal/engine/auth"
)

// GetMyRole implements auth.MembershipLookup against project_members.
func (r Repo) GetMyRole(ctx context.Context, projectID, userID string) (auth.ProjectRole, bool, error) {
	var role string
	err := r.DB.QueryRowContext(ctx, `SELECT role FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return auth.ProjectRole(role), true, nil
}

// InsertMember fails with a ConflictError when the pair already exists.
func (r Repo) InsertMember(ctx context.Context, tx *sql.Tx, m domain.ProjectMember) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO project_members(project_id,user_id,role,joined_at) VALUES (?,?,?,?)`,
		m.ProjectID, m.UserID, m.Role, m.JoinedAt)
	return conflictOr(err, "user is already a member of this project")
}

func (r Repo) UpdateMemberRole(ctx context.Context, tx *sql.Tx, projectID, userID, role string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE project_members SET role=? WHERE project_id=? AND user_id=?`, role, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Entity: "member"}
	}
	return nil
}

func (r Repo) DeleteMember(ctx context.Context, tx *sql.Tx, projectID, userID string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Entity: "member"}
	}
	return nil
}

// ListMembers orders OWNER, MEMBER, VIEWER and then by join time.
func (r Repo) ListMembers(ctx context.Context, projectID string) ([]domain.ProjectMember, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT pm.project_id, pm.user_id, u.email, COALESCE(u.name,''), COALESCE(u.department_id,''), COALESCE(d.name,''), pm.role, pm.joined_at
FROM project_members pm
JOIN users u ON u.id=pm.user_id
LEFT JOIN departments d ON d.id=u.department_id
WHERE pm.project_id=?
ORDER BY CASE pm.role WHEN 'OWNER' THEN 0 WHEN 'MEMBER' THEN 1 ELSE 2 END, pm.joined_at`, projectID)
	if err != nil {
		return nil, err
	}
	res := []domain.ProjectMember{}
	for rows.Next() {
		var m domain.ProjectMember
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.Email, &m.Name, &m.DepartmentID, &m.DepartmentName, &m.Role, &m.JoinedAt); err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		roles, err := r.UserRoles(ctx, res[i].UserID)
		if err != nil {
			return nil, err
		}
		res[i].GlobalRoles = roles
	}
	return res, nil
}
