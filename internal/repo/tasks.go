package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"minijira/internal/domain"
)

const taskColumns = `t.id, t.project_id, t.title, COALESCE(t.description,''), t.status, t.priority, t.due_date,
 COALESCE(t.created_by,''), COALESCE(u.email,''), t.created_at, t.updated_at`

const taskFrom = `FROM tasks t LEFT JOIN users u ON u.id=t.created_by`

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var due sql.NullString
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority, &due,
		&t.CreatedBy, &t.CreatedByEmail, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Task{}, err
	}
	t.DueDate = optionalString(due)
	t.Assignees = []domain.TaskAssignee{}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO tasks(id,project_id,title,description,status,priority,due_date,created_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, nullable(t.Description), t.Status, t.Priority, nullableStringPtr(t.DueDate),
		nullable(t.CreatedBy), t.CreatedAt, t.UpdatedAt)
	return err
}

// UpdateTask overwrites the mutable fields of a task.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE tasks SET title=?, description=?, status=?, priority=?, due_date=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.Status, t.Priority, nullableStringPtr(t.DueDate), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Entity: "task"}
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` `+taskFrom+` WHERE t.id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, NotFoundError{Entity: "task"}
	}
	if err != nil {
		return domain.Task{}, err
	}
	byTask, err := r.assignees(ctx, []string{t.ID})
	if err != nil {
		return domain.Task{}, err
	}
	if as, ok := byTask[t.ID]; ok {
		t.Assignees = as
	}
	return t, nil
}

type TaskFilter struct {
	ProjectID string
	Status    domain.TaskStatus
	Priority  domain.TaskPriority
	Limit     int
	Offset    int
}

// ListTasks returns one page of a project's tasks, newest first.
func (r Repo) ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, int, error) {
	clauses := []string{"t.project_id=?"}
	args := []any{f.ProjectID}
	if f.Status != "" {
		clauses = append(clauses, "t.status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "t.priority=?")
		args = append(args, f.Priority)
	}
	where := " WHERE " + strings.Join(clauses, " AND ")
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks t`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` `+taskFrom+where+` ORDER BY t.created_at DESC, t.id DESC LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	var tasks []domain.Task
	var ids []string
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		tasks = append(tasks, t)
		ids = append(ids, t.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	byTask, err := r.assignees(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range tasks {
		if as, ok := byTask[tasks[i].ID]; ok {
			tasks[i].Assignees = as
		}
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, total, nil
}

func (r Repo) assignees(ctx context.Context, taskIDs []string) (map[string][]domain.TaskAssignee, error) {
	out := map[string][]domain.TaskAssignee{}
	if len(taskIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(taskIDs))
	for i, id := range taskIDs {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT a.task_id, a.user_id, u.email, COALESCE(a.assigned_by,''), a.assigned_at
FROM task_assignees a JOIN users u ON u.id=a.user_id
WHERE a.task_id IN (`+placeholders(len(taskIDs))+`) ORDER BY a.assigned_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a domain.TaskAssignee
		if err := rows.Scan(&a.TaskID, &a.UserID, &a.Email, &a.AssignedBy, &a.AssignedAt); err != nil {
			return nil, err
		}
		out[a.TaskID] = append(out[a.TaskID], a)
	}
	return out, rows.Err()
}

// DeleteTask removes a task with its comments and assignees.
func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	q := r.q(tx)
	for _, stmt := range []string{
		`DELETE FROM comments WHERE task_id=?`,
		`DELETE FROM task_assignees WHERE task_id=?`,
	} {
		if _, err := q.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	res, err := q.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Entity: "task"}
	}
	return nil
}

func (r Repo) IsAssigned(ctx context.Context, taskID, userID string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_assignees WHERE task_id=? AND user_id=?`, taskID, userID).Scan(&n)
	return n > 0, err
}

// AddAssignee is idempotent; added is false when the pair already existed.
func (r Repo) AddAssignee(ctx context.Context, tx *sql.Tx, a domain.TaskAssignee) (added bool, err error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO task_assignees(task_id,user_id,assigned_by,assigned_at) VALUES (?,?,?,?)
ON CONFLICT(task_id,user_id) DO NOTHING`, a.TaskID, a.UserID, nullable(a.AssignedBy), a.AssignedAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveAssignee is idempotent; removed is false when nothing matched.
func (r Repo) RemoveAssignee(ctx context.Context, tx *sql.Tx, taskID, userID string) (removed bool, err error) {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id=? AND user_id=?`, taskID, userID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
