package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"minijira/internal/domain"
	"minijira/internal/engine/auth"
	"minijira/internal/events"
	"minijira/internal/repo"
)

type TaskListOptions struct {
	Status   string
	Priority string
	Page     int
	PageSize int
}

func (e Engine) ListTasks(ctx context.Context, callerID, projectID string, opts TaskListOptions) (domain.Page[domain.Task], error) {
	caller, p, err := e.loadProject(ctx, callerID, projectID)
	if err != nil {
		return domain.Page[domain.Task]{}, err
	}
	if err := e.Policy.RequireView(ctx, projectRef(p), caller, "view tasks"); err != nil {
		return domain.Page[domain.Task]{}, err
	}
	f := repo.TaskFilter{ProjectID: p.ID}
	if strings.TrimSpace(opts.Status) != "" {
		s, ok := domain.ParseTaskStatus(opts.Status)
		if !ok {
			return domain.Page[domain.Task]{}, auth.Invalidf("invalid status %q", opts.Status)
		}
		f.Status = s
	}
	if strings.TrimSpace(opts.Priority) != "" {
		pr, ok := domain.ParseTaskPriority(opts.Priority)
		if !ok {
			return domain.Page[domain.Task]{}, auth.Invalidf("invalid priority %q", opts.Priority)
		}
		f.Priority = pr
	}
	page, size := clampPage(opts.Page, opts.PageSize, 50, 1, 200)
	f.Limit = size
	f.Offset = (page - 1) * size
	items, total, err := e.Repo.ListTasks(ctx, f)
	if err != nil {
		return domain.Page[domain.Task]{}, err
	}
	return domain.Page[domain.Task]{Items: items, Page: page, PageSize: size, Total: total}, nil
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title       string
	Description string
	Priority    string
	DueDate     string
}

// CreateTask needs only view access: any member, including VIEWER, may file
// tasks in a live project.
func (e Engine) CreateTask(ctx context.Context, callerID, projectID string, opts TaskCreateOptions) (domain.Task, error) {
	caller, p, err := e.loadProject(ctx, callerID, projectID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.Policy.RequireView(ctx, projectRef(p), caller, "create tasks"); err != nil {
		return domain.Task{}, err
	}
	title, err := validTitle(opts.Title)
	if err != nil {
		return domain.Task{}, err
	}
	if p.Archived {
		return domain.Task{}, auth.Invalidf("project is archived")
	}
	priority := domain.PriorityMedium
	if strings.TrimSpace(opts.Priority) != "" {
		pr, ok := domain.ParseTaskPriority(opts.Priority)
		if !ok {
			return domain.Task{}, auth.Invalidf("invalid priority %q", opts.Priority)
		}
		priority = pr
	}
	due, err := parseDueDate(opts.DueDate)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.timestamp()
	t := domain.Task{
		ID:          newID(),
		ProjectID:   p.ID,
		Title:       title,
		Description: strings.TrimSpace(opts.Description),
		Status:      domain.StatusTodo,
		Priority:    priority,
		DueDate:     due,
		CreatedBy:   caller.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.TaskCreated, ProjectID: p.ID, EntityKind: "task", EntityID: t.ID, ActorID: caller.ID,
			Payload: events.EventPayload{"title": t.Title, "priority": t.Priority},
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, t.ID)
}

func (e Engine) GetTask(ctx context.Context, callerID, taskID string) (domain.Task, error) {
	caller, t, p, err := e.loadTask(ctx, callerID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.Policy.RequireView(ctx, projectRef(p), caller, "view task"); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdateOptions replace the mutable fields; nil pointers keep the
// current value.
type TaskUpdateOptions struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	// DueDate set to an empty string clears the due date.
	DueDate *string
}

func (e Engine) UpdateTask(ctx context.Context, callerID, taskID string, opts TaskUpdateOptions) (domain.Task, error) {
	caller, t, p, err := e.loadTask(ctx, callerID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.Policy.RequireEditTask(ctx, projectRef(p), caller, t.CreatedBy, "edit task"); err != nil {
		return domain.Task{}, err
	}
	if opts.Title != nil {
		title, err := validTitle(*opts.Title)
		if err != nil {
			return domain.Task{}, err
		}
		t.Title = title
	}
	if p.Archived {
		return domain.Task{}, auth.Invalidf("project is archived")
	}
	changed := map[string]any{}
	if opts.Description != nil {
		t.Description = strings.TrimSpace(*opts.Description)
		changed["description"] = true
	}
	if opts.Status != nil {
		s, ok := domain.ParseTaskStatus(*opts.Status)
		if !ok {
			return domain.Task{}, auth.Invalidf("invalid status %q", *opts.Status)
		}
		t.Status = s
		changed["status"] = s
	}
	if opts.Priority != nil {
		pr, ok := domain.ParseTaskPriority(*opts.Priority)
		if !ok {
			return domain.Task{}, auth.Invalidf("invalid priority %q", *opts.Priority)
		}
		t.Priority = pr
		changed["priority"] = pr
	}
	if opts.DueDate != nil {
		due, err := parseDueDate(*opts.DueDate)
		if err != nil {
			return domain.Task{}, err
		}
		t.DueDate = due
		changed["due_date"] = due
	}
	if opts.Title != nil {
		changed["title"] = t.Title
	}
	t.UpdatedAt = e.timestamp()
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.TaskUpdated, ProjectID: p.ID, EntityKind: "task", EntityID: t.ID, ActorID: caller.ID,
			Payload: events.EventPayload(changed),
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, t.ID)
}

func (e Engine) DeleteTask(ctx context.Context, callerID, taskID string) error {
	caller, t, p, err := e.loadTask(ctx, callerID, taskID)
	if err != nil {
		return err
	}
	if err := e.Policy.RequireEditTask(ctx, projectRef(p), caller, t.CreatedBy, "delete task"); err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteTask(ctx, tx, t.ID); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.TaskDeleted, ProjectID: p.ID, EntityKind: "task", EntityID: t.ID, ActorID: caller.ID,
			Payload: events.EventPayload{"title": t.Title},
		})
	})
}

// AssignTask is idempotent: assigning an existing assignee succeeds without
// touching storage.
func (e Engine) AssignTask(ctx context.Context, callerID, taskID, userID string) error {
	caller, t, p, err := e.loadTask(ctx, callerID, taskID)
	if err != nil {
		return err
	}
	if err := e.Policy.RequireEditTask(ctx, projectRef(p), caller, t.CreatedBy, "assign task"); err != nil {
		return err
	}
	for _, a := range t.Assignees {
		if a.UserID == userID {
			return nil
		}
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		if isNotFound(err) {
			return repo.NotFoundError{Entity: "assignee"}
		}
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		added, err := e.Repo.AddAssignee(ctx, tx, domain.TaskAssignee{
			TaskID: t.ID, UserID: userID, AssignedBy: caller.ID, AssignedAt: e.timestamp(),
		})
		if err != nil || !added {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.TaskAssigned, ProjectID: p.ID, EntityKind: "task", EntityID: t.ID, ActorID: caller.ID,
			Payload: events.EventPayload{"user_id": userID},
		})
	})
}

// UnassignTask is idempotent: removing a non-assignee is a no-op.
func (e Engine) UnassignTask(ctx context.Context, callerID, taskID, userID string) error {
	caller, t, p, err := e.loadTask(ctx, callerID, taskID)
	if err != nil {
		return err
	}
	if err := e.Policy.RequireEditTask(ctx, projectRef(p), caller, t.CreatedBy, "unassign task"); err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		removed, err := e.Repo.RemoveAssignee(ctx, tx, t.ID, userID)
		if err != nil || !removed {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.TaskUnassigned, ProjectID: p.ID, EntityKind: "task", EntityID: t.ID, ActorID: caller.ID,
			Payload: events.EventPayload{"user_id": userID},
		})
	})
}

func validTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if len([]rune(title)) < 3 {
		return "", auth.Invalidf("title must be at least 3 characters")
	}
	return title, nil
}

// parseDueDate accepts RFC 3339 timestamps or plain dates.
func parseDueDate(raw string) (*string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			s := repo.FormatTime(ts)
			return &s, nil
		}
	}
	return nil, auth.Invalidf("invalid due date %q", raw)
}
