package engine

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"minijira/internal/domain"
	"minijira/internal/engine/auth"
	"minijira/internal/events"
	"minijira/internal/repo"
)

var projectKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}$`)

type ProjectListOptions struct {
	Query           string
	Page            int
	PageSize        int
	IncludeArchived bool
}

// ListProjects returns the projects visible to the caller. ADMIN sees all,
// MANAGER sees their department plus memberships, everyone else only
// memberships.
func (e Engine) ListProjects(ctx context.Context, callerID string, opts ProjectListOptions) (domain.Page[domain.Project], error) {
	caller, err := e.Caller(ctx, callerID)
	if err != nil {
		return domain.Page[domain.Project]{}, err
	}
	page, size := clampPage(opts.Page, opts.PageSize, 20, 1, 100)
	f := repo.ProjectFilter{
		ViewerID:        caller.ID,
		All:             caller.IsAdmin(),
		Query:           opts.Query,
		IncludeArchived: opts.IncludeArchived,
		Limit:           size,
		Offset:          (page - 1) * size,
	}
	if caller.Roles.Has(auth.RoleManager) {
		f.DepartmentID = caller.DepartmentID
	}
	items, total, err := e.Repo.ListProjects(ctx, f)
	if err != nil {
		return domain.Page[domain.Project]{}, err
	}
	return domain.Page[domain.Project]{Items: items, Page: page, PageSize: size, Total: total}, nil
}

func (e Engine) GetProject(ctx context.Context, callerID, projectID string) (domain.Project, error) {
	caller, p, err := e.loadProject(ctx, callerID, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := e.Policy.RequireView(ctx, projectRef(p), caller, "view project"); err != nil {
		return domain.Project{}, err
	}
	role, ok, err := e.Policy.GetMyRole(ctx, p.ID, caller.ID)
	if err != nil {
		return domain.Project{}, err
	}
	if ok {
		p.MyRole = string(role)
	}
	return p, nil
}

type ProjectCreateOptions struct {
	Key          string
	Name         string
	DepartmentID string
}

// CreateProject creates the project and makes the caller its OWNER in the
// same transaction.
func (e Engine) CreateProject(ctx context.Context, callerID string, opts ProjectCreateOptions) (domain.Project, error) {
	caller, err := e.Caller(ctx, callerID)
	if err != nil {
		return domain.Project{}, err
	}
	deptID, err := auth.ResolveProjectDepartment(caller, opts.DepartmentID)
	if err != nil {
		return domain.Project{}, err
	}
	key := strings.ToUpper(strings.TrimSpace(opts.Key))
	name := strings.TrimSpace(opts.Name)
	if len([]rune(name)) < 3 {
		return domain.Project{}, auth.Invalidf("project name must be at least 3 characters")
	}
	if !projectKeyPattern.MatchString(key) {
		return domain.Project{}, auth.Invalidf("project key must be 2-10 characters A-Z or 0-9 and start with a letter")
	}
	dept, err := e.Repo.GetDepartment(ctx, deptID)
	if isNotFound(err) {
		return domain.Project{}, auth.Invalidf("unknown department")
	}
	if err != nil {
		return domain.Project{}, err
	}
	exists, err := e.Repo.ProjectKeyExists(ctx, key)
	if err != nil {
		return domain.Project{}, err
	}
	if exists {
		return domain.Project{}, repo.ConflictError{Msg: "project key " + key + " already exists"}
	}
	now := e.timestamp()
	p := domain.Project{
		ID:             newID(),
		Key:            key,
		Name:           name,
		DepartmentID:   dept.ID,
		DepartmentName: dept.Name,
		CreatedBy:      caller.ID,
		CreatedAt:      now,
		MyRole:         string(auth.ProjectOwner),
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
			return err
		}
		if err := e.Repo.InsertMember(ctx, tx, domain.ProjectMember{
			ProjectID: p.ID,
			UserID:    caller.ID,
			Role:      string(auth.ProjectOwner),
			JoinedAt:  now,
		}); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.ProjectCreated, ProjectID: p.ID, EntityKind: "project", EntityID: p.ID, ActorID: caller.ID,
			Payload: events.EventPayload{"key": p.Key, "name": p.Name, "department_id": p.DepartmentID},
		})
	})
	if err != nil {
		return domain.Project{}, err
	}
	e.logger().Info("project created", zap.String("project_id", p.ID), zap.String("key", p.Key), zap.String("actor_id", caller.ID))
	return p, nil
}

type ProjectUpdateOptions struct {
	Name     string
	Archived bool
}

// UpdateProject renames and archives or unarchives. The department is never
// changed after creation.
func (e Engine) UpdateProject(ctx context.Context, callerID, projectID string, opts ProjectUpdateOptions) (domain.Project, error) {
	caller, p, err := e.loadProject(ctx, callerID, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := e.Policy.RequireManage(ctx, projectRef(p), caller, "update project"); err != nil {
		return domain.Project{}, err
	}
	name := strings.TrimSpace(opts.Name)
	if len([]rune(name)) < 3 {
		return domain.Project{}, auth.Invalidf("project name must be at least 3 characters")
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateProject(ctx, tx, p.ID, name, opts.Archived); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.ProjectUpdated, ProjectID: p.ID, EntityKind: "project", EntityID: p.ID, ActorID: caller.ID,
			Payload: events.EventPayload{"name": name, "archived": opts.Archived},
		})
	})
	if err != nil {
		return domain.Project{}, err
	}
	return e.GetProject(ctx, callerID, projectID)
}

// DeleteProject is ADMIN only and removes members, tasks, assignees and
// comments in one transaction. Earlier events are detached from the project
// and the deletion itself is recorded against the project entity only.
func (e Engine) DeleteProject(ctx context.Context, callerID, projectID string) error {
	caller, p, err := e.loadProject(ctx, callerID, projectID)
	if err != nil {
		return err
	}
	if err := auth.RequireAdmin(caller, "delete project"); err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteProjectCascade(ctx, tx, p.ID); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.ProjectDeleted, EntityKind: "project", EntityID: p.ID, ActorID: caller.ID,
			Payload: events.EventPayload{"key": p.Key},
		})
	})
}
