package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"minijira/internal/domain"
	"minijira/internal/engine/auth"
	"minijira/internal/events"
	"minijira/internal/repo"
)

// ListDepartments is public: registration needs it before any login.
func (e Engine) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	return e.Repo.ListDepartments(ctx)
}

func (e Engine) requireAdmin(ctx context.Context, callerID, action string) (auth.Caller, error) {
	caller, err := e.Caller(ctx, callerID)
	if err != nil {
		return auth.Caller{}, err
	}
	return caller, auth.RequireAdmin(caller, action)
}

func validDepartmentName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if len([]rune(name)) < 2 {
		return "", auth.Invalidf("department name must be at least 2 characters")
	}
	return name, nil
}

// CreateDepartment generates a dep_ prefixed id when none is given.
func (e Engine) CreateDepartment(ctx context.Context, callerID, id, name string) (domain.Department, error) {
	caller, err := e.requireAdmin(ctx, callerID, "manage departments")
	if err != nil {
		return domain.Department{}, err
	}
	return e.createDepartment(ctx, caller.ID, id, name)
}

func (e Engine) createDepartment(ctx context.Context, actorID, id, name string) (domain.Department, error) {
	name, err := validDepartmentName(name)
	if err != nil {
		return domain.Department{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = "dep_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	exists, err := e.Repo.DepartmentExists(ctx, id)
	if err != nil {
		return domain.Department{}, err
	}
	if exists {
		return domain.Department{}, repo.ConflictError{Msg: "department id " + id + " already exists"}
	}
	d := domain.Department{ID: id, Name: name, CreatedAt: e.timestamp()}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertDepartment(ctx, tx, d); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.DepartmentCreated, EntityKind: "department", EntityID: d.ID, ActorID: actorID,
			Payload: events.EventPayload{"name": d.Name},
		})
	})
	if err != nil {
		return domain.Department{}, err
	}
	return d, nil
}

func (e Engine) RenameDepartment(ctx context.Context, callerID, id, name string) error {
	caller, err := e.requireAdmin(ctx, callerID, "manage departments")
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return auth.Invalidf("invalid department id")
	}
	name, err = validDepartmentName(name)
	if err != nil {
		return err
	}
	if _, err := e.Repo.GetDepartment(ctx, id); err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.RenameDepartment(ctx, tx, id, name); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.DepartmentUpdated, EntityKind: "department", EntityID: id, ActorID: caller.ID,
			Payload: events.EventPayload{"name": name},
		})
	})
}

// DeleteDepartment is a no-op for unknown ids and refuses departments still
// referenced by users or projects.
func (e Engine) DeleteDepartment(ctx context.Context, callerID, id string) error {
	caller, err := e.requireAdmin(ctx, callerID, "manage departments")
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return auth.Invalidf("invalid department id")
	}
	exists, err := e.Repo.DepartmentExists(ctx, id)
	if err != nil || !exists {
		return err
	}
	users, projects, err := e.Repo.DepartmentUsage(ctx, id)
	if err != nil {
		return err
	}
	if users > 0 || projects > 0 {
		return auth.Invalidf("department is used by %d users and %d projects", users, projects)
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		removed, err := e.Repo.DeleteDepartment(ctx, tx, id)
		if err != nil {
			if repo.IsForeignKeyViolation(err) {
				return auth.Invalidf("department is still referenced")
			}
			return err
		}
		if !removed {
			return nil
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.DepartmentDeleted, EntityKind: "department", EntityID: id, ActorID: caller.ID,
		})
	})
}

type UserListOptions struct {
	Query    string
	Page     int
	PageSize int
}

func (e Engine) ListUsers(ctx context.Context, callerID string, opts UserListOptions) (domain.Page[domain.User], error) {
	if _, err := e.requireAdmin(ctx, callerID, "list users"); err != nil {
		return domain.Page[domain.User]{}, err
	}
	page, size := clampPage(opts.Page, opts.PageSize, 20, 5, 100)
	items, total, err := e.Repo.ListUsers(ctx, repo.UserFilter{Query: opts.Query, Limit: size, Offset: (page - 1) * size})
	if err != nil {
		return domain.Page[domain.User]{}, err
	}
	if items == nil {
		items = []domain.User{}
	}
	return domain.Page[domain.User]{Items: items, Page: page, PageSize: size, Total: total}, nil
}

// SetUserRoles replaces a user's global roles. Input is upper-cased and
// de-duplicated; an empty list means {USER}.
func (e Engine) SetUserRoles(ctx context.Context, callerID, userID string, roles []string) (domain.User, error) {
	caller, err := e.requireAdmin(ctx, callerID, "change user roles")
	if err != nil {
		return domain.User{}, err
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.User{}, err
	}
	set, err := auth.ParseRoleSet(roles)
	if err != nil {
		return domain.User{}, err
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.SetUserRoles(ctx, tx, userID, set.Strings()); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.UserRolesChanged, EntityKind: "user", EntityID: userID, ActorID: caller.ID,
			Payload: events.EventPayload{"roles": set.Strings()},
		})
	})
	if err != nil {
		return domain.User{}, err
	}
	e.logger().Info("user roles changed", zap.String("user_id", userID), zap.Strings("roles", set.Strings()), zap.String("actor_id", caller.ID))
	return e.Repo.GetUser(ctx, userID)
}

func (e Engine) SetUserDepartment(ctx context.Context, callerID, userID, departmentID string) (domain.User, error) {
	caller, err := e.requireAdmin(ctx, callerID, "change user department")
	if err != nil {
		return domain.User{}, err
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.User{}, err
	}
	departmentID = strings.TrimSpace(departmentID)
	exists, err := e.Repo.DepartmentExists(ctx, departmentID)
	if err != nil {
		return domain.User{}, err
	}
	if departmentID == "" || !exists {
		return domain.User{}, auth.Invalidf("unknown department %q", departmentID)
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.SetUserDepartment(ctx, tx, userID, &departmentID); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.UserDepartmentSet, EntityKind: "user", EntityID: userID, ActorID: caller.ID,
			Payload: events.EventPayload{"department_id": departmentID},
		})
	})
	if err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, userID)
}

func (e Engine) ResetPassword(ctx context.Context, callerID, userID, newPassword string) error {
	caller, err := e.requireAdmin(ctx, callerID, "reset passwords")
	if err != nil {
		return err
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return err
	}
	hash, err := e.hashPassword(newPassword)
	if err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.SetUserPassword(ctx, tx, userID, hash); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.UserPasswordReset, EntityKind: "user", EntityID: userID, ActorID: caller.ID,
		})
	})
}

type EventListOptions struct {
	ProjectID string
	Type      string
	Limit     int
}

// ListEvents reads the audit log newest first. A project-scoped read needs
// view access to that project; the global log is ADMIN only.
func (e Engine) ListEvents(ctx context.Context, callerID string, opts EventListOptions) ([]domain.Event, error) {
	f := repo.EventFilter{Type: strings.TrimSpace(opts.Type)}
	if strings.TrimSpace(opts.ProjectID) != "" {
		caller, p, err := e.loadProject(ctx, callerID, opts.ProjectID)
		if err != nil {
			return nil, err
		}
		if err := e.Policy.RequireView(ctx, projectRef(p), caller, "view project activity"); err != nil {
			return nil, err
		}
		f.ProjectID = p.ID
	} else if _, err := e.requireAdmin(ctx, callerID, "view the audit log"); err != nil {
		return nil, err
	}
	_, limit := clampPage(1, opts.Limit, 50, 1, 500)
	return e.Repo.LatestEvents(ctx, limit, f)
}
