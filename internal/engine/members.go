package engine

import (
	"context"
	"database/sql"
	"strings"

	"minijira/internal/domain"
	"minijira/internal/engine/auth"
	"minijira/internal/events"
	"minijira/internal/repo"
)

func (e Engine) ListMembers(ctx context.Context, callerID, projectID string) ([]domain.ProjectMember, error) {
	caller, p, err := e.loadProject(ctx, callerID, projectID)
	if err != nil {
		return nil, err
	}
	if err := e.Policy.RequireView(ctx, projectRef(p), caller, "view project members"); err != nil {
		return nil, err
	}
	return e.Repo.ListMembers(ctx, p.ID)
}

// AddMember adds a user by email. Unlike role changes and removals there is
// no self guard here: an owner re-adding themselves just hits the conflict.
func (e Engine) AddMember(ctx context.Context, callerID, projectID, email, role string) (domain.ProjectMember, error) {
	caller, p, err := e.loadProject(ctx, callerID, projectID)
	if err != nil {
		return domain.ProjectMember{}, err
	}
	if err := e.Policy.RequireManageMembers(ctx, projectRef(p), caller, "manage project members"); err != nil {
		return domain.ProjectMember{}, err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.ProjectMember{}, auth.Invalidf("email is required")
	}
	projectRole, err := auth.ParseProjectRole(role)
	if err != nil {
		return domain.ProjectMember{}, err
	}
	user, err := e.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.ProjectMember{}, err
	}
	m := domain.ProjectMember{
		ProjectID:   p.ID,
		UserID:      user.ID,
		Email:       user.Email,
		Name:        user.Name,
		GlobalRoles: user.Roles,
		Role:        string(projectRole),
		JoinedAt:    e.timestamp(),
	}
	if user.DepartmentID != nil {
		m.DepartmentID = *user.DepartmentID
		m.DepartmentName = user.DepartmentName
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertMember(ctx, tx, m); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.MemberAdded, ProjectID: p.ID, EntityKind: "member", EntityID: user.ID, ActorID: caller.ID,
			Payload: events.EventPayload{"role": m.Role},
		})
	})
	if err != nil {
		return domain.ProjectMember{}, err
	}
	return m, nil
}

func (e Engine) UpdateMemberRole(ctx context.Context, callerID, projectID, userID, role string) error {
	caller, p, err := e.loadProject(ctx, callerID, projectID)
	if err != nil {
		return err
	}
	if err := e.Policy.RequireManageMembers(ctx, projectRef(p), caller, "manage project members"); err != nil {
		return err
	}
	if err := auth.GuardNotSelf(caller, userID, "change the project role of"); err != nil {
		return err
	}
	if strings.TrimSpace(role) == "" {
		return auth.Invalidf("role is required")
	}
	projectRole, err := auth.ParseProjectRole(role)
	if err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateMemberRole(ctx, tx, p.ID, userID, string(projectRole)); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.MemberRoleChanged, ProjectID: p.ID, EntityKind: "member", EntityID: userID, ActorID: caller.ID,
			Payload: events.EventPayload{"role": string(projectRole)},
		})
	})
}

func (e Engine) RemoveMember(ctx context.Context, callerID, projectID, userID string) error {
	caller, p, err := e.loadProject(ctx, callerID, projectID)
	if err != nil {
		return err
	}
	if err := e.Policy.RequireManageMembers(ctx, projectRef(p), caller, "manage project members"); err != nil {
		return err
	}
	if err := auth.GuardNotSelf(caller, userID, "remove"); err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteMember(ctx, tx, p.ID, userID); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.MemberRemoved, ProjectID: p.ID, EntityKind: "member", EntityID: userID, ActorID: caller.ID,
		})
	})
}

// MyRole reports the caller's membership role in a project they can view.
func (e Engine) MyRole(ctx context.Context, callerID, projectID string) (auth.ProjectRole, bool, error) {
	caller, p, err := e.loadProject(ctx, callerID, projectID)
	if err != nil {
		return "", false, err
	}
	if err := e.Policy.RequireView(ctx, projectRef(p), caller, "view project"); err != nil {
		return "", false, err
	}
	return e.Policy.GetMyRole(ctx, p.ID, caller.ID)
}

var _ auth.MembershipLookup = repo.Repo{}
