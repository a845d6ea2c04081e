package auth

import (
	"context"
	"strings"
)

// Caller is the identity snapshot a decision is made for. It is loaded once
// per request and never mutated afterwards.
type Caller struct {
	ID           string
	DepartmentID string
	Roles        RoleSet
}

func (c Caller) IsAdmin() bool { return c.Roles.Has(RoleAdmin) }

// ManagesDepartment reports whether c is a MANAGER of the given department.
// A caller without a department never matches.
func (c Caller) ManagesDepartment(departmentID string) bool {
	return c.Roles.Has(RoleManager) && c.DepartmentID != "" && c.DepartmentID == departmentID
}

// ProjectRef carries the two project facts every decision needs.
type ProjectRef struct {
	ID           string
	DepartmentID string
}

// MembershipLookup resolves a user's role in a project.
type MembershipLookup interface {
	GetMyRole(ctx context.Context, projectID, userID string) (ProjectRole, bool, error)
}

// DecideView is the pure view rule given an already looked up membership.
// Any project role grants view, so only membership matters.
func DecideView(p ProjectRef, c Caller, isMember bool) bool {
	if c.IsAdmin() {
		return true
	}
	if isMember {
		return true
	}
	return c.ManagesDepartment(p.DepartmentID)
}

// DecideManage is the pure manage rule. VIEWER and MEMBER rows do not grant it.
func DecideManage(p ProjectRef, c Caller, role ProjectRole, isMember bool) bool {
	if c.IsAdmin() {
		return true
	}
	if isMember && role == ProjectOwner {
		return true
	}
	return c.ManagesDepartment(p.DepartmentID)
}

// DecideManageMembers grants only ADMIN and project OWNER; department
// managers are deliberately excluded.
func DecideManageMembers(p ProjectRef, c Caller, role ProjectRole, isMember bool) bool {
	if c.IsAdmin() {
		return true
	}
	return isMember && role == ProjectOwner
}

// DecideEditTask grants managers of the project and the task's creator.
func DecideEditTask(p ProjectRef, c Caller, role ProjectRole, isMember bool, creatorID string) bool {
	if DecideManage(p, c, role, isMember) {
		return true
	}
	return creatorID != "" && c.ID == creatorID
}

// Policy evaluates project access against live membership data. Nothing is
// cached: each call performs its own lookup.
type Policy struct {
	Members MembershipLookup
}

func (p Policy) lookup(ctx context.Context, project ProjectRef, caller Caller) (ProjectRole, bool, error) {
	if p.Members == nil || caller.ID == "" {
		return "", false, nil
	}
	return p.Members.GetMyRole(ctx, project.ID, caller.ID)
}

func (p Policy) CanView(ctx context.Context, project ProjectRef, caller Caller) (bool, error) {
	if caller.IsAdmin() {
		return true, nil
	}
	_, ok, err := p.lookup(ctx, project, caller)
	if err != nil {
		return false, err
	}
	return DecideView(project, caller, ok), nil
}

func (p Policy) CanManage(ctx context.Context, project ProjectRef, caller Caller) (bool, error) {
	if caller.IsAdmin() {
		return true, nil
	}
	role, ok, err := p.lookup(ctx, project, caller)
	if err != nil {
		return false, err
	}
	return DecideManage(project, caller, role, ok), nil
}

func (p Policy) CanManageMembers(ctx context.Context, project ProjectRef, caller Caller) (bool, error) {
	if caller.IsAdmin() {
		return true, nil
	}
	role, ok, err := p.lookup(ctx, project, caller)
	if err != nil {
		return false, err
	}
	return DecideManageMembers(project, caller, role, ok), nil
}

func (p Policy) CanEditTask(ctx context.Context, project ProjectRef, caller Caller, creatorID string) (bool, error) {
	if caller.IsAdmin() {
		return true, nil
	}
	role, ok, err := p.lookup(ctx, project, caller)
	if err != nil {
		return false, err
	}
	return DecideEditTask(project, caller, role, ok, creatorID), nil
}

// GetMyRole exposes the caller's membership role, if any.
func (p Policy) GetMyRole(ctx context.Context, projectID, userID string) (ProjectRole, bool, error) {
	return p.lookup(ctx, ProjectRef{ID: projectID}, Caller{ID: userID})
}

// RequireView returns ForbiddenError when CanView is false.
func (p Policy) RequireView(ctx context.Context, project ProjectRef, caller Caller, action string) error {
	return requireAllowed(p.CanView(ctx, project, caller))(action)
}

func (p Policy) RequireManage(ctx context.Context, project ProjectRef, caller Caller, action string) error {
	return requireAllowed(p.CanManage(ctx, project, caller))(action)
}

func (p Policy) RequireManageMembers(ctx context.Context, project ProjectRef, caller Caller, action string) error {
	return requireAllowed(p.CanManageMembers(ctx, project, caller))(action)
}

func (p Policy) RequireEditTask(ctx context.Context, project ProjectRef, caller Caller, creatorID, action string) error {
	return requireAllowed(p.CanEditTask(ctx, project, caller, creatorID))(action)
}

func requireAllowed(ok bool, err error) func(string) error {
	return func(action string) error {
		if err != nil {
			return err
		}
		if !ok {
			return ForbiddenError{Action: action}
		}
		return nil
	}
}

// RequireAdmin guards organization-wide administration.
func RequireAdmin(c Caller, action string) error {
	if !c.IsAdmin() {
		return ForbiddenError{Action: action}
	}
	return nil
}

// ResolveProjectDepartment picks the owning department of a new project.
// ADMIN may target any department, MANAGER only their own, and everyone else
// gets their own department regardless of the request.
func ResolveProjectDepartment(c Caller, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	var dept string
	switch {
	case c.IsAdmin():
		dept = requested
		if dept == "" {
			dept = c.DepartmentID
		}
	case c.Roles.Has(RoleManager):
		if requested != "" && requested != c.DepartmentID {
			return "", ForbiddenError{Action: "create projects in another department"}
		}
		dept = c.DepartmentID
	default:
		dept = c.DepartmentID
	}
	if dept == "" {
		return "", Invalidf("user has no department assigned")
	}
	return dept, nil
}

// GuardNotSelf rejects role changes and removals aimed at the caller. It
// applies to ADMIN too.
func GuardNotSelf(c Caller, targetUserID, action string) error {
	if targetUserID != "" && targetUserID == c.ID {
		return Invalidf("cannot %s yourself", action)
	}
	return nil
}
