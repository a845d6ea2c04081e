package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMembers struct {
	roles map[string]ProjectRole
	err   error
	calls int
}

func (s *stubMembers) GetMyRole(_ context.Context, projectID, userID string) (ProjectRole, bool, error) {
	s.calls++
	if s.err != nil {
		return "", false, s.err
	}
	r, ok := s.roles[projectID+"|"+userID]
	return r, ok, nil
}

func allRoleSets() []RoleSet {
	var out []RoleSet
	for mask := 0; mask < 8; mask++ {
		var s RoleSet
		if mask&1 != 0 {
			s = s.Add(RoleUser)
		}
		if mask&2 != 0 {
			s = s.Add(RoleManager)
		}
		if mask&4 != 0 {
			s = s.Add(RoleAdmin)
		}
		out = append(out, s.Normalize())
	}
	return out
}

type membership struct {
	role     ProjectRole
	isMember bool
}

var memberships = []membership{
	{"", false},
	{ProjectOwner, true},
	{ProjectMember, true},
	{ProjectViewer, true},
}

var callerDepartments = []string{"", "dep-a", "dep-b"}

func TestPolicyGrid(t *testing.T) {
	project := ProjectRef{ID: "p1", DepartmentID: "dep-a"}
	for _, roles := range allRoleSets() {
		for _, m := range memberships {
			for _, dept := range callerDepartments {
				c := Caller{ID: "u1", DepartmentID: dept, Roles: roles}
				name := fmt.Sprintf("%v/%s/%t/%q", roles.Strings(), m.role, m.isMember, dept)
				t.Run(name, func(t *testing.T) {
					view := DecideView(project, c, m.isMember)
					manage := DecideManage(project, c, m.role, m.isMember)
					members := DecideManageMembers(project, c, m.role, m.isMember)

					admin := roles.Has(RoleAdmin)
					deptManager := roles.Has(RoleManager) && dept == "dep-a"
					owner := m.isMember && m.role == ProjectOwner

					assert.Equal(t, admin || m.isMember || deptManager, view, "view")
					assert.Equal(t, admin || owner || deptManager, manage, "manage")
					assert.Equal(t, admin || owner, members, "manage members")

					if members {
						assert.True(t, manage, "manage members implies manage")
					}
					if manage {
						assert.True(t, view, "manage implies view")
					}
					assert.Equal(t, manage, DecideEditTask(project, c, m.role, m.isMember, "someone-else"))
					assert.True(t, DecideEditTask(project, c, m.role, m.isMember, "u1"), "creator can always edit")
				})
			}
		}
	}
}

func TestViewerAndMemberDoNotManage(t *testing.T) {
	project := ProjectRef{ID: "p1", DepartmentID: "dep-a"}
	c := Caller{ID: "u1", DepartmentID: "dep-z", Roles: NewRoleSet(RoleUser)}
	for _, role := range []ProjectRole{ProjectMember, ProjectViewer} {
		assert.True(t, DecideView(project, c, true))
		assert.False(t, DecideManage(project, c, role, true))
		assert.False(t, DecideManageMembers(project, c, role, true))
	}
}

func TestManagerWithoutDepartmentNeverMatches(t *testing.T) {
	project := ProjectRef{ID: "p1", DepartmentID: ""}
	c := Caller{ID: "u1", Roles: NewRoleSet(RoleManager)}
	assert.False(t, DecideView(project, c, false))
	assert.False(t, DecideManage(project, c, "", false))
}

func TestPolicyAdminSkipsLookup(t *testing.T) {
	members := &stubMembers{err: errors.New("boom")}
	p := Policy{Members: members}
	admin := Caller{ID: "root", Roles: NewRoleSet(RoleAdmin)}
	project := ProjectRef{ID: "p1", DepartmentID: "dep-a"}
	ctx := context.Background()

	for _, check := range []func() (bool, error){
		func() (bool, error) { return p.CanView(ctx, project, admin) },
		func() (bool, error) { return p.CanManage(ctx, project, admin) },
		func() (bool, error) { return p.CanManageMembers(ctx, project, admin) },
		func() (bool, error) { return p.CanEditTask(ctx, project, admin, "other") },
	} {
		ok, err := check()
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 0, members.calls)
}

func TestPolicyLooksUpEveryCall(t *testing.T) {
	members := &stubMembers{roles: map[string]ProjectRole{"p1|u1": ProjectViewer}}
	p := Policy{Members: members}
	c := Caller{ID: "u1", Roles: NewRoleSet(RoleUser)}
	project := ProjectRef{ID: "p1", DepartmentID: "dep-a"}
	ctx := context.Background()

	ok, err := p.CanView(ctx, project, c)
	require.NoError(t, err)
	assert.True(t, ok)

	members.roles["p1|u1"] = ProjectOwner
	ok, err = p.CanManage(ctx, project, c)
	require.NoError(t, err)
	assert.True(t, ok, "role change visible without any cache flush")

	delete(members.roles, "p1|u1")
	ok, err = p.CanView(ctx, project, c)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, members.calls)
}

func TestPolicyLookupErrorIsNotAGrant(t *testing.T) {
	boom := errors.New("db down")
	p := Policy{Members: &stubMembers{err: boom}}
	c := Caller{ID: "u1", DepartmentID: "dep-a", Roles: NewRoleSet(RoleManager)}
	project := ProjectRef{ID: "p1", DepartmentID: "dep-a"}

	ok, err := p.CanView(context.Background(), project, c)
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)

	err = p.RequireManage(context.Background(), project, c, "update project")
	assert.ErrorIs(t, err, boom)
}

func TestRequireReturnsForbidden(t *testing.T) {
	p := Policy{Members: &stubMembers{}}
	c := Caller{ID: "u1", Roles: NewRoleSet(RoleUser)}
	err := p.RequireView(context.Background(), ProjectRef{ID: "p1"}, c, "view project")
	var fe ForbiddenError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "view project", fe.Action)
}

func TestResolveProjectDepartment(t *testing.T) {
	cases := []struct {
		name      string
		caller    Caller
		requested string
		want      string
		forbidden bool
		invalid   bool
	}{
		{name: "admin requested", caller: Caller{DepartmentID: "d1", Roles: NewRoleSet(RoleAdmin)}, requested: "d2", want: "d2"},
		{name: "admin fallback", caller: Caller{DepartmentID: "d1", Roles: NewRoleSet(RoleAdmin)}, want: "d1"},
		{name: "admin none", caller: Caller{Roles: NewRoleSet(RoleAdmin)}, invalid: true},
		{name: "manager own", caller: Caller{DepartmentID: "d1", Roles: NewRoleSet(RoleManager)}, requested: "d1", want: "d1"},
		{name: "manager blank", caller: Caller{DepartmentID: "d1", Roles: NewRoleSet(RoleManager)}, want: "d1"},
		{name: "manager other", caller: Caller{DepartmentID: "d1", Roles: NewRoleSet(RoleManager)}, requested: "d2", forbidden: true},
		{name: "user ignores request", caller: Caller{DepartmentID: "d1", Roles: NewRoleSet(RoleUser)}, requested: "d2", want: "d1"},
		{name: "user none", caller: Caller{Roles: NewRoleSet(RoleUser)}, requested: "d2", invalid: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveProjectDepartment(tc.caller, tc.requested)
			switch {
			case tc.forbidden:
				var fe ForbiddenError
				assert.ErrorAs(t, err, &fe)
			case tc.invalid:
				var ve ValidationError
				assert.ErrorAs(t, err, &ve)
			default:
				require.NoError(t, err)
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestGuardNotSelf(t *testing.T) {
	admin := Caller{ID: "root", Roles: NewRoleSet(RoleAdmin)}
	var ve ValidationError
	assert.ErrorAs(t, GuardNotSelf(admin, "root", "remove"), &ve)
	assert.NoError(t, GuardNotSelf(admin, "other", "remove"))
}

func TestParseRoleSet(t *testing.T) {
	s, err := ParseRoleSet([]string{" manager", "MANAGER", "admin", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"MANAGER", "ADMIN"}, s.Strings())

	s, err = ParseRoleSet(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"USER"}, s.Strings())

	_, err = ParseRoleSet([]string{"ROOT"})
	var ve ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestParseProjectRole(t *testing.T) {
	r, err := ParseProjectRole("viewer")
	require.NoError(t, err)
	assert.Equal(t, ProjectViewer, r)

	r, err = ParseProjectRole("")
	require.NoError(t, err)
	assert.Equal(t, ProjectMember, r)

	_, err = ParseProjectRole("GUEST")
	assert.Error(t, err)
}
