package auth

import (
	"strings"
)

// GlobalRole is an organization-wide role carried by every user.
type GlobalRole string

const (
	RoleUser    GlobalRole = "USER"
	RoleManager GlobalRole = "MANAGER"
	RoleAdmin   GlobalRole = "ADMIN"
)

var globalRoleOrder = []GlobalRole{RoleUser, RoleManager, RoleAdmin}

func (r GlobalRole) bit() RoleSet {
	switch r {
	case RoleUser:
		return 1 << 0
	case RoleManager:
		return 1 << 1
	case RoleAdmin:
		return 1 << 2
	default:
		return 0
	}
}

// Valid reports whether r is one of the known global roles.
func (r GlobalRole) Valid() bool { return r.bit() != 0 }

// ParseGlobalRole accepts any casing and surrounding whitespace.
func ParseGlobalRole(s string) (GlobalRole, error) {
	r := GlobalRole(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", Invalidf("unknown role %q; allowed: USER, MANAGER, ADMIN", s)
	}
	return r, nil
}

// RoleSet is an additive set of global roles.
type RoleSet uint8

// NewRoleSet builds a set from the given roles, ignoring unknown values.
func NewRoleSet(roles ...GlobalRole) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s = s.Add(r)
	}
	return s
}

func (s RoleSet) Has(r GlobalRole) bool {
	b := r.bit()
	return b != 0 && s&b != 0
}

func (s RoleSet) Add(r GlobalRole) RoleSet { return s | r.bit() }

func (s RoleSet) IsEmpty() bool { return s == 0 }

// Normalize returns {USER} for an empty set so a user never ends up role-less.
func (s RoleSet) Normalize() RoleSet {
	if s.IsEmpty() {
		return RoleUser.bit()
	}
	return s
}

// Roles lists members in the fixed order USER, MANAGER, ADMIN.
func (s RoleSet) Roles() []GlobalRole {
	out := make([]GlobalRole, 0, len(globalRoleOrder))
	for _, r := range globalRoleOrder {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s RoleSet) Strings() []string {
	roles := s.Roles()
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

// ParseRoleSet upper-cases, trims and de-duplicates the input. Blank entries
// are skipped, an unknown role is a validation error and an empty result
// becomes {USER}.
func ParseRoleSet(values []string) (RoleSet, error) {
	var s RoleSet
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		r, err := ParseGlobalRole(v)
		if err != nil {
			return 0, err
		}
		s = s.Add(r)
	}
	return s.Normalize(), nil
}

// ProjectRole is the role of a member inside a single project.
type ProjectRole string

const (
	ProjectOwner  ProjectRole = "OWNER"
	ProjectMember ProjectRole = "MEMBER"
	ProjectViewer ProjectRole = "VIEWER"
)

func (r ProjectRole) Valid() bool {
	switch r {
	case ProjectOwner, ProjectMember, ProjectViewer:
		return true
	}
	return false
}

// Rank orders roles for member listings: OWNER first, VIEWER last.
func (r ProjectRole) Rank() int {
	switch r {
	case ProjectOwner:
		return 0
	case ProjectMember:
		return 1
	case ProjectViewer:
		return 2
	default:
		return 3
	}
}

// ParseProjectRole accepts any casing; blank input defaults to MEMBER.
func ParseProjectRole(s string) (ProjectRole, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return ProjectMember, nil
	}
	r := ProjectRole(v)
	if !r.Valid() {
		return "", Invalidf("invalid project role %q; allowed: OWNER, MEMBER, VIEWER", s)
	}
	return r, nil
}
