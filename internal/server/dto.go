package server

import (
	"time"

	"minijira/internal/domain"
)

// Request payloads

type RegisterRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	DepartmentID string `json:"department_id"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateProjectRequest struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	// DepartmentID is honored for ADMIN only; others get their own department.
	DepartmentID string `json:"department_id,omitempty"`
}

type UpdateProjectRequest struct {
	Name     string `json:"name"`
	Archived bool   `json:"archived,omitempty"`
}

type AddMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty" doc:"OWNER, MEMBER or VIEWER; defaults to MEMBER"`
}

type UpdateMemberRoleRequest struct {
	Role string `json:"role" doc:"OWNER, MEMBER or VIEWER"`
}

type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty" doc:"LOW, MEDIUM, HIGH or CRITICAL; defaults to MEDIUM"`
	DueDate     string `json:"due_date,omitempty"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" doc:"TODO, IN_PROGRESS, REVIEW or DONE"`
	Priority    *string `json:"priority,omitempty"`
	DueDate     *string `json:"due_date,omitempty" doc:"empty string clears the due date"`
}

type CreateCommentRequest struct {
	Body string `json:"body"`
}

type CreateDepartmentRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type UpdateDepartmentRequest struct {
	Name string `json:"name"`
}

type UpdateUserRolesRequest struct {
	Roles []string `json:"roles"`
}

type UpdateUserDepartmentRequest struct {
	DepartmentID string `json:"department_id"`
}

type ResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type AuthResponse struct {
	AccessToken string     `json:"access_token"`
	ExpiresAt   time.Time  `json:"expires_at"`
	User        MeResponse `json:"user"`
}

type MeResponse struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	Name           string   `json:"name"`
	DepartmentID   *string  `json:"department_id"`
	DepartmentName *string  `json:"department_name"`
	Roles          []string `json:"roles"`
}

func meResponse(u domain.User) MeResponse {
	res := MeResponse{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		DepartmentID: u.DepartmentID,
		Roles:        nonNilSlice(u.Roles),
	}
	if u.DepartmentName != "" {
		name := u.DepartmentName
		res.DepartmentName = &name
	}
	return res
}

type MyRoleResponse struct {
	ProjectID string `json:"project_id"`
	Role      string `json:"role,omitempty" doc:"empty when the caller is not a member"`
}

func nonNilSlice[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
