package domain

import "strings"

type Department struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type User struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	Name           string   `json:"name,omitempty"`
	PasswordHash   string   `json:"-"`
	DepartmentID   *string  `json:"department_id,omitempty"`
	DepartmentName string   `json:"department_name,omitempty"`
	Roles          []string `json:"roles"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
}

func (u User) Department() string {
	if u.DepartmentID == nil {
		return ""
	}
	return *u.DepartmentID
}

type Project struct {
	ID             string `json:"id"`
	Key            string `json:"key"`
	Name           string `json:"name"`
	DepartmentID   string `json:"department_id"`
	DepartmentName string `json:"department_name,omitempty"`
	Archived       bool   `json:"archived"`
	CreatedBy      string `json:"created_by,omitempty"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	// MyRole is the caller's membership role, empty when not a member.
	MyRole string `json:"my_role,omitempty" enum:"OWNER,MEMBER,VIEWER,"`
}

type ProjectMember struct {
	ProjectID      string   `json:"project_id"`
	UserID         string   `json:"user_id"`
	Email          string   `json:"email"`
	Name           string   `json:"name,omitempty"`
	DepartmentID   string   `json:"department_id,omitempty"`
	DepartmentName string   `json:"department_name,omitempty"`
	GlobalRoles    []string `json:"global_roles"`
	Role           string   `json:"role" enum:"OWNER,MEMBER,VIEWER"`
	JoinedAt       string   `json:"joined_at" format:"date-time"`
}

type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusReview     TaskStatus = "REVIEW"
	StatusDone       TaskStatus = "DONE"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusReview, StatusDone:
		return true
	}
	return false
}

// ParseTaskStatus normalizes case; ok is false for unknown values.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	v := TaskStatus(strings.ToUpper(strings.TrimSpace(s)))
	return v, v.Valid()
}

type TaskPriority string

const (
	PriorityLow      TaskPriority = "LOW"
	PriorityMedium   TaskPriority = "MEDIUM"
	PriorityHigh     TaskPriority = "HIGH"
	PriorityCritical TaskPriority = "CRITICAL"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

func ParseTaskPriority(s string) (TaskPriority, bool) {
	v := TaskPriority(strings.ToUpper(strings.TrimSpace(s)))
	return v, v.Valid()
}

type Task struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"project_id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Status         TaskStatus     `json:"status" enum:"TODO,IN_PROGRESS,REVIEW,DONE"`
	Priority       TaskPriority   `json:"priority" enum:"LOW,MEDIUM,HIGH,CRITICAL"`
	DueDate        *string        `json:"due_date,omitempty" format:"date-time"`
	CreatedBy      string         `json:"created_by,omitempty"`
	CreatedByEmail string         `json:"created_by_email,omitempty"`
	CreatedAt      string         `json:"created_at" format:"date-time"`
	UpdatedAt      string         `json:"updated_at" format:"date-time"`
	Assignees      []TaskAssignee `json:"assignees"`
}

type TaskAssignee struct {
	TaskID     string `json:"task_id"`
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	AssignedBy string `json:"assigned_by,omitempty"`
	AssignedAt string `json:"assigned_at" format:"date-time"`
}

type Comment struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	AuthorID    string `json:"author_id,omitempty"`
	AuthorEmail string `json:"author_email,omitempty"`
	Body        string `json:"body"`
	BodyHTML    string `json:"body_html,omitempty" doc:"HTML-escaped body with line breaks as <br>"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

// Page is one slice of a paginated listing.
type Page[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}
