package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the engine.
const (
	ProjectCreated     = "project.created"
	ProjectUpdated     = "project.updated"
	ProjectDeleted     = "project.deleted"
	MemberAdded        = "member.added"
	MemberRoleChanged  = "member.role_changed"
	MemberRemoved      = "member.removed"
	TaskCreated        = "task.created"
	TaskUpdated        = "task.updated"
	TaskDeleted        = "task.deleted"
	TaskAssigned       = "task.assigned"
	TaskUnassigned     = "task.unassigned"
	CommentCreated     = "comment.created"
	DepartmentCreated  = "department.created"
	DepartmentUpdated  = "department.updated"
	DepartmentDeleted  = "department.deleted"
	UserRegistered     = "user.registered"
	UserRolesChanged   = "user.roles_changed"
	UserDepartmentSet  = "user.department_changed"
	UserPasswordReset  = "user.password_reset"
	APIKeyCreated      = "api_key.created"
	APIKeyDeleted      = "api_key.deleted"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Entry describes one audit row. ProjectID and EntityID may be empty.
type Entry struct {
	Type       string
	ProjectID  string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    EventPayload
}

// Append writes the entry inside the caller's transaction so the audit row
// commits or rolls back together with the mutation.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	if tx == nil {
		return fmt.Errorf("append %s: transaction required", e.Type)
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format("2006-01-02T15:04:05.000000Z")
	payload := e.Payload
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	actor := e.ActorID
	if actor == "" {
		actor = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, e.Type, nullable(e.ProjectID), e.EntityKind, nullable(e.EntityID), actor, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
