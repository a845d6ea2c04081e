package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"minijira/internal/domain"
	"minijira/internal/engine/auth"
	"minijira/internal/events"
	"minijira/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Policy auth.Policy
	Log    *zap.Logger
	// Sanitizer filters rendered comment HTML. Stored bodies are never rewritten.
	Sanitizer  *bluemonday.Policy
	BcryptCost int
	Now        func() time.Time
}

func New(db *sql.DB, log *zap.Logger) Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:         db,
		Repo:       r,
		Events:     events.Writer{},
		Policy:     auth.Policy{Members: r},
		Log:        log,
		Sanitizer:  commentPolicy(),
		BcryptCost: bcrypt.DefaultCost,
		Now:        time.Now,
	}
}

func commentPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("br")
	return p
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return repo.FormatTime(e.now())
}

func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

func (e Engine) logger() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

func newID() string {
	return uuid.NewString()
}

// inTx runs fn inside a transaction and commits when it returns nil.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Caller loads a fresh identity snapshot for userID. Roles and department
// are read from storage on every call so changes apply immediately. A
// principal whose account is gone is unauthenticated.
func (e Engine) Caller(ctx context.Context, userID string) (auth.Caller, error) {
	if strings.TrimSpace(userID) == "" {
		return auth.Caller{}, auth.ErrUnauthenticated
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if isNotFound(err) {
		return auth.Caller{}, auth.ErrUnauthenticated
	}
	if err != nil {
		return auth.Caller{}, err
	}
	return callerFromUser(u), nil
}

func callerFromUser(u domain.User) auth.Caller {
	roles, err := auth.ParseRoleSet(u.Roles)
	if err != nil {
		// Stored roles are CHECK-constrained; treat anything odd as plain USER.
		roles = auth.NewRoleSet(auth.RoleUser)
	}
	return auth.Caller{ID: u.ID, DepartmentID: u.Department(), Roles: roles}
}

func projectRef(p domain.Project) auth.ProjectRef {
	return auth.ProjectRef{ID: p.ID, DepartmentID: p.DepartmentID}
}

// loadProject resolves caller and project, reporting a missing project
// before any authorization decision.
func (e Engine) loadProject(ctx context.Context, callerID, projectID string) (auth.Caller, domain.Project, error) {
	caller, err := e.Caller(ctx, callerID)
	if err != nil {
		return auth.Caller{}, domain.Project{}, err
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return auth.Caller{}, domain.Project{}, err
	}
	return caller, p, nil
}

// loadTask resolves caller, task and the owning project.
func (e Engine) loadTask(ctx context.Context, callerID, taskID string) (auth.Caller, domain.Task, domain.Project, error) {
	caller, err := e.Caller(ctx, callerID)
	if err != nil {
		return auth.Caller{}, domain.Task{}, domain.Project{}, err
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return auth.Caller{}, domain.Task{}, domain.Project{}, err
	}
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return auth.Caller{}, domain.Task{}, domain.Project{}, err
	}
	return caller, t, p, nil
}

func clampPage(page, pageSize, defSize, minSize, maxSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = defSize
	}
	if pageSize < minSize {
		pageSize = minSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize
}

func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}
