package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"minijira/internal/domain"
	"minijira/internal/engine/auth"
	"minijira/internal/events"
	"minijira/internal/repo"
)

const minPasswordLength = 4

func (e Engine) hashPassword(password string) (string, error) {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return "", auth.Invalidf("password must be at least %d characters", minPasswordLength)
	}
	cost := e.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type RegisterOptions struct {
	Email        string
	Password     string
	Name         string
	DepartmentID string
}

// Register creates a self-service account with the USER role only.
func (e Engine) Register(ctx context.Context, opts RegisterOptions) (domain.User, error) {
	email := strings.TrimSpace(opts.Email)
	if !strings.Contains(email, "@") {
		return domain.User{}, auth.Invalidf("invalid email")
	}
	if utf8.RuneCountInString(opts.Password) < minPasswordLength {
		return domain.User{}, auth.Invalidf("password must be at least %d characters", minPasswordLength)
	}
	name := strings.TrimSpace(opts.Name)
	if utf8.RuneCountInString(name) < 2 {
		return domain.User{}, auth.Invalidf("name must be at least 2 characters")
	}
	return e.createUser(ctx, "", email, opts.Password, name, opts.DepartmentID, auth.NewRoleSet(auth.RoleUser))
}

func (e Engine) createUser(ctx context.Context, actorID, email, password, name, departmentID string, roles auth.RoleSet) (domain.User, error) {
	departmentID = strings.TrimSpace(departmentID)
	exists, err := e.Repo.DepartmentExists(ctx, departmentID)
	if err != nil {
		return domain.User{}, err
	}
	if departmentID == "" || !exists {
		return domain.User{}, auth.Invalidf("unknown department %q", departmentID)
	}
	if _, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, repo.ConflictError{Msg: "email " + email + " already registered"}
	} else if !isNotFound(err) {
		return domain.User{}, err
	}
	hash, err := e.hashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           newID(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		DepartmentID: &departmentID,
		Roles:        roles.Normalize().Strings(),
		CreatedAt:    e.timestamp(),
	}
	if actorID == "" {
		actorID = u.ID
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.UserRegistered, EntityKind: "user", EntityID: u.ID, ActorID: actorID,
			Payload: events.EventPayload{"email": u.Email, "department_id": departmentID, "roles": u.Roles},
		})
	})
	if err != nil {
		return domain.User{}, err
	}
	e.logger().Info("user registered", zap.String("user_id", u.ID), zap.String("department_id", departmentID))
	return e.Repo.GetUser(ctx, u.ID)
}

// Login checks the credentials. Unknown email and wrong password are not
// distinguished.
func (e Engine) Login(ctx context.Context, email, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if isNotFound(err) {
		return domain.User{}, auth.ErrUnauthenticated
	}
	if err != nil {
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return domain.User{}, auth.ErrUnauthenticated
	}
	return u, nil
}

// Me returns the caller's own profile. A token for a deleted user is no
// longer valid.
func (e Engine) Me(ctx context.Context, userID string) (domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.User{}, auth.ErrUnauthenticated
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if isNotFound(err) {
		return domain.User{}, auth.ErrUnauthenticated
	}
	return u, err
}

// SeedUserOptions describe an account created outside self-registration,
// from the CLI or the seed section of the config file.
type SeedUserOptions struct {
	Email        string
	Password     string
	Name         string
	DepartmentID string
	Roles        []string
}

// EnsureUser creates the account unless the email is already registered.
// created reports whether a row was written.
func (e Engine) EnsureUser(ctx context.Context, opts SeedUserOptions) (domain.User, bool, error) {
	email := strings.TrimSpace(opts.Email)
	if !strings.Contains(email, "@") {
		return domain.User{}, false, auth.Invalidf("invalid email %q", opts.Email)
	}
	if u, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
		return u, false, nil
	} else if !isNotFound(err) {
		return domain.User{}, false, err
	}
	roles, err := auth.ParseRoleSet(opts.Roles)
	if err != nil {
		return domain.User{}, false, err
	}
	u, err := e.createUser(ctx, "system", email, opts.Password, strings.TrimSpace(opts.Name), opts.DepartmentID, roles)
	if err != nil {
		return domain.User{}, false, err
	}
	return u, true, nil
}

// EnsureDepartment creates the department unless the id exists.
func (e Engine) EnsureDepartment(ctx context.Context, id, name string) (domain.Department, bool, error) {
	if d, err := e.Repo.GetDepartment(ctx, strings.TrimSpace(id)); err == nil {
		return d, false, nil
	} else if !isNotFound(err) {
		return domain.Department{}, false, err
	}
	d, err := e.createDepartment(ctx, "system", id, name)
	if err != nil {
		return domain.Department{}, false, err
	}
	return d, true, nil
}

// CreatedAPIKey carries the plaintext key, which is only available once.
type CreatedAPIKey struct {
	domain.APIKey
	Key string `json:"key"`
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "mj_" + hex.EncodeToString(buf), nil
}

// CreateAPIKey issues a key for the caller. Only the hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, callerID, name string) (CreatedAPIKey, error) {
	caller, err := e.Caller(ctx, callerID)
	if err != nil {
		return CreatedAPIKey{}, err
	}
	return e.createAPIKey(ctx, caller.ID, caller.ID, name)
}

// CreateAPIKeyFor issues a key for userID without a caller check. It backs the
// local CLI, which already has direct database access.
func (e Engine) CreateAPIKeyFor(ctx context.Context, userID, name string) (CreatedAPIKey, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return CreatedAPIKey{}, err
	}
	return e.createAPIKey(ctx, "system", userID, name)
}

func (e Engine) createAPIKey(ctx context.Context, actorID, userID, name string) (CreatedAPIKey, error) {
	plain, err := generateAPIKey()
	if err != nil {
		return CreatedAPIKey{}, err
	}
	key := domain.APIKey{
		ID:        newID(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.timestamp(),
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.APIKeyCreated, EntityKind: "api_key", EntityID: key.ID, ActorID: actorID,
			Payload: events.EventPayload{"user_id": userID, "name": key.Name},
		})
	})
	if err != nil {
		return CreatedAPIKey{}, err
	}
	return CreatedAPIKey{APIKey: key, Key: plain}, nil
}

// ListAPIKeys lists the caller's own keys.
func (e Engine) ListAPIKeys(ctx context.Context, callerID string) ([]domain.APIKey, error) {
	caller, err := e.Caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListAPIKeys(ctx, caller.ID)
}

// DeleteAPIKey revokes a key owned by the caller. ADMIN may revoke any key.
func (e Engine) DeleteAPIKey(ctx context.Context, callerID, keyID string) error {
	caller, err := e.Caller(ctx, callerID)
	if err != nil {
		return err
	}
	key, err := e.Repo.GetAPIKey(ctx, keyID)
	if err != nil {
		return err
	}
	if key.UserID != caller.ID && !caller.IsAdmin() {
		return auth.ForbiddenError{Action: "revoke api key"}
	}
	return e.deleteAPIKey(ctx, caller.ID, key)
}

// RevokeAPIKey deletes a key by id without a caller check, for the CLI.
func (e Engine) RevokeAPIKey(ctx context.Context, keyID string) error {
	key, err := e.Repo.GetAPIKey(ctx, keyID)
	if err != nil {
		return err
	}
	return e.deleteAPIKey(ctx, "system", key)
}

func (e Engine) deleteAPIKey(ctx context.Context, actorID string, key domain.APIKey) error {
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteAPIKey(ctx, tx, key.ID); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.APIKeyDeleted, EntityKind: "api_key", EntityID: key.ID, ActorID: actorID,
			Payload: events.EventPayload{"user_id": key.UserID},
		})
	})
}

// UserForAPIKey resolves the owner of a plaintext API key.
func (e Engine) UserForAPIKey(ctx context.Context, plain string) (string, error) {
	if strings.TrimSpace(plain) == "" {
		return "", auth.ErrUnauthenticated
	}
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(plain))
	if errors.Is(err, repo.ErrNotFound) {
		return "", auth.ErrUnauthenticated
	}
	if err != nil {
		return "", err
	}
	return key.UserID, nil
}
