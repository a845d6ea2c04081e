package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"minijira/internal/db"
	"minijira/internal/domain"
	"minijira/internal/engine"
	"minijira/internal/engine/auth"
	"minijira/internal/migrate"
	"minijira/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Users  map[string]string
}

// newTestEnv seeds two departments and a fixed cast:
// admin (ADMIN, ops), manager (MANAGER, eng), alice and bob (USER, eng),
// carol (USER, ops).
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	eng := engine.New(conn, zap.NewNop())
	eng.BcryptCost = bcrypt.MinCost
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	ctx := context.Background()

	for id, name := range map[string]string{"dep_eng": "Engineering", "dep_ops": "Operations"} {
		_, _, err := eng.EnsureDepartment(ctx, id, name)
		require.NoError(t, err)
	}
	cast := []engine.SeedUserOptions{
		{Email: "admin@demo.com", Name: "Admin", DepartmentID: "dep_ops", Roles: []string{"ADMIN"}},
		{Email: "manager@demo.com", Name: "Manager", DepartmentID: "dep_eng", Roles: []string{"MANAGER"}},
		{Email: "alice@demo.com", Name: "Alice", DepartmentID: "dep_eng"},
		{Email: "bob@demo.com", Name: "Bob", DepartmentID: "dep_eng"},
		{Email: "carol@demo.com", Name: "Carol", DepartmentID: "dep_ops"},
	}
	users := map[string]string{}
	for _, u := range cast {
		u.Password = "secret"
		created, ok, err := eng.EnsureUser(ctx, u)
		require.NoError(t, err)
		require.True(t, ok)
		users[strings.ToLower(u.Name)] = created.ID
	}
	return testEnv{Engine: eng, Ctx: ctx, Users: users}
}

func (env testEnv) project(t *testing.T, owner, key string) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, env.Users[owner], engine.ProjectCreateOptions{Key: key, Name: key + " project"})
	require.NoError(t, err)
	return p
}

func (env testEnv) addMember(t *testing.T, actor, projectID, who, role string) {
	t.Helper()
	_, err := env.Engine.AddMember(env.Ctx, env.Users[actor], projectID, who+"@demo.com", role)
	require.NoError(t, err)
}

func isForbidden(err error) bool {
	var fe auth.ForbiddenError
	return errors.As(err, &fe)
}

func isInvalid(err error) bool {
	var ve auth.ValidationError
	return errors.As(err, &ve)
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.Register(env.Ctx, engine.RegisterOptions{
		Email: "dave@demo.com", Password: "pass", Name: "Dave", DepartmentID: "dep_eng",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"USER"}, u.Roles)
	assert.Equal(t, "dep_eng", u.Department())
	assert.Equal(t, "Engineering", u.DepartmentName)

	_, err = env.Engine.Register(env.Ctx, engine.RegisterOptions{
		Email: "DAVE@demo.com", Password: "pass", Name: "Dave", DepartmentID: "dep_eng",
	})
	assert.ErrorIs(t, err, repo.ErrConflict)

	invalid := []engine.RegisterOptions{
		{Email: "nope", Password: "pass", Name: "Dave", DepartmentID: "dep_eng"},
		{Email: "x@demo.com", Password: "abc", Name: "Dave", DepartmentID: "dep_eng"},
		{Email: "x@demo.com", Password: "pass", Name: "D", DepartmentID: "dep_eng"},
		{Email: "x@demo.com", Password: "pass", Name: "Dave", DepartmentID: "dep_missing"},
	}
	for _, opts := range invalid {
		_, err := env.Engine.Register(env.Ctx, opts)
		assert.True(t, isInvalid(err), "expected validation error for %+v, got %v", opts, err)
	}

	got, err := env.Engine.Login(env.Ctx, "dave@demo.com", "pass")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = env.Engine.Login(env.Ctx, "dave@demo.com", "wrong")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	_, err = env.Engine.Login(env.Ctx, "ghost@demo.com", "pass")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	me, err := env.Engine.Me(env.Ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "dave@demo.com", me.Email)
	_, err = env.Engine.Me(env.Ctx, "missing")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestCreateProjectResolvesDepartment(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.Engine.CreateProject(env.Ctx, env.Users["alice"], engine.ProjectCreateOptions{
		Key: "alpha", Name: "Alpha", DepartmentID: "dep_ops",
	})
	require.NoError(t, err)
	assert.Equal(t, "dep_eng", p.DepartmentID, "plain users always get their own department")
	assert.Equal(t, "ALPHA", p.Key)
	assert.Equal(t, string(auth.ProjectOwner), p.MyRole)

	_, err = env.Engine.CreateProject(env.Ctx, env.Users["manager"], engine.ProjectCreateOptions{
		Key: "BETA", Name: "Beta", DepartmentID: "dep_ops",
	})
	assert.True(t, isForbidden(err), "manager targeting another department: %v", err)

	p, err = env.Engine.CreateProject(env.Ctx, env.Users["manager"], engine.ProjectCreateOptions{Key: "BETA", Name: "Beta"})
	require.NoError(t, err)
	assert.Equal(t, "dep_eng", p.DepartmentID)

	p, err = env.Engine.CreateProject(env.Ctx, env.Users["admin"], engine.ProjectCreateOptions{
		Key: "GAMMA", Name: "Gamma", DepartmentID: "dep_eng",
	})
	require.NoError(t, err)
	assert.Equal(t, "dep_eng", p.DepartmentID)

	_, err = env.Engine.CreateProject(env.Ctx, env.Users["admin"], engine.ProjectCreateOptions{
		Key: "DELTA", Name: "Delta", DepartmentID: "dep_missing",
	})
	assert.True(t, isInvalid(err))

	_, err = env.Engine.CreateProject(env.Ctx, env.Users["bob"], engine.ProjectCreateOptions{Key: "ALPHA", Name: "Alpha again"})
	assert.ErrorIs(t, err, repo.ErrConflict)

	_, err = env.Engine.CreateProject(env.Ctx, env.Users["bob"], engine.ProjectCreateOptions{Key: "1BAD", Name: "Bad key"})
	assert.True(t, isInvalid(err))
	_, err = env.Engine.CreateProject(env.Ctx, env.Users["bob"], engine.ProjectCreateOptions{Key: "OK", Name: "No"})
	assert.True(t, isInvalid(err))
}

func TestProjectNotFoundBeforeAuthorization(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.GetProject(env.Ctx, env.Users["carol"], "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = env.Engine.UpdateTask(env.Ctx, env.Users["carol"], "missing", engine.TaskUpdateOptions{})
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = env.Engine.GetProject(env.Ctx, "", "missing")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestManagerSeesDepartmentProjects(t *testing.T) {
	env := newTestEnv(t)
	eng := env.project(t, "alice", "ENG")
	ops := env.project(t, "carol", "OPS")

	got, err := env.Engine.GetProject(env.Ctx, env.Users["manager"], eng.ID)
	require.NoError(t, err)
	assert.Empty(t, got.MyRole)

	_, err = env.Engine.UpdateProject(env.Ctx, env.Users["manager"], eng.ID, engine.ProjectUpdateOptions{Name: "Renamed"})
	require.NoError(t, err, "managers manage their department's projects")

	_, err = env.Engine.AddMember(env.Ctx, env.Users["manager"], eng.ID, "bob@demo.com", "MEMBER")
	assert.True(t, isForbidden(err), "managing members stays with owners and admins")

	_, err = env.Engine.GetProject(env.Ctx, env.Users["manager"], ops.ID)
	assert.True(t, isForbidden(err))
	_, err = env.Engine.GetProject(env.Ctx, env.Users["bob"], eng.ID)
	assert.True(t, isForbidden(err), "same department alone does not grant a plain user access")

	page, err := env.Engine.ListProjects(env.Ctx, env.Users["manager"], engine.ProjectListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, eng.ID, page.Items[0].ID)

	page, err = env.Engine.ListProjects(env.Ctx, env.Users["admin"], engine.ProjectListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = env.Engine.ListProjects(env.Ctx, env.Users["bob"], engine.ProjectListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.NotNil(t, page.Items)
}

func TestRoleChangesApplyImmediately(t *testing.T) {
	env := newTestEnv(t)
	ops := env.project(t, "carol", "OPS")

	_, err := env.Engine.GetProject(env.Ctx, env.Users["alice"], ops.ID)
	require.True(t, isForbidden(err))

	_, err = env.Engine.SetUserRoles(env.Ctx, env.Users["admin"], env.Users["alice"], []string{"admin"})
	require.NoError(t, err)
	_, err = env.Engine.GetProject(env.Ctx, env.Users["alice"], ops.ID)
	require.NoError(t, err)

	_, err = env.Engine.SetUserRoles(env.Ctx, env.Users["admin"], env.Users["alice"], nil)
	require.NoError(t, err)
	_, err = env.Engine.GetProject(env.Ctx, env.Users["alice"], ops.ID)
	assert.True(t, isForbidden(err))
}

func TestMembersListedByRoleRank(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "alice", "RANK")
	env.addMember(t, "alice", p.ID, "carol", "VIEWER")
	env.addMember(t, "alice", p.ID, "bob", "MEMBER")

	members, err := env.Engine.ListMembers(env.Ctx, env.Users["carol"], p.ID)
	require.NoError(t, err)
	var roles []string
	for _, m := range members {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{"OWNER", "MEMBER", "VIEWER"}, roles)
}

func TestMemberManagementAndSelfGuard(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "alice", "TEAM")
	env.addMember(t, "alice", p.ID, "bob", "")

	members, err := env.Engine.ListMembers(env.Ctx, env.Users["bob"], p.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "OWNER", members[0].Role)
	assert.Equal(t, "MEMBER", members[1].Role)

	_, err = env.Engine.AddMember(env.Ctx, env.Users["alice"], p.ID, "bob@demo.com", "VIEWER")
	assert.ErrorIs(t, err, repo.ErrConflict)
	_, err = env.Engine.AddMember(env.Ctx, env.Users["alice"], p.ID, "ghost@demo.com", "VIEWER")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = env.Engine.AddMember(env.Ctx, env.Users["alice"], p.ID, "carol@demo.com", "BOSS")
	assert.True(t, isInvalid(err))
	_, err = env.Engine.AddMember(env.Ctx, env.Users["bob"], p.ID, "carol@demo.com", "VIEWER")
	assert.True(t, isForbidden(err))

	err = env.Engine.UpdateMemberRole(env.Ctx, env.Users["alice"], p.ID, env.Users["alice"], "VIEWER")
	assert.True(t, isInvalid(err))
	err = env.Engine.RemoveMember(env.Ctx, env.Users["alice"], p.ID, env.Users["alice"])
	assert.True(t, isInvalid(err))
	err = env.Engine.UpdateMemberRole(env.Ctx, env.Users["alice"], p.ID, env.Users["bob"], "")
	assert.True(t, isInvalid(err))

	require.NoError(t, env.Engine.UpdateMemberRole(env.Ctx, env.Users["alice"], p.ID, env.Users["bob"], "owner"))
	role, ok, err := env.Engine.MyRole(env.Ctx, env.Users["bob"], p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, auth.ProjectOwner, role)

	// the promoted owner may now remove the original one
	require.NoError(t, env.Engine.RemoveMember(env.Ctx, env.Users["bob"], p.ID, env.Users["alice"]))
	_, err = env.Engine.GetProject(env.Ctx, env.Users["alice"], p.ID)
	assert.True(t, isForbidden(err))

	err = env.Engine.RemoveMember(env.Ctx, env.Users["bob"], p.ID, env.Users["carol"])
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestCreatorCanEditOwnTask(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "alice", "WORK")
	env.addMember(t, "alice", p.ID, "bob", "VIEWER")

	mine, err := env.Engine.CreateTask(env.Ctx, env.Users["bob"], p.ID, engine.TaskCreateOptions{Title: "Viewer task"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTodo, mine.Status)
	assert.Equal(t, domain.PriorityMedium, mine.Priority)

	theirs, err := env.Engine.CreateTask(env.Ctx, env.Users["alice"], p.ID, engine.TaskCreateOptions{Title: "Owner task", Priority: "high"})
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, theirs.Priority)

	status := "in_progress"
	updated, err := env.Engine.UpdateTask(env.Ctx, env.Users["bob"], mine.ID, engine.TaskUpdateOptions{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, updated.Status)

	_, err = env.Engine.UpdateTask(env.Ctx, env.Users["bob"], theirs.ID, engine.TaskUpdateOptions{Status: &status})
	assert.True(t, isForbidden(err))
	assert.True(t, isForbidden(env.Engine.DeleteTask(env.Ctx, env.Users["bob"], theirs.ID)))

	_, err = env.Engine.UpdateTask(env.Ctx, env.Users["alice"], mine.ID, engine.TaskUpdateOptions{Status: &status})
	require.NoError(t, err, "owners edit any task")

	_, err = env.Engine.CreateTask(env.Ctx, env.Users["carol"], p.ID, engine.TaskCreateOptions{Title: "Outsider"})
	assert.True(t, isForbidden(err))

	require.NoError(t, env.Engine.DeleteTask(env.Ctx, env.Users["bob"], mine.ID))
	_, err = env.Engine.GetTask(env.Ctx, env.Users["alice"], mine.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestArchivedProjectRejectsTaskWrites(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "alice", "OLD")
	task, err := env.Engine.CreateTask(env.Ctx, env.Users["alice"], p.ID, engine.TaskCreateOptions{Title: "Before archive"})
	require.NoError(t, err)

	archived, err := env.Engine.UpdateProject(env.Ctx, env.Users["alice"], p.ID, engine.ProjectUpdateOptions{Name: p.Name, Archived: true})
	require.NoError(t, err)
	assert.True(t, archived.Archived)

	_, err = env.Engine.CreateTask(env.Ctx, env.Users["alice"], p.ID, engine.TaskCreateOptions{Title: "After archive"})
	require.True(t, isInvalid(err))
	assert.Contains(t, err.Error(), "archived")

	_, err = env.Engine.CreateTask(env.Ctx, env.Users["alice"], p.ID, engine.TaskCreateOptions{Title: "x"})
	require.True(t, isInvalid(err))
	assert.Contains(t, err.Error(), "title", "title is validated before the archived check")

	title := "Renamed"
	_, err = env.Engine.UpdateTask(env.Ctx, env.Users["alice"], task.ID, engine.TaskUpdateOptions{Title: &title})
	assert.True(t, isInvalid(err))

	page, err := env.Engine.ListProjects(env.Ctx, env.Users["alice"], engine.ProjectListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	page, err = env.Engine.ListProjects(env.Ctx, env.Users["alice"], engine.ProjectListOptions{IncludeArchived: true})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestAssignIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "alice", "ASG")
	task, err := env.Engine.CreateTask(env.Ctx, env.Users["alice"], p.ID, engine.TaskCreateOptions{Title: "Assign me"})
	require.NoError(t, err)

	require.NoError(t, env.Engine.AssignTask(env.Ctx, env.Users["alice"], task.ID, env.Users["bob"]))
	require.NoError(t, env.Engine.AssignTask(env.Ctx, env.Users["alice"], task.ID, env.Users["bob"]))
	got, err := env.Engine.GetTask(env.Ctx, env.Users["alice"], task.ID)
	require.NoError(t, err)
	require.Len(t, got.Assignees, 1)
	assert.Equal(t, "bob@demo.com", got.Assignees[0].Email)

	err = env.Engine.AssignTask(env.Ctx, env.Users["alice"], task.ID, "ghost")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	require.NoError(t, env.Engine.UnassignTask(env.Ctx, env.Users["alice"], task.ID, env.Users["bob"]))
	require.NoError(t, env.Engine.UnassignTask(env.Ctx, env.Users["alice"], task.ID, env.Users["bob"]))
	got, err = env.Engine.GetTask(env.Ctx, env.Users["alice"], task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Assignees)
}

func TestCommentsKeepTextAndAreBounded(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "alice", "TALK")
	env.addMember(t, "alice", p.ID, "bob", "VIEWER")
	task, err := env.Engine.CreateTask(env.Ctx, env.Users["alice"], p.ID, engine.TaskCreateOptions{Title: "Discuss"})
	require.NoError(t, err)

	c, err := env.Engine.CreateComment(env.Ctx, env.Users["bob"], task.ID, "  <b>looks</b> good & done  ")
	require.NoError(t, err)
	assert.Equal(t, "<b>looks</b> good & done", c.Body)
	assert.Equal(t, "&lt;b&gt;looks&lt;/b&gt; good &amp; done", c.BodyHTML)
	assert.Equal(t, "bob@demo.com", c.AuthorEmail)

	_, err = env.Engine.CreateComment(env.Ctx, env.Users["bob"], task.ID, " \n\t ")
	assert.True(t, isInvalid(err))
	_, err = env.Engine.CreateComment(env.Ctx, env.Users["bob"], task.ID, strings.Repeat("a", 4001))
	assert.True(t, isInvalid(err))
	_, err = env.Engine.CreateComment(env.Ctx, env.Users["bob"], task.ID, strings.Repeat("a", 4000))
	require.NoError(t, err)

	_, err = env.Engine.CreateComment(env.Ctx, env.Users["carol"], task.ID, "hello")
	assert.True(t, isForbidden(err))

	comments, err := env.Engine.ListComments(env.Ctx, env.Users["alice"], task.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 2)
}

func TestCommentBodiesRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "alice", "TEXT")
	task, err := env.Engine.CreateTask(env.Ctx, env.Users["alice"], p.ID, engine.TaskCreateOptions{Title: "Escaping"})
	require.NoError(t, err)

	bodies := []string{
		"if a<b && c>d then",
		"use List<String> here",
		"escape it as &lt;b&gt; in html",
		"<ok>",
		"<script>alert(1)</script>",
	}
	for _, body := range bodies {
		c, err := env.Engine.CreateComment(env.Ctx, env.Users["alice"], task.ID, body)
		require.NoError(t, err, body)
		assert.Equal(t, body, c.Body)
		assert.NotContains(t, c.BodyHTML, "<", body)
	}

	comments, err := env.Engine.ListComments(env.Ctx, env.Users["alice"], task.ID)
	require.NoError(t, err)
	require.Len(t, comments, len(bodies))
	stored := map[string]string{}
	for _, c := range comments {
		stored[c.Body] = c.BodyHTML
	}
	for _, body := range bodies {
		assert.Contains(t, stored, body)
	}
	assert.Equal(t, "escape it as &amp;lt;b&amp;gt; in html", stored["escape it as &lt;b&gt; in html"])
	assert.Equal(t, "use List&lt;String&gt; here", stored["use List<String> here"])

	c, err := env.Engine.CreateComment(env.Ctx, env.Users["alice"], task.ID, "first line\nsecond line")
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line", c.Body)
	assert.Equal(t, "first line<br>second line", c.BodyHTML)
}

func TestDeleteProjectCascades(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "alice", "GONE")
	env.addMember(t, "alice", p.ID, "bob", "MEMBER")
	var taskIDs []string
	for _, title := range []string{"First task", "Second task"} {
		task, err := env.Engine.CreateTask(env.Ctx, env.Users["alice"], p.ID, engine.TaskCreateOptions{Title: title})
		require.NoError(t, err)
		require.NoError(t, env.Engine.AssignTask(env.Ctx, env.Users["alice"], task.ID, env.Users["bob"]))
		_, err = env.Engine.CreateComment(env.Ctx, env.Users["bob"], task.ID, "on it")
		require.NoError(t, err)
		taskIDs = append(taskIDs, task.ID)
	}

	assert.True(t, isForbidden(env.Engine.DeleteProject(env.Ctx, env.Users["alice"], p.ID)), "owners cannot delete projects")
	require.NoError(t, env.Engine.DeleteProject(env.Ctx, env.Users["admin"], p.ID))

	footprint, err := env.Engine.Repo.ProjectFootprint(env.Ctx, p.ID)
	require.NoError(t, err)
	for table, n := range footprint {
		assert.Zero(t, n, table)
	}
	for _, id := range taskIDs {
		for _, table := range []string{"task_assignees", "comments"} {
			var n int
			require.NoError(t, env.Engine.DB.QueryRowContext(env.Ctx, `SELECT COUNT(*) FROM `+table+` WHERE task_id=?`, id).Scan(&n))
			assert.Zero(t, n, table)
		}
	}
	assert.Zero(t, footprint["events"])
	var deleted int
	require.NoError(t, env.Engine.DB.QueryRowContext(env.Ctx,
		`SELECT COUNT(*) FROM events WHERE type='project.deleted' AND entity_id=? AND project_id IS NULL`, p.ID).Scan(&deleted))
	assert.Equal(t, 1, deleted)
	var detached int
	require.NoError(t, env.Engine.DB.QueryRowContext(env.Ctx,
		`SELECT COUNT(*) FROM events WHERE type='comment.created' AND project_id IS NULL`).Scan(&detached))
	assert.Equal(t, 2, detached, "history survives without the project id")
	assert.ErrorIs(t, env.Engine.DeleteProject(env.Ctx, env.Users["admin"], p.ID), repo.ErrNotFound)
}

func TestAdminUserManagement(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.ListUsers(env.Ctx, env.Users["manager"], engine.UserListOptions{})
	assert.True(t, isForbidden(err))

	page, err := env.Engine.ListUsers(env.Ctx, env.Users["admin"], engine.UserListOptions{PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, page.PageSize)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, "admin@demo.com", page.Items[0].Email)

	page, err = env.Engine.ListUsers(env.Ctx, env.Users["admin"], engine.UserListOptions{Query: "car"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	u, err := env.Engine.SetUserRoles(env.Ctx, env.Users["admin"], env.Users["bob"], []string{"admin", " manager", "ADMIN"})
	require.NoError(t, err)
	assert.Equal(t, []string{"MANAGER", "ADMIN"}, u.Roles)

	u, err = env.Engine.SetUserRoles(env.Ctx, env.Users["admin"], env.Users["bob"], []string{})
	require.NoError(t, err)
	assert.Equal(t, []string{"USER"}, u.Roles)

	_, err = env.Engine.SetUserRoles(env.Ctx, env.Users["admin"], env.Users["bob"], []string{"ROOT"})
	assert.True(t, isInvalid(err))
	_, err = env.Engine.SetUserRoles(env.Ctx, env.Users["admin"], "ghost", []string{"USER"})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	u, err = env.Engine.SetUserDepartment(env.Ctx, env.Users["admin"], env.Users["bob"], "dep_ops")
	require.NoError(t, err)
	assert.Equal(t, "dep_ops", u.Department())
	_, err = env.Engine.SetUserDepartment(env.Ctx, env.Users["admin"], env.Users["bob"], "dep_missing")
	assert.True(t, isInvalid(err))

	assert.True(t, isInvalid(env.Engine.ResetPassword(env.Ctx, env.Users["admin"], env.Users["bob"], "abc")))
	require.NoError(t, env.Engine.ResetPassword(env.Ctx, env.Users["admin"], env.Users["bob"], "newpass"))
	_, err = env.Engine.Login(env.Ctx, "bob@demo.com", "newpass")
	require.NoError(t, err)
}

func TestAdminDepartments(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateDepartment(env.Ctx, env.Users["alice"], "", "Sales")
	assert.True(t, isForbidden(err))

	d, err := env.Engine.CreateDepartment(env.Ctx, env.Users["admin"], "", "Sales")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(d.ID, "dep_"))

	_, err = env.Engine.CreateDepartment(env.Ctx, env.Users["admin"], "dep_eng", "Another")
	assert.ErrorIs(t, err, repo.ErrConflict)
	_, err = env.Engine.CreateDepartment(env.Ctx, env.Users["admin"], "", "X")
	assert.True(t, isInvalid(err))

	require.NoError(t, env.Engine.RenameDepartment(env.Ctx, env.Users["admin"], d.ID, "Sales EU"))
	assert.ErrorIs(t, env.Engine.RenameDepartment(env.Ctx, env.Users["admin"], "dep_missing", "Nothing"), repo.ErrNotFound)

	assert.True(t, isInvalid(env.Engine.DeleteDepartment(env.Ctx, env.Users["admin"], "dep_eng")))
	require.NoError(t, env.Engine.DeleteDepartment(env.Ctx, env.Users["admin"], "dep_missing"))
	require.NoError(t, env.Engine.DeleteDepartment(env.Ctx, env.Users["admin"], d.ID))

	deps, err := env.Engine.ListDepartments(env.Ctx)
	require.NoError(t, err)
	assert.Len(t, deps, 2)
}

func TestAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.Engine.CreateAPIKey(env.Ctx, env.Users["alice"], "ci")
	require.NoError(t, err)
	require.NotEmpty(t, created.Key)

	owner, err := env.Engine.UserForAPIKey(env.Ctx, created.Key)
	require.NoError(t, err)
	assert.Equal(t, env.Users["alice"], owner)
	_, err = env.Engine.UserForAPIKey(env.Ctx, "mj_bogus")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	keys, err := env.Engine.ListAPIKeys(env.Ctx, env.Users["alice"])
	require.NoError(t, err)
	require.Len(t, keys, 1)

	assert.True(t, isForbidden(env.Engine.DeleteAPIKey(env.Ctx, env.Users["bob"], created.ID)))
	require.NoError(t, env.Engine.DeleteAPIKey(env.Ctx, env.Users["alice"], created.ID))
	_, err = env.Engine.UserForAPIKey(env.Ctx, created.Key)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestMutationsAppendEvents(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "alice", "LOG")
	_, err := env.Engine.CreateTask(env.Ctx, env.Users["alice"], p.ID, engine.TaskCreateOptions{Title: "Logged task"})
	require.NoError(t, err)

	evs, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, repo.EventFilter{ProjectID: p.ID})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	types := []string{evs[0].Type, evs[1].Type}
	assert.ElementsMatch(t, []string{"project.created", "task.created"}, types)
	for _, ev := range evs {
		assert.Equal(t, env.Users["alice"], ev.ActorID)
	}
}
