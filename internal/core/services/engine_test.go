package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stackgate/backend/internal/config"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
	"github.com/stackgate/backend/internal/infrastructure/identity"
	"github.com/stackgate/backend/internal/infrastructure/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingDelivery struct {
	mu   sync.Mutex
	msgs []ports.Message
	fail map[string]error
}

func (d *recordingDelivery) Send(_ context.Context, m ports.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[m.Template]; err != nil {
		return err
	}
	d.msgs = append(d.msgs, m)
	return nil
}

func (d *recordingDelivery) byTemplate(name string) []ports.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []ports.Message
	for _, m := range d.msgs {
		if m.Template == name {
			out = append(out, m)
		}
	}
	return out
}

// flakyIdentity fails the next failGrants role grants and counts creations.
type flakyIdentity struct {
	*identity.MemoryBackend
	mu              sync.Mutex
	failGrants      int
	usersCreated    int
	projectsCreated int
}

func (f *flakyIdentity) CreateUser(ctx context.Context, in ports.CreateUserInput) (*domain.Principal, error) {
	f.mu.Lock()
	f.usersCreated++
	f.mu.Unlock()
	return f.MemoryBackend.CreateUser(ctx, in)
}

func (f *flakyIdentity) CreateProject(ctx context.Context, in ports.CreateProjectInput) (*domain.Project, error) {
	f.mu.Lock()
	f.projectsCreated++
	f.mu.Unlock()
	return f.MemoryBackend.CreateProject(ctx, in)
}

func (f *flakyIdentity) GrantRole(ctx context.Context, userID, projectID, role string) error {
	f.mu.Lock()
	if f.failGrants > 0 {
		f.failGrants--
		f.mu.Unlock()
		return errors.New("identity backend unavailable")
	}
	f.mu.Unlock()
	return f.MemoryBackend.GrantRole(ctx, userID, projectID, role)
}

type fixture struct {
	engine   ports.TaskEngine
	store    *memory.Store
	identity *flakyIdentity
	mail     *recordingDelivery
	clock    *fakeClock
	cfg      *config.Config
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, nil)
}

// newFixtureWith lets a test adjust the configuration before the engine is built.
func newFixtureWith(t *testing.T, adjust func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Notifications.Error.Emails = []string{"ops@example.com"}
	if adjust != nil {
		adjust(cfg)
	}

	f := &fixture{
		store:    memory.New(),
		identity: &flakyIdentity{MemoryBackend: identity.NewMemory(bcrypt.MinCost)},
		mail:     &recordingDelivery{fail: map[string]error{}},
		clock:    &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		cfg:      cfg,
	}
	eng, err := NewEngine(EngineConfig{
		Store:    f.store,
		Identity: f.identity,
		Delivery: f.mail,
		Config:   cfg,
		Now:      f.clock.Now,
	})
	require.NoError(t, err)
	f.engine = eng
	return f
}

func (f *fixture) project(t *testing.T, name string) *domain.Project {
	t.Helper()
	p, err := f.identity.CreateProject(context.Background(), ports.CreateProjectInput{Name: name, DomainID: "default"})
	require.NoError(t, err)
	return p
}

func (f *fixture) user(t *testing.T, email, password string) *domain.Principal {
	t.Helper()
	u, err := f.identity.CreateUser(context.Background(), ports.CreateUserInput{
		Name: email, Email: email, Password: password, DomainID: "default",
	})
	require.NoError(t, err)
	return u
}

var admin = domain.RequestContext{Roles: []string{"admin"}, UserID: "admin-1", Username: "admin"}

func manager(projectID string) domain.RequestContext {
	return domain.RequestContext{Roles: []string{"project_admin"}, ProjectID: projectID, UserID: "mgr-1", Username: "mgr"}
}

func signup(name, email string) ports.CreateTaskInput {
	return ports.CreateTaskInput{
		TaskType: "create_project",
		Input: ports.TaskInput{Data: domain.JSONB{
			"project_name": name,
			"email":        email,
			"domain_id":    "default",
		}},
		Request: domain.RequestContext{IPAddress: "10.0.0.1"},
	}
}

func invite(projectID, email string, rc domain.RequestContext, roles ...string) ports.CreateTaskInput {
	return ports.CreateTaskInput{
		TaskType: "invite_user",
		Input: ports.TaskInput{Data: domain.JSONB{
			"email":      email,
			"project_id": projectID,
			"roles":      roles,
			"domain_id":  "default",
		}},
		Request: rc,
	}
}

func resetPassword(email string) ports.CreateTaskInput {
	return ports.CreateTaskInput{
		TaskType: "reset_password",
		Input:    ports.TaskInput{Data: domain.JSONB{"email": email}},
	}
}

func TestCreateProjectSignupEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.engine.CreateTask(ctx, signup("acme", "owner@acme.io"))
	require.NoError(t, err)
	task := created.Task
	assert.True(t, task.Valid())
	assert.False(t, task.Approved)
	assert.Nil(t, created.Token)
	assert.Equal(t, "10.0.0.1", task.IPAddress)
	require.Len(t, f.mail.byTemplate("initial"), 1)
	assert.Equal(t, []string{"owner@acme.io"}, f.mail.byTemplate("initial")[0].Recipients)

	approved, err := f.engine.ApproveTask(ctx, task.ID, admin)
	require.NoError(t, err)
	require.NotNil(t, approved.Token)
	assert.Equal(t, []string{"created token"}, approved.Notes)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), approved.Token.Expires)

	tokenMails := f.mail.byTemplate("token")
	require.Len(t, tokenMails, 1)
	assert.Equal(t, approved.Token.Token, tokenMails[0].Data["token"])

	detail, err := f.engine.GetToken(ctx, approved.Token.Token)
	require.NoError(t, err)
	assert.Equal(t, "create_project", detail.TaskType)
	assert.Equal(t, []string{"new_project_with_user"}, detail.Actions)
	assert.Equal(t, []string{"password"}, detail.RequiredFields)

	_, err = f.engine.RedeemToken(ctx, approved.Token.Token, domain.JSONB{})
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, svcErr.Fields, "password")

	done, err := f.engine.RedeemToken(ctx, approved.Token.Token, domain.JSONB{"password": "s3cret-pass"})
	require.NoError(t, err)
	assert.True(t, done.Task.Completed)
	require.NotNil(t, done.Task.CompletedOn)

	project, err := f.identity.FindProject(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, project)
	owner, err := f.identity.FindUser(ctx, "owner@acme.io")
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.True(t, identity.CheckPassword(owner, "s3cret-pass"))

	roles, err := f.identity.GetRoles(ctx, owner.ID, project.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, f.cfg.Actions["new_project_with_user"].DefaultRoles, roles)

	_, err = f.engine.GetToken(ctx, approved.Token.Token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.Len(t, f.mail.byTemplate("completed"), 1)

	_, err = f.engine.ApproveTask(ctx, task.ID, admin)
	assert.ErrorIs(t, err, ErrTaskCompleted)
}

func TestResetPasswordAutoApprovesAndHidesUnknownUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.user(t, "jane@example.com", "old-password")

	res, err := f.engine.CreateTask(ctx, resetPassword("jane@example.com"))
	require.NoError(t, err)
	assert.Equal(t, []string{"If user with email exists, reset token will be issued."}, res.Notes)
	require.NotNil(t, res.Token)
	assert.Equal(t, f.clock.Now().Add(12*time.Hour), res.Token.Expires)

	_, err = f.engine.RedeemToken(ctx, res.Token.Token, domain.JSONB{"password": "new-password"})
	require.NoError(t, err)

	updated, err := f.identity.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, identity.CheckPassword(updated, "new-password"))
	assert.False(t, identity.CheckPassword(updated, "old-password"))

	unknown, err := f.engine.CreateTask(ctx, resetPassword("nobody@example.com"))
	require.NoError(t, err)
	assert.Equal(t, res.Notes, unknown.Notes)
	assert.Nil(t, unknown.Token)
	assert.False(t, unknown.Task.Approved)
}

func TestInviteUserCreatesAccountOnRedeem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.project(t, "demo")

	res, err := f.engine.CreateTask(ctx, invite(p.ID, "new@demo.io", manager(p.ID), "_member_"))
	require.NoError(t, err)
	require.NotNil(t, res.Token)
	assert.True(t, res.Task.Approved)
	assert.Equal(t, domain.ActionStateExecuted, res.Task.Actions[0].State)

	_, err = f.engine.RedeemToken(ctx, res.Token.Token, domain.JSONB{"password": "pw-12345"})
	require.NoError(t, err)

	u, err := f.identity.FindUser(ctx, "new@demo.io")
	require.NoError(t, err)
	require.NotNil(t, u)
	roles, err := f.identity.GetRoles(ctx, u.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"_member_"}, roles)
}

func TestInviteUserWithRolesAlreadyHeldCompletesWithoutToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.project(t, "demo")
	u := f.user(t, "member@demo.io", "pw")
	require.NoError(t, f.identity.GrantRole(ctx, u.ID, p.ID, "_member_"))

	res, err := f.engine.CreateTask(ctx, invite(p.ID, "member@demo.io", manager(p.ID), "_member_"))
	require.NoError(t, err)
	assert.Nil(t, res.Token)
	assert.True(t, res.Task.Completed)
	assert.Equal(t, domain.ActionStateComplete, res.Task.Actions[0].State)
	assert.False(t, res.Task.Actions[0].NeedToken)
}

func TestInviteRespectsRolePolicyAndProjectScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mine := f.project(t, "mine")
	other := f.project(t, "other")

	res, err := f.engine.CreateTask(ctx, invite(other.ID, "x@other.io", manager(mine.ID), "_member_"))
	require.NoError(t, err)
	assert.False(t, res.Task.Valid())
	assert.False(t, res.Task.Approved)

	member := domain.RequestContext{Roles: []string{"_member_"}, ProjectID: mine.ID}
	res, err = f.engine.CreateTask(ctx, invite(mine.ID, "y@mine.io", member, "_member_"))
	require.NoError(t, err)
	assert.False(t, res.Task.Valid())

	_, err = f.engine.GetTask(ctx, res.Task.ID, manager(other.ID))
	assert.ErrorIs(t, err, ErrTaskNotFound)

	got, err := f.engine.GetTask(ctx, res.Task.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, res.Task.ID, got.ID)
}

func TestCreateTaskRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.CreateTask(ctx, ports.CreateTaskInput{TaskType: "nope"})
	assert.ErrorIs(t, err, ErrTaskTypeNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	in := signup("acme", "owner@acme.io")
	delete(in.Input.Data, "email")
	_, err = f.engine.CreateTask(ctx, in)
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, []string{"This field is required."}, svcErr.Fields["email"])

	tasks, err := f.engine.ListTasks(ctx, ports.ListQuery{}, admin)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestApproveInvalidTaskIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.project(t, "taken")

	res, err := f.engine.CreateTask(ctx, signup("taken", "a@b.io"))
	require.NoError(t, err)
	assert.False(t, res.Task.Valid())

	_, err = f.engine.ApproveTask(ctx, res.Task.ID, admin)
	assert.ErrorIs(t, err, ErrTaskInvalid)
}

func TestUpdateTaskRevalidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.project(t, "taken")

	res, err := f.engine.CreateTask(ctx, signup("taken", "a@b.io"))
	require.NoError(t, err)

	updated, err := f.engine.UpdateTask(ctx, res.Task.ID, ports.TaskInput{Data: domain.JSONB{
		"project_name": "fresh",
		"email":        "a@b.io",
		"domain_id":    "default",
	}}, admin)
	require.NoError(t, err)
	assert.True(t, updated.Task.Valid())
	assert.Equal(t, "fresh", updated.Task.Actions[0].Input["project_name"])

	_, err = f.engine.ApproveTask(ctx, res.Task.ID, admin)
	require.NoError(t, err)

	_, err = f.engine.UpdateTask(ctx, res.Task.ID, ports.TaskInput{Data: domain.JSONB{
		"project_name": "later", "email": "a@b.io", "domain_id": "default",
	}}, admin)
	assert.ErrorIs(t, err, ErrTaskApproved)
}

func TestCancelTaskInvalidatesTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.engine.CreateTask(ctx, signup("acme", "owner@acme.io"))
	require.NoError(t, err)
	approved, err := f.engine.ApproveTask(ctx, res.Task.ID, admin)
	require.NoError(t, err)

	require.NoError(t, f.engine.CancelTask(ctx, res.Task.ID, admin))

	_, err = f.engine.RedeemToken(ctx, approved.Token.Token, domain.JSONB{"password": "pw"})
	assert.ErrorIs(t, err, ErrTokenNotFound)
	_, err = f.engine.ApproveTask(ctx, res.Task.ID, admin)
	assert.ErrorIs(t, err, ErrTaskCancelled)
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, f.engine.CancelTask(ctx, res.Task.ID, admin), ErrTaskCancelled)
}

func TestExecutionFailureIsResumable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.engine.CreateTask(ctx, signup("acme", "owner@acme.io"))
	require.NoError(t, err)

	f.identity.failGrants = 1
	_, err = f.engine.ApproveTask(ctx, res.Task.ID, admin)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExecution)

	stored, err := f.engine.GetTask(ctx, res.Task.ID, admin)
	require.NoError(t, err)
	assert.True(t, stored.Approved)
	assert.False(t, stored.Completed)
	assert.NotEmpty(t, stored.Actions[0].Cache["project_id"])
	assert.NotEmpty(t, stored.Actions[0].Cache["user_id"])

	status, err := f.engine.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status.ErrorNotifications, 1)
	assert.Equal(t, res.Task.ID, status.ErrorNotifications[0].TaskID)
	assert.Len(t, f.mail.byTemplate("notification"), 1)

	tokens, err := f.engine.ListTokens(ctx, ports.ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, tokens)

	assert.Equal(t, 1, f.identity.projectsCreated)
	assert.Equal(t, 1, f.identity.usersCreated)

	// Retrying must not create the project or the user a second time.
	retried, err := f.engine.ApproveTask(ctx, res.Task.ID, admin)
	require.NoError(t, err)
	require.NotNil(t, retried.Token)
	assert.Equal(t, stored.Actions[0].Cache["project_id"], retried.Task.Actions[0].Cache["project_id"])
	assert.Equal(t, stored.Actions[0].Cache["user_id"], retried.Task.Actions[0].Cache["user_id"])
	assert.Equal(t, 1, f.identity.projectsCreated)
	assert.Equal(t, 1, f.identity.usersCreated)

	projectID, _ := retried.Task.Actions[0].Cache["project_id"].(string)
	userID, _ := retried.Task.Actions[0].Cache["user_id"].(string)
	roles, err := f.identity.GetRoles(ctx, userID, projectID)
	require.NoError(t, err)
	assert.ElementsMatch(t, f.cfg.Actions["new_project_with_user"].DefaultRoles, roles)
}

func TestTaskValidityIsConjunctionOfActions(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		seed   func(t *testing.T, f *fixture)
		email  string
		valid  []bool
		expect bool
	}{
		{
			name:   "all actions valid",
			seed:   func(t *testing.T, f *fixture) { f.user(t, "jane@example.com", "pw") },
			email:  "jane@example.com",
			valid:  []bool{true, true},
			expect: true,
		},
		{
			name:   "first action invalid",
			seed:   func(*testing.T, *fixture) {},
			email:  "ghost@example.com",
			valid:  []bool{false, true},
			expect: false,
		},
		{
			name: "second action invalid",
			seed: func(t *testing.T, f *fixture) {
				f.user(t, "jane@example.com", "pw")
				f.project(t, "acme")
			},
			email:  "jane@example.com",
			valid:  []bool{true, false},
			expect: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixtureWith(t, func(cfg *config.Config) {
				cfg.Tasks["reset_and_signup"] = config.TaskConfig{
					Actions: []string{"reset_user_password", "new_project_with_user"},
				}
			})
			tc.seed(t, f)

			res, err := f.engine.CreateTask(ctx, ports.CreateTaskInput{
				TaskType: "reset_and_signup",
				Input: ports.TaskInput{Data: domain.JSONB{
					"email": tc.email, "project_name": "acme", "domain_id": "default",
				}},
			})
			require.NoError(t, err)
			require.Len(t, res.Task.Actions, 2)
			for i, want := range tc.valid {
				assert.Equal(t, want, res.Task.Actions[i].Valid, "action %d", i)
			}
			assert.Equal(t, tc.expect, res.Task.Valid())

			_, err = f.engine.ApproveTask(ctx, res.Task.ID, admin)
			if tc.expect {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrTaskInvalid)
			}
		})
	}
}

func TestTokenExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "jane@example.com", "pw")

	res, err := f.engine.CreateTask(ctx, resetPassword("jane@example.com"))
	require.NoError(t, err)
	require.NotNil(t, res.Token)

	f.clock.Advance(12 * time.Hour)
	_, err = f.engine.RedeemToken(ctx, res.Token.Token, domain.JSONB{"password": "x"})
	assert.ErrorIs(t, err, ErrTokenNotFound)
	_, err = f.engine.GetToken(ctx, res.Token.Token)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	left, err := f.engine.ListTokens(ctx, ports.ListQuery{Filters: map[string]interface{}{
		"task": map[string]interface{}{"exact": res.Task.ID},
	}})
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestDeleteExpiredTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "a@example.com", "pw")
	f.user(t, "b@example.com", "pw")

	_, err := f.engine.CreateTask(ctx, resetPassword("a@example.com"))
	require.NoError(t, err)
	f.clock.Advance(6 * time.Hour)
	_, err = f.engine.CreateTask(ctx, resetPassword("b@example.com"))
	require.NoError(t, err)

	f.clock.Advance(7 * time.Hour)
	n, err := f.engine.DeleteExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := f.engine.ListTokens(ctx, ports.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestReissueTokenReplacesOldOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.engine.CreateTask(ctx, signup("acme", "owner@acme.io"))
	require.NoError(t, err)

	_, err = f.engine.ReissueToken(ctx, res.Task.ID, admin)
	assert.ErrorIs(t, err, ErrTaskNotApproved)

	approved, err := f.engine.ApproveTask(ctx, res.Task.ID, admin)
	require.NoError(t, err)

	fresh, err := f.engine.ReissueToken(ctx, res.Task.ID, admin)
	require.NoError(t, err)
	assert.NotEqual(t, approved.Token.Token, fresh.Token)

	_, err = f.engine.GetToken(ctx, approved.Token.Token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	_, err = f.engine.GetToken(ctx, fresh.Token)
	assert.NoError(t, err)
	assert.Len(t, f.mail.byTemplate("token"), 2)
}

func TestReissueTokenOnCompletedTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.project(t, "demo")
	u := f.user(t, "m@demo.io", "pw")

	res, err := f.engine.CreateTask(ctx, ports.CreateTaskInput{
		TaskType: "edit_user",
		Input: ports.TaskInput{Data: domain.JSONB{
			"user_id": u.ID, "project_id": p.ID, "roles": []string{"_member_"},
		}},
		Request: manager(p.ID),
	})
	require.NoError(t, err)
	require.True(t, res.Task.Completed)

	_, err = f.engine.ReissueToken(ctx, res.Task.ID, admin)
	assert.ErrorIs(t, err, ErrTaskCompleted)

	roles, err := f.identity.GetRoles(ctx, u.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"_member_"}, roles)
}

func TestTokenEmailFailureKeepsToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mail.fail["token"] = errors.New("smtp down")

	res, err := f.engine.CreateTask(ctx, signup("acme", "owner@acme.io"))
	require.NoError(t, err)
	_, err = f.engine.ApproveTask(ctx, res.Task.ID, admin)
	assert.ErrorIs(t, err, ErrExecution)

	tokens, err := f.engine.ListTokens(ctx, ports.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, tokens, 1)

	status, err := f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, status.ErrorNotifications, 1)
}

func TestConcurrentRedeemCompletesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "jane@example.com", "pw")

	res, err := f.engine.CreateTask(ctx, resetPassword("jane@example.com"))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.RedeemToken(ctx, res.Token.Token, domain.JSONB{"password": "new"}); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestListTasksFiltersAndScopes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.project(t, "demo")
	f.user(t, "jane@example.com", "pw")

	_, err := f.engine.CreateTask(ctx, signup("acme", "owner@acme.io"))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.engine.CreateTask(ctx, invite(p.ID, "x@demo.io", manager(p.ID), "_member_"))
	require.NoError(t, err)

	all, err := f.engine.ListTasks(ctx, ports.ListQuery{}, admin)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "invite_user", all[0].TaskType)

	approved, err := f.engine.ListTasks(ctx, ports.ListQuery{Filters: map[string]interface{}{
		"approved": map[string]interface{}{"exact": true},
	}}, admin)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "invite_user", approved[0].TaskType)

	scoped, err := f.engine.ListTasks(ctx, ports.ListQuery{}, manager(p.ID))
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, p.ID, scoped[0].ProjectID)

	_, err = f.engine.ListTasks(ctx, ports.ListQuery{Filters: map[string]interface{}{
		"password": map[string]interface{}{"exact": "x"},
	}}, admin)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNotificationAcknowledgement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.CreateTask(ctx, signup("acme", "owner@acme.io"))
	require.NoError(t, err)

	notes, err := f.engine.ListNotifications(ctx, ports.ListQuery{})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.False(t, notes[0].Error)

	require.NoError(t, f.engine.AcknowledgeNotification(ctx, notes[0].ID))
	err = f.engine.AcknowledgeNotification(ctx, notes[0].ID)
	assert.ErrorIs(t, err, ErrNotificationAcknowledged)
	assert.ErrorIs(t, err, ErrConflict)

	pending, err := f.engine.ListNotifications(ctx, ports.ListQuery{Filters: map[string]interface{}{
		"acknowledged": map[string]interface{}{"exact": false},
	}})
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.ErrorIs(t, f.engine.AcknowledgeNotifications(ctx, nil), ErrValidation)
	assert.ErrorIs(t, f.engine.AcknowledgeNotifications(ctx, []string{notes[0].ID, "missing"}), ErrNotificationNotFound)

	assert.ErrorIs(t, f.engine.AcknowledgeNotification(ctx, "missing"), ErrNotificationNotFound)
}

func TestStatusReportsLatestTasks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "jane@example.com", "pw")

	status, err := f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, status.LastCreatedTask)
	assert.Nil(t, status.LastCompletedTask)

	reset, err := f.engine.CreateTask(ctx, resetPassword("jane@example.com"))
	require.NoError(t, err)
	_, err = f.engine.RedeemToken(ctx, reset.Token.Token, domain.JSONB{"password": "n"})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	signed, err := f.engine.CreateTask(ctx, signup("acme", "owner@acme.io"))
	require.NoError(t, err)

	status, err = f.engine.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.LastCreatedTask)
	assert.Equal(t, signed.Task.ID, status.LastCreatedTask.ID)
	require.NotNil(t, status.LastCompletedTask)
	assert.Equal(t, reset.Task.ID, status.LastCompletedTask.ID)
	assert.Empty(t, status.ErrorNotifications)
}

func TestReissueTokenBeforeActionsFinish(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.engine.CreateTask(ctx, signup("acme", "owner@acme.io"))
	require.NoError(t, err)

	f.identity.failGrants = 1
	_, err = f.engine.ApproveTask(ctx, res.Task.ID, admin)
	require.ErrorIs(t, err, ErrExecution)

	_, err = f.engine.ReissueToken(ctx, res.Task.ID, admin)
	assert.ErrorIs(t, err, ErrTaskNotReady)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.engine.ApproveTask(ctx, res.Task.ID, admin)
	require.NoError(t, err)
	tok, err := f.engine.ReissueToken(ctx, res.Task.ID, admin)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Token)
}
