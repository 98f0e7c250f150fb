package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-sfa/meridian-sfa/internal/rbac"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

type memoryRepo struct {
	users      map[int64]*User
	roles      map[int64][]string
	tokens     map[string]Token
	agentLinks map[int64]int64
	nextID     int64
	// knownRoles controls which role names CreateUserWithRole accepts. A miss
	// must leave no user behind.
	knownRoles map[string]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:      make(map[int64]*User),
		roles:      make(map[int64][]string),
		tokens:     make(map[string]Token),
		agentLinks: make(map[int64]int64),
		knownRoles: map[string]bool{
			rbac.RoleCompanyOwner: true,
			rbac.RoleITAdmin:      true,
			rbac.RoleSupervisor:   true,
			rbac.RoleAgent:        true,
		},
	}
}

func (r *memoryRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) GetUser(ctx context.Context, id int64) (*User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *memoryRepo) CreateUserWithRole(ctx context.Context, email, fullName, passwordHash, roleName string) (int64, error) {
	for _, u := range r.users {
		if u.Email == email {
			return 0, ErrDuplicateEmail
		}
	}
	if !r.knownRoles[roleName] {
		return 0, shared.ErrNotFound
	}
	r.nextID++
	now := time.Now().UTC()
	r.users[r.nextID] = &User{ID: r.nextID, Email: email, FullName: fullName, PasswordHash: passwordHash, IsActive: true, CreatedAt: now, UpdatedAt: now}
	r.roles[r.nextID] = []string{roleName}
	return r.nextID, nil
}

func (r *memoryRepo) DeactivateUser(ctx context.Context, id int64) error {
	u, ok := r.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.IsActive = false
	return nil
}

func (r *memoryRepo) CreateToken(ctx context.Context, token Token) error {
	r.tokens[token.Hash] = token
	return nil
}

func (r *memoryRepo) ResolveToken(ctx context.Context, hash string) (int64, error) {
	token, ok := r.tokens[hash]
	if !ok || token.ExpiresAt.Before(time.Now()) {
		return 0, shared.ErrNotFound
	}
	return token.UserID, nil
}

func (r *memoryRepo) DeleteToken(ctx context.Context, hash string) error {
	delete(r.tokens, hash)
	return nil
}

func (r *memoryRepo) AgentIDForUser(ctx context.Context, userID int64) (int64, error) {
	return r.agentLinks[userID], nil
}

func (r *memoryRepo) RolesForUser(ctx context.Context, userID int64) ([]string, error) {
	return r.roles[userID], nil
}

func adminActor() *shared.Actor {
	return &shared.Actor{UserID: 1, Roles: []string{rbac.RoleITAdmin}}
}

func seedUser(t *testing.T, repo *memoryRepo, email, password, role string) int64 {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	id, err := repo.CreateUserWithRole(context.Background(), email, "Seeded", string(hash), role)
	require.NoError(t, err)
	return id
}

func TestCreateUserRequiresPrivilegedActor(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, time.Hour)
	ctx := context.Background()
	input := CreateUserInput{Email: "new@meridian.test", FullName: "New User", Password: "correct-horse"}

	_, err := svc.CreateAdminUser(ctx, &shared.Actor{UserID: 9, Roles: []string{rbac.RoleSupervisor}}, input)
	require.ErrorIs(t, err, shared.ErrAuthorization)

	_, err = svc.CreateAdminUser(ctx, adminActor(), input)
	require.NoError(t, err)
}

func TestCreateUserValidatesEmailAndPassword(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, time.Hour)
	ctx := context.Background()

	_, err := svc.CreateAgentIdentity(ctx, adminActor(), CreateUserInput{Email: "not-an-email", Password: "long-enough"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateAgentIdentity(ctx, adminActor(), CreateUserInput{Email: "a@meridian.test", Password: "short"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateUserDuplicateEmailConflicts(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, time.Hour)
	ctx := context.Background()
	input := CreateUserInput{Email: "dup@meridian.test", FullName: "Dup", Password: "long-enough"}

	_, err := svc.CreateAgentIdentity(ctx, adminActor(), input)
	require.NoError(t, err)

	_, err = svc.CreateAgentIdentity(ctx, adminActor(), input)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateUserUnknownRoleLeavesNoUser(t *testing.T) {
	repo := newMemoryRepo()
	delete(repo.knownRoles, rbac.RoleAgent)
	svc := NewService(repo, nil, time.Hour)

	_, err := svc.CreateAgentIdentity(context.Background(), adminActor(), CreateUserInput{
		Email: "orphan@meridian.test", FullName: "Orphan", Password: "long-enough",
	})
	require.Error(t, err)
	require.Empty(t, repo.users)
}

func TestAuthenticateIssuesResolvableToken(t *testing.T) {
	repo := newMemoryRepo()
	userID := seedUser(t, repo, "agent@meridian.test", "field-password", rbac.RoleAgent)
	repo.agentLinks[userID] = 77
	svc := NewService(repo, nil, time.Hour)
	ctx := context.Background()

	_, _, err := svc.Authenticate(ctx, "agent@meridian.test", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Authenticate(ctx, "ghost@meridian.test", "field-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	raw, user, err := svc.Authenticate(ctx, "agent@meridian.test", "field-password")
	require.NoError(t, err)
	require.Equal(t, userID, user.ID)
	require.NotEmpty(t, raw)

	resolved, err := repo.ResolveToken(ctx, HashToken(raw))
	require.NoError(t, err)
	require.Equal(t, userID, resolved)

	require.NoError(t, svc.Logout(ctx, raw))
	_, err = repo.ResolveToken(ctx, HashToken(raw))
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAuthenticateRejectsInactive(t *testing.T) {
	repo := newMemoryRepo()
	userID := seedUser(t, repo, "gone@meridian.test", "field-password", rbac.RoleAgent)
	svc := NewService(repo, nil, time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.DeactivateUser(ctx, &shared.Actor{UserID: 1, Roles: []string{rbac.RoleCompanyOwner}}, userID))

	_, _, err := svc.Authenticate(ctx, "gone@meridian.test", "field-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
