package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-sfa/meridian-sfa/internal/rbac"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

const minPasswordLength = 8

// RepositoryPort describes the persistence used by Service.
type RepositoryPort interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	CreateUserWithRole(ctx context.Context, email, fullName, passwordHash, roleName string) (int64, error)
	DeactivateUser(ctx context.Context, id int64) error
	CreateToken(ctx context.Context, token Token) error
	ResolveToken(ctx context.Context, hash string) (int64, error)
	DeleteToken(ctx context.Context, hash string) error
	AgentIDForUser(ctx context.Context, userID int64) (int64, error)
}

// AuditPort records privileged account operations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service wraps account and credential rules.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	tokenTTL time.Duration
}

// NewService constructs the identity service.
func NewService(repo RepositoryPort, audit AuditPort, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{repo: repo, audit: audit, tokenTTL: tokenTTL}
}

// Authenticate validates email/password and issues a bearer token. Inactive
// accounts fail the same way as wrong passwords.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, *User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	raw, hash, err := newToken()
	if err != nil {
		return "", nil, err
	}
	token := Token{Hash: hash, UserID: user.ID, ExpiresAt: time.Now().UTC().Add(s.tokenTTL)}
	if err := s.repo.CreateToken(ctx, token); err != nil {
		return "", nil, err
	}
	return raw, user, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	return s.repo.DeleteToken(ctx, HashToken(rawToken))
}

// CreateUserInput describes a new account.
type CreateUserInput struct {
	Email    string
	FullName string
	Password string
}

// CreateAdminUser provisions an IT admin account. Only existing admins or the
// company owner may call it.
func (s *Service) CreateAdminUser(ctx context.Context, actor *shared.Actor, input CreateUserInput) (int64, error) {
	return s.createUser(ctx, actor, input, rbac.RoleITAdmin)
}

// CreateAgentIdentity provisions the user account behind a field agent. The
// agents master row is created separately and linked by user id.
func (s *Service) CreateAgentIdentity(ctx context.Context, actor *shared.Actor, input CreateUserInput) (int64, error) {
	return s.createUser(ctx, actor, input, rbac.RoleAgent)
}

// CreateSupervisor provisions a supervisor account.
func (s *Service) CreateSupervisor(ctx context.Context, actor *shared.Actor, input CreateUserInput) (int64, error) {
	return s.createUser(ctx, actor, input, rbac.RoleSupervisor)
}

func (s *Service) createUser(ctx context.Context, actor *shared.Actor, input CreateUserInput, roleName string) (int64, error) {
	if !actor.HasRole(rbac.RoleITAdmin) && !actor.HasRole(rbac.RoleCompanyOwner) {
		return 0, fmt.Errorf("%w: account provisioning requires it_admin or company_owner", shared.ErrAuthorization)
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return 0, fmt.Errorf("%w: invalid email %q", shared.ErrValidation, input.Email)
	}
	if len(input.Password) < minPasswordLength {
		return 0, fmt.Errorf("%w: password must be at least %d characters", shared.ErrValidation, minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	userID, err := s.repo.CreateUserWithRole(ctx, email, strings.TrimSpace(input.FullName), string(hash), roleName)
	if err != nil {
		if err == ErrDuplicateEmail {
			return 0, fmt.Errorf("%w: %s", shared.ErrConflict, email)
		}
		return 0, err
	}
	s.recordAudit(ctx, actor, "USER_CREATE", userID, map[string]any{"email": email, "role": roleName})
	return userID, nil
}

// DeactivateUser disables an account. Existing tokens stop working because
// authentication re-checks the active flag.
func (s *Service) DeactivateUser(ctx context.Context, actor *shared.Actor, userID int64) error {
	if !actor.HasRole(rbac.RoleITAdmin) && !actor.HasRole(rbac.RoleCompanyOwner) {
		return fmt.Errorf("%w: account deactivation requires it_admin or company_owner", shared.ErrAuthorization)
	}
	if err := s.repo.DeactivateUser(ctx, userID); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "USER_DEACTIVATE", userID, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor *shared.Actor, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actor.UserID, Action: action, Entity: "user", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func newToken() (raw, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(buf)
	return raw, HashToken(raw), nil
}

// HashToken derives the stored form of a bearer token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
