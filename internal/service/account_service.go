package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccountService handles sign-in, sign-up and account lookups
type AccountService struct {
	store    *store.Store
	sessions *auth.SessionManager
	logger   *zap.Logger
}

// NewAccountService creates a new account service
func NewAccountService(store *store.Store, sessions *auth.SessionManager) *AccountService {
	return &AccountService{
		store:    store,
		sessions: sessions,
		logger:   util.GetLogger(),
	}
}

// LoginRequest holds sign-in credentials
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=6"`
}

// RegisterRequest holds a customer sign-up
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=6,max=72"`
}

// Session is a signed token together with the account it was issued for
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login verifies credentials and issues a session. Unknown emails and wrong
// passwords produce the same error.
func (s *AccountService) Login(ctx context.Context, req *LoginRequest) (*Session, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Login")
	defer span.End()

	req.Email = normalizeEmail(req.Email)
	if verr := validateStruct(req); verr != nil {
		util.LoginAttemptsTotal.WithLabelValues("invalid").Inc()
		return nil, verr
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, store.ErrNotFound) {
		util.LoginAttemptsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	ok, err := auth.VerifyPassword(req.Password, user.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		util.LoginAttemptsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredentials
	}

	session, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	util.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.logger.Info("User signed in",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)))
	return session, nil
}

// Register creates a customer account and signs it in
func (s *AccountService) Register(ctx context.Context, req *RegisterRequest) (*Session, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Register")
	defer span.End()

	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	if verr := validateStruct(req); verr != nil {
		return nil, verr
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:       uuid.NewString(),
		Email:    req.Email,
		Name:     req.Name,
		Password: hash,
		Role:     models.RoleUser,
	}
	switch err := s.store.CreateUser(ctx, user); {
	case errors.Is(err, store.ErrDuplicateEmail):
		return nil, newValidationError("email", "is already registered")
	case err != nil:
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("Customer registered", zap.String("user_id", user.ID))
	return s.issue(user)
}

func (s *AccountService) issue(user *models.User) (*Session, error) {
	token, expiresAt, err := s.sessions.Issue(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Authenticate resolves a session token into an identity. Any failure means
// the caller is anonymous.
func (s *AccountService) Authenticate(token string) (*auth.Identity, error) {
	return s.sessions.Verify(token)
}

// Me returns the account behind identity. A deleted account yields ErrNotFound.
func (s *AccountService) Me(ctx context.Context, identity *auth.Identity) (*models.User, error) {
	if identity == nil {
		return nil, ErrUnauthorized
	}

	user, err := s.store.GetUserByID(ctx, identity.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// ListCustomers returns every customer account, newest first
func (s *AccountService) ListCustomers(ctx context.Context, identity *auth.Identity) ([]models.User, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.ListCustomers")
	defer span.End()

	if err := requireAdmin(identity); err != nil {
		return nil, err
	}

	users, err := s.store.ListUsersByRole(ctx, models.RoleUser)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return users, nil
}

// CreateAdmin creates an administrator account, or resets the password and
// role of an existing account with the same email.
func (s *AccountService) CreateAdmin(ctx context.Context, name, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:       uuid.NewString(),
		Email:    email,
		Name:     strings.TrimSpace(name),
		Password: hash,
		Role:     models.RoleAdmin,
	}
	err = s.store.CreateUser(ctx, user)
	if errors.Is(err, store.ErrDuplicateEmail) {
		existing, err := s.store.GetUserByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		existing.Password = hash
		existing.Role = models.RoleAdmin
		if err := s.store.UpdateUserCredentials(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to update admin: %w", err)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}
	return user, nil
}
