// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/templates/ordering-auth/internal/auth"
	"github.com/carterperez-dev/templates/ordering-auth/internal/core"
)

const DefaultResetTokenTTL = 20 * time.Minute

type Service struct {
	repo     Repository
	hasher   *core.PasswordHasher
	tokens   *core.TokenGenerator
	resetTTL time.Duration
	now      func() time.Time
}

type Option func(*Service)

func WithResetTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// WithClock replaces the wall clock used for reset token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithTokenBytes(n int) Option {
	return func(s *Service) {
		s.tokens = core.NewTokenGenerator(n, s.tokenInUse)
	}
}

func NewService(
	repo Repository,
	hasher *core.PasswordHasher,
	opts ...Option,
) *Service {
	s := &Service{
		repo:     repo,
		hasher:   hasher,
		resetTTL: DefaultResetTokenTTL,
		now:      time.Now,
	}
	s.tokens = core.NewTokenGenerator(core.DefaultTokenBytes, s.tokenInUse)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Service) tokenInUse(ctx context.Context, token string) (bool, error) {
	return s.repo.TokenInUse(ctx, token, core.HashToken(token))
}

// Create registers a new unverified account holding a fresh verification
// token. The first account ever created becomes an admin.
func (s *Service) Create(
	ctx context.Context,
	name, email, password string,
) (*auth.UserInfo, error) {
	email = normalizeEmail(email)

	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return nil, fmt.Errorf("create user: %w", core.ErrDuplicateKey)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	user := &User{
		ID:                uuid.New().String(),
		Name:              strings.TrimSpace(name),
		Email:             email,
		PasswordHash:      passwordHash,
		VerificationToken: token,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

func (s *Service) GetByID(
	ctx context.Context,
	id string,
) (*auth.UserInfo, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

func (s *Service) GetByEmail(
	ctx context.Context,
	email string,
) (*auth.UserInfo, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("verify email: %w", core.ErrTokenInvalid)
	}
	return s.repo.MarkEmailVerified(ctx, token)
}

// BeginPasswordReset stores the digest of a new reset token and returns the
// plaintext for out-of-band delivery. A later call supersedes any earlier
// token for the same account.
func (s *Service) BeginPasswordReset(
	ctx context.Context,
	email string,
) (string, time.Time, error) {
	email = normalizeEmail(email)

	if _, err := s.repo.GetByEmail(ctx, email); err != nil {
		return "", time.Time{}, err
	}

	token, err := s.tokens.Generate(ctx)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("begin password reset: %w", err)
	}

	expiresAt := s.now().Add(s.resetTTL)

	if err := s.repo.SetResetToken(
		ctx,
		email,
		core.HashToken(token),
		expiresAt,
	); err != nil {
		return "", time.Time{}, err
	}

	return token, expiresAt, nil
}

func (s *Service) CompletePasswordReset(
	ctx context.Context,
	token, newPassword string,
) error {
	if token == "" {
		return fmt.Errorf("complete password reset: %w", core.ErrTokenInvalid)
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("complete password reset: %w", err)
	}

	return s.repo.ConsumeResetToken(
		ctx,
		core.HashToken(token),
		passwordHash,
		s.now(),
	)
}

// SetPassword is the only path that replaces the password of an existing
// account outside of a reset.
func (s *Service) SetPassword(ctx context.Context, id, newPassword string) error {
	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}

	return s.repo.UpdatePassword(ctx, id, passwordHash)
}

// Delete removes an account. Registration uses it to undo a create whose
// session could not be issued.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListUsers(
	ctx context.Context,
	params ListUsersParams,
) ([]User, int, error) {
	return s.repo.List(ctx, params)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toUserInfo(u *User) *auth.UserInfo {
	return &auth.UserInfo{
		ID:                u.ID,
		Name:              u.Name,
		Email:             u.Email,
		PasswordHash:      u.PasswordHash,
		Role:              u.Role,
		IsEmailVerified:   u.IsEmailVerified,
		VerificationToken: u.VerificationToken,
	}
}

var _ auth.AccountRegistry = (*Service)(nil)
