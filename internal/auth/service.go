// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/templates/ordering-auth/internal/core"
	"github.com/carterperez-dev/templates/ordering-auth/internal/mail"
	"github.com/carterperez-dev/templates/ordering-auth/internal/metrics"
)

const (
	opRegister       = "register"
	opLogin          = "login"
	opVerifyEmail    = "verify_email"
	opForgotPassword = "forgot_password"
	opResetPassword  = "reset_password"
	opChangePassword = "change_password"
	opLogout         = "logout"
	opMe             = "me"

	defaultDispatchTimeout = 10 * time.Second
)

type UserInfo struct {
	ID                string
	Name              string
	Email             string
	PasswordHash      string
	Role              string
	IsEmailVerified   bool
	VerificationToken string
}

// AccountRegistry owns account records. Emails are normalized by the
// registry, so callers pass them through as received.
type AccountRegistry interface {
	Create(ctx context.Context, name, email, password string) (*UserInfo, error)
	GetByEmail(ctx context.Context, email string) (*UserInfo, error)
	GetByID(ctx context.Context, id string) (*UserInfo, error)
	VerifyEmail(ctx context.Context, token string) error
	BeginPasswordReset(ctx context.Context, email string) (string, time.Time, error)
	CompletePasswordReset(ctx context.Context, token, newPassword string) error
	SetPassword(ctx context.Context, id, newPassword string) error
	Delete(ctx context.Context, id string) error
}

type Config struct {
	BaseURL             string
	ConcealUnknownEmail bool
	DispatchTimeout     time.Duration
}

type Service struct {
	registry AccountRegistry
	hasher   *core.PasswordHasher
	sessions *SessionManager
	mailer   mail.Dispatcher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      Config

	inflight sync.WaitGroup
}

func NewService(
	registry AccountRegistry,
	hasher *core.PasswordHasher,
	sessions *SessionManager,
	mailer mail.Dispatcher,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = defaultDispatchTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Service{
		registry: registry,
		hasher:   hasher,
		sessions: sessions,
		mailer:   mailer,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
	}
}

func (s *Service) Register(
	ctx context.Context,
	w http.ResponseWriter,
	req RegisterRequest,
) (view SessionView, err error) {
	ctx, done := s.begin(ctx, opRegister)
	defer func() { done(err) }()

	if strings.TrimSpace(req.Name) == "" ||
		strings.TrimSpace(req.Email) == "" ||
		req.Password == "" {
		return SessionView{}, badRequest("name, email and password are required")
	}
	if len(req.Password) > core.MaxPasswordBytes {
		return SessionView{}, passwordTooLong()
	}

	user, err := s.registry.Create(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrDuplicateKey):
			return SessionView{}, newError(
				KindDuplicateAccount,
				"an account with this email already exists",
				ErrEmailExists,
			)
		case errors.Is(err, core.ErrPasswordTooLong):
			return SessionView{}, passwordTooLong()
		}
		return SessionView{}, internal("create account", err)
	}

	view = ToSessionView(user)
	if err := s.sessions.Attach(w, view); err != nil {
		// The account must not outlive a failed registration.
		if delErr := s.registry.Delete(ctx, user.ID); delErr != nil {
			s.logger.ErrorContext(ctx, "rollback of unattached account failed",
				"user_id", user.ID,
				"error", delErr,
			)
		}
		return SessionView{}, internal("attach session", err)
	}

	s.dispatch(ctx, mail.KindVerification, user.Email, s.link("verify-email", user.VerificationToken))

	return view, nil
}

// Login authenticates by email and password. Unknown emails and wrong
// passwords fail with the same error after comparable work.
func (s *Service) Login(
	ctx context.Context,
	w http.ResponseWriter,
	req LoginRequest,
) (view SessionView, err error) {
	ctx, done := s.begin(ctx, opLogin)
	defer func() { done(err) }()

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return SessionView{}, badRequest("email and password are required")
	}

	// No stored hash can match an input bcrypt refuses to hash.
	if len(req.Password) > core.MaxPasswordBytes {
		//nolint:errcheck // timing attack prevention, result unused
		_, _ = s.hasher.VerifyTimingSafe(req.Password[:core.MaxPasswordBytes], nil)
		return SessionView{}, invalidCredentials()
	}

	user, err := s.registry.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			//nolint:errcheck // timing attack prevention, result unused
			_, _ = s.hasher.VerifyTimingSafe(req.Password, nil)
			return SessionView{}, invalidCredentials()
		}
		return SessionView{}, internal("get account", err)
	}

	valid, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return SessionView{}, newError(KindDataIntegrity, "verify password", err)
	}

	if !valid {
		return SessionView{}, invalidCredentials()
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		if err := s.registry.SetPassword(ctx, user.ID, req.Password); err != nil {
			s.logger.WarnContext(ctx, "password rehash failed",
				"user_id", user.ID,
				"error", err,
			)
		}
	}

	view = ToSessionView(user)
	if err := s.sessions.Attach(w, view); err != nil {
		return SessionView{}, internal("attach session", err)
	}

	if !user.IsEmailVerified && user.VerificationToken != "" {
		s.dispatch(ctx, mail.KindVerification, user.Email, s.link("verify-email", user.VerificationToken))
	}

	return view, nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) (err error) {
	ctx, done := s.begin(ctx, opVerifyEmail)
	defer func() { done(err) }()

	if err := s.registry.VerifyEmail(ctx, token); err != nil {
		if errors.Is(err, core.ErrTokenInvalid) {
			return newError(KindInvalidToken, "invalid verification token", err)
		}
		return internal("verify email", err)
	}

	return nil
}

// ForgotPassword starts a reset and mails the link. With ConcealUnknownEmail
// an unknown address is acknowledged like a known one.
func (s *Service) ForgotPassword(
	ctx context.Context,
	req ForgotPasswordRequest,
) (err error) {
	ctx, done := s.begin(ctx, opForgotPassword)
	defer func() { done(err) }()

	if strings.TrimSpace(req.Email) == "" {
		return badRequest("email is required")
	}

	token, _, err := s.registry.BeginPasswordReset(ctx, req.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			if s.cfg.ConcealUnknownEmail {
				return nil
			}
			return invalidCredentials()
		}
		return internal("begin password reset", err)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	s.dispatch(ctx, mail.KindPasswordReset, email, s.link("reset-password", token))

	return nil
}

func (s *Service) ResetPassword(
	ctx context.Context,
	token string,
	req ResetPasswordRequest,
) (err error) {
	ctx, done := s.begin(ctx, opResetPassword)
	defer func() { done(err) }()

	if req.NewPassword == "" {
		return badRequest("new password is required")
	}
	if len(req.NewPassword) > core.MaxPasswordBytes {
		return passwordTooLong()
	}

	if err := s.registry.CompletePasswordReset(ctx, token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, core.ErrTokenInvalid):
			return newError(
				KindInvalidOrExpiredToken,
				"invalid or expired reset token",
				err,
			)
		case errors.Is(err, core.ErrPasswordTooLong):
			return passwordTooLong()
		}
		return internal("complete password reset", err)
	}

	return nil
}

func (s *Service) ChangePassword(
	ctx context.Context,
	userID string,
	req ChangePasswordRequest,
) (err error) {
	ctx, done := s.begin(ctx, opChangePassword)
	defer func() { done(err) }()

	if req.CurrentPassword == "" || req.NewPassword == "" {
		return badRequest("current_password and new_password are required")
	}
	if len(req.NewPassword) > core.MaxPasswordBytes {
		return passwordTooLong()
	}

	user, err := s.registry.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return invalidCredentials()
		}
		return internal("get account", err)
	}

	valid, err := s.hasher.Verify(req.CurrentPassword, user.PasswordHash)
	if err != nil {
		return newError(KindDataIntegrity, "verify password", err)
	}

	if !valid {
		return newError(
			KindInvalidCredentials,
			"current password is incorrect",
			ErrInvalidCredentials,
		)
	}

	if err := s.registry.SetPassword(ctx, userID, req.NewPassword); err != nil {
		return internal("set password", err)
	}

	return nil
}

func (s *Service) Me(ctx context.Context, userID string) (view SessionView, err error) {
	ctx, done := s.begin(ctx, opMe)
	defer func() { done(err) }()

	user, err := s.registry.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return SessionView{}, invalidCredentials()
		}
		return SessionView{}, internal("get account", err)
	}

	return ToSessionView(user), nil
}

// Logout always succeeds and never touches storage.
func (s *Service) Logout(ctx context.Context, w http.ResponseWriter) {
	_, done := s.begin(ctx, opLogout)
	s.sessions.Clear(w)
	done(nil)
}

// Wait blocks until every in-flight email dispatch has finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) begin(
	ctx context.Context,
	op string,
) (context.Context, func(error)) {
	ctx, span := core.StartSpan(ctx, "auth."+op,
		attribute.String("auth.operation", op),
	)

	return ctx, func(err error) {
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = string(KindOf(err))
			span.SetAttributes(attribute.String("auth.error_kind", outcome))
			core.SetSpanError(ctx, err)
		}
		s.metrics.AuthOperation(op, outcome)
		span.End()
	}
}

func (s *Service) link(verb, token string) string {
	return fmt.Sprintf("%s/auth/%s/%s", s.cfg.BaseURL, verb, token)
}

// dispatch sends an account email without blocking the caller. The send
// outlives the request but is bounded by DispatchTimeout.
func (s *Service) dispatch(ctx context.Context, kind, email, link string) {
	if s.mailer == nil {
		return
	}

	sendCtx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx),
		s.cfg.DispatchTimeout,
	)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()

		var err error
		switch kind {
		case mail.KindPasswordReset:
			err = s.mailer.SendPasswordResetLink(sendCtx, email, link)
		default:
			err = s.mailer.SendVerificationEmail(sendCtx, email, link)
		}

		if err != nil {
			s.metrics.MailDispatch(kind, metrics.OutcomeFailure)
			s.logger.ErrorContext(sendCtx, "email dispatch failed",
				"kind", kind,
				"to", email,
				"error", err,
			)
			return
		}

		s.metrics.MailDispatch(kind, metrics.OutcomeSuccess)
	}()
}
