// AngelaMos | 2026
// service_test.go

package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/ordering-auth/internal/auth"
	"github.com/carterperez-dev/templates/ordering-auth/internal/core"
	"github.com/carterperez-dev/templates/ordering-auth/internal/mail"
)

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "token" {
			return c
		}
	}
	return nil
}

func register(t *testing.T, f *fixture, name, email, password string) auth.SessionView {
	t.Helper()
	f.mailer.On("SendVerificationEmail", email, mock.Anything).Return(nil).Once()

	view, err := f.svc.Register(context.Background(), httptest.NewRecorder(), auth.RegisterRequest{
		Name:     name,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	f.svc.Wait()
	return view
}

func tokenFromLink(t *testing.T, link, verb string) string {
	t.Helper()
	prefix := testBaseURL + "/auth/" + verb + "/"
	require.True(t, strings.HasPrefix(link, prefix), link)
	return strings.TrimPrefix(link, prefix)
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates account, attaches session and sends verification link", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		f.mailer.On("SendVerificationEmail", "ada@example.com", mock.Anything).Return(nil).Once()

		rec := httptest.NewRecorder()
		view, err := f.svc.Register(ctx, rec, auth.RegisterRequest{
			Name:     "Ada",
			Email:    "Ada@Example.com",
			Password: "secret1",
		})
		require.NoError(t, err)
		f.svc.Wait()

		assert.Equal(t, "Ada", view.Name)
		assert.Equal(t, "ada@example.com", view.Email)
		assert.Equal(t, "admin", view.Role)
		assert.NotEmpty(t, view.ID)

		cookie := sessionCookie(t, rec)
		require.NotNil(t, cookie)
		assert.True(t, cookie.HttpOnly)
		assert.NotEmpty(t, cookie.Value)

		stored, err := f.registry.GetByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, stored.VerificationToken, tokenFromLink(t, f.mailer.lastLink(), "verify-email"))
		f.mailer.AssertExpectations(t)
	})

	t.Run("second account is a user", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		register(t, f, "A", "a@example.com", "secret1")
		view := register(t, f, "B", "b@example.com", "secret1")
		assert.Equal(t, "user", view.Role)
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		register(t, f, "A", "dup@x.com", "p1p1p1")

		rec := httptest.NewRecorder()
		_, err := f.svc.Register(ctx, rec, auth.RegisterRequest{
			Name: "B", Email: "dup@x.com", Password: "p2p2p2",
		})
		assert.Equal(t, auth.KindDuplicateAccount, auth.KindOf(err))
		assert.ErrorIs(t, err, auth.ErrEmailExists)
		assert.Nil(t, sessionCookie(t, rec))
	})

	t.Run("missing fields", func(t *testing.T) {
		f := newFixture(t, auth.Config{})

		_, err := f.svc.Register(ctx, httptest.NewRecorder(), auth.RegisterRequest{
			Email: "a@example.com", Password: "secret1",
		})
		assert.Equal(t, auth.KindBadRequest, auth.KindOf(err))
	})

	t.Run("dispatch failure does not fail registration", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		f.mailer.On("SendVerificationEmail", "ada@example.com", mock.Anything).
			Return(errors.New("smtp down")).Once()

		_, err := f.svc.Register(ctx, httptest.NewRecorder(), auth.RegisterRequest{
			Name: "Ada", Email: "ada@example.com", Password: "secret1",
		})
		require.NoError(t, err)
		f.svc.Wait()

		failures := f.metrics.MailDispatches().WithLabelValues(mail.KindVerification, "failure")
		assert.InDelta(t, 1, testutil.ToFloat64(failures), 0)
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown email and wrong password fail identically", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		register(t, f, "Ada", "ada@example.com", "secret1")

		_, wrongPw := f.svc.Login(ctx, httptest.NewRecorder(), auth.LoginRequest{
			Email: "ada@example.com", Password: "nope",
		})
		_, unknown := f.svc.Login(ctx, httptest.NewRecorder(), auth.LoginRequest{
			Email: "ghost@example.com", Password: "nope",
		})

		require.Error(t, wrongPw)
		require.Error(t, unknown)
		assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(wrongPw))
		assert.Equal(t, auth.KindOf(wrongPw), auth.KindOf(unknown))
		assert.Equal(t, wrongPw.Error(), unknown.Error())
	})

	t.Run("unverified login resends the same token", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		register(t, f, "Ada", "ada@example.com", "secret1")
		first := f.mailer.lastLink()

		f.mailer.On("SendVerificationEmail", "ada@example.com", first).Return(nil).Once()

		rec := httptest.NewRecorder()
		view, err := f.svc.Login(ctx, rec, auth.LoginRequest{
			Email: "ADA@example.com", Password: "secret1",
		})
		require.NoError(t, err)
		f.svc.Wait()

		assert.Equal(t, "ada@example.com", view.Email)
		assert.NotNil(t, sessionCookie(t, rec))
		assert.Equal(t, first, f.mailer.lastLink())
		f.mailer.AssertExpectations(t)
	})

	t.Run("verified login sends nothing", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		register(t, f, "Ada", "ada@example.com", "secret1")
		token := tokenFromLink(t, f.mailer.lastLink(), "verify-email")
		require.NoError(t, f.svc.VerifyEmail(ctx, token))

		_, err := f.svc.Login(ctx, httptest.NewRecorder(), auth.LoginRequest{
			Email: "ada@example.com", Password: "secret1",
		})
		require.NoError(t, err)
		f.svc.Wait()

		f.mailer.AssertNumberOfCalls(t, "SendVerificationEmail", 1)
	})

	t.Run("malformed stored hash is a data integrity failure", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		view := register(t, f, "Ada", "ada@example.com", "secret1")
		require.NoError(t, f.repo.UpdatePassword(ctx, view.ID, "corrupted"))

		_, err := f.svc.Login(ctx, httptest.NewRecorder(), auth.LoginRequest{
			Email: "ada@example.com", Password: "secret1",
		})
		assert.Equal(t, auth.KindDataIntegrity, auth.KindOf(err))
	})

	t.Run("missing password", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		_, err := f.svc.Login(ctx, httptest.NewRecorder(), auth.LoginRequest{Email: "a@example.com"})
		assert.Equal(t, auth.KindBadRequest, auth.KindOf(err))
	})
}

func TestService_VerifyEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, auth.Config{})
	register(t, f, "Ada", "ada@example.com", "secret1")
	token := tokenFromLink(t, f.mailer.lastLink(), "verify-email")

	require.NoError(t, f.svc.VerifyEmail(ctx, token))

	err := f.svc.VerifyEmail(ctx, token)
	assert.Equal(t, auth.KindInvalidToken, auth.KindOf(err))
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("reset link replaces the password", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		register(t, f, "Ada", "ada@example.com", "oldpass")
		f.mailer.On("SendPasswordResetLink", "ada@example.com", mock.Anything).Return(nil).Once()

		require.NoError(t, f.svc.ForgotPassword(ctx, auth.ForgotPasswordRequest{Email: " Ada@example.com"}))
		f.svc.Wait()
		token := tokenFromLink(t, f.mailer.lastLink(), "reset-password")

		require.NoError(t, f.svc.ResetPassword(ctx, token, auth.ResetPasswordRequest{NewPassword: "newpass"}))

		_, err := f.svc.Login(ctx, httptest.NewRecorder(), auth.LoginRequest{
			Email: "ada@example.com", Password: "oldpass",
		})
		assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))

		f.mailer.On("SendVerificationEmail", "ada@example.com", mock.Anything).Return(nil).Once()
		_, err = f.svc.Login(ctx, httptest.NewRecorder(), auth.LoginRequest{
			Email: "ada@example.com", Password: "newpass",
		})
		assert.NoError(t, err)

		err = f.svc.ResetPassword(ctx, token, auth.ResetPasswordRequest{NewPassword: "again1"})
		assert.Equal(t, auth.KindInvalidOrExpiredToken, auth.KindOf(err))
	})

	t.Run("expired token", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		register(t, f, "Ada", "ada@example.com", "oldpass")
		f.mailer.On("SendPasswordResetLink", "ada@example.com", mock.Anything).Return(nil).Once()

		require.NoError(t, f.svc.ForgotPassword(ctx, auth.ForgotPasswordRequest{Email: "ada@example.com"}))
		f.svc.Wait()
		token := tokenFromLink(t, f.mailer.lastLink(), "reset-password")

		*f.now = f.now.Add(21 * time.Minute)

		err := f.svc.ResetPassword(ctx, token, auth.ResetPasswordRequest{NewPassword: "newpass"})
		assert.Equal(t, auth.KindInvalidOrExpiredToken, auth.KindOf(err))
	})

	t.Run("unknown email is rejected by default", func(t *testing.T) {
		f := newFixture(t, auth.Config{})

		err := f.svc.ForgotPassword(ctx, auth.ForgotPasswordRequest{Email: "ghost@example.com"})
		assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))
	})

	t.Run("unknown email is acknowledged when concealed", func(t *testing.T) {
		f := newFixture(t, auth.Config{ConcealUnknownEmail: true})

		err := f.svc.ForgotPassword(ctx, auth.ForgotPasswordRequest{Email: "ghost@example.com"})
		require.NoError(t, err)
		f.svc.Wait()
		f.mailer.AssertNotCalled(t, "SendPasswordResetLink", mock.Anything, mock.Anything)
	})

	t.Run("missing new password", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		err := f.svc.ResetPassword(ctx, "whatever", auth.ResetPasswordRequest{})
		assert.Equal(t, auth.KindBadRequest, auth.KindOf(err))
	})
}

func TestService_ChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, auth.Config{})
	view := register(t, f, "Ada", "ada@example.com", "oldpass")

	err := f.svc.ChangePassword(ctx, view.ID, auth.ChangePasswordRequest{
		CurrentPassword: "wrong", NewPassword: "newpass",
	})
	assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))

	require.NoError(t, f.svc.ChangePassword(ctx, view.ID, auth.ChangePasswordRequest{
		CurrentPassword: "oldpass", NewPassword: "newpass",
	}))

	stored, err := f.registry.GetByID(ctx, view.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.PasswordHash, "newpass")

	me, err := f.svc.Me(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, view, me)
}

func TestService_Logout(t *testing.T) {
	f := newFixture(t, auth.Config{})

	rec := httptest.NewRecorder()
	f.svc.Logout(context.Background(), rec)

	cookie := sessionCookie(t, rec)
	require.NotNil(t, cookie)
	assert.Equal(t, "logout", cookie.Value)
	assert.Negative(t, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)

	ops := f.metrics.AuthOperations().WithLabelValues("logout", "success")
	assert.InDelta(t, 1, testutil.ToFloat64(ops), 0)
}

func TestService_OverlongPassword(t *testing.T) {
	ctx := context.Background()
	atLimit := strings.Repeat("p", core.MaxPasswordBytes)
	overLimit := atLimit + "x"

	t.Run("register is a bad request and creates nothing", func(t *testing.T) {
		f := newFixture(t, auth.Config{})

		_, err := f.svc.Register(ctx, httptest.NewRecorder(), auth.RegisterRequest{
			Name: "Ada", Email: "ada@example.com", Password: overLimit,
		})
		assert.Equal(t, auth.KindBadRequest, auth.KindOf(err))
		assert.ErrorIs(t, err, core.ErrPasswordTooLong)

		_, err = f.registry.GetByEmail(ctx, "ada@example.com")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("login fails as invalid credentials even when the prefix matches", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		register(t, f, "Ada", "ada@example.com", atLimit)

		_, err := f.svc.Login(ctx, httptest.NewRecorder(), auth.LoginRequest{
			Email: "ada@example.com", Password: overLimit,
		})
		assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))
	})

	t.Run("reset and change are bad requests", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		view := register(t, f, "Ada", "ada@example.com", "oldpass")

		err := f.svc.ResetPassword(ctx, "whatever", auth.ResetPasswordRequest{NewPassword: overLimit})
		assert.Equal(t, auth.KindBadRequest, auth.KindOf(err))

		err = f.svc.ChangePassword(ctx, view.ID, auth.ChangePasswordRequest{
			CurrentPassword: "oldpass", NewPassword: overLimit,
		})
		assert.Equal(t, auth.KindBadRequest, auth.KindOf(err))
	})
}
