// AngelaMos | 2026
// helpers_test.go

package auth_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/carterperez-dev/templates/ordering-auth/internal/auth"
	"github.com/carterperez-dev/templates/ordering-auth/internal/config"
	"github.com/carterperez-dev/templates/ordering-auth/internal/core"
	"github.com/carterperez-dev/templates/ordering-auth/internal/metrics"
	"github.com/carterperez-dev/templates/ordering-auth/internal/user"
)

const testBaseURL = "http://shop.test/api/v1"

type mockDispatcher struct {
	mock.Mock
	mu    sync.Mutex
	links []string
}

func (m *mockDispatcher) SendVerificationEmail(ctx context.Context, email, link string) error {
	m.record(link)
	return m.Called(email, link).Error(0)
}

func (m *mockDispatcher) SendPasswordResetLink(ctx context.Context, email, link string) error {
	m.record(link)
	return m.Called(email, link).Error(0)
}

func (m *mockDispatcher) record(link string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, link)
}

func (m *mockDispatcher) lastLink() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.links) == 0 {
		return ""
	}
	return m.links[len(m.links)-1]
}

type fixture struct {
	svc      *auth.Service
	registry *user.Service
	repo     user.Repository
	sessions *auth.SessionManager
	mailer   *mockDispatcher
	metrics  *metrics.Metrics
	now      *time.Time
}

func newSessionManager(t *testing.T, secure bool) *auth.SessionManager {
	t.Helper()

	dir := t.TempDir()
	cfg := config.SessionConfig{
		PrivateKeyPath: filepath.Join(dir, "private.pem"),
		PublicKeyPath:  filepath.Join(dir, "public.pem"),
		CookieName:     "token",
		Lifetime:       24 * time.Hour,
		Issuer:         "ordering-auth",
		Audience:       "ordering-api",
	}
	require.NoError(t, auth.GenerateKeyPair(cfg.PrivateKeyPath, cfg.PublicKeyPath))

	sessions, err := auth.NewSessionManager(cfg, secure)
	require.NoError(t, err)
	return sessions
}

func newFixture(t *testing.T, cfg auth.Config) *fixture {
	t.Helper()

	hasher, err := core.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Now()
	repo := user.NewMemoryRepository()
	registry := user.NewService(repo, hasher, user.WithClock(func() time.Time { return now }))

	if cfg.BaseURL == "" {
		cfg.BaseURL = testBaseURL
	}

	f := &fixture{
		registry: registry,
		repo:     repo,
		sessions: newSessionManager(t, false),
		mailer:   &mockDispatcher{},
		metrics:  metrics.New(),
		now:      &now,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = auth.NewService(registry, hasher, f.sessions, f.mailer, f.metrics, logger, cfg)
	t.Cleanup(f.svc.Wait)

	return f
}
