// AngelaMos | 2026
// dispatcher.go

package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

const (
	KindVerification  = "verification"
	KindPasswordReset = "password_reset"
)

// Dispatcher delivers account emails. Implementations may block on I/O; callers
// that must not wait run them on their own goroutine.
type Dispatcher interface {
	SendVerificationEmail(ctx context.Context, email, link string) error
	SendPasswordResetLink(ctx context.Context, email, link string) error
}

type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) SendVerificationEmail(
	ctx context.Context,
	email, link string,
) error {
	d.logger.InfoContext(ctx, "verification email",
		"to", email,
		"link", link,
	)
	return nil
}

func (d *LogDispatcher) SendPasswordResetLink(
	ctx context.Context,
	email, link string,
) error {
	d.logger.InfoContext(ctx, "password reset email",
		"to", email,
		"link", link,
	)
	return nil
}

// Pusher appends a payload to a named queue.
type Pusher interface {
	Push(ctx context.Context, key string, payload []byte) error
}

// Job is the outbox record consumed by the external mailer.
type Job struct {
	Kind     string    `json:"kind"`
	To       string    `json:"to"`
	Link     string    `json:"link"`
	QueuedAt time.Time `json:"queued_at"`
}

type RedisDispatcher struct {
	queue Pusher
	key   string
	now   func() time.Time
}

func NewRedisDispatcher(queue Pusher, key string) *RedisDispatcher {
	return &RedisDispatcher{
		queue: queue,
		key:   key,
		now:   time.Now,
	}
}

func (d *RedisDispatcher) SendVerificationEmail(
	ctx context.Context,
	email, link string,
) error {
	return d.enqueue(ctx, KindVerification, email, link)
}

func (d *RedisDispatcher) SendPasswordResetLink(
	ctx context.Context,
	email, link string,
) error {
	return d.enqueue(ctx, KindPasswordReset, email, link)
}

func (d *RedisDispatcher) enqueue(
	ctx context.Context,
	kind, email, link string,
) error {
	payload, err := json.Marshal(Job{
		Kind:     kind,
		To:       email,
		Link:     link,
		QueuedAt: d.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode %s job: %w", kind, err)
	}

	if err := d.queue.Push(ctx, d.key, payload); err != nil {
		return fmt.Errorf("enqueue %s job: %w", kind, err)
	}

	return nil
}

var (
	_ Dispatcher = (*LogDispatcher)(nil)
	_ Dispatcher = (*RedisDispatcher)(nil)
)
