// AngelaMos | 2026
// memory.go

package user

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/carterperez-dev/templates/ordering-auth/internal/core"
)

// memoryRepository keeps records in process. A single mutex gives it the same
// atomicity the Postgres repository gets from constraints and conditional
// updates.
type memoryRepository struct {
	mu      sync.Mutex
	byID    map[string]*User
	byEmail map[string]string
	now     func() time.Time
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (r *memoryRepository) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
	}

	if user.VerificationToken != "" && r.tokenInUseLocked(user.VerificationToken, "") {
		return fmt.Errorf("create user: verification token collision")
	}

	user.Role = RoleAdmin
	if len(r.byID) > 0 {
		user.Role = RoleUser
	}

	now := r.now()
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := *user
	r.byID[user.ID] = &stored
	r.byEmail[user.Email] = user.ID

	return nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}

	return cloneUser(u), nil
}

func (r *memoryRepository) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("get user by email: %w", core.ErrNotFound)
	}

	return cloneUser(r.byID[id]), nil
}

func (r *memoryRepository) TokenInUse(
	_ context.Context,
	token, tokenHash string,
) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tokenInUseLocked(token, tokenHash), nil
}

func (r *memoryRepository) tokenInUseLocked(token, tokenHash string) bool {
	for _, u := range r.byID {
		if token != "" && u.VerificationToken == token {
			return true
		}
		if tokenHash != "" && u.ResetTokenHash != nil && *u.ResetTokenHash == tokenHash {
			return true
		}
	}
	return false
}

func (r *memoryRepository) MarkEmailVerified(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token == "" {
		return fmt.Errorf("verify email: %w", core.ErrTokenInvalid)
	}

	for _, u := range r.byID {
		if u.VerificationToken == token {
			u.IsEmailVerified = true
			u.VerificationToken = ""
			u.UpdatedAt = r.now()
			return nil
		}
	}

	return fmt.Errorf("verify email: %w", core.ErrTokenInvalid)
}

func (r *memoryRepository) SetResetToken(
	_ context.Context,
	email, tokenHash string,
	expiresAt time.Time,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[email]
	if !ok {
		return fmt.Errorf("set reset token: %w", core.ErrNotFound)
	}

	u := r.byID[id]
	u.ResetTokenHash = &tokenHash
	u.ResetTokenExpiry = &expiresAt
	u.UpdatedAt = r.now()

	return nil
}

func (r *memoryRepository) ConsumeResetToken(
	_ context.Context,
	tokenHash, passwordHash string,
	now time.Time,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.ResetTokenHash == nil || *u.ResetTokenHash != tokenHash {
			continue
		}
		if !u.ResetTokenValid(now) {
			break
		}

		u.PasswordHash = passwordHash
		u.ResetTokenHash = nil
		u.ResetTokenExpiry = nil
		u.UpdatedAt = r.now()
		return nil
	}

	return fmt.Errorf("consume reset token: %w", core.ErrTokenInvalid)
}

func (r *memoryRepository) UpdatePassword(
	_ context.Context,
	id, passwordHash string,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("update password: %w", core.ErrNotFound)
	}

	u.PasswordHash = passwordHash
	u.UpdatedAt = r.now()

	return nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("delete user: %w", core.ErrNotFound)
	}

	delete(r.byID, id)
	delete(r.byEmail, u.Email)

	return nil
}

func (r *memoryRepository) List(
	_ context.Context,
	params ListUsersParams,
) ([]User, int, error) {
	params.Normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	search := strings.ToLower(params.Search)
	matched := make([]User, 0, len(r.byID))
	for _, u := range r.byID {
		if params.Role != "" && u.Role != params.Role {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Email), search) &&
			!strings.Contains(strings.ToLower(u.Name), search) {
			continue
		}
		matched = append(matched, *cloneUser(u))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := min(params.Offset(), total)
	end := min(start+params.PageSize, total)

	return matched[start:end], total, nil
}

func cloneUser(u *User) *User {
	c := *u
	if u.ResetTokenHash != nil {
		h := *u.ResetTokenHash
		c.ResetTokenHash = &h
	}
	if u.ResetTokenExpiry != nil {
		e := *u.ResetTokenExpiry
		c.ResetTokenExpiry = &e
	}
	return &c
}
