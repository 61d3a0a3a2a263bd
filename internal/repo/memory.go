package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalix/emailauth/internal/model"
)

// MemoryStore keeps all records in process memory. It enforces the same
// unique fields as the database schema and is used by tests and
// STORE_DRIVER=memory.
type MemoryStore struct {
	mu          sync.RWMutex
	now         func() time.Time
	users       map[uuid.UUID]model.User
	loginTokens map[uuid.UUID]model.LoginToken
	emailTokens map[uuid.UUID]model.EmailChangeToken
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:         time.Now,
		users:       make(map[uuid.UUID]model.User),
		loginTokens: make(map[uuid.UUID]model.LoginToken),
		emailTokens: make(map[uuid.UUID]model.EmailChangeToken),
	}
}

// Store exposes the memory repositories through the common Store bundle
func (m *MemoryStore) Store() *Store {
	return &Store{
		Users:       memoryUsers{m},
		LoginTokens: memoryLoginTokens{m},
		EmailTokens: memoryEmailTokens{m},
	}
}

// LoginTokenCount returns the number of stored login tokens, expired included
func (m *MemoryStore) LoginTokenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.loginTokens)
}

// EmailTokenCount returns the number of stored email change tokens
func (m *MemoryStore) EmailTokenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.emailTokens)
}

type memoryUsers struct{ m *MemoryStore }

func (r memoryUsers) Create(_ context.Context, user model.User) (model.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.Email == user.Email {
			return model.User{}, fmt.Errorf("insert user: %w", ErrDuplicate)
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = r.m.now()
	user.NonceHashes = cloneStrings(user.NonceHashes)
	r.m.users[user.ID] = user
	return cloneUser(user), nil
}

func (r memoryUsers) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	u, ok := r.m.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user: %w", ErrNotFound)
	}
	return cloneUser(u), nil
}

func (r memoryUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, u := range r.m.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return model.User{}, fmt.Errorf("user: %w", ErrNotFound)
}

func (r memoryUsers) Update(_ context.Context, user model.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	existing, ok := r.m.users[user.ID]
	if !ok {
		return fmt.Errorf("update user %s: %w", user.ID, ErrNotFound)
	}
	for id, u := range r.m.users {
		if id != user.ID && u.Email == user.Email {
			return fmt.Errorf("update user: %w", ErrDuplicate)
		}
	}
	existing.Email = user.Email
	existing.DisplayName = user.DisplayName
	r.m.users[user.ID] = existing
	return nil
}

func (r memoryUsers) AddNonceHash(_ context.Context, id uuid.UUID, hash string) error {
	return r.mutate(id, func(u *model.User) {
		u.NonceHashes = append(cloneStrings(u.NonceHashes), hash)
	})
}

func (r memoryUsers) RemoveNonceHash(_ context.Context, id uuid.UUID, hash string) error {
	return r.mutate(id, func(u *model.User) {
		kept := make([]string, 0, len(u.NonceHashes))
		for _, h := range u.NonceHashes {
			if h != hash {
				kept = append(kept, h)
			}
		}
		u.NonceHashes = kept
	})
}

func (r memoryUsers) ClearNonceHashes(_ context.Context, id uuid.UUID) error {
	return r.mutate(id, func(u *model.User) { u.NonceHashes = []string{} })
}

func (r memoryUsers) mutate(id uuid.UUID, fn func(u *model.User)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	fn(&u)
	r.m.users[id] = u
	return nil
}

type memoryLoginTokens struct{ m *MemoryStore }

func (r memoryLoginTokens) Create(_ context.Context, t model.LoginToken) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.loginTokens {
		if existing.Email == t.Email {
			return fmt.Errorf("insert login token: %w", ErrDuplicate)
		}
	}
	r.m.loginTokens[t.ID] = t
	return nil
}

func (r memoryLoginTokens) FindByEmail(_ context.Context, email string) (model.LoginToken, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, t := range r.m.loginTokens {
		if t.Email == email {
			return t, nil
		}
	}
	return model.LoginToken{}, fmt.Errorf("login token: %w", ErrNotFound)
}

func (r memoryLoginTokens) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.loginTokens[id]; !ok {
		return false, nil
	}
	delete(r.m.loginTokens, id)
	return true, nil
}

func (r memoryLoginTokens) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for id, t := range r.m.loginTokens {
		if t.CreatedAt.Before(cutoff) {
			delete(r.m.loginTokens, id)
			n++
		}
	}
	return n, nil
}

type memoryEmailTokens struct{ m *MemoryStore }

func (r memoryEmailTokens) Create(_ context.Context, t model.EmailChangeToken) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.emailTokens {
		if existing.Email == t.Email || existing.NewEmail == t.NewEmail {
			return fmt.Errorf("insert email token: %w", ErrDuplicate)
		}
	}
	r.m.emailTokens[t.ID] = t
	return nil
}

func (r memoryEmailTokens) FindByEmail(_ context.Context, email string) (model.EmailChangeToken, error) {
	return r.find(func(t model.EmailChangeToken) bool { return t.Email == email })
}

func (r memoryEmailTokens) FindByNewEmail(_ context.Context, newEmail string) (model.EmailChangeToken, error) {
	return r.find(func(t model.EmailChangeToken) bool { return t.NewEmail == newEmail })
}

func (r memoryEmailTokens) find(match func(model.EmailChangeToken) bool) (model.EmailChangeToken, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, t := range r.m.emailTokens {
		if match(t) {
			return t, nil
		}
	}
	return model.EmailChangeToken{}, fmt.Errorf("email token: %w", ErrNotFound)
}

func (r memoryEmailTokens) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.emailTokens[id]; !ok {
		return false, nil
	}
	delete(r.m.emailTokens, id)
	return true, nil
}

func (r memoryEmailTokens) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for id, t := range r.m.emailTokens {
		if t.CreatedAt.Before(cutoff) {
			delete(r.m.emailTokens, id)
			n++
		}
	}
	return n, nil
}

func cloneUser(u model.User) model.User {
	u.NonceHashes = cloneStrings(u.NonceHashes)
	return u
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
