package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/you-humble/pdftoxml/internal/domain"
)

type memConversionStore struct {
	mu        sync.Mutex
	items     map[string]domain.Conversion
	createErr error
	clock     time.Time
}

func newMemConversionStore() *memConversionStore {
	return &memConversionStore{
		items: map[string]domain.Conversion{},
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memConversionStore) Create(_ context.Context, p domain.CreateConversionParams) (domain.Conversion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return domain.Conversion{}, s.createErr
	}

	s.clock = s.clock.Add(time.Second)
	c := domain.Conversion{
		ID:               p.ID,
		OwnerID:          p.OwnerID,
		Status:           domain.StatusPending,
		OriginalFileName: p.OriginalFileName,
		SourceFileName:   p.SourceFileName,
		OutputFileName:   p.OutputFileName,
		FileSize:         p.FileSize,
		CreatedAt:        s.clock,
		UpdatedAt:        s.clock,
	}
	s.items[c.ID] = c
	return c, nil
}

func (s *memConversionStore) Conversion(_ context.Context, id string) (domain.Conversion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[id]
	if !ok {
		return domain.Conversion{}, domain.ErrConversionNotFound
	}
	return c, nil
}

func (s *memConversionStore) ListByOwner(_ context.Context, ownerID string) ([]domain.Conversion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Conversion{}
	for _, c := range s.items {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memConversionStore) Claim(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[id]
	if !ok {
		return domain.ErrConversionNotFound
	}
	if c.Status != domain.StatusPending {
		return domain.ErrConversionNotPending
	}
	c.Status = domain.StatusInProgress
	s.items[id] = c
	return nil
}

func (s *memConversionStore) UpdateStatus(_ context.Context, id string, status domain.ConversionStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[id]
	if !ok {
		return domain.ErrConversionNotFound
	}
	if c.Status.Terminal() {
		return domain.ErrConversionTerminal
	}
	c.Status, c.Error = status, reason
	s.items[id] = c
	return nil
}

func (s *memConversionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return domain.ErrConversionNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *memConversionStore) set(c domain.Conversion) {
	s.mu.Lock()
	s.items[c.ID] = c
	s.mu.Unlock()
}

type fakeDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *fakeDispatcher) Enqueue(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, id)
	return nil
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{keys: map[string]string{}}
}

func (m *memIdempotency) Reserve(_ context.Context, ownerID, key, id string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := ownerID + ":" + key
	if existing, ok := m.keys[k]; ok {
		return existing, false, nil
	}
	m.keys[k] = id
	return id, true, nil
}

func (m *memIdempotency) Release(_ context.Context, ownerID, key string) error {
	m.mu.Lock()
	delete(m.keys, ownerID+":"+key)
	m.mu.Unlock()
	return nil
}

type memUserStore struct {
	mu    sync.Mutex
	users map[string]domain.User
	next  int
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]domain.User{}}
}

func (s *memUserStore) Create(_ context.Context, p domain.CreateUserParams) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == p.Email {
			return domain.User{}, domain.ErrUserExists
		}
	}
	s.next++
	u := domain.User{
		ID:           fmt.Sprintf("user-%d", s.next),
		Name:         p.Name,
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *memUserStore) UserByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *memUserStore) User(_ context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return domain.ErrInvalidCredentials
	}
	return nil
}

type staticIssuer struct{ err error }

func (i staticIssuer) Issue(u domain.User) (string, error) {
	if i.err != nil {
		return "", i.err
	}
	return "token-for-" + u.ID, nil
}

var errBoom = errors.New("boom")
