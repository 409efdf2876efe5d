package stores

import (
	"context"
	"sort"
	"sync"

	"github.com/mscno/sheetlog/server/model"
)

type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]model.User
}

func NewInMemoryUserStore(users ...model.User) *InMemoryUserStore {
	s := &InMemoryUserStore{users: make(map[string]model.User)}
	for _, u := range users {
		s.users[u.Name] = u
	}
	return s
}

func (s *InMemoryUserStore) CreateUser(ctx context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.Name]; exists {
		return ErrUserExists
	}
	for _, u := range s.users {
		if u.Key.Value == user.Key.Value {
			return ErrKeyTaken
		}
	}
	s.users[user.Name] = user
	return nil
}

func (s *InMemoryUserStore) GetUser(ctx context.Context, name string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[name]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *InMemoryUserStore) UpdateUser(ctx context.Context, name string, updateFn func(model.User) (model.User, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[name]
	if !ok {
		return ErrUserNotFound
	}
	updated, err := updateFn(u)
	if err != nil {
		return err
	}
	if updated.Key.Value == "" {
		updated.Key.Value = u.Key.Value
	}
	if _, taken := s.users[updated.Name]; taken && updated.Name != name {
		return ErrUserExists
	}
	delete(s.users, name)
	s.users[updated.Name] = updated
	return nil
}

func (s *InMemoryUserStore) DeleteUser(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[name]; !ok {
		return ErrUserNotFound
	}
	delete(s.users, name)
	return nil
}

func (s *InMemoryUserStore) ListUsers(ctx context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryUserStore) FindUserByKey(ctx context.Context, key string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Key.Value == key {
			found := u
			return &found, nil
		}
	}
	return nil, ErrUserNotFound
}

var _ UserStore = (*InMemoryUserStore)(nil)
