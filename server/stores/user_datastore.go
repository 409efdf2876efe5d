package stores

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/datastore"
	"github.com/mscno/sheetlog/server/model"
)

const userKind = "User"

// UserDataStore keeps users in Google Cloud Datastore under kind User, keyed
// by name.
type UserDataStore struct {
	client *datastore.Client
	hasher hasher
}

func NewUserDataStore(client *datastore.Client, opts ...HashOption) *UserDataStore {
	return &UserDataStore{client: client, hasher: newHasher(opts...)}
}

// Close closes the underlying datastore client.
func (s *UserDataStore) Close() error {
	return s.client.Close()
}

func (s *UserDataStore) userKey(name string) *datastore.Key {
	return datastore.NameKey(userKind, name, nil)
}

func (s *UserDataStore) records(ctx context.Context) ([]userRecord, error) {
	var recs []userRecord
	if _, err := s.client.GetAll(ctx, datastore.NewQuery(userKind), &recs); err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	return recs, nil
}

func (s *UserDataStore) CreateUser(ctx context.Context, user model.User) error {
	key := s.userKey(user.Name)
	var existing userRecord
	err := s.client.Get(ctx, key, &existing)
	if err == nil {
		return ErrUserExists
	}
	if !errors.Is(err, datastore.ErrNoSuchEntity) {
		return err
	}
	if _, err := s.FindUserByKey(ctx, user.Key.Value); err == nil {
		return ErrKeyTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	rec, err := s.hasher.record(user)
	if err != nil {
		return err
	}
	_, err = s.client.Put(ctx, key, &rec)
	return err
}

func (s *UserDataStore) GetUser(ctx context.Context, name string) (*model.User, error) {
	var rec userRecord
	err := s.client.Get(ctx, s.userKey(name), &rec)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u, err := rec.user()
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserDataStore) UpdateUser(ctx context.Context, name string, updateFn func(model.User) (model.User, error)) error {
	key := s.userKey(name)
	tx, err := s.client.NewTransaction(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var rec userRecord
	err = tx.Get(key, &rec)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	user, err := rec.user()
	if err != nil {
		return err
	}
	updated, err := updateFn(user)
	if err != nil {
		return err
	}
	if updated.Name != name {
		return errors.New("cannot rename a user during update")
	}
	next, err := s.hasher.update(rec, updated)
	if err != nil {
		return err
	}
	if _, err := tx.Put(key, &next); err != nil {
		return err
	}
	_, err = tx.Commit()
	return err
}

func (s *UserDataStore) DeleteUser(ctx context.Context, name string) error {
	key := s.userKey(name)
	var rec userRecord
	if err := s.client.Get(ctx, key, &rec); errors.Is(err, datastore.ErrNoSuchEntity) {
		return ErrUserNotFound
	} else if err != nil {
		return err
	}
	return s.client.Delete(ctx, key)
}

func (s *UserDataStore) ListUsers(ctx context.Context) ([]model.User, error) {
	recs, err := s.records(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]model.User, 0, len(recs))
	for _, rec := range recs {
		u, err := rec.user()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// FindUserByKey queries the key index first and falls back to scanning
// records stored without one.
func (s *UserDataStore) FindUserByKey(ctx context.Context, key string) (*model.User, error) {
	idx := s.hasher.index(key)
	var recs []userRecord
	q := datastore.NewQuery(userKind).FilterField("key_index", "=", idx)
	if _, err := s.client.GetAll(ctx, q, &recs); err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	if rec, ok := matchKey(recs, idx, key); ok {
		return s.found(rec, key)
	}
	all, err := s.records(ctx)
	if err != nil {
		return nil, err
	}
	var legacy []userRecord
	for _, rec := range all {
		if rec.KeyIndex == "" {
			legacy = append(legacy, rec)
		}
	}
	if rec, ok := matchKey(legacy, idx, key); ok {
		return s.found(rec, key)
	}
	return nil, ErrUserNotFound
}

func (s *UserDataStore) found(rec userRecord, key string) (*model.User, error) {
	u, err := rec.user()
	if err != nil {
		return nil, err
	}
	u.Key.Value = key
	return &u, nil
}

func matchKey(recs []userRecord, idx, key string) (userRecord, bool) {
	for _, rec := range recs {
		if rec.candidate(idx) && rec.matches(key) {
			return rec, true
		}
	}
	return userRecord{}, false
}

var _ UserStore = (*UserDataStore)(nil)
