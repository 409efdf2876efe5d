package stores

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mscno/sheetlog/server/model"
	"go.etcd.io/bbolt"
)

// BoltUserStore keeps users in a bbolt database, one JSON record per user
// keyed by name.
type BoltUserStore struct {
	db     *bbolt.DB
	hasher hasher
}

func NewBoltUserStore(db *bbolt.DB, opts ...HashOption) *BoltUserStore {
	return &BoltUserStore{db: db, hasher: newHasher(opts...)}
}

var usersBucket = []byte("users")

func (s *BoltUserStore) CreateUser(ctx context.Context, user model.User) error {
	rec, err := s.hasher.record(user)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(usersBucket)
		if err != nil {
			return err
		}
		if bucket.Get([]byte(user.Name)) != nil {
			return ErrUserExists
		}
		if _, err := findByKey(bucket, s.hasher.index(user.Key.Value), user.Key.Value); err == nil {
			return ErrKeyTaken
		} else if !errors.Is(err, ErrUserNotFound) {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(user.Name), data)
	})
}

func (s *BoltUserStore) GetUser(ctx context.Context, name string) (*model.User, error) {
	var user model.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(usersBucket)
		if bucket == nil {
			return ErrUserNotFound
		}
		val := bucket.Get([]byte(name))
		if val == nil {
			return ErrUserNotFound
		}
		var rec userRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		u, err := rec.user()
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltUserStore) UpdateUser(ctx context.Context, name string, updateFn func(model.User) (model.User, error)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(usersBucket)
		if bucket == nil {
			return ErrUserNotFound
		}
		val := bucket.Get([]byte(name))
		if val == nil {
			return ErrUserNotFound
		}
		var rec userRecord
		if err := json.Unmarshal(val, &rec); err != nil {
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
		if updated.Name != name && bucket.Get([]byte(updated.Name)) != nil {
			return ErrUserExists
		}
		next, err := s.hasher.update(rec, updated)
		if err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		if err := bucket.Delete([]byte(name)); err != nil {
			return err
		}
		return bucket.Put([]byte(updated.Name), data)
	})
}

func (s *BoltUserStore) DeleteUser(ctx context.Context, name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(usersBucket)
		if bucket == nil {
			return ErrUserNotFound
		}
		if bucket.Get([]byte(name)) == nil {
			return ErrUserNotFound
		}
		return bucket.Delete([]byte(name))
	})
}

func (s *BoltUserStore) ListUsers(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(usersBucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var rec userRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			u, err := rec.user()
			if err != nil {
				return err
			}
			users = append(users, u)
			return nil
		})
	})
	return users, err
}

func (s *BoltUserStore) FindUserByKey(ctx context.Context, key string) (*model.User, error) {
	var user model.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(usersBucket)
		if bucket == nil {
			return ErrUserNotFound
		}
		rec, err := findByKey(bucket, s.hasher.index(key), key)
		if err != nil {
			return err
		}
		u, err := rec.user()
		if err != nil {
			return err
		}
		u.Key.Value = key
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// findByKey runs bcrypt only on records whose index matches idx, plus any
// legacy records that carry no index.
func findByKey(bucket *bbolt.Bucket, idx, key string) (userRecord, error) {
	var found userRecord
	err := bucket.ForEach(func(k, v []byte) error {
		var rec userRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		if rec.candidate(idx) && rec.matches(key) {
			found = rec
			return errStop
		}
		return nil
	})
	switch {
	case errors.Is(err, errStop):
		return found, nil
	case err != nil:
		return userRecord{}, err
	}
	return userRecord{}, ErrUserNotFound
}

var _ UserStore = (*BoltUserStore)(nil)
