package stores

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mscno/sheetlog/server/model"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/blake2b"
)

// userRecord is the persisted form of a user.
type userRecord struct {
	Name        string `json:"name" datastore:"name"`
	KeyHash     []byte `json:"key_hash" datastore:"key_hash,noindex"`
	// KeyIndex is a keyed hash of the key used to find the one record worth
	// a bcrypt comparison. Records written before it existed leave it empty.
	KeyIndex    string `json:"key_index,omitempty" datastore:"key_index"`
	Unsafe      bool   `json:"unsafe" datastore:"unsafe,noindex"`
	Permissions string `json:"permissions" datastore:"permissions,noindex"`
}

// HashOption configures how persistent stores hash keys.
type HashOption func(*hasher)

// WithHashCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) HashOption {
	return func(h *hasher) {
		h.cost = cost
	}
}

// WithIndexSecret sets the secret that keys the lookup index. Users stored
// under a different secret no longer resolve by key, so keep it stable per
// store.
func WithIndexSecret(secret []byte) HashOption {
	return func(h *hasher) {
		sum := blake2b.Sum256(secret)
		h.secret = sum[:]
	}
}

var defaultIndexSecret = blake2b.Sum256([]byte("sheetlog/user-key-index"))

type hasher struct {
	cost   int
	secret []byte
}

func newHasher(opts ...HashOption) hasher {
	h := hasher{cost: bcrypt.DefaultCost, secret: defaultIndexSecret[:]}
	for _, opt := range opts {
		opt(&h)
	}
	return h
}

// index returns the hex keyed BLAKE2b-256 of key.
func (h hasher) index(key string) string {
	mac, err := blake2b.New256(h.secret)
	if err != nil {
		// secret is always 32 bytes
		panic(err)
	}
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func (h hasher) record(user model.User) (userRecord, error) {
	perms, err := json.Marshal(user.Permissions)
	if err != nil {
		return userRecord{}, fmt.Errorf("failed to encode permissions: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(user.Key.Value), h.cost)
	if err != nil {
		return userRecord{}, fmt.Errorf("failed to hash key: %w", err)
	}
	return userRecord{
		Name:        user.Name,
		KeyHash:     hash,
		KeyIndex:    h.index(user.Key.Value),
		Unsafe:      user.Key.Unsafe,
		Permissions: string(perms),
	}, nil
}

// update re-hashes only when the new user carries a key value.
func (h hasher) update(existing userRecord, user model.User) (userRecord, error) {
	if user.Key.Value != "" {
		return h.record(user)
	}
	perms, err := json.Marshal(user.Permissions)
	if err != nil {
		return userRecord{}, fmt.Errorf("failed to encode permissions: %w", err)
	}
	existing.Name = user.Name
	existing.Unsafe = user.Key.Unsafe
	existing.Permissions = string(perms)
	return existing, nil
}

// candidate reports whether rec may hold key. Indexed records are ruled out
// without touching bcrypt; legacy records without an index always qualify.
func (r userRecord) candidate(idx string) bool {
	return r.KeyIndex == "" || subtle.ConstantTimeCompare([]byte(r.KeyIndex), []byte(idx)) == 1
}

func (r userRecord) matches(key string) bool {
	err := bcrypt.CompareHashAndPassword(r.KeyHash, []byte(key))
	return err == nil
}

func (r userRecord) user() (model.User, error) {
	u := model.User{Name: r.Name, Key: model.Key{Unsafe: r.Unsafe}}
	if r.Permissions != "" {
		if err := json.Unmarshal([]byte(r.Permissions), &u.Permissions); err != nil {
			return model.User{}, fmt.Errorf("failed to decode permissions of %q: %w", r.Name, err)
		}
	}
	return u, nil
}

var errStop = errors.New("stop")
