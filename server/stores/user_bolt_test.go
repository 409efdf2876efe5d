package stores

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mscno/sheetlog/server/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"
)

func openBolt(t *testing.T) *bbolt.DB {
	t.Helper()
	db, err := bbolt.Open(filepath.Join(t.TempDir(), "users.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBoltUserStore(t *testing.T) {
	testUserStore(t, NewBoltUserStore(openBolt(t), WithHashCost(bcrypt.MinCost)))
}

func TestBoltUserStore_KeysAreHashed(t *testing.T) {
	db := openBolt(t)
	store := NewBoltUserStore(db, WithHashCost(bcrypt.MinCost))
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, model.User{Name: "alice", Key: model.Key{Value: "Alice#Key1"}}))

	err := db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(usersBucket).Get([]byte("alice"))
		assert.NotContains(t, string(raw), "Alice#Key1")
		return nil
	})
	require.NoError(t, err)

	u, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, u.Key.Value)
}

func TestBoltUserStore_Empty(t *testing.T) {
	store := NewBoltUserStore(openBolt(t), WithHashCost(bcrypt.MinCost))
	ctx := context.Background()
	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
	_, err = store.FindUserByKey(ctx, "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestBoltUserStore_KeyIndex(t *testing.T) {
	db := openBolt(t)
	store := NewBoltUserStore(db, WithHashCost(bcrypt.MinCost))
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, model.User{Name: "alice", Key: model.Key{Value: "Alice#Key1"}}))

	read := func(name string) userRecord {
		var rec userRecord
		require.NoError(t, db.View(func(tx *bbolt.Tx) error {
			return json.Unmarshal(tx.Bucket(usersBucket).Get([]byte(name)), &rec)
		}))
		return rec
	}
	put := func(rec userRecord) {
		data, err := json.Marshal(rec)
		require.NoError(t, err)
		require.NoError(t, db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(usersBucket).Put([]byte(rec.Name), data)
		}))
	}

	rec := read("alice")
	assert.Equal(t, store.hasher.index("Alice#Key1"), rec.KeyIndex)
	assert.NotEqual(t, store.hasher.index("Bob#Key1"), rec.KeyIndex)

	// a record whose index does not match is never bcrypt-checked
	rec.KeyIndex = store.hasher.index("something else")
	put(rec)
	_, err := store.FindUserByKey(ctx, "Alice#Key1")
	assert.ErrorIs(t, err, ErrUserNotFound)

	// records without an index still resolve by hash
	rec.KeyIndex = ""
	put(rec)
	u, err := store.FindUserByKey(ctx, "Alice#Key1")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Name)
}

func TestHasher_IndexSecret(t *testing.T) {
	a := newHasher()
	b := newHasher(WithIndexSecret([]byte("other")))
	assert.Equal(t, a.index("k"), newHasher().index("k"))
	assert.NotEqual(t, a.index("k"), b.index("k"))
	assert.Len(t, a.index("k"), 64)
}
