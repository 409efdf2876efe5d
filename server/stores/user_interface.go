package stores

import (
	"context"
	"errors"

	"github.com/mscno/sheetlog/server/model"
)

// UserStore holds the adapter's users.
//
// Persistent stores keep only a hash of each key, so users they return carry
// an empty Key.Value unless they were looked up with FindUserByKey.
type UserStore interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUser(ctx context.Context, name string) (*model.User, error)
	// UpdateUser applies updateFn to the stored user. A returned user with an
	// empty Key.Value keeps its current key.
	UpdateUser(ctx context.Context, name string, updateFn func(model.User) (model.User, error)) error
	DeleteUser(ctx context.Context, name string) error
	ListUsers(ctx context.Context) ([]model.User, error)
	// FindUserByKey returns the user holding key, matching the exact key value.
	FindUserByKey(ctx context.Context, key string) (*model.User, error)
}

var ErrUserExists = errors.New("user already exists")
var ErrUserNotFound = errors.New("user not found")
var ErrKeyTaken = errors.New("key already assigned to another user")
