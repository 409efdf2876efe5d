package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/mscno/sheetlog/server/model"
	"github.com/mscno/sheetlog/server/stores"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrWeakKey      = errors.New("key does not meet strength requirements")
)

// AnonymousUser is the only user of an adapter configured without users.
func AnonymousUser() model.User {
	return model.User{Name: "anonymous", Key: model.UnsafeKey(""), Permissions: model.Wildcard()}
}

// authorize resolves the caller from key and checks it may call method on
// resource. The key must be strong unless the user's key is marked unsafe.
func authorize(ctx context.Context, users stores.UserStore, key, resource, method string) (*model.User, error) {
	user, err := users.FindUserByKey(ctx, key)
	if errors.Is(err, stores.ErrUserNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !user.Allows(resource, method) {
		return user, ErrUnauthorized
	}
	if !(model.Key{Value: key, Unsafe: user.Key.Unsafe}).Strong() {
		return user, ErrWeakKey
	}
	return user, nil
}
