package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mscno/sheetlog/server/model"
	"github.com/mscno/sheetlog/server/stores"
)

type UsersCmd struct {
	BoltPath    string `help:"Database file of the bolt user store." env:"SHEETLOG_BOLT_PATH" default:"sheetlog.db" type:"path"`
	IndexSecret string `help:"Secret keying the user key lookup index." env:"SHEETLOG_KEY_INDEX_SECRET"`

	Add    UsersAddCmd    `cmd:"" help:"Add a user."`
	List   UsersListCmd   `cmd:"" help:"List users."`
	Remove UsersRemoveCmd `cmd:"" help:"Remove a user."`
}

// open returns the bolt user store and a function closing it.
func (c *UsersCmd) open() (stores.UserStore, func(), error) {
	db, err := openBolt(c.BoltPath)
	if err != nil {
		return nil, nil, err
	}
	return stores.NewBoltUserStore(db, hashOptions(c.IndexSecret)...), func() { _ = db.Close() }, nil
}

// hashOptions keeps the built-in index secret unless one is configured.
func hashOptions(secret string) []stores.HashOption {
	if secret == "" {
		return nil
	}
	return []stores.HashOption{stores.WithIndexSecret([]byte(secret))}
}

type UsersAddCmd struct {
	Name        string `arg:"" help:"User name."`
	Key         string `help:"Access key." env:"SHEETLOG_NEW_KEY" required:""`
	Unsafe      bool   `help:"Skip the key strength check for this key."`
	Permissions string `help:"Permission as JSON: \"*\", a method list, or a map of sheet name to permission." default:"\"*\""`
}

func (c *UsersAddCmd) Run(ctx *cliCtx, parent *UsersCmd) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	store, closeFn, err := parent.open()
	if err != nil {
		return err
	}
	defer closeFn()
	if err := store.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to add user %s: %w", c.Name, err)
	}
	ctx.Logger.Info("user added", "user", c.Name)
	return nil
}

func (c *UsersAddCmd) user() (model.User, error) {
	var perm model.Permission
	if err := json.Unmarshal([]byte(c.Permissions), &perm); err != nil {
		return model.User{}, fmt.Errorf("invalid permissions: %w", err)
	}
	key := model.Key{Value: c.Key}
	if c.Unsafe {
		key = model.UnsafeKey(c.Key)
	}
	if !key.Strong() {
		return model.User{}, fmt.Errorf("key is too weak; use --unsafe to store it anyway")
	}
	return model.User{Name: c.Name, Key: key, Permissions: perm}, nil
}

type UsersListCmd struct{}

func (c *UsersListCmd) Run(ctx *cliCtx, parent *UsersCmd) error {
	store, closeFn, err := parent.open()
	if err != nil {
		return err
	}
	defer closeFn()
	users, err := store.ListUsers(ctx)
	if err != nil {
		return err
	}
	return printUsers(os.Stdout, users)
}

func printUsers(w io.Writer, users []model.User) error {
	for _, u := range users {
		perm, err := json.Marshal(u.Permissions)
		if err != nil {
			return err
		}
		unsafe := ""
		if u.Key.Unsafe {
			unsafe = " (unsafe key)"
		}
		fmt.Fprintf(w, "%s\t%s%s\n", u.Name, perm, unsafe)
	}
	return nil
}

type UsersRemoveCmd struct {
	Name string `arg:"" help:"User name."`
}

func (c *UsersRemoveCmd) Run(ctx *cliCtx, parent *UsersCmd) error {
	store, closeFn, err := parent.open()
	if err != nil {
		return err
	}
	defer closeFn()
	if err := store.DeleteUser(ctx, c.Name); err != nil {
		return fmt.Errorf("failed to remove user %s: %w", c.Name, err)
	}
	ctx.Logger.Info("user removed", "user", c.Name)
	return nil
}
