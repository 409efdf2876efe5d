package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/mscno/sheetlog/server/model"
	"github.com/mscno/sheetlog/server/stores"
)

func testCtx() *cliCtx {
	return &cliCtx{Context: context.Background(), Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

const usersJSON = `[
	{"name": "admin", "key": "Adm1n!Pass", "permissions": "*"},
	{"name": "reader", "key": {"__unsafe": "reader"}, "permissions": {"logs": ["GET"]}}
]`

func TestSeedUsers(t *testing.T) {
	ctx := testCtx()
	store := stores.NewInMemoryUserStore()

	assert.NoError(t, seedUsers(ctx, ctx, store, strings.NewReader(usersJSON)))
	// seeding twice keeps the existing users
	assert.NoError(t, seedUsers(ctx, ctx, store, strings.NewReader(usersJSON)))

	users, err := store.ListUsers(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(users))

	reader, err := store.GetUser(ctx, "reader")
	assert.NoError(t, err)
	assert.True(t, reader.Key.Unsafe)
	assert.True(t, reader.Allows("logs", "GET"))
	assert.False(t, reader.Allows("logs", "POST"))
}

func TestSeedUsersInvalid(t *testing.T) {
	ctx := testCtx()
	store := stores.NewInMemoryUserStore()
	assert.Error(t, seedUsers(ctx, ctx, store, strings.NewReader(`{"name":"x"}`)))
	assert.Error(t, seedUsers(ctx, ctx, store, strings.NewReader(`[{"key":"Adm1n!Pass"}]`)))
}

func TestOpenUserStoreBolt(t *testing.T) {
	ctx := testCtx()
	dir := t.TempDir()
	usersFile := filepath.Join(dir, "users.json")
	assert.NoError(t, os.WriteFile(usersFile, []byte(usersJSON), 0o600))

	cmd := &ServeCmd{UserStore: "bolt", BoltPath: filepath.Join(dir, "users.db"), Users: usersFile}
	store, closeFn, err := cmd.openUserStore(ctx, ctx)
	assert.NoError(t, err)
	defer closeFn()

	u, err := store.FindUserByKey(ctx, "Adm1n!Pass")
	assert.NoError(t, err)
	assert.Equal(t, "admin", u.Name)
}

func TestOpenUserStoreEmpty(t *testing.T) {
	ctx := testCtx()
	store, closeFn, err := (&ServeCmd{UserStore: "memory"}).openUserStore(ctx, ctx)
	assert.NoError(t, err)
	defer closeFn()
	assert.True(t, store == nil)
}

func TestOpenSpreadsheet(t *testing.T) {
	ctx := testCtx()

	ss, closeFn, err := (&ServeCmd{Backend: "memory"}).openSpreadsheet(ctx)
	assert.NoError(t, err)
	_, err = ss.Sheet(ctx, "sheet1")
	assert.NoError(t, err)
	closeFn()

	ss, closeFn, err = (&ServeCmd{Backend: "xlsx", XLSXPath: filepath.Join(t.TempDir(), "book.xlsx")}).openSpreadsheet(ctx)
	assert.NoError(t, err)
	sheets, err := ss.Sheets(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(sheets))
	closeFn()

	_, _, err = (&ServeCmd{Backend: "google"}).openSpreadsheet(ctx)
	assert.Error(t, err)
}

func TestUsersAddValidation(t *testing.T) {
	_, err := (&UsersAddCmd{Name: "x", Key: "weak", Permissions: `"*"`}).user()
	assert.Error(t, err)

	u, err := (&UsersAddCmd{Name: "x", Key: "weak", Unsafe: true, Permissions: `["get","post"]`}).user()
	assert.NoError(t, err)
	assert.Equal(t, model.Methods("GET", "POST"), u.Permissions)

	_, err = (&UsersAddCmd{Name: "x", Key: "Adm1n!Pass", Permissions: `{`}).user()
	assert.Error(t, err)
}

func TestUsersCommands(t *testing.T) {
	ctx := testCtx()
	parent := &UsersCmd{BoltPath: filepath.Join(t.TempDir(), "users.db")}

	assert.NoError(t, (&UsersAddCmd{Name: "admin", Key: "Adm1n!Pass", Permissions: `"*"`}).Run(ctx, parent))
	assert.Error(t, (&UsersAddCmd{Name: "admin", Key: "Adm1n!Pass2", Permissions: `"*"`}).Run(ctx, parent))

	store, closeFn, err := parent.open()
	assert.NoError(t, err)
	users, err := store.ListUsers(ctx)
	closeFn()
	assert.NoError(t, err)

	var buf bytes.Buffer
	assert.NoError(t, printUsers(&buf, users))
	assert.Equal(t, "admin\t\"*\"\n", buf.String())

	assert.NoError(t, (&UsersRemoveCmd{Name: "admin"}).Run(ctx, parent))
	assert.Error(t, (&UsersRemoveCmd{Name: "admin"}).Run(ctx, parent))
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	assert.NoError(t, os.WriteFile(path, []byte("SHEETLOG_TEST_VALUE=from-file\n"), 0o600))
	t.Setenv("SHEETLOG_TEST_VALUE", "")
	assert.NoError(t, os.Unsetenv("SHEETLOG_TEST_VALUE"))

	loadEnvFiles([]string{"serve", "--env-file=" + path})
	assert.Equal(t, "from-file", os.Getenv("SHEETLOG_TEST_VALUE"))

	// variables already set win
	t.Setenv("SHEETLOG_TEST_VALUE", "from-env")
	loadEnvFiles([]string{"serve", "--env-file", path})
	assert.Equal(t, "from-env", os.Getenv("SHEETLOG_TEST_VALUE"))
}

func TestOpenReadUsers(t *testing.T) {
	ctx := testCtx()
	dir := t.TempDir()
	readFile := filepath.Join(dir, "read.json")
	assert.NoError(t, os.WriteFile(readFile, []byte(`[{"name": "viewer", "key": {"__unsafe": "view"}, "permissions": "GET"}]`), 0o600))

	store, err := (&ServeCmd{ReadUsers: readFile}).openReadUsers(ctx, ctx)
	assert.NoError(t, err)
	user, err := store.FindUserByKey(ctx, "view")
	assert.NoError(t, err)
	assert.Equal(t, "viewer", user.Name)

	emptyFile := filepath.Join(dir, "empty.json")
	assert.NoError(t, os.WriteFile(emptyFile, []byte(`[]`), 0o600))
	_, err = (&ServeCmd{ReadUsers: emptyFile}).openReadUsers(ctx, ctx)
	assert.Error(t, err)
}
