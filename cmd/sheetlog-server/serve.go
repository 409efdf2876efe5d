package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"go.etcd.io/bbolt"
	"golang.org/x/time/rate"

	"github.com/mscno/sheetlog/pkg/sheet"
	"github.com/mscno/sheetlog/server"
	"github.com/mscno/sheetlog/server/middleware"
	"github.com/mscno/sheetlog/server/model"
	"github.com/mscno/sheetlog/server/stores"
)

const shutdownTimeout = 15 * time.Second

type ServeCmd struct {
	Addr        string        `help:"Listen address." env:"SHEETLOG_ADDR" default:":8080"`
	Backend     string        `help:"Spreadsheet backend." env:"SHEETLOG_BACKEND" enum:"memory,xlsx,google" default:"memory"`
	XLSXPath    string        `help:"Workbook file for the xlsx backend." env:"SHEETLOG_XLSX_PATH" name:"xlsx-path" default:"sheetlog.xlsx" type:"path"`
	Spreadsheet string        `help:"Google spreadsheet URL or ID." env:"SHEETLOG_SPREADSHEET"`
	Credentials string        `help:"Google service account JSON file." env:"SHEETLOG_CREDENTIALS" type:"path"`
	Users       string        `help:"JSON file with users to seed the user store with." env:"SHEETLOG_USERS" type:"path"`
	ReadUsers   string        `help:"JSON file with the users allowed on GET requests; GET uses the user store when unset." env:"SHEETLOG_READ_USERS" type:"path"`
	UserStore   string        `help:"User store." env:"SHEETLOG_USER_STORE" enum:"memory,bolt,datastore" default:"memory"`
	BoltPath    string        `help:"Database file for the bolt user store." env:"SHEETLOG_BOLT_PATH" default:"sheetlog.db" type:"path"`
	Project     string        `help:"Google Cloud project for the datastore user store." env:"SHEETLOG_DATASTORE_PROJECT"`
	IndexSecret string        `help:"Secret keying the user key lookup index of the bolt and datastore stores." env:"SHEETLOG_KEY_INDEX_SECRET"`
	LockTimeout time.Duration `help:"How long a write waits for the write lock." env:"SHEETLOG_LOCK_TIMEOUT" default:"30s"`
	Timezone    string        `help:"Time zone of Date Modified stamps." env:"SHEETLOG_TIMEZONE" default:"Local"`
	RateLimit   time.Duration `help:"Interval between requests per client; 0 disables rate limiting." env:"SHEETLOG_RATE_LIMIT" default:"200ms"`
	RateBurst   int           `help:"Burst of requests allowed per client." env:"SHEETLOG_RATE_BURST" default:"20"`
	CORSOrigins []string      `help:"Origins allowed to call the adapter from a browser; empty allows any." env:"SHEETLOG_CORS_ORIGINS" name:"cors-origin"`
}

func (c *ServeCmd) Run(ctx *cliCtx) error {
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	spreadsheet, closeSheet, err := c.openSpreadsheet(runCtx)
	if err != nil {
		return err
	}
	defer closeSheet()

	users, closeUsers, err := c.openUserStore(runCtx, ctx)
	if err != nil {
		return err
	}
	defer closeUsers()

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	opts := []server.Option{
		server.WithLogger(ctx.Logger),
		server.WithLockTimeout(c.LockTimeout),
		server.WithLocation(loc),
		server.WithVersion(version),
	}
	if c.ReadUsers != "" {
		readUsers, err := c.openReadUsers(runCtx, ctx)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithReadUsers(readUsers))
	}
	adapter := server.NewServer(spreadsheet, users, opts...)

	srv := server.NewHTTPServer(c.Addr)
	srv.Use(
		middleware.WithRecovery(ctx.Logger),
		middleware.WithLogger(ctx.Logger),
		middleware.WithCORS(ctx.Logger, c.CORSOrigins...),
	)
	if c.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(ctx.Logger, middleware.ClientKeyFunc, rate.Every(c.RateLimit), c.RateBurst,
			middleware.WithSkipper(middleware.PathSkipper("/healthz")))
		defer limiter.Stop()
		srv.Use(limiter.Limit)
	}
	srv.Use(middleware.WithBearerKey())
	srv.Mount(server.NewHandler(adapter))

	errCh := make(chan error, 1)
	go func() {
		ctx.Logger.Info("starting sheetlog server", "addr", c.Addr, "backend", c.Backend, "users", c.UserStore)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-runCtx.Done():
	}
	ctx.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (c *ServeCmd) openSpreadsheet(ctx context.Context) (sheet.Spreadsheet, func(), error) {
	switch c.Backend {
	case "xlsx":
		wb, err := sheet.OpenWorkbook(c.XLSXPath)
		if err != nil {
			return nil, nil, err
		}
		return wb, func() { _ = wb.Close() }, nil
	case "google":
		if c.Spreadsheet == "" {
			return nil, nil, errors.New("the google backend needs --spreadsheet or SHEETLOG_SPREADSHEET")
		}
		if c.Credentials == "" {
			return nil, nil, errors.New("the google backend needs --credentials or SHEETLOG_CREDENTIALS")
		}
		creds, err := os.ReadFile(c.Credentials)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read credentials: %w", err)
		}
		gs, err := sheet.NewGoogleSpreadsheet(ctx, c.Spreadsheet, creds)
		if err != nil {
			return nil, nil, err
		}
		return gs, func() {}, nil
	default:
		ss := sheet.NewMemorySpreadsheet("memory")
		ss.AddSheet("Sheet1")
		return ss, func() {}, nil
	}
}

// openUserStore opens the configured store and seeds it from the users file.
// A store left without users is replaced by the anonymous user.
func (c *ServeCmd) openUserStore(ctx context.Context, cli *cliCtx) (stores.UserStore, func(), error) {
	var (
		store   stores.UserStore
		closeFn = func() {}
	)
	switch c.UserStore {
	case "bolt":
		db, err := openBolt(c.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		store, closeFn = stores.NewBoltUserStore(db, hashOptions(c.IndexSecret)...), func() { _ = db.Close() }
	case "datastore":
		client, err := datastore.NewClient(ctx, c.Project)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create datastore client: %w", err)
		}
		ds := stores.NewUserDataStore(client, hashOptions(c.IndexSecret)...)
		store, closeFn = ds, func() { _ = ds.Close() }
	default:
		store = stores.NewInMemoryUserStore()
	}

	if c.Users != "" {
		f, err := os.Open(c.Users)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("failed to open users file: %w", err)
		}
		defer f.Close()
		if err := seedUsers(ctx, cli, store, f); err != nil {
			closeFn()
			return nil, nil, err
		}
	}

	existing, err := store.ListUsers(ctx)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	if len(existing) == 0 {
		cli.Logger.Warn("no users configured, every request runs as the anonymous user")
		closeFn()
		return nil, func() {}, nil
	}
	return store, closeFn, nil
}

// openReadUsers loads the GET users into a memory store.
func (c *ServeCmd) openReadUsers(ctx context.Context, cli *cliCtx) (stores.UserStore, error) {
	f, err := os.Open(c.ReadUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to open read users file: %w", err)
	}
	defer f.Close()
	store := stores.NewInMemoryUserStore()
	if err := seedUsers(ctx, cli, store, f); err != nil {
		return nil, err
	}
	existing, err := store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, errors.New("the read users file has no users")
	}
	return store, nil
}

func openBolt(path string) (*bbolt.DB, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", path, err)
	}
	return db, nil
}

// seedUsers creates every user of a JSON array. Users that already exist are
// left untouched.
func seedUsers(ctx context.Context, cli *cliCtx, store stores.UserStore, r io.Reader) error {
	var users []model.User
	if err := json.NewDecoder(r).Decode(&users); err != nil {
		return fmt.Errorf("invalid users file: %w", err)
	}
	for _, u := range users {
		if u.Name == "" {
			return errors.New("invalid users file: every user needs a name")
		}
		err := store.CreateUser(ctx, u)
		switch {
		case errors.Is(err, stores.ErrUserExists):
			cli.Logger.Debug("user already exists", "user", u.Name)
		case err != nil:
			return fmt.Errorf("failed to create user %s: %w", u.Name, err)
		default:
			cli.Logger.Info("user created", "user", u.Name)
		}
	}
	return nil
}
