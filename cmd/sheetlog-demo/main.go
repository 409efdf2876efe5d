// Package main runs a small web page that sends rows to a sheetlog endpoint
// through a server-side proxy.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

type cli struct {
	Addr     string `help:"Listen address." env:"SHEETLOG_DEMO_ADDR" default:":8000"`
	SheetURL string `help:"Endpoint the page talks to by default." env:"SHEET_URL" name:"sheet-url"`
	Debug    bool   `help:"Enable debug logging."`
}

func main() {
	_ = godotenv.Load()

	var c cli
	ctx := kong.Parse(&c,
		kong.UsageOnError(),
		kong.Name("sheetlog-demo"),
		kong.Description("sheetlog-demo serves a form that logs rows to a spreadsheet"),
	)

	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	ctx.FatalIfErrorf(run(c, logger))
}

func run(c cli, logger *slog.Logger) error {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.SheetURL == "" {
		logger.Warn("SHEET_URL is not set; requests must carry a sheetUrl")
	}
	srv := newDemoServer(c.Addr, c.SheetURL, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting demo server", "addr", c.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-runCtx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
