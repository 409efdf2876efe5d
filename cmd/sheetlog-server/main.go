// Package main runs the sheetlog adapter server.
package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// version is set via ldflags: -X main.version=x.y.z
var version = "dev"

type cliCtx struct {
	context.Context
	Logger *slog.Logger
}

type cli struct {
	Debug   bool             `help:"Enable debug logging." env:"SHEETLOG_DEBUG"`
	EnvFile []string         `help:"Environment files to load before parsing flags." name:"env-file" default:".env" type:"path"`
	Serve   ServeCmd         `cmd:"" default:"withargs" help:"Run the adapter server."`
	Users   UsersCmd         `cmd:"" help:"Manage users in a bolt user store."`
	Version kong.VersionFlag `help:"Show version"`
}

func main() {
	loadEnvFiles(os.Args[1:])

	var cli cli
	ctx := kong.Parse(&cli,
		kong.UsageOnError(),
		kong.Name("sheetlog-server"),
		kong.Description("sheetlog-server exposes a spreadsheet as a row store over HTTP"),
		kong.Vars{"version": version},
	)

	level := slog.LevelInfo
	if cli.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	err := ctx.Run(&cliCtx{Context: context.Background(), Logger: logger})
	ctx.FatalIfErrorf(err)
}

// loadEnvFiles loads .env style files before kong reads the environment.
// Variables already set win.
func loadEnvFiles(args []string) {
	files := []string{".env"}
	for i, arg := range args {
		if arg == "--env-file" && i+1 < len(args) {
			files = append(files, args[i+1])
		} else if f, ok := strings.CutPrefix(arg, "--env-file="); ok {
			files = append(files, f)
		}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}
