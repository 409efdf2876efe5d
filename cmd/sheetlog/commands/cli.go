package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/mscno/sheetlog/pkg/client"
	"github.com/mscno/sheetlog/pkg/keystore"
)

type cliCtx struct {
	context.Context
	Logger   *slog.Logger
	Keystore *keystore.Store
	Out      io.Writer
}

type cli struct {
	URL   string `help:"Adapter endpoint URL." env:"SHEET_URL" short:"u"`
	Sheet string `help:"Sheet to address." env:"SHEETLOG_SHEET" default:"Sheet1" short:"s"`
	Key   string `help:"Access key; defaults to the key saved by login." env:"SHEETLOG_KEY" short:"k"`
	Debug bool   `help:"Enable debug logging."`

	Login  LoginCmd  `cmd:"" help:"Save an access key for the endpoint in the OS keyring."`
	Logout LogoutCmd `cmd:"" help:"Remove the saved access key for the endpoint."`
	Log    LogCmd    `cmd:"" help:"Append a row."`
	Get    GetCmd    `cmd:"" help:"Read one row by id, or many rows."`
	Last   LastCmd   `cmd:"" help:"Read the last rows."`
	Find   FindCmd   `cmd:"" help:"Find rows by column value."`
	Upsert UpsertCmd `cmd:"" help:"Update the row matching a column value, or append it."`
	Delete DeleteCmd `cmd:"" help:"Clear rows by id."`
	Export ExportCmd `cmd:"" help:"Export the sheet as json, csv or xlsx."`
	Sheets SheetsCmd `cmd:"" help:"List the sheets of the spreadsheet."`

	Version kong.VersionFlag `help:"Show version"`
}

func Execute(version string) {
	_ = godotenv.Load()

	var cli cli
	ctx := kong.Parse(&cli,
		kong.UsageOnError(),
		kong.Name("sheetlog"),
		kong.Description("sheetlog reads and writes spreadsheet rows through a sheetlog endpoint"),
		kong.Vars{"version": version},
	)

	level := slog.LevelInfo
	if cli.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	err := ctx.Run(&cliCtx{
		Context:  context.Background(),
		Logger:   logger,
		Keystore: keystore.New(nil),
		Out:      os.Stdout,
	}, &cli)
	ctx.FatalIfErrorf(err)
}

// newClient resolves the endpoint and key and builds a client.
func (c *cli) newClient(ctx *cliCtx) (*client.Client, error) {
	if c.URL == "" {
		return nil, errors.New("endpoint URL must be provided via --url or SHEET_URL")
	}
	key := c.Key
	if key == "" {
		saved, err := ctx.Keystore.Key(c.URL)
		switch {
		case err == nil:
			key = saved
		case errors.Is(err, keystore.ErrNotFound):
			ctx.Logger.Debug("no saved key for endpoint", "url", c.URL)
		default:
			return nil, err
		}
	}
	return client.New(client.Config{
		SheetURL: c.URL,
		Sheet:    c.Sheet,
		Key:      key,
		Logger:   ctx.Logger,
	})
}

// printData writes the data part of resp as indented JSON.
func printData(ctx *cliCtx, resp *client.Response) error {
	if len(resp.Data) == 0 {
		fmt.Fprintf(ctx.Out, "ok (%d)\n", resp.Status)
		return nil
	}
	var v any
	if err := json.Unmarshal(resp.Data, &v); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.Out, string(out))
	return nil
}
