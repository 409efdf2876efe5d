package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

type LoginCmd struct {
	KeyFromStdin bool `help:"Read the key from stdin instead of --key." name:"key-stdin"`
}

func (c *LoginCmd) Run(ctx *cliCtx, root *cli) error {
	if root.URL == "" {
		return errors.New("endpoint URL must be provided via --url or SHEET_URL")
	}
	key := root.Key
	if c.KeyFromStdin {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read key: %w", err)
		}
		key = strings.TrimSpace(line)
	}
	if key == "" {
		return errors.New("no key given; use --key, SHEETLOG_KEY or --key-stdin")
	}
	if err := ctx.Keystore.Save(root.URL, key); err != nil {
		return err
	}
	ctx.Logger.Info("Key saved", "url", root.URL)
	return nil
}

type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx *cliCtx, root *cli) error {
	if root.URL == "" {
		return errors.New("endpoint URL must be provided via --url or SHEET_URL")
	}
	if err := ctx.Keystore.Forget(root.URL); err != nil {
		return err
	}
	ctx.Logger.Info("Key removed", "url", root.URL)
	return nil
}
