package commands

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/mscno/sheetlog/pkg/client"
)

type ExportCmd struct {
	Format string `help:"Export format." enum:"json,csv,xlsx" default:"json" short:"f"`
	Output string `help:"Write to this file instead of stdout." short:"o" type:"path"`
}

func (c *ExportCmd) Run(ctx *cliCtx, root *cli) error {
	if c.Format == "xlsx" && c.Output == "" {
		return fmt.Errorf("xlsx export needs --output")
	}
	cl, err := root.newClient(ctx)
	if err != nil {
		return err
	}
	resp, err := cl.Export(ctx, c.Format)
	if err != nil {
		return err
	}
	if c.Output == "" {
		if c.Format == "csv" {
			var text string
			if err := resp.Decode(&text); err != nil {
				return err
			}
			fmt.Fprint(ctx.Out, text)
			return nil
		}
		return printData(ctx, resp)
	}

	body, err := exportBytes(c.Format, resp)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.Output, body, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.Output, err)
	}
	ctx.Logger.Info("Exported sheet", "sheet", root.Sheet, "format", c.Format, "file", c.Output, "bytes", len(body))
	return nil
}

func exportBytes(format string, resp *client.Response) ([]byte, error) {
	switch format {
	case "json":
		return resp.Data, nil
	case "csv":
		var text string
		if err := resp.Decode(&text); err != nil {
			return nil, err
		}
		return []byte(text), nil
	default:
		var encoded string
		if err := resp.Decode(&encoded); err != nil {
			return nil, err
		}
		body, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid xlsx payload: %w", err)
		}
		return body, nil
	}
}

type SheetsCmd struct{}

func (c *SheetsCmd) Run(ctx *cliCtx, root *cli) error {
	cl, err := root.newClient(ctx)
	if err != nil {
		return err
	}
	resp, err := cl.GetSheets(ctx)
	if err != nil {
		return err
	}
	var sheets []struct {
		Name     string `json:"name"`
		Index    int    `json:"index"`
		IsHidden bool   `json:"isHidden"`
	}
	if err := resp.Decode(&sheets); err != nil {
		return err
	}
	for _, sh := range sheets {
		hidden := ""
		if sh.IsHidden {
			hidden = " (hidden)"
		}
		fmt.Fprintf(ctx.Out, "%d\t%s%s\n", sh.Index, sh.Name, hidden)
	}
	return nil
}
