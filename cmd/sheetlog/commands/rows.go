package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mscno/sheetlog/pkg/client"
)

// parseFields turns name=value pairs into a row object. Values that parse as
// JSON keep their type, anything else is a string.
func parseFields(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid field %q, expected name=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[name] = v
	}
	return out, nil
}

// parseValue is parseFields for a single value.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

type LogCmd struct {
	Fields  []string `arg:"" optional:"" help:"Row fields as name=value."`
	JSON    string   `help:"Row as a JSON object, or an array of objects." name:"json"`
	Dynamic bool     `help:"Add columns for unknown fields. Implied for arrays."`
}

func (c *LogCmd) Run(ctx *cliCtx, root *cli) error {
	var payload any
	switch {
	case c.JSON != "":
		if err := json.Unmarshal([]byte(c.JSON), &payload); err != nil {
			return fmt.Errorf("invalid --json: %w", err)
		}
	case len(c.Fields) > 0:
		fields, err := parseFields(c.Fields)
		if err != nil {
			return err
		}
		payload = fields
	default:
		return fmt.Errorf("nothing to log; pass name=value fields or --json")
	}

	cl, err := root.newClient(ctx)
	if err != nil {
		return err
	}
	var resp *client.Response
	if obj, isObject := payload.(map[string]any); isObject && !c.Dynamic {
		resp, err = cl.Post(ctx, obj)
	} else {
		resp, err = cl.DynamicPost(ctx, payload)
	}
	if err != nil {
		return err
	}
	return printData(ctx, resp)
}

type GetCmd struct {
	ID      int    `arg:"" optional:"" help:"Row id; omit to list rows."`
	Limit   int    `help:"Maximum rows to list." default:"0"`
	Order   string `help:"List order." enum:"asc,desc" default:"asc"`
	StartID int    `help:"First row id to list from." name:"start-id"`
}

func (c *GetCmd) Run(ctx *cliCtx, root *cli) error {
	cl, err := root.newClient(ctx)
	if err != nil {
		return err
	}
	var resp *client.Response
	if c.ID > 0 {
		resp, err = cl.Get(ctx, c.ID)
	} else {
		params := client.Params{"order": c.Order}
		if c.Limit > 0 {
			params["limit"] = c.Limit
		}
		if c.StartID > 0 {
			params["start_id"] = c.StartID
		}
		resp, err = cl.List(ctx, params)
	}
	if err != nil {
		return err
	}
	return printData(ctx, resp)
}

type LastCmd struct {
	Limit int `help:"Number of rows." default:"1" short:"n"`
}

func (c *LastCmd) Run(ctx *cliCtx, root *cli) error {
	cl, err := root.newClient(ctx)
	if err != nil {
		return err
	}
	resp, err := cl.GetLast(ctx, c.Limit, false)
	if err != nil {
		return err
	}
	return printData(ctx, resp)
}

type FindCmd struct {
	Column string `arg:"" help:"Column to match."`
	Value  string `arg:"" help:"Value to look for."`
	All    bool   `help:"Return every match instead of the last one."`
}

func (c *FindCmd) Run(ctx *cliCtx, root *cli) error {
	cl, err := root.newClient(ctx)
	if err != nil {
		return err
	}
	resp, err := cl.Find(ctx, c.Column, parseValue(c.Value), c.All)
	if err != nil {
		return err
	}
	return printData(ctx, resp)
}

type UpsertCmd struct {
	Column  string   `arg:"" help:"Key column."`
	Value   string   `arg:"" help:"Key value."`
	Fields  []string `arg:"" help:"Row fields as name=value."`
	Partial bool     `help:"Only overwrite the given fields."`
}

func (c *UpsertCmd) Run(ctx *cliCtx, root *cli) error {
	fields, err := parseFields(c.Fields)
	if err != nil {
		return err
	}
	cl, err := root.newClient(ctx)
	if err != nil {
		return err
	}
	resp, err := cl.Upsert(ctx, c.Column, parseValue(c.Value), fields, c.Partial)
	if err != nil {
		return err
	}
	return printData(ctx, resp)
}

type DeleteCmd struct {
	IDs []int `arg:"" help:"Row ids to clear."`
}

func (c *DeleteCmd) Run(ctx *cliCtx, root *cli) error {
	cl, err := root.newClient(ctx)
	if err != nil {
		return err
	}
	var resp *client.Response
	if len(c.IDs) == 1 {
		resp, err = cl.Delete(ctx, c.IDs[0])
	} else {
		resp, err = cl.BulkDelete(ctx, c.IDs)
	}
	if err != nil {
		return err
	}
	return printData(ctx, resp)
}
