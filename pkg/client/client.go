// Package client talks to a sheetlog adapter endpoint.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Params are the fields of one request besides method, sheet and key.
type Params map[string]any

// Error is the error part of a failure envelope.
type Error struct {
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// APIError is returned when the adapter answers with a failure envelope.
type APIError struct {
	Status  int
	Code    string
	Details map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sheetlog: %s (status %d)", e.Code, e.Status)
}

// Response is a decoded envelope.
type Response struct {
	Status int
	Data   json.RawMessage
	Error  *Error
	// Extra holds the method-specific top-level fields (startRow, cursor, ...).
	Extra map[string]json.RawMessage
}

func (r *Response) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	if raw, ok := fields["status"]; ok {
		if err := json.Unmarshal(raw, &r.Status); err != nil {
			return fmt.Errorf("invalid status: %w", err)
		}
	}
	if raw, ok := fields["error"]; ok && string(raw) != "null" {
		r.Error = &Error{}
		if err := json.Unmarshal(raw, r.Error); err != nil {
			return fmt.Errorf("invalid error: %w", err)
		}
	}
	r.Data = fields["data"]
	delete(fields, "status")
	delete(fields, "error")
	delete(fields, "data")
	if len(fields) > 0 {
		r.Extra = fields
	}
	return nil
}

func (r *Response) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+3)
	for k, v := range r.Extra {
		out[k] = v
	}
	out["status"] = r.Status
	if r.Error != nil {
		out["error"] = r.Error
	}
	if len(r.Data) > 0 {
		out["data"] = r.Data
	}
	return json.Marshal(out)
}

// Decode unmarshals the data part of the envelope into v.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return errors.New("response has no data")
	}
	return json.Unmarshal(r.Data, v)
}

// DecodeExtra unmarshals the top-level field name into v.
func (r *Response) DecodeExtra(name string, v any) error {
	raw, ok := r.Extra[name]
	if !ok {
		return fmt.Errorf("response has no %q field", name)
	}
	return json.Unmarshal(raw, v)
}

// Err returns the envelope failure as an *APIError, or nil.
func (r *Response) Err() error {
	if r.Error == nil {
		return nil
	}
	return &APIError{Status: r.Status, Code: r.Error.Code, Details: r.Error.Details}
}

// Config holds configuration for creating a new Client.
type Config struct {
	SheetURL string
	// Sheet is used when a request names none.
	Sheet      string
	Key        string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client posts requests to the adapter. It does not retry.
type Client struct {
	SheetURL   *url.URL
	Sheet      string
	Key        string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New creates a client for the endpoint in config.
func New(config Config) (*Client, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.SheetURL == "" {
		return nil, errors.New("sheet URL is required")
	}
	sheetURL, err := url.Parse(config.SheetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sheet URL: %w", err)
	}
	return &Client{
		SheetURL:   sheetURL,
		Sheet:      config.Sheet,
		Key:        config.Key,
		HTTPClient: config.HTTPClient,
		Logger:     config.Logger,
	}, nil
}

// WithSheet returns a copy of c addressing another sheet.
func (c *Client) WithSheet(sheet string) *Client {
	cp := *c
	cp.Sheet = sheet
	return &cp
}

// request builds the payload of one call. Explicit params win over the
// client defaults.
func (c *Client) request(method string, params Params) map[string]any {
	payload := make(map[string]any, len(params)+3)
	payload["method"] = method
	if c.Sheet != "" {
		payload["sheet"] = c.Sheet
	}
	if c.Key != "" {
		payload["key"] = c.Key
	}
	for k, v := range params {
		payload[k] = v
	}
	return payload
}

// Do sends one request. A failure envelope is returned together with an
// *APIError.
func (c *Client) Do(ctx context.Context, method string, params Params) (*Response, error) {
	var resp Response
	if err := c.post(ctx, c.request(method, params), &resp); err != nil {
		return nil, err
	}
	return &resp, resp.Err()
}

// Batch sends several requests in one round trip. Each entry needs a
// "method"; failures are reported per response, not as an error.
func (c *Client) Batch(ctx context.Context, requests []Params) ([]*Response, error) {
	payload := make([]map[string]any, 0, len(requests))
	for _, p := range requests {
		method, _ := p["method"].(string)
		if method == "" {
			method = "GET"
		}
		payload = append(payload, c.request(method, p))
	}
	var out []*Response
	if err := c.post(ctx, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	form := url.Values{"payload": {string(body)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.SheetURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.Logger.Debug("sending request", "url", c.SheetURL.Redacted(), "bytes", len(body))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error: %s: %s", resp.Status, string(respBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Log appends payload as a new row.
func (c *Client) Log(ctx context.Context, payload map[string]any) (*Response, error) {
	return c.Post(ctx, payload)
}

// Post appends payload as a new row. Fields without a column are dropped.
func (c *Client) Post(ctx context.Context, payload map[string]any) (*Response, error) {
	return c.Do(ctx, "POST", Params{"payload": payload})
}

// DynamicPost appends one object, or every object of a slice, adding
// columns for unknown fields.
func (c *Client) DynamicPost(ctx context.Context, payload any) (*Response, error) {
	return c.Do(ctx, "DYNAMIC_POST", Params{"payload": payload})
}

// Get reads the row with the given id.
func (c *Client) Get(ctx context.Context, id int) (*Response, error) {
	return c.Do(ctx, "GET", Params{"id": id})
}

// List reads many rows. Recognised params: limit, order, start_id, raw.
func (c *Client) List(ctx context.Context, params Params) (*Response, error) {
	return c.Do(ctx, "GET", params)
}

// GetLast reads the last limit rows.
func (c *Client) GetLast(ctx context.Context, limit int, raw bool) (*Response, error) {
	return c.Do(ctx, "GET_LAST", Params{"limit": limit, "raw": raw})
}

// Find looks up rows whose idColumn equals id.
func (c *Client) Find(ctx context.Context, idColumn string, id any, returnAllMatches bool) (*Response, error) {
	return c.Do(ctx, "FIND", Params{"idColumn": idColumn, "id": id, "returnAllMatches": returnAllMatches})
}

// Upsert updates the row whose idColumn equals id, or appends payload.
func (c *Client) Upsert(ctx context.Context, idColumn string, id any, payload map[string]any, partialUpdate bool) (*Response, error) {
	params := Params{"idColumn": idColumn, "payload": payload, "partialUpdate": partialUpdate}
	if id != nil {
		params["id"] = id
	}
	return c.Do(ctx, "UPSERT", params)
}

// BatchUpsert upserts every item keyed by its idColumn value.
func (c *Client) BatchUpsert(ctx context.Context, idColumn string, items []map[string]any, partialUpdate bool) (*Response, error) {
	return c.Do(ctx, "BATCH_UPSERT", Params{"idColumn": idColumn, "payload": items, "partialUpdate": partialUpdate})
}

// Put replaces the row with the given id.
func (c *Client) Put(ctx context.Context, id int, payload map[string]any) (*Response, error) {
	return c.Do(ctx, "PUT", Params{"id": id, "payload": payload})
}

// Delete clears the row with the given id.
func (c *Client) Delete(ctx context.Context, id int) (*Response, error) {
	return c.Do(ctx, "DELETE", Params{"id": id})
}

// BulkDelete removes the rows with the given ids.
func (c *Client) BulkDelete(ctx context.Context, ids []int) (*Response, error) {
	return c.Do(ctx, "BULK_DELETE", Params{"ids": ids})
}

func (c *Client) AddColumn(ctx context.Context, name string) (*Response, error) {
	return c.Do(ctx, "ADD_COLUMN", Params{"columnName": name})
}

func (c *Client) EditColumn(ctx context.Context, oldName, newName string) (*Response, error) {
	return c.Do(ctx, "EDIT_COLUMN", Params{"oldColumnName": oldName, "newColumnName": newName})
}

func (c *Client) RemoveColumn(ctx context.Context, name string) (*Response, error) {
	return c.Do(ctx, "REMOVE_COLUMN", Params{"columnName": name})
}

// PaginatedGet reads one page. Recognised params: cursor, limit, sortBy, sortDir.
//
// sortDir defaults to "desc": without a cursor the first page ends at the last
// row and walks up. Pass sortDir "asc" to page down from row 2. The returned
// cursor extra is the row to pass as cursor for the next page, null at the end.
func (c *Client) PaginatedGet(ctx context.Context, params Params) (*Response, error) {
	return c.Do(ctx, "PAGINATED_GET", params)
}

// Export renders the sheet as json, csv or xlsx.
func (c *Client) Export(ctx context.Context, format string) (*Response, error) {
	return c.Do(ctx, "EXPORT", Params{"format": format})
}

// Aggregate computes sum, avg, min, max or count over column, optionally
// restricted to rows matching where.
func (c *Client) Aggregate(ctx context.Context, column, operation string, where map[string]any) (*Response, error) {
	params := Params{"column": column, "operation": operation}
	if where != nil {
		params["where"] = where
	}
	return c.Do(ctx, "AGGREGATE", params)
}

// BatchUpdate merges each update into the row named by its _id.
func (c *Client) BatchUpdate(ctx context.Context, updates []map[string]any) (*Response, error) {
	return c.Do(ctx, "BATCH_UPDATE", Params{"payload": updates})
}

func (c *Client) GetRows(ctx context.Context, startRow, endRow int) (*Response, error) {
	return c.Do(ctx, "GET_ROWS", Params{"startRow": startRow, "endRow": endRow})
}

// GetColumns reads columns by letter or 1-based index. Recognised params:
// endColumn, includeFormulas, includeFormatting.
func (c *Client) GetColumns(ctx context.Context, startColumn any, params Params) (*Response, error) {
	p := Params{"startColumn": startColumn}
	for k, v := range params {
		p[k] = v
	}
	return c.Do(ctx, "GET_COLUMNS", p)
}

func (c *Client) GetAllCells(ctx context.Context, includeFormulas, includeFormatting bool) (*Response, error) {
	return c.Do(ctx, "GET_ALL_CELLS", Params{"includeFormulas": includeFormulas, "includeFormatting": includeFormatting})
}

// RangeUpdate writes data starting at the given cell.
func (c *Client) RangeUpdate(ctx context.Context, startRow, startCol int, data [][]any) (*Response, error) {
	return c.Do(ctx, "RANGE_UPDATE", Params{"startRow": startRow, "startCol": startCol, "data": data})
}

func (c *Client) GetSheets(ctx context.Context) (*Response, error) {
	return c.Do(ctx, "GET_SHEETS", nil)
}

func (c *Client) GetCSV(ctx context.Context, sheet string) (*Response, error) {
	params := Params{}
	if sheet != "" {
		params["sheet"] = sheet
	}
	return c.Do(ctx, "GET_CSV", params)
}

// GetRange reads the block at the given cell. Recognised params:
// stopAtEmptyRow, stopAtEmptyColumn, skipEmptyRows, skipEmptyColumns,
// includeFormulas.
func (c *Client) GetRange(ctx context.Context, startRow, startCol int, params Params) (*Response, error) {
	p := Params{"startRow": startRow, "startCol": startCol}
	for k, v := range params {
		p[k] = v
	}
	return c.Do(ctx, "GET_RANGE", p)
}

// GetDataBlock finds the first non-empty block inside searchRange
// (startRow, startCol, endRow, endCol).
func (c *Client) GetDataBlock(ctx context.Context, searchRange map[string]any) (*Response, error) {
	params := Params{}
	if searchRange != nil {
		params["searchRange"] = searchRange
	}
	return c.Do(ctx, "GET_DATA_BLOCK", params)
}
