package sheet

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var spreadsheetURL = regexp.MustCompile(`^https://docs.google.com/spreadsheets/d/(.*?)(?:/.*)?$`)

// SpreadsheetID extracts the spreadsheet ID from a Google Sheets URL. Anything
// that is not a spreadsheet URL is returned unchanged.
func SpreadsheetID(s string) string {
	if match := spreadsheetURL.FindStringSubmatch(strings.TrimSpace(s)); len(match) > 1 {
		return match[1]
	}
	return strings.TrimSpace(s)
}

// GoogleSpreadsheet is a spreadsheet hosted by Google Sheets.
type GoogleSpreadsheet struct {
	id     string
	svc    *sheets.Service
	client *http.Client
}

// NewGoogleSpreadsheet connects to a spreadsheet, given by URL or ID, using
// service account or authorized user credentials in JSON form.
func NewGoogleSpreadsheet(ctx context.Context, spreadsheet string, credentials []byte) (*GoogleSpreadsheet, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentials, sheets.SpreadsheetsScope, sheets.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse google credentials: %w", err)
	}
	client := oauth2.NewClient(ctx, creds.TokenSource)
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return NewGoogleSpreadsheetWithService(svc, client, spreadsheet), nil
}

// NewGoogleSpreadsheetWithService wraps an existing service. client is used for
// CSV exports and must carry the same authorization as svc.
func NewGoogleSpreadsheetWithService(svc *sheets.Service, client *http.Client, spreadsheet string) *GoogleSpreadsheet {
	if client == nil {
		client = http.DefaultClient
	}
	return &GoogleSpreadsheet{id: SpreadsheetID(spreadsheet), svc: svc, client: client}
}

func (g *GoogleSpreadsheet) ID() string { return g.id }

func (g *GoogleSpreadsheet) Sheets(ctx context.Context) ([]Sheet, error) {
	resp, err := g.svc.Spreadsheets.Get(g.id).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list sheets: %w", err)
	}
	out := make([]Sheet, 0, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s.Properties == nil {
			continue
		}
		out = append(out, &googleSheet{ss: g, props: s.Properties})
	}
	return out, nil
}

func (g *GoogleSpreadsheet) Sheet(ctx context.Context, name string) (Sheet, error) {
	all, err := g.Sheets(ctx)
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(strings.TrimSpace(name))
	for _, s := range all {
		if strings.ToLower(strings.TrimSpace(s.Name())) == want {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
}

func (g *GoogleSpreadsheet) SheetLinks(s Sheet) (string, string) {
	base := "https://docs.google.com/spreadsheets/d/" + g.id
	return fmt.Sprintf("%s/export?format=csv&gid=%d", base, s.ID()),
		fmt.Sprintf("%s/edit#gid=%d", base, s.ID())
}

func (g *GoogleSpreadsheet) ExportCSV(ctx context.Context, s Sheet) ([]byte, error) {
	csvURL, _ := g.SheetLinks(s)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, csvURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return io.ReadAll(resp.Body)
}

var (
	_ Spreadsheet = (*GoogleSpreadsheet)(nil)
	_ CSVExporter = (*GoogleSpreadsheet)(nil)
	_ Linker      = (*GoogleSpreadsheet)(nil)
)

type googleSheet struct {
	ss    *GoogleSpreadsheet
	props *sheets.SheetProperties

	// snapshot holds the populated area from the last full read. A sheet value
	// lives for one request, so reads after the extent lookup reuse it until
	// the next write.
	mu       sync.Mutex
	snapshot [][]interface{}
	loaded   bool
}

func (s *googleSheet) Name() string { return s.props.Title }
func (s *googleSheet) ID() int64    { return s.props.SheetId }
func (s *googleSheet) Index() int   { return int(s.props.Index) }
func (s *googleSheet) Hidden() bool { return s.props.Hidden }

// used returns the populated area of the sheet; the API trims trailing empty
// rows and cells.
func (s *googleSheet) used(ctx context.Context) ([][]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.snapshot, nil
	}
	resp, err := s.ss.svc.Spreadsheets.Values.Get(s.ss.id, QuoteName(s.props.Title)).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", s.props.Title, err)
	}
	s.snapshot, s.loaded = resp.Values, true
	return s.snapshot, nil
}

func (s *googleSheet) invalidate() {
	s.mu.Lock()
	s.snapshot, s.loaded = nil, false
	s.mu.Unlock()
}

func (s *googleSheet) cached() ([][]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, s.loaded
}

func (s *googleSheet) Extent(ctx context.Context) (int, int, error) {
	values, err := s.used(ctx)
	if err != nil {
		return 0, 0, err
	}
	lastRow, lastCol := 0, 0
	for i, row := range values {
		for c := len(row); c > 0; c-- {
			if !IsEmpty(row[c-1]) {
				lastRow = i + 1
				lastCol = max(lastCol, c)
				break
			}
		}
	}
	return lastRow, lastCol, nil
}

func (s *googleSheet) LastRow(ctx context.Context) (int, error) {
	r, _, err := s.Extent(ctx)
	return r, err
}

func (s *googleSheet) LastColumn(ctx context.Context) (int, error) {
	_, c, err := s.Extent(ctx)
	return c, err
}

func (s *googleSheet) read(ctx context.Context, r Range, render string) ([][]interface{}, error) {
	ref, err := A1(s.props.Title, r)
	if err != nil {
		return nil, err
	}
	resp, err := s.ss.svc.Spreadsheets.Values.Get(s.ss.id, ref).
		ValueRenderOption(render).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return resp.Values, nil
}

func (s *googleSheet) Values(ctx context.Context, r Range) ([][]any, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	out := blankGrid(r.NumRows, r.NumCols)
	if r.NumRows == 0 || r.NumCols == 0 {
		return out, nil
	}
	if snapshot, ok := s.cached(); ok {
		for i := range out {
			if r.Row+i > len(snapshot) {
				break
			}
			row := snapshot[r.Row+i-1]
			for j := range out[i] {
				if r.Col+j <= len(row) {
					out[i][j] = normalize(row[r.Col+j-1])
				}
			}
		}
		return out, nil
	}
	values, err := s.read(ctx, r, "UNFORMATTED_VALUE")
	if err != nil {
		return nil, err
	}
	for i, row := range values {
		if i >= r.NumRows {
			break
		}
		for j, v := range row {
			if j >= r.NumCols {
				break
			}
			out[i][j] = normalize(v)
		}
	}
	return out, nil
}

func (s *googleSheet) Formulas(ctx context.Context, r Range) ([][]string, error) {
	out := make([][]string, r.NumRows)
	for i := range out {
		out[i] = make([]string, r.NumCols)
	}
	if r.NumRows == 0 || r.NumCols == 0 {
		return out, r.Validate()
	}
	values, err := s.read(ctx, r, "FORMULA")
	if err != nil {
		return nil, err
	}
	for i, row := range values {
		for j, v := range row {
			if i >= r.NumRows || j >= r.NumCols {
				continue
			}
			if f, ok := v.(string); ok && strings.HasPrefix(f, "=") {
				out[i][j] = f
			}
		}
	}
	return out, nil
}

func (s *googleSheet) Formats(ctx context.Context, r Range) ([][]CellFormat, error) {
	out := make([][]CellFormat, r.NumRows)
	for i := range out {
		out[i] = make([]CellFormat, r.NumCols)
		for j := range out[i] {
			out[i][j] = DefaultCellFormat
		}
	}
	if r.NumRows == 0 || r.NumCols == 0 {
		return out, r.Validate()
	}
	ref, err := A1(s.props.Title, r)
	if err != nil {
		return nil, err
	}
	resp, err := s.ss.svc.Spreadsheets.Get(s.ss.id).
		Ranges(ref).
		IncludeGridData(true).
		Fields("sheets.data.rowData.values.effectiveFormat").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read formats of %s: %w", ref, err)
	}
	if len(resp.Sheets) == 0 || len(resp.Sheets[0].Data) == 0 {
		return out, nil
	}
	for i, row := range resp.Sheets[0].Data[0].RowData {
		if i >= r.NumRows {
			break
		}
		for j, cell := range row.Values {
			if j >= r.NumCols || cell.EffectiveFormat == nil {
				continue
			}
			out[i][j] = effectiveFormat(cell.EffectiveFormat)
		}
	}
	return out, nil
}

func effectiveFormat(cf *sheets.CellFormat) CellFormat {
	f := DefaultCellFormat
	if cf.BackgroundColor != nil {
		f.Background = rgb(cf.BackgroundColor)
	}
	if tf := cf.TextFormat; tf != nil {
		if tf.ForegroundColor != nil {
			f.FontColor = rgb(tf.ForegroundColor)
		}
		if tf.FontFamily != "" {
			f.FontFamily = tf.FontFamily
		}
		if tf.FontSize > 0 {
			f.FontSize = float64(tf.FontSize)
		}
		f.Bold = tf.Bold
		f.Italic = tf.Italic
	}
	if cf.NumberFormat != nil && cf.NumberFormat.Pattern != "" {
		f.NumberFormat = cf.NumberFormat.Pattern
	}
	if cf.HorizontalAlignment != "" {
		f.HorizontalAlignment = strings.ToLower(cf.HorizontalAlignment)
	}
	if cf.VerticalAlignment != "" {
		f.VerticalAlignment = strings.ToLower(cf.VerticalAlignment)
	}
	f.Wrap = cf.WrapStrategy == "WRAP"
	return f
}

func rgb(c *sheets.Color) string {
	channel := func(v float64) int { return int(math.Round(v * 255)) }
	return fmt.Sprintf("#%02x%02x%02x", channel(c.Red), channel(c.Green), channel(c.Blue))
}

func cellValues(values [][]any) [][]interface{} {
	out := make([][]interface{}, len(values))
	for i, row := range values {
		out[i] = make([]interface{}, len(row))
		for j, v := range row {
			if v == nil {
				v = ""
			}
			out[i][j] = v
		}
	}
	return out
}

func (s *googleSheet) SetValues(ctx context.Context, row, col int, values [][]any) error {
	r := writeRange(row, col, values)
	if err := r.Validate(); err != nil || r.NumRows == 0 || r.NumCols == 0 {
		return err
	}
	ref, err := A1(s.props.Title, r)
	if err != nil {
		return err
	}
	defer s.invalidate()
	_, err = s.ss.svc.Spreadsheets.Values.Update(s.ss.id, ref, &sheets.ValueRange{Values: cellValues(values)}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", ref, err)
	}
	return nil
}

// AppendRows writes below the last row with content. Values.Append is not
// used: it appends after the first table the API detects, which ends at the
// first cleared row.
func (s *googleSheet) AppendRows(ctx context.Context, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	last, err := s.LastRow(ctx)
	if err != nil {
		return err
	}
	if err := s.SetValues(ctx, last+1, 1, rows); err != nil {
		return fmt.Errorf("failed to append to %q: %w", s.props.Title, err)
	}
	return nil
}

func (s *googleSheet) batchUpdate(ctx context.Context, req *sheets.Request) error {
	defer s.invalidate()
	_, err := s.ss.svc.Spreadsheets.BatchUpdate(s.ss.id, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{req},
	}).Context(ctx).Do()
	return err
}

func (s *googleSheet) columns(start, end int) *sheets.DimensionRange {
	return &sheets.DimensionRange{
		SheetId:         s.props.SheetId,
		Dimension:       "COLUMNS",
		StartIndex:      int64(start),
		EndIndex:        int64(end),
		ForceSendFields: []string{"SheetId", "StartIndex"},
	}
}

func (s *googleSheet) InsertColumnsAfter(ctx context.Context, col, n int) error {
	if col < 0 || n < 1 || col+n > MaxColumns {
		return fmt.Errorf("%w: insert %d columns after %d", ErrInvalidRange, n, col)
	}
	err := s.batchUpdate(ctx, &sheets.Request{
		InsertDimension: &sheets.InsertDimensionRequest{
			Range:             s.columns(col, col+n),
			InheritFromBefore: col > 0,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to insert columns into %q: %w", s.props.Title, err)
	}
	return nil
}

func (s *googleSheet) DeleteColumn(ctx context.Context, col int) error {
	if col < 1 {
		return fmt.Errorf("%w: delete column %d", ErrInvalidRange, col)
	}
	err := s.batchUpdate(ctx, &sheets.Request{
		DeleteDimension: &sheets.DeleteDimensionRequest{Range: s.columns(col-1, col)},
	})
	if err != nil {
		return fmt.Errorf("failed to delete column from %q: %w", s.props.Title, err)
	}
	return nil
}

func (s *googleSheet) ClearRows(ctx context.Context, rows []int) error {
	if len(rows) == 0 {
		return nil
	}
	ranges := make([]string, len(rows))
	for i, r := range rows {
		if r < 1 || r > MaxRows {
			return fmt.Errorf("%w: clear row %d", ErrInvalidRange, r)
		}
		ranges[i] = fmt.Sprintf("%s!%d:%d", QuoteName(s.props.Title), r, r)
	}
	defer s.invalidate()
	_, err := s.ss.svc.Spreadsheets.Values.BatchClear(s.ss.id, &sheets.BatchClearValuesRequest{Ranges: ranges}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to clear rows of %q: %w", s.props.Title, err)
	}
	return nil
}

var (
	_ Sheet     = (*googleSheet)(nil)
	_ Formatter = (*googleSheet)(nil)
)
