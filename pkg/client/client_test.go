package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscno/sheetlog/pkg/sheet"
	"github.com/mscno/sheetlog/server"
	"github.com/mscno/sheetlog/server/model"
	"github.com/mscno/sheetlog/server/stores"
)

const adminKey = "Adm1n!Pass"

func setupClient(t *testing.T, users stores.UserStore, key string) (*Client, *sheet.MemorySheet) {
	t.Helper()
	ss := sheet.NewMemorySpreadsheet("test")
	people := ss.AddSheet("People",
		[]any{"name", "age"},
		[]any{"ann", 31},
		[]any{"ben", 42},
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := server.NewHTTPServer(":0")
	srv.Mount(server.NewHandler(server.NewServer(ss, users, server.WithLogger(logger))))
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	c, err := New(Config{SheetURL: ts.URL + "/", Sheet: "People", Key: key, Logger: logger})
	require.NoError(t, err)
	return c, people
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	c, err := New(Config{SheetURL: "http://localhost:8080/", Sheet: "a"})
	require.NoError(t, err)
	assert.Equal(t, http.DefaultClient, c.HTTPClient)
	assert.Equal(t, "b", c.WithSheet("b").Sheet)
	assert.Equal(t, "a", c.Sheet)
}

func TestClient_LogAndGetLast(t *testing.T) {
	c, _ := setupClient(t, nil, "")
	ctx := context.Background()

	resp, err := c.Log(ctx, map[string]any{"name": "cat", "age": 7})
	require.NoError(t, err)
	assert.Equal(t, 201, resp.Status)

	resp, err = c.GetLast(ctx, 2, false)
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, resp.Decode(&rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "ben", rows[0]["name"])
	assert.Equal(t, "cat", rows[1]["name"])
	assert.Equal(t, 4.0, rows[1]["_id"])

	var startRow int
	require.NoError(t, resp.DecodeExtra("startRow", &startRow))
	assert.Equal(t, 3, startRow)
}

func TestClient_FindAndUpsert(t *testing.T) {
	c, people := setupClient(t, nil, "")
	ctx := context.Background()

	_, err := c.Upsert(ctx, "name", "ann", map[string]any{"name": "ann", "age": 32}, false)
	require.NoError(t, err)
	_, err = c.Upsert(ctx, "name", "ann", map[string]any{"name": "ann", "age": 33}, false)
	require.NoError(t, err)

	last, err := people.LastRow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, last)

	resp, err := c.Find(ctx, "name", "ann", false)
	require.NoError(t, err)
	var row map[string]any
	require.NoError(t, resp.Decode(&row))
	assert.Equal(t, 33.0, row["age"])
	assert.Equal(t, 2.0, row["_id"])
}

func TestClient_BatchUpsertCounts(t *testing.T) {
	c, _ := setupClient(t, nil, "")
	ctx := context.Background()
	items := []map[string]any{{"name": "cy", "age": 1}, {"name": "dee", "age": 2}}

	resp, err := c.BatchUpsert(ctx, "name", items, false)
	require.NoError(t, err)
	var counts map[string]int
	require.NoError(t, resp.Decode(&counts))
	assert.Equal(t, 2, counts["inserted"])
	assert.Equal(t, 0, counts["updated"])

	resp, err = c.BatchUpsert(ctx, "name", items, false)
	require.NoError(t, err)
	require.NoError(t, resp.Decode(&counts))
	assert.Equal(t, 0, counts["inserted"])
	assert.Equal(t, 2, counts["updated"])
}

func TestClient_EnvelopeError(t *testing.T) {
	c, _ := setupClient(t, nil, "")

	resp, err := c.WithSheet("Missing").Get(context.Background(), 2)
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.Status)
	assert.Equal(t, "sheet_not_found", apiErr.Code)
	require.NotNil(t, resp)
	assert.Equal(t, "sheet_not_found", resp.Error.Code)
}

func TestClient_Key(t *testing.T) {
	users := stores.NewInMemoryUserStore(
		model.User{Name: "admin", Key: model.Key{Value: adminKey}, Permissions: model.Wildcard()},
	)

	c, _ := setupClient(t, users, "")
	_, err := c.Get(context.Background(), 2)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "unauthorized", apiErr.Code)

	c, _ = setupClient(t, users, adminKey)
	resp, err := c.Get(context.Background(), 2)
	require.NoError(t, err)
	var row map[string]any
	require.NoError(t, resp.Decode(&row))
	assert.Equal(t, "ann", row["name"])
}

func TestClient_Batch(t *testing.T) {
	c, _ := setupClient(t, nil, "")

	out, err := c.Batch(context.Background(), []Params{
		{"method": "GET", "id": 3},
		{"method": "AGGREGATE", "column": "age", "operation": "sum"},
		{"method": "GET", "sheet": "Missing"},
	})
	require.NoError(t, err)
	require.Len(t, out, 3)

	var row map[string]any
	require.NoError(t, out[0].Decode(&row))
	assert.Equal(t, "ben", row["name"])

	var sum struct {
		Result float64 `json:"result"`
	}
	require.NoError(t, out[1].Decode(&sum))
	assert.Equal(t, 73.0, sum.Result)

	require.Error(t, out[2].Err())
	assert.Equal(t, "sheet_not_found", out[2].Error.Code)
}

func TestClient_ColumnsAndSheets(t *testing.T) {
	c, people := setupClient(t, nil, "")
	ctx := context.Background()

	_, err := c.AddColumn(ctx, "city")
	require.NoError(t, err)
	_, err = c.EditColumn(ctx, "city", "town")
	require.NoError(t, err)
	headers, err := people.Values(ctx, sheet.Range{Row: 1, Col: 1, NumRows: 1, NumCols: 3})
	require.NoError(t, err)
	assert.Equal(t, "town", headers[0][2])

	_, err = c.RemoveColumn(ctx, "town")
	require.NoError(t, err)
	lastCol, err := people.LastColumn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, lastCol)

	resp, err := c.GetSheets(ctx)
	require.NoError(t, err)
	var sheets []map[string]any
	require.NoError(t, resp.Decode(&sheets))
	require.Len(t, sheets, 1)
	assert.Equal(t, "People", sheets[0]["name"])

	resp, err = c.GetCSV(ctx, "People")
	require.NoError(t, err)
	var csv string
	require.NoError(t, resp.Decode(&csv))
	assert.Equal(t, "name,age\nann,31\nben,42\n", csv)
}

func TestClient_HTTPFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer ts.Close()

	c, err := New(Config{SheetURL: ts.URL})
	require.NoError(t, err)
	_, err = c.Get(context.Background(), 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error: 502 Bad Gateway")

	ts2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	}))
	defer ts2.Close()
	c, err = New(Config{SheetURL: ts2.URL})
	require.NoError(t, err)
	_, err = c.Get(context.Background(), 2)
	require.ErrorContains(t, err, "failed to decode response")
}

func TestClient_SendsForm(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		got = r.FormValue("payload")
		w.Write([]byte(`{"status":200,"data":[]}`))
	}))
	defer ts.Close()

	c, err := New(Config{SheetURL: ts.URL, Sheet: "Logs", Key: "k"})
	require.NoError(t, err)
	_, err = c.Delete(context.Background(), 5)
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"DELETE","sheet":"Logs","key":"k","id":5}`, got)
}
