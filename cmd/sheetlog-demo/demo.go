package main

import (
	_ "embed"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-michi/michi"

	"github.com/mscno/sheetlog/pkg/client"
	"github.com/mscno/sheetlog/server"
	"github.com/mscno/sheetlog/server/middleware"
)

//go:embed index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

const defaultSheet = "Sheet1"

type demo struct {
	sheetURL string
	logger   *slog.Logger
}

type proxyRequest struct {
	SheetURL string         `json:"sheetUrl"`
	Payload  map[string]any `json:"payload"`
}

func newDemoServer(addr, sheetURL string, logger *slog.Logger) *server.HTTPServer {
	d := &demo{sheetURL: sheetURL, logger: logger}
	srv := server.NewHTTPServer(addr)
	srv.Use(middleware.WithRecovery(logger), middleware.WithLogger(logger))
	d.register(srv.Router)
	return srv
}

func (d *demo) register(mux *michi.Router) {
	mux.Handle("GET /{$}", http.HandlerFunc(d.index))
	mux.Handle("POST /api/sheet", http.HandlerFunc(d.proxy))
}

func (d *demo) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, map[string]string{"SheetURL": d.sheetURL}); err != nil {
		d.logger.Error("failed to render page", "error", err)
	}
}

// proxy forwards one payload to the endpoint and relays its envelope.
func (d *demo) proxy(w http.ResponseWriter, r *http.Request) {
	var req proxyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		d.fail(w, "invalid request body: "+err.Error())
		return
	}
	if req.Payload == nil {
		d.fail(w, "payload is required")
		return
	}
	sheetURL := req.SheetURL
	if sheetURL == "" {
		sheetURL = d.sheetURL
	}
	c, err := client.New(client.Config{SheetURL: sheetURL, Logger: d.logger})
	if err != nil {
		d.fail(w, err.Error())
		return
	}

	params := client.Params{}
	for k, v := range req.Payload {
		params[k] = v
	}
	if _, ok := params["sheet"]; !ok {
		params["sheet"] = defaultSheet
	}
	method, _ := params["method"].(string)
	delete(params, "method")
	if method == "" {
		method = "GET"
	}

	resp, err := c.Do(r.Context(), method, params)
	if resp == nil {
		d.fail(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		d.logger.Error("failed to encode response", "error", err)
	}
}

func (d *demo) fail(w http.ResponseWriter, msg string) {
	d.logger.Error("proxy request failed", "error", msg)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
