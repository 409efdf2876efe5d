package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-michi/michi"

	"github.com/mscno/sheetlog/server/middleware"
)

const maxBodyBytes = 10 << 20

var errNoPayload = errors.New("no valid payload found")

// Handler exposes a Server over HTTP. GET carries the parameters in the query
// string, POST in a JSON body or a form field named payload.
type Handler struct {
	server *Server
	logger *slog.Logger
}

func NewHandler(s *Server) *Handler {
	return &Handler{server: s, logger: s.logger}
}

// Register adds the adapter routes to mux.
func (h *Handler) Register(mux *michi.Router) {
	mux.Handle("GET /healthz", http.HandlerFunc(h.Healthz))
	mux.Handle("GET /{$}", http.HandlerFunc(h.Get))
	mux.Handle("POST /{$}", http.HandlerFunc(h.Post))
}

// Get handles GET /.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("test") != "" {
		h.writeJSON(w, map[string]any{
			"status":    "ok",
			"mode":      "test",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"version":   h.server.version,
		})
		return
	}
	params := make(Params, len(query))
	for k, v := range query {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	h.writeJSON(w, h.server.HandleRead(r.Context(), h.withKey(r, params)))
}

// Post handles POST /. A JSON array runs every element and answers with an
// array of envelopes.
func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeJSON(w, invalidPost(err.Error(), r))
		return
	}
	decoded, err := decodePost(body, r)
	if err != nil {
		h.writeJSON(w, invalidPost(err.Error(), r))
		return
	}

	switch v := decoded.(type) {
	case map[string]any:
		h.writeJSON(w, h.server.Handle(r.Context(), h.withKey(r, v)))
	case []any:
		out := make([]*Response, 0, len(v))
		for _, item := range v {
			params, ok := item.(map[string]any)
			if !ok {
				out = append(out, invalidPost("request must be an object", r))
				continue
			}
			out = append(out, h.server.Handle(r.Context(), h.withKey(r, params)))
		}
		h.writeJSON(w, out)
	default:
		h.writeJSON(w, invalidPost("payload must be an object or an array", r))
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]any{"status": "ok"})
}

// withKey falls back to the bearer key when the parameters carry none.
func (h *Handler) withKey(r *http.Request, params Params) Params {
	if params.Has("key") {
		return params
	}
	if key, ok := middleware.KeyFromContext(r.Context()); ok {
		params["key"] = key
	}
	return params
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// decodePost accepts a JSON body, or a form with a JSON payload field in the
// body or the query string.
func decodePost(body []byte, r *http.Request) (any, error) {
	var decoded any
	jsonErr := json.Unmarshal(body, &decoded)
	if jsonErr == nil && decoded != nil {
		return decoded, nil
	}
	payload := ""
	if form, err := url.ParseQuery(string(bytes.TrimSpace(body))); err == nil {
		payload = form.Get("payload")
	}
	if payload == "" {
		payload = r.URL.Query().Get("payload")
	}
	if payload == "" {
		if jsonErr == nil || len(body) == 0 {
			return nil, errNoPayload
		}
		return nil, jsonErr
	}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func invalidPost(msg string, r *http.Request) *Response {
	return badRequest(CodeInvalidPostPayload, Details{
		"message": msg,
		"type":    r.Header.Get("Content-Type"),
	})
}
