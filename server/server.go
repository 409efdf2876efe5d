package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mscno/sheetlog/pkg/sheet"
	"github.com/mscno/sheetlog/server/model"
	"github.com/mscno/sheetlog/server/stores"
)

// Server is the adapter: it turns request parameters into spreadsheet
// operations, guarded by per-user permissions and a process-wide write lock.
type Server struct {
	spreadsheet sheet.Spreadsheet
	users       stores.UserStore
	readUsers   stores.UserStore
	lock        *WriteLock
	logger      *slog.Logger
	now         func() time.Time
	location    *time.Location
	version     string
	routes      map[string]route
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithLockTimeout bounds how long a writer waits for the write lock.
func WithLockTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.lock = NewWriteLock(timeout)
	}
}

// WithClock replaces the time source used for Date Modified stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithLocation sets the time zone of Date Modified stamps.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) {
		s.location = loc
	}
}

// WithReadUsers gives GET requests their own users. Without it GET and POST
// share the users passed to NewServer.
func WithReadUsers(users stores.UserStore) Option {
	return func(s *Server) {
		s.readUsers = users
	}
}

// WithVersion sets the version reported by test requests.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// NewServer creates an adapter over spreadsheet. A nil user store means a
// single anonymous user with full access.
func NewServer(spreadsheet sheet.Spreadsheet, users stores.UserStore, opts ...Option) *Server {
	if users == nil {
		users = stores.NewInMemoryUserStore(AnonymousUser())
	}
	s := &Server{
		spreadsheet: spreadsheet,
		users:       users,
		lock:        NewWriteLock(defaultLockTimeout),
		logger:      slog.Default(),
		now:         time.Now,
		location:    time.Local,
		version:     "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes = s.buildRoutes()
	return s
}

// request is one authorised call on its way to a handler.
type request struct {
	method string
	params Params
	user   *model.User
	sheet  sheet.Sheet
	rowID  int
}

// Handle runs one request and always returns an envelope.
func (s *Server) Handle(ctx context.Context, params Params) *Response {
	return s.handle(ctx, params, s.users)
}

// HandleRead runs a request that arrived as an HTTP GET.
func (s *Server) HandleRead(ctx context.Context, params Params) *Response {
	if s.readUsers != nil {
		return s.handle(ctx, params, s.readUsers)
	}
	return s.handle(ctx, params, s.users)
}

func (s *Server) handle(ctx context.Context, params Params, users stores.UserStore) (resp *Response) {
	method := params.Method()
	rt, known := s.routes[method]
	logger := s.logger.With("method", method, "sheet", params.String("sheet"))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panic", "panic", r)
			resp = failure(http.StatusInternalServerError, CodeInternalError, Details{"message": fmt.Sprint(r)})
		}
	}()

	if known && rt.write {
		if err := s.lock.Acquire(ctx); err != nil {
			logger.Warn("write lock busy", "error", err)
			return failure(http.StatusServiceUnavailable, CodeServerBusy, Details{"message": s.lock.busyMessage()})
		}
		defer s.lock.Release()
	}

	sheetName := strings.ToLower(params.String("sheet"))
	user, err := authorize(ctx, users, params.String("key"), sheetName, method)
	switch {
	case errors.Is(err, ErrUnauthorized):
		return failure(http.StatusUnauthorized, CodeUnauthorized, Details{"sheet": sheetName, "method": method})
	case errors.Is(err, ErrWeakKey):
		return failure(http.StatusUnauthorized, CodeWeakKey, Details{
			"message": "Key does not meet strength requirements. Use at least 8 characters mixing upper and lower case letters, digits and symbols.",
		})
	case err != nil:
		logger.Error("authorization failed", "error", err)
		return failure(http.StatusInternalServerError, CodeInternalError, Details{"message": err.Error()})
	}

	req := &request{method: method, params: params, user: user}
	if !known || !rt.spreadsheetLevel {
		sh, err := s.spreadsheet.Sheet(ctx, sheetName)
		if errors.Is(err, sheet.ErrSheetNotFound) {
			return notFound(CodeSheetNotFound, Details{"sheet": sheetName})
		}
		if err != nil {
			return s.hostFailure(logger, err)
		}
		req.sheet = sh
	}

	if known && rt.rowID != rowIDNone && params.Has("id") {
		id, err := params.Int("id", 0)
		if err != nil || id <= 1 || id > sheet.MaxRows {
			return badRequest(CodeRowIndexInvalid, Details{"_id": params["id"]})
		}
		req.rowID = id
	} else if known && rt.rowID == rowIDRequired {
		return badRequest(CodeRowIDMissing, Details{"message": "The 'id' parameter is required."})
	}

	if !known {
		return notFound(CodeUnknownMethod, Details{"method": method})
	}
	resp, err = rt.handler(ctx, req)
	if err != nil {
		return s.hostFailure(logger, err)
	}
	return resp
}

func (s *Server) hostFailure(logger *slog.Logger, err error) *Response {
	if errors.Is(err, sheet.ErrInvalidRange) {
		logger.Warn("range rejected", "error", err)
		return badRequest(CodeInvalidRange, Details{"message": err.Error()})
	}
	logger.Error("spreadsheet operation failed", "error", err)
	return failure(http.StatusInternalServerError, CodeHostError, Details{"message": err.Error()})
}

func (s *Server) timestamp() string {
	return s.now().In(s.location).Format(timestampLayout)
}
