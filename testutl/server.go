package testutl

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/mscno/sheetlog/server"
)

// StartServer runs srv on a free loopback port until the test ends and
// returns its base URL.
func StartServer(t *testing.T, srv *server.HTTPServer) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go func() {
		if err := srv.Serve(l); err != nil {
			slog.Error("test server stopped", "error", err)
		}
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return fmt.Sprintf("http://%s/", l.Addr().String())
}
