package middleware

import (
	"fmt"
	"log/slog"
	"net/http"

	connectcors "connectrpc.com/cors"
	"github.com/rs/cors"
)

type corsLogger struct {
	logger *slog.Logger
}

func (c *corsLogger) Printf(format string, args ...interface{}) {
	c.logger.Debug("cors", "message", fmt.Sprintf(format, args...))
}

// WithCORS lets browser pages call the adapter from the given origins, or from
// any origin when none are given. Only GET and POST are ever needed.
func WithCORS(logger *slog.Logger, origins ...string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	options := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: connectcors.AllowedMethods(),
		AllowedHeaders: append(connectcors.AllowedHeaders(), "Authorization"),
		ExposedHeaders: connectcors.ExposedHeaders(),
		MaxAge:         3600,
		Logger:         &corsLogger{logger: logger},
	}
	return cors.New(options).Handler
}
