// Package httpserver builds the ops HTTP listener.
package httpserver

import (
	"context"
	"net/http"
	"time"
)

// ShutdownTimeout bounds the graceful drain on exit.
const ShutdownTimeout = 10 * time.Second

// New builds the ops server. The endpoints serve small local responses, so
// the timeouts are tight enough that a stalled scrape cannot pin a
// connection open across shutdown.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Shutdown drains srv within ShutdownTimeout.
func Shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
