package httpserver

import (
	"net/http"
	"time"

	"guildledger/internal/platform/config"
)

// New builds the HTTP server. The write timeout leaves room for a
// ?wait=true request to block for the full submission wait.
func New(cfg config.Server, handler http.Handler) *http.Server {
	write := cfg.RequestTimeout
	if wait := cfg.Submission.WaitTimeout + 5*time.Second; wait > write {
		write = wait
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      write,
		IdleTimeout:       60 * time.Second,
	}
}
