// Command pdfmerged serves the merge endpoint:
//
//	POST /api/merge-pdfs   multipart "pdfs" parts in order -> merged.pdf
//	GET  /healthz
//
// Settings are read from PDFMERGE_* environment variables; flags override
// them. The server shuts down gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/lvillar/pdfmerge/internal/config"
	"github.com/lvillar/pdfmerge/pageops"
	"github.com/lvillar/pdfmerge/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr, os.Getenv, nil)
	stop()
	os.Exit(code)
}

// run serves until ctx is done. When ready is non-nil it receives the bound
// address once the listener is open.
func run(ctx context.Context, args []string, stderr io.Writer, getenv func(string) string, ready chan<- string) int {
	cfg, err := config.LoadServer(getenv)
	if err != nil {
		fmt.Fprintf(stderr, "pdfmerged: %v\n", err)
		return 2
	}

	fs := flag.NewFlagSet("pdfmerged", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", cfg.Addr, "listen address")
	engineName := fs.String("engine", cfg.Engine, "merge engine (pdfcpu or gofpdi)")
	uploadDir := fs.String("upload-dir", cfg.UploadDir, "spool uploads to this directory instead of memory")
	origin := fs.String("cors-origin", cfg.CORSOrigin, "allowed CORS origin")
	maxFiles := fs.Int("max-files", cfg.MaxFiles, "largest number of files per request (0 for no limit)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	logger := config.NewLogger(stderr, cfg.LogLevel)

	engine, err := pageops.EngineByName(*engineName)
	if err != nil {
		fmt.Fprintf(stderr, "pdfmerged: %v\n", err)
		return 2
	}

	opts := []server.Option{
		server.WithMaxFileSize(cfg.MaxFileSize),
		server.WithMaxFiles(*maxFiles),
		server.WithAllowedOrigin(*origin),
		server.WithLogger(logger),
	}
	if *uploadDir != "" {
		if err := os.MkdirAll(*uploadDir, 0o700); err != nil {
			fmt.Fprintf(stderr, "pdfmerged: %v\n", err)
			return 1
		}
		opts = append(opts, server.WithSpool(osfs.New(*uploadDir)))
	}
	srv := server.New(engine, opts...)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Fprintf(stderr, "pdfmerged: %v\n", err)
		return 1
	}

	hs := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- hs.Serve(ln)
	}()
	logger.Info("listening", "addr", ln.Addr().String(), "engine", *engineName)
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
		return 1
	}
	return 0
}
