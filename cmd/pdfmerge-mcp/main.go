// Command pdfmerge-mcp is an MCP (Model Context Protocol) server that lets
// an AI assistant stage PDF files and merge them through a merge service.
//
// # Configuration for Claude Desktop
//
// Add to ~/.config/claude/claude_desktop_config.json:
//
//	{
//	  "mcpServers": {
//	    "pdfmerge": {
//	      "command": "pdfmerge-mcp",
//	      "args": ["-preview-addr", "127.0.0.1:5050"],
//	      "env": {"PDFMERGE_HOST": "localhost", "PDFMERGE_OUTPUT_DIR": "/tmp"}
//	    }
//	  }
//	}
//
// With -preview-addr (or PDFMERGE_PREVIEW_ADDR) set, staged files are also
// served at http://<addr>/preview/<token> for an embedded viewer, and the
// previewUri of each listed file points there.
//
// # Available Tools
//
//   - add_files: Stage PDF files by path
//   - list_files: List the staged files in merge order
//   - remove_file: Remove a staged file
//   - move_file: Move a staged file up or down
//   - clear_files: Empty the batch
//   - merge_files: Merge the batch into merged.pdf
//   - dismiss_error: Clear the last error
//
// # Available Resources
//
//   - pdf://files : The staged files as JSON
//   - pdf://preview?token=... : The bytes of one staged file
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

	"github.com/lvillar/pdfmerge/batch"
	"github.com/lvillar/pdfmerge/client"
	"github.com/lvillar/pdfmerge/download"
	"github.com/lvillar/pdfmerge/internal/config"
	"github.com/lvillar/pdfmerge/mcp"
	"github.com/lvillar/pdfmerge/preview"
)

const previewPath = "/preview/"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, os.Getenv)
	stop()
	os.Exit(code)
}

// run serves the protocol on stdin and stdout until the input ends or ctx
// is done.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, getenv func(string) string) int {
	cfg, err := config.LoadClient(getenv)
	if err != nil {
		fmt.Fprintf(stderr, "pdfmerge-mcp: %v\n", err)
		return 2
	}

	fs := flag.NewFlagSet("pdfmerge-mcp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	previewAddr := fs.String("preview-addr", cfg.PreviewAddr, "serve staged files over HTTP at this address")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	// stdout carries the protocol; logs go to stderr.
	logger := config.NewLogger(stderr, cfg.LogLevel)

	var sink batch.Sink
	if cfg.Object != nil {
		sink, err = download.NewObjectSink(*cfg.Object)
	} else {
		sink, err = download.NewDirSink(cfg.OutputDir)
	}
	if err != nil {
		fmt.Fprintf(stderr, "pdfmerge-mcp: %v\n", err)
		return 1
	}

	opts := []batch.Option{batch.WithLogger(logger)}
	if *previewAddr != "" {
		reg, stopPreviews, err := servePreviews(*previewAddr)
		if err != nil {
			fmt.Fprintf(stderr, "pdfmerge-mcp: %v\n", err)
			return 1
		}
		defer stopPreviews()
		logger.Info("serving previews", "url", reg.Base())
		opts = append(opts, batch.WithPreviews(reg))
	}

	c := client.New(cfg.Endpoint.URL(), client.WithTimeout(cfg.Timeout), client.WithLogger(logger))
	mgr := batch.New(c, sink, opts...)
	defer mgr.Close()

	server := mcp.NewServer(mcp.WithIO(stdin, stdout), mcp.WithLogger(logger))
	mcp.RegisterBatchTools(server, mgr)
	mcp.RegisterBatchResources(server, mgr)

	logger.Info("serving", "endpoint", cfg.Endpoint.URL())
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stopped", "error", err)
		return 1
	}
	return 0
}

// servePreviews listens on addr and serves a preview registry under
// previewPath. The returned func stops the listener.
func servePreviews(addr string) (*preview.Registry, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	reg := preview.NewRegistry("http://" + ln.Addr().String() + previewPath)

	mux := http.NewServeMux()
	mux.Handle(previewPath, reg)
	hs := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go hs.Serve(ln)

	return reg, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hs.Shutdown(ctx)
	}, nil
}
