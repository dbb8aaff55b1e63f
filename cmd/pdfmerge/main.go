// Command pdfmerge stages PDF files and submits them to a merge service,
// saving the result as merged.pdf.
//
//	pdfmerge [flags] first.pdf second.pdf [more.pdf ...]
//
// Files are merged in argument order. Settings are read from PDFMERGE_*
// environment variables; flags override them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lvillar/pdfmerge"
	"github.com/lvillar/pdfmerge/batch"
	"github.com/lvillar/pdfmerge/client"
	"github.com/lvillar/pdfmerge/download"
	"github.com/lvillar/pdfmerge/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	cfg, err := config.LoadClient(getenv)
	if err != nil {
		fmt.Fprintf(stderr, "pdfmerge: %v\n", err)
		return 2
	}

	fs := flag.NewFlagSet("pdfmerge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: pdfmerge [flags] first.pdf second.pdf [more.pdf ...]")
		fs.PrintDefaults()
	}
	host := fs.String("host", cfg.Endpoint.Host, "merge service host")
	origin := fs.String("origin", "", "derive the service host from this page origin")
	port := fs.Int("port", cfg.Endpoint.Port, "merge service port")
	scheme := fs.String("scheme", cfg.Endpoint.Scheme, "merge service scheme")
	out := fs.String("o", cfg.OutputDir, "directory to save merged.pdf into")
	timeout := fs.Duration("timeout", cfg.Timeout, "request timeout (0 for none)")
	verbose := fs.Bool("v", false, "log requests to stderr")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	opts := []pdfmerge.EndpointOption{pdfmerge.WithPort(*port), pdfmerge.WithScheme(*scheme)}
	ep := pdfmerge.NewEndpoint(*host, opts...)
	if *origin != "" {
		ep, err = pdfmerge.EndpointFromOrigin(*origin, opts...)
		if err != nil {
			fmt.Fprintf(stderr, "pdfmerge: %v\n", err)
			return 2
		}
	}

	// Quiet unless -v or PDFMERGE_LOG_LEVEL asks otherwise.
	level := slog.LevelWarn
	switch {
	case *verbose:
		level = slog.LevelDebug
	case getenv(config.EnvLogLevel) != "":
		level = cfg.LogLevel
	}
	logger := config.NewLogger(stderr, level)

	var sink batch.Sink
	if cfg.Object != nil {
		sink, err = download.NewObjectSink(*cfg.Object)
	} else {
		sink, err = download.NewDirSink(*out)
	}
	if err != nil {
		fmt.Fprintf(stderr, "pdfmerge: %v\n", err)
		return 1
	}

	c := client.New(ep.URL(), client.WithTimeout(*timeout), client.WithLogger(logger))
	mgr := batch.New(c, sink, batch.WithLogger(logger))
	defer mgr.Close()

	files := make([]pdfmerge.File, 0, fs.NArg())
	for _, p := range fs.Args() {
		f, err := batch.FileFromPath(p)
		if err != nil {
			fmt.Fprintf(stderr, "pdfmerge: %v\n", err)
			return 1
		}
		files = append(files, f)
	}

	rep, err := mgr.Admit(files...)
	if err != nil {
		fmt.Fprintf(stderr, "pdfmerge: %s\n", pdfmerge.Message(err))
		return 1
	}
	for _, name := range rep.NotPDF {
		fmt.Fprintf(stderr, "pdfmerge: skipping %s: not a PDF file\n", name)
	}

	res, err := mgr.Submit(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "pdfmerge: %s\n", pdfmerge.Message(err))
		return 1
	}
	fmt.Fprintln(stdout, res.Location)
	return 0
}
