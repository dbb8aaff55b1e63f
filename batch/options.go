package batch

import (
	"io"
	"log/slog"

	"github.com/lvillar/pdfmerge"
	"github.com/lvillar/pdfmerge/preview"
)

// Option is a functional option for configuring a Manager via New.
type Option func(*config)

type config struct {
	previews *preview.Registry
	maxSize  int64
	minFiles int
	newID    func() string
	logger   *slog.Logger
}

func defaultConfig() *config {
	return &config{
		maxSize:  pdfmerge.MaxFileSize,
		minFiles: pdfmerge.MinFiles,
		newID:    newID,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithPreviews sets the registry preview handles are acquired from.
// By default each Manager gets its own registry with preview.DefaultBase.
func WithPreviews(r *preview.Registry) Option {
	return func(c *config) {
		if r != nil {
			c.previews = r
		}
	}
}

// WithMaxFileSize overrides the per-file admission limit in bytes.
func WithMaxFileSize(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithMinFiles overrides the number of files required to submit.
func WithMinFiles(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.minFiles = n
		}
	}
}

// WithIDFunc sets the generator for staged file identifiers. The generator
// must not repeat values within a Manager's lifetime.
func WithIDFunc(fn func() string) Option {
	return func(c *config) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// WithLogger sets the structured logger. Logs are discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}
