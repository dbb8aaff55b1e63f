package pageops

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// newConfiguration returns a relaxed pdfcpu configuration that never reads
// or writes the user's pdfcpu config directory.
func newConfiguration() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PDFCPU merges documents with pdfcpu.
type PDFCPU struct {
	conf *model.Configuration
}

// NewPDFCPU creates a pdfcpu engine with relaxed validation.
func NewPDFCPU() *PDFCPU {
	return &PDFCPU{conf: newConfiguration()}
}

// Merge implements Engine.
func (e *PDFCPU) Merge(ctx context.Context, w io.Writer, inputs ...io.ReadSeeker) error {
	if len(inputs) == 0 {
		return fmt.Errorf("pageops: no input files provided")
	}
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := PageCount(in); err != nil {
			return fmt.Errorf("pageops: input %d: %w", i+1, err)
		}
		if err := rewind(in); err != nil {
			return err
		}
	}
	if err := api.MergeRaw(inputs, w, false, e.conf); err != nil {
		return fmt.Errorf("pageops: merging: %w", err)
	}
	return nil
}

// PageCount returns the number of pages of the PDF read from rs. rs is
// left positioned at its start.
func PageCount(rs io.ReadSeeker) (int, error) {
	if err := rewind(rs); err != nil {
		return 0, err
	}
	n, err := api.PageCount(rs, newConfiguration())
	if err != nil {
		return 0, fmt.Errorf("pageops: reading page count: %w", err)
	}
	if err := rewind(rs); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("pageops: document has no pages")
	}
	return n, nil
}
