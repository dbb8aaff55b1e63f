package pageops

import (
	"context"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/gofpdi"
)

// A4 in points, used when an imported page reports no media box.
const (
	a4Width  = 595.28
	a4Height = 841.89
)

// Gofpdi merges documents by importing each page as a template.
type Gofpdi struct{}

// NewGofpdi creates a page-import engine.
func NewGofpdi() *Gofpdi {
	return &Gofpdi{}
}

// Merge implements Engine.
func (e *Gofpdi) Merge(ctx context.Context, w io.Writer, inputs ...io.ReadSeeker) (err error) {
	if len(inputs) == 0 {
		return fmt.Errorf("pageops: no input files provided")
	}

	// gofpdi reports malformed input by panicking.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pageops: importing pages: %v", r)
		}
	}()

	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)

	// One importer per merge; it keys templates by source.
	imp := gofpdi.NewImporter()

	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := appendStream(pdf, imp, in); err != nil {
			return fmt.Errorf("pageops: merging input %d: %w", i+1, err)
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("pageops: building document: %w", err)
	}
	return pdf.Output(w)
}

// appendStream imports all pages of one input into pdf.
func appendStream(pdf *gofpdf.Fpdf, imp *gofpdi.Importer, in io.ReadSeeker) error {
	pageCount, err := PageCount(in)
	if err != nil {
		return err
	}

	rs := in
	for i := 1; i <= pageCount; i++ {
		tplID := imp.ImportPageFromStream(pdf, &rs, i, "/MediaBox")
		w, h := pageSize(imp, i)
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: h})
		imp.UseImportedTemplate(pdf, tplID, 0, 0, w, h)
	}
	return pdf.Error()
}

// pageSize returns the media box of page pageNum of the current source.
func pageSize(imp *gofpdi.Importer, pageNum int) (w, h float64) {
	if dims, ok := imp.GetPageSizes()[pageNum]; ok {
		if mb, ok := dims["/MediaBox"]; ok {
			w, h = mb["w"], mb["h"]
		}
	}
	if w == 0 || h == 0 {
		return a4Width, a4Height
	}
	return w, h
}
