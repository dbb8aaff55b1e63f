package batch

import (
	"fmt"
	"strings"

	"github.com/lvillar/pdfmerge"
)

// Report describes the outcome of one admission call.
type Report struct {
	Admitted  int      // files appended to the batch
	NotPDF    []string // names dropped because they are not PDF files
	Oversized []string // PDF names over the size limit
}

// Validate decides which of files may enter a batch. It is pure: the same
// input always yields the same result, whatever the originating action.
//
// Non-PDF files are dropped; the call fails only if nothing is left. Any PDF
// over maxSize fails the whole call, even when the other files are valid.
func Validate(files []pdfmerge.File, maxSize int64) ([]pdfmerge.File, Report, error) {
	var rep Report
	if len(files) == 0 {
		return nil, rep, pdfmerge.NewValidationError("Admit", "No files selected", pdfmerge.ErrNoFiles)
	}

	accepted := make([]pdfmerge.File, 0, len(files))
	for _, f := range files {
		if f == nil {
			continue
		}
		if !isPDF(f.MediaType()) {
			rep.NotPDF = append(rep.NotPDF, f.Name())
			continue
		}
		accepted = append(accepted, f)
	}
	if len(accepted) == 0 {
		if len(rep.NotPDF) == 0 {
			return nil, rep, pdfmerge.NewValidationError("Admit", "No files selected", pdfmerge.ErrNoFiles)
		}
		return nil, rep, pdfmerge.NewValidationError("Admit", "Please select PDF files only", pdfmerge.ErrNotPDF, rep.NotPDF...)
	}

	for _, f := range accepted {
		if f.Size() > maxSize {
			rep.Oversized = append(rep.Oversized, f.Name())
		}
	}
	if len(rep.Oversized) > 0 {
		msg := fmt.Sprintf("Some files exceed the %s size limit: %s", pdfmerge.FormatLimit(maxSize), strings.Join(rep.Oversized, ", "))
		return nil, rep, pdfmerge.NewValidationError("Admit", msg, pdfmerge.ErrTooLarge, rep.Oversized...)
	}

	rep.Admitted = len(accepted)
	return accepted, rep, nil
}

func isPDF(mediaType string) bool {
	base, _, _ := strings.Cut(mediaType, ";")
	return strings.EqualFold(strings.TrimSpace(base), pdfmerge.MediaTypePDF)
}
