// Package pdfmerge stages PDF files into an ordered batch and submits them
// to a merge service that concatenates them into a single document.
//
// The root package holds what every other package shares: the File
// reference type, the limits and wire constants of the merge endpoint,
// endpoint derivation, and the error taxonomy. The Batch Manager lives in
// the batch package, the transport in client, the merge service in server.
package pdfmerge

import (
	"fmt"
	"io"
)

const (
	// MediaTypePDF is the only media type admitted into a batch.
	MediaTypePDF = "application/pdf"

	// MaxFileSize is the largest file, in bytes, admitted into a batch (10 MiB).
	MaxFileSize int64 = 10 * 1024 * 1024

	// MinFiles is the smallest batch that can be submitted.
	MinFiles = 2

	// FieldName is the multipart field every file part is sent under.
	FieldName = "pdfs"

	// MergePath is the path of the merge endpoint.
	MergePath = "/api/merge-pdfs"

	// MergedFileName is the name the merged document is delivered under.
	MergedFileName = "merged.pdf"

	// DefaultPort is the port substituted into the page host to reach the merge service.
	DefaultPort = 5000
)

// File is a borrowed reference to a user-selected file. Implementations
// report metadata without reading content; Open is called once per upload.
type File interface {
	Name() string
	Size() int64
	MediaType() string
	Open() (io.ReadCloser, error)
}

// FormatLimit renders a byte limit the way it is shown to users ("10MB").
func FormatLimit(n int64) string {
	const mib = 1024 * 1024
	if n >= mib && n%mib == 0 {
		return fmt.Sprintf("%dMB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}
