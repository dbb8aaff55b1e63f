package batch

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvillar/pdfmerge"
)

// stubFile reports any size without holding the bytes.
type stubFile struct {
	name      string
	size      int64
	mediaType string
}

func (f stubFile) Name() string      { return f.name }
func (f stubFile) Size() int64       { return f.size }
func (f stubFile) MediaType() string { return f.mediaType }
func (f stubFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader([]byte("%PDF-1.4\n%%EOF\n"))), nil
}

func pdf(name string, size int64) stubFile {
	return stubFile{name: name, size: size, mediaType: pdfmerge.MediaTypePDF}
}

func text(name string) stubFile {
	return stubFile{name: name, size: 10, mediaType: "text/plain"}
}

func names(files []pdfmerge.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name()
	}
	return out
}

func TestValidate(t *testing.T) {
	const limit = pdfmerge.MaxFileSize

	tests := []struct {
		name      string
		files     []pdfmerge.File
		accepted  []string
		notPDF    []string
		oversized []string
		msg       string
		sentinel  error
	}{
		{
			name:     "empty",
			msg:      "No files selected",
			sentinel: pdfmerge.ErrNoFiles,
		},
		{
			name:     "all pdf",
			files:    []pdfmerge.File{pdf("a.pdf", 1), pdf("b.pdf", 2)},
			accepted: []string{"a.pdf", "b.pdf"},
		},
		{
			name:     "non pdf dropped",
			files:    []pdfmerge.File{pdf("a.pdf", 1), text("notes.txt"), pdf("b.pdf", 2)},
			accepted: []string{"a.pdf", "b.pdf"},
			notPDF:   []string{"notes.txt"},
		},
		{
			name:     "only non pdf",
			files:    []pdfmerge.File{text("notes.txt"), stubFile{name: "img.png", size: 1, mediaType: "image/png"}},
			notPDF:   []string{"notes.txt", "img.png"},
			msg:      "Please select PDF files only",
			sentinel: pdfmerge.ErrNotPDF,
		},
		{
			name:     "exactly at limit",
			files:    []pdfmerge.File{pdf("a.pdf", limit)},
			accepted: []string{"a.pdf"},
		},
		{
			name:      "one over limit rejects all",
			files:     []pdfmerge.File{pdf("a.pdf", 1), pdf("big.pdf", limit+1), pdf("huge.pdf", 50 << 20)},
			oversized: []string{"big.pdf", "huge.pdf"},
			msg:       "Some files exceed the 10MB size limit: big.pdf, huge.pdf",
			sentinel:  pdfmerge.ErrTooLarge,
		},
		{
			name:      "oversized non pdf is only dropped",
			files:     []pdfmerge.File{pdf("a.pdf", 1), stubFile{name: "movie.mp4", size: limit * 5, mediaType: "video/mp4"}},
			accepted:  []string{"a.pdf"},
			notPDF:    []string{"movie.mp4"},
			oversized: nil,
		},
		{
			name:     "media type parameters ignored",
			files:    []pdfmerge.File{stubFile{name: "a.pdf", size: 1, mediaType: "Application/PDF; version=1.7"}},
			accepted: []string{"a.pdf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accepted, rep, err := Validate(tt.files, limit)

			assert.Equal(t, tt.notPDF, rep.NotPDF)
			assert.Equal(t, tt.oversized, rep.Oversized)

			if tt.msg != "" {
				require.Error(t, err)
				assert.Nil(t, accepted)
				assert.Zero(t, rep.Admitted)
				assert.Equal(t, tt.msg, pdfmerge.Message(err))
				assert.ErrorIs(t, err, tt.sentinel)
				assert.True(t, pdfmerge.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.accepted, names(accepted))
			assert.Equal(t, len(tt.accepted), rep.Admitted)
		})
	}
}

func TestValidateIsPure(t *testing.T) {
	files := []pdfmerge.File{pdf("a.pdf", 1), text("notes.txt")}

	a1, r1, e1 := Validate(files, pdfmerge.MaxFileSize)
	a2, r2, e2 := Validate(files, pdfmerge.MaxFileSize)

	assert.Equal(t, names(a1), names(a2))
	assert.Equal(t, r1, r2)
	assert.Equal(t, e1, e2)
}
