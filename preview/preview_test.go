package preview_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvillar/pdfmerge"
	"github.com/lvillar/pdfmerge/batch"
	"github.com/lvillar/pdfmerge/preview"
)

const minimalPDF = "%PDF-1.4\n%%EOF\n"

func TestAcquireRelease(t *testing.T) {
	reg := preview.NewRegistry("")
	f := batch.FileFromBytes("a.pdf", []byte(minimalPDF))

	assert.Equal(t, preview.DefaultBase, reg.Base())

	h, err := reg.Acquire(f)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(h.URL(), preview.DefaultBase))
	assert.Equal(t, preview.DefaultBase+h.Token(), h.URL())
	assert.Equal(t, 1, reg.Live())

	got, ok := reg.Lookup(h.Token())
	require.True(t, ok)
	assert.Equal(t, "a.pdf", got.Name())

	h.Release()
	h.Release()

	acquired, released := reg.Stats()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
	assert.Zero(t, reg.Live())

	_, ok = reg.Lookup(h.Token())
	assert.False(t, ok)
}

func TestTokensAreDistinct(t *testing.T) {
	reg := preview.NewRegistry("")
	f := batch.FileFromBytes("a.pdf", []byte(minimalPDF))

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		h, err := reg.Acquire(f)
		require.NoError(t, err)
		require.False(t, seen[h.Token()], "duplicate token %s", h.Token())
		_, err = uuid.Parse(h.Token())
		require.NoError(t, err)
		seen[h.Token()] = true
	}
	assert.Equal(t, 100, reg.Live())
}

func TestReleaseNilHandle(t *testing.T) {
	var h *preview.Handle
	assert.NotPanics(t, h.Release)
}

func TestAcquireNil(t *testing.T) {
	reg := preview.NewRegistry("")
	_, err := reg.Acquire(nil)
	assert.ErrorIs(t, err, pdfmerge.ErrInvalidParam)
}

func TestServeHTTP(t *testing.T) {
	reg := preview.NewRegistry("/preview/")
	h, err := reg.Acquire(batch.FileFromBytes("report.pdf", []byte(minimalPDF)))
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("/preview/", reg)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + h.URL())
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, pdfmerge.MediaTypePDF, resp.Header.Get("Content-Type"))
	assert.Equal(t, `inline; filename="report.pdf"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, minimalPDF, string(body))

	h.Release()
	resp, err = http.Get(ts.URL + h.URL())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeHTTPMethodNotAllowed(t *testing.T) {
	reg := preview.NewRegistry("/")
	rec := httptest.NewRecorder()
	reg.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/abc", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
