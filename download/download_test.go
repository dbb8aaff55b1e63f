package download

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirSinkDeliver(t *testing.T) {
	fs := memfs.New()
	s := NewFSSink(fs)

	loc, err := s.Deliver(context.Background(), "merged.pdf", []byte("%PDF-1"))
	require.NoError(t, err)
	assert.Equal(t, fs.Join(fs.Root(), "merged.pdf"), loc)

	data, err := util.ReadFile(fs, "merged.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1", string(data))
}

func TestDirSinkNeverOverwrites(t *testing.T) {
	fs := memfs.New()
	s := NewFSSink(fs)

	for i := 0; i < 3; i++ {
		_, err := s.Deliver(context.Background(), "merged.pdf", []byte{byte('a' + i)})
		require.NoError(t, err)
	}

	for name, want := range map[string]string{
		"merged.pdf":     "a",
		"merged (1).pdf": "b",
		"merged (2).pdf": "c",
	} {
		data, err := util.ReadFile(fs, name)
		require.NoError(t, err, name)
		assert.Equal(t, want, string(data), name)
	}

	// No temp files are left behind.
	entries, err := fs.ReadDir(".")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestDirSinkSanitizesName(t *testing.T) {
	fs := memfs.New()
	s := NewFSSink(fs)

	_, err := s.Deliver(context.Background(), "../../etc/merged.pdf", []byte("x"))
	require.NoError(t, err)
	_, err = fs.Stat("merged.pdf")
	assert.NoError(t, err)

	_, err = s.Deliver(context.Background(), "", []byte("x"))
	assert.Error(t, err)
}

func TestDirSinkCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFSSink(memfs.New()).Deliver(ctx, "merged.pdf", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewDirSink(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDirSink(dir)
	require.NoError(t, err)

	loc, err := s.Deliver(context.Background(), "merged.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "merged.pdf"), loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
}

func TestNewDirSinkErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewDirSink(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = NewDirSink(file)
	assert.Error(t, err)
}

func TestNewObjectSinkValidation(t *testing.T) {
	_, err := NewObjectSink(ObjectConfig{Bucket: "b"})
	assert.Error(t, err)

	_, err = NewObjectSink(ObjectConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	s, err := NewObjectSink(ObjectConfig{Endpoint: "localhost:9000", Bucket: "merged", Prefix: "out"})
	require.NoError(t, err)
	assert.Equal(t, "merged", s.bucket)
}

func TestObjectSinkDeliver(t *testing.T) {
	var (
		method, path, contentType, disposition string
		body                                    []byte
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		contentType = r.Header.Get("Content-Type")
		disposition = r.Header.Get("Content-Disposition")
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	s, err := NewObjectSink(ObjectConfig{
		Endpoint:  u.Host,
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "merged",
		Prefix:    "out",
		Region:    "us-east-1",
	})
	require.NoError(t, err)

	loc, err := s.Deliver(context.Background(), "merged.pdf", []byte("%PDF-1"))
	require.NoError(t, err)
	assert.Equal(t, "s3://merged/out/merged.pdf", loc)
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/merged/out/merged.pdf", path)
	assert.Equal(t, "application/pdf", contentType)
	assert.Equal(t, `attachment; filename="merged.pdf"`, disposition)
	assert.Contains(t, string(body), "%PDF-1")
}
