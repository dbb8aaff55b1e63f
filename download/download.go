// Package download delivers a merged document to the user, either into a
// local directory or into an S3-compatible bucket.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// Sink delivers a named document and returns where it ended up.
type Sink interface {
	Deliver(ctx context.Context, name string, data []byte) (string, error)
}

// maxSuffix bounds the "name (n).pdf" probing of DirSink.
const maxSuffix = 1000

// DirSink writes documents into a directory. The document first lands in a
// transient temp file which is renamed into place, so a reader never sees a
// partial file. An existing file is never overwritten: the name gains a
// " (n)" suffix instead, as browsers do for downloads.
type DirSink struct {
	fs billy.Filesystem
}

// NewDirSink creates a DirSink rooted at dir on the local filesystem.
func NewDirSink(dir string) (*DirSink, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("download: output directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("download: %s is not a directory", dir)
	}
	return NewFSSink(osfs.New(dir)), nil
}

// NewFSSink creates a DirSink over an arbitrary billy filesystem.
func NewFSSink(fs billy.Filesystem) *DirSink {
	return &DirSink{fs: fs}
}

// Deliver writes data under name, or the first free "name (n)" variant.
func (s *DirSink) Deliver(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("download: invalid file name %q", name)
	}

	tmp, err := util.TempFile(s.fs, ".", "."+name+"-")
	if err != nil {
		return "", fmt.Errorf("download: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return "", fmt.Errorf("download: writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return "", fmt.Errorf("download: writing %s: %w", name, err)
	}

	final, err := s.freeName(name)
	if err != nil {
		s.fs.Remove(tmpName)
		return "", err
	}
	if err := s.fs.Rename(tmpName, final); err != nil {
		s.fs.Remove(tmpName)
		return "", fmt.Errorf("download: renaming into %s: %w", final, err)
	}
	return s.fs.Join(s.fs.Root(), final), nil
}

func (s *DirSink) freeName(name string) (string, error) {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 1; n <= maxSuffix; n++ {
		_, err := s.fs.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("download: checking %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
	return "", fmt.Errorf("download: no free name for %s", name)
}
