package batch

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DiskFile is a file on the local filesystem. Its media type is sniffed
// from the first bytes when the reference is created.
type DiskFile struct {
	path      string
	size      int64
	mediaType string
}

// FileFromPath returns a reference to the file at path. Only metadata is
// read; content is opened again at upload time.
func FileFromPath(path string) (*DiskFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("batch: %s is a directory", path)
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("batch: detecting type of %s: %w", path, err)
	}
	return &DiskFile{
		path:      path,
		size:      info.Size(),
		mediaType: baseType(mt),
	}, nil
}

func (f *DiskFile) Name() string      { return filepath.Base(f.path) }
func (f *DiskFile) Size() int64       { return f.size }
func (f *DiskFile) MediaType() string { return f.mediaType }
func (f *DiskFile) Path() string      { return f.path }

func (f *DiskFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// MemFile is an in-memory file, as received from an upload or a test.
type MemFile struct {
	name      string
	data      []byte
	mediaType string
}

// FileFromBytes returns a reference to data under name, with the media type
// sniffed from its content.
func FileFromBytes(name string, data []byte) *MemFile {
	return &MemFile{
		name:      name,
		data:      data,
		mediaType: baseType(mimetype.Detect(data)),
	}
}

func (f *MemFile) Name() string      { return f.name }
func (f *MemFile) Size() int64       { return int64(len(f.data)) }
func (f *MemFile) MediaType() string { return f.mediaType }

func (f *MemFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

// baseType strips parameters such as charset from a detected type.
func baseType(mt *mimetype.MIME) string {
	if mt == nil {
		return ""
	}
	base, _, _ := strings.Cut(mt.String(), ";")
	return strings.TrimSpace(base)
}
