// Package preview issues scoped, revocable references to staged files so a
// viewer can render them. A Handle behaves like a browser object URL: it is
// valid from Acquire until Release, and releasing it twice is a no-op.
package preview

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lvillar/pdfmerge"
)

// DefaultBase is the URL prefix used when a Registry is created without one.
const DefaultBase = "pdf://preview?token="

// Registry tracks live preview handles.
type Registry struct {
	base string

	mu       sync.Mutex
	live     map[string]pdfmerge.File
	acquired int
	released int
}

// Handle is a scoped reference to one file's preview.
type Handle struct {
	reg   *Registry
	token string
	once  sync.Once
}

// NewRegistry creates a Registry whose handle URLs are base followed by the
// handle token. An empty base selects DefaultBase.
func NewRegistry(base string) *Registry {
	if base == "" {
		base = DefaultBase
	}
	return &Registry{
		base: base,
		live: make(map[string]pdfmerge.File),
	}
}

// Base returns the prefix of handle URLs.
func (r *Registry) Base() string {
	return r.base
}

// Acquire creates a preview handle for f.
func (r *Registry) Acquire(f pdfmerge.File) (*Handle, error) {
	if f == nil {
		return nil, fmt.Errorf("preview: nil file: %w", pdfmerge.ErrInvalidParam)
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("preview: generating token: %w", err)
	}
	token := id.String()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[token] = f
	r.acquired++
	return &Handle{reg: r, token: token}, nil
}

// Lookup returns the file behind a live token.
func (r *Registry) Lookup(token string) (pdfmerge.File, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.live[token]
	return f, ok
}

// Live returns the number of handles acquired but not yet released.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Stats returns how many handles have been acquired and released.
func (r *Registry) Stats() (acquired, released int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acquired, r.released
}

// ServeHTTP serves the file behind the last path segment of the request
// inline, so it can be embedded in a viewer. Released tokens are not found.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := req.URL.Path
	if i := strings.LastIndexByte(token, '/'); i >= 0 {
		token = token[i+1:]
	}
	f, ok := r.Lookup(token)
	if !ok {
		http.NotFound(w, req)
		return
	}

	rc, err := f.Open()
	if err != nil {
		http.Error(w, "preview unavailable", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", pdfmerge.MediaTypePDF)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", f.Name()))
	if req.Method == http.MethodHead {
		return
	}
	io.Copy(w, rc)
}

func (r *Registry) release(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[token]; ok {
		delete(r.live, token)
		r.released++
	}
}

// Token returns the opaque token identifying the handle.
func (h *Handle) Token() string {
	return h.token
}

// URL returns the address a viewer loads the preview from.
func (h *Handle) URL() string {
	return h.reg.base + h.token
}

// Release revokes the handle. Only the first call has an effect.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.reg.release(h.token)
	})
}
