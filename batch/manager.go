// Package batch implements the Batch Manager: the ordered set of PDF files
// staged for merging, their admission rules, and the single outbound merge
// request that turns them into one document.
//
// A Manager is safe for concurrent use. At most one submission is in flight
// at a time; while it is, the batch cannot be changed.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lvillar/pdfmerge"
	"github.com/lvillar/pdfmerge/preview"
)

// Merger sends files, in order, to a merge service and returns the merged
// document.
type Merger interface {
	Merge(ctx context.Context, files []pdfmerge.File) ([]byte, error)
}

// Sink delivers the merged document to the user and returns where it went.
type Sink interface {
	Deliver(ctx context.Context, name string, data []byte) (string, error)
}

// State is the submission state of a Manager.
type State uint8

const (
	Idle State = iota
	Submitting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Direction moves a file one position towards the front or the back.
type Direction int

const (
	Up   Direction = -1
	Down Direction = 1
)

// StagedFile is one admitted file together with its preview.
type StagedFile struct {
	id      string
	file    pdfmerge.File
	preview *preview.Handle
}

func (s StagedFile) ID() string        { return s.id }
func (s StagedFile) Name() string      { return s.file.Name() }
func (s StagedFile) Size() int64       { return s.file.Size() }
func (s StagedFile) MediaType() string { return s.file.MediaType() }

// PreviewURL returns the address of the file's preview.
func (s StagedFile) PreviewURL() string { return s.preview.URL() }

// PreviewToken returns the token of the file's preview handle.
func (s StagedFile) PreviewToken() string { return s.preview.Token() }

// Open opens the underlying file for reading.
func (s StagedFile) Open() (io.ReadCloser, error) { return s.file.Open() }

// Result describes a delivered merge.
type Result struct {
	Name     string // delivered file name, normally merged.pdf
	Size     int    // bytes delivered
	Location string // where the sink put it
}

// Manager owns an ordered batch of staged files.
type Manager struct {
	merger   Merger
	sink     Sink
	previews *preview.Registry
	maxSize  int64
	minFiles int
	newID    func() string
	logger   *slog.Logger

	mu     sync.Mutex
	files  []*StagedFile
	state  State
	err    error
	closed bool
}

// New creates an empty Manager that submits through merger and delivers the
// result to sink.
func New(merger Merger, sink Sink, opts ...Option) *Manager {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.previews == nil {
		cfg.previews = preview.NewRegistry("")
	}
	return &Manager{
		merger:   merger,
		sink:     sink,
		previews: cfg.previews,
		maxSize:  cfg.maxSize,
		minFiles: cfg.minFiles,
		newID:    cfg.newID,
		logger:   cfg.logger,
	}
}

// Admit validates files and appends the survivors, in order, to the batch.
// On failure the batch is unchanged and the error is kept as the current
// error; on success the current error is cleared.
func (m *Manager) Admit(files ...pdfmerge.File) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkMutable("Admit"); err != nil {
		return Report{}, err
	}

	accepted, rep, err := Validate(files, m.maxSize)
	if err != nil {
		m.err = err
		m.logger.Info("admission rejected", "candidates", len(files), "not_pdf", len(rep.NotPDF), "oversized", len(rep.Oversized))
		return rep, err
	}

	staged := make([]*StagedFile, 0, len(accepted))
	for _, f := range accepted {
		h, err := m.previews.Acquire(f)
		if err != nil {
			for _, s := range staged {
				s.preview.Release()
			}
			err = pdfmerge.NewValidationError("Admit", "Could not prepare a preview for "+f.Name(), err, f.Name())
			m.err = err
			return Report{NotPDF: rep.NotPDF}, err
		}
		staged = append(staged, &StagedFile{id: m.uniqueID(staged), file: f, preview: h})
	}

	m.files = append(m.files, staged...)
	m.err = nil
	m.logger.Debug("files admitted", "admitted", rep.Admitted, "not_pdf", len(rep.NotPDF), "total", len(m.files))
	return rep, nil
}

// Remove releases and deletes the file with the given id. An empty or
// unknown id is a no-op and leaves the current error untouched.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkMutable("Remove"); err != nil {
		return err
	}
	if id == "" {
		m.logger.Warn("remove called without file id")
		return nil
	}

	for i, f := range m.files {
		if f.id != id {
			continue
		}
		f.preview.Release()
		m.files = append(m.files[:i:i], m.files[i+1:]...)
		m.logger.Debug("file removed", "id", id, "name", f.Name(), "total", len(m.files))
		return nil
	}
	m.logger.Debug("remove: file not in batch", "id", id)
	return nil
}

// Move swaps the file at index with its neighbour in direction dir. Moving
// the first file up or the last file down is a no-op.
func (m *Manager) Move(index int, dir Direction) error {
	if dir != Up && dir != Down {
		return fmt.Errorf("batch: direction %d: %w", dir, pdfmerge.ErrInvalidParam)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkMutable("Move"); err != nil {
		return err
	}

	target := index + int(dir)
	if index < 0 || index >= len(m.files) || target < 0 || target >= len(m.files) {
		return nil
	}
	m.files[index], m.files[target] = m.files[target], m.files[index]
	return nil
}

// Submit sends the batch, in its current order, to the merge service and
// delivers the result as merged.pdf. The batch is never modified by Submit.
//
// A second Submit while one is in flight fails with ErrBusy without
// touching the current error. Context cancellation aborts the request.
func (m *Manager) Submit(ctx context.Context) (Result, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Result{}, &pdfmerge.Error{Op: "Submit", Kind: pdfmerge.KindValidation, Err: pdfmerge.ErrClosed}
	}
	if m.state == Submitting {
		m.mu.Unlock()
		return Result{}, &pdfmerge.Error{Op: "Submit", Kind: pdfmerge.KindValidation, Msg: "A merge is already in progress", Err: pdfmerge.ErrBusy}
	}
	if len(m.files) < m.minFiles {
		err := pdfmerge.NewValidationError("Submit", fmt.Sprintf("Please add at least %d PDF files to merge", m.minFiles), pdfmerge.ErrTooFewFiles)
		m.err = err
		m.mu.Unlock()
		return Result{}, err
	}
	files := make([]pdfmerge.File, len(m.files))
	for i, f := range m.files {
		files[i] = *f
	}
	m.state = Submitting
	m.err = nil
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.state = Idle
		m.mu.Unlock()
	}()

	m.logger.Info("submitting batch", "files", len(files))
	res, err := m.submit(ctx, files)

	m.mu.Lock()
	m.err = err
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("merge failed", "error", err)
		return Result{}, err
	}
	m.logger.Info("merge delivered", "location", res.Location, "bytes", res.Size)
	return res, nil
}

func (m *Manager) submit(ctx context.Context, files []pdfmerge.File) (Result, error) {
	data, err := m.merger.Merge(ctx, files)
	if err != nil {
		var pe *pdfmerge.Error
		if errors.As(err, &pe) {
			return Result{}, err
		}
		return Result{}, pdfmerge.NewTransportError("Submit", pdfmerge.Message(err), err)
	}
	if len(data) == 0 {
		return Result{}, pdfmerge.NewTransportError("Submit", "Received empty response from server", pdfmerge.ErrEmptyResponse)
	}

	loc, err := m.sink.Deliver(ctx, pdfmerge.MergedFileName, data)
	if err != nil {
		return Result{}, pdfmerge.NewTransportError("Submit", "Could not save "+pdfmerge.MergedFileName, errors.Join(pdfmerge.ErrDelivery, err))
	}
	return Result{Name: pdfmerge.MergedFileName, Size: len(data), Location: loc}, nil
}

// Clear releases every staged file and empties the batch.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkMutable("Clear"); err != nil {
		return err
	}
	m.releaseAll()
	m.err = nil
	return nil
}

// Close tears the batch down, releasing every remaining preview. Further
// changes fail with ErrClosed. Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.releaseAll()
	m.closed = true
	return nil
}

// Files returns the staged files in merge order.
func (m *Manager) Files() []StagedFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StagedFile, len(m.files))
	for i, f := range m.files {
		out[i] = *f
	}
	return out
}

// Len returns the number of staged files.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// State returns the submission state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the error left by the last Admit or Submit, or nil.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Message returns the user-visible text of Err.
func (m *Manager) Message() string {
	return pdfmerge.Message(m.Err())
}

// DismissError clears the current error.
func (m *Manager) DismissError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = nil
}

// CanSubmit reports whether the submit control should be enabled.
func (m *Manager) CanSubmit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && m.state == Idle && len(m.files) >= m.minFiles
}

// Previews returns the registry the Manager acquires preview handles from.
func (m *Manager) Previews() *preview.Registry {
	return m.previews
}

func (m *Manager) checkMutable(op string) error {
	if m.closed {
		return &pdfmerge.Error{Op: op, Kind: pdfmerge.KindValidation, Err: pdfmerge.ErrClosed}
	}
	if m.state == Submitting {
		return &pdfmerge.Error{Op: op, Kind: pdfmerge.KindValidation, Msg: "A merge is already in progress", Err: pdfmerge.ErrBusy}
	}
	return nil
}

func (m *Manager) releaseAll() {
	for _, f := range m.files {
		f.preview.Release()
	}
	m.files = nil
}

// uniqueID draws identifiers until one is unused by the batch and by the
// files staged in the same call.
func (m *Manager) uniqueID(pending []*StagedFile) string {
	for {
		id := m.newID()
		if id != "" && !m.hasID(id, pending) {
			return id
		}
	}
}

func (m *Manager) hasID(id string, pending []*StagedFile) bool {
	for _, f := range m.files {
		if f.id == id {
			return true
		}
	}
	for _, f := range pending {
		if f.id == id {
			return true
		}
	}
	return false
}

func newID() string {
	return uuid.NewString()
}
