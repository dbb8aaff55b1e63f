package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvillar/pdfmerge"
	"github.com/lvillar/pdfmerge/preview"
)

type recordingMerger struct {
	mu    sync.Mutex
	calls [][]string
	data  []byte
	err   error
}

func (m *recordingMerger) Merge(ctx context.Context, files []pdfmerge.File) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, names(files))
	return m.data, m.err
}

// blockingMerger holds every Merge until release is closed.
type blockingMerger struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingMerger() *blockingMerger {
	return &blockingMerger{started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (m *blockingMerger) Merge(ctx context.Context, files []pdfmerge.File) ([]byte, error) {
	m.started <- struct{}{}
	select {
	case <-m.release:
		return []byte("%PDF-1.4 merged"), nil
	case <-ctx.Done():
		return nil, pdfmerge.NewTransportError("Merge", "The merge request was cancelled", ctx.Err())
	}
}

type memSink struct {
	name string
	data []byte
	err  error
}

func (s *memSink) Deliver(ctx context.Context, name string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.name = name
	s.data = data
	return "mem://" + name, nil
}

type fixture struct {
	mgr      *Manager
	merger   *recordingMerger
	sink     *memSink
	previews *preview.Registry
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		merger:   &recordingMerger{data: []byte("%PDF-1.4 merged")},
		sink:     &memSink{},
		previews: preview.NewRegistry(""),
	}
	f.mgr = New(f.merger, f.sink, append([]Option{WithPreviews(f.previews)}, opts...)...)
	return f
}

func (f *fixture) admit(t *testing.T, files ...pdfmerge.File) {
	t.Helper()
	_, err := f.mgr.Admit(files...)
	require.NoError(t, err)
}

func stagedNames(m *Manager) []string {
	var out []string
	for _, f := range m.Files() {
		out = append(out, f.Name())
	}
	return out
}

func TestAdmitAppendsInOrder(t *testing.T) {
	f := newFixture(t)
	f.admit(t, pdf("a.pdf", 1), pdf("b.pdf", 1))
	f.admit(t, pdf("c.pdf", 1))

	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf"}, stagedNames(f.mgr))
	assert.Equal(t, 3, f.previews.Live())

	ids := make(map[string]bool)
	for _, s := range f.mgr.Files() {
		_, err := uuid.Parse(s.ID())
		assert.NoError(t, err, "id %q", s.ID())
		assert.False(t, ids[s.ID()], "duplicate id %s", s.ID())
		ids[s.ID()] = true
		assert.NotEmpty(t, s.PreviewURL())
		assert.Contains(t, s.PreviewURL(), s.PreviewToken())
	}
}

func TestAdmitRejectionLeavesBatchUnchanged(t *testing.T) {
	f := newFixture(t)
	f.admit(t, pdf("a.pdf", 1))

	rep, err := f.mgr.Admit(pdf("b.pdf", 1), pdf("big.pdf", pdfmerge.MaxFileSize+1))
	require.Error(t, err)
	assert.Equal(t, []string{"big.pdf"}, rep.Oversized)
	assert.Equal(t, "Some files exceed the 10MB size limit: big.pdf", f.mgr.Message())
	assert.Equal(t, []string{"a.pdf"}, stagedNames(f.mgr))
	assert.Equal(t, 1, f.previews.Live())
}

func TestAdmitSuccessClearsError(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Admit()
	require.Error(t, err)
	assert.Equal(t, "No files selected", f.mgr.Message())

	f.admit(t, pdf("a.pdf", 1), text("notes.txt"))
	assert.NoError(t, f.mgr.Err())
	assert.Empty(t, f.mgr.Message())
}

func TestAdmitOnlyNonPDF(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Admit(text("notes.txt"))
	assert.ErrorIs(t, err, pdfmerge.ErrNotPDF)
	assert.Equal(t, "Please select PDF files only", f.mgr.Message())
	assert.Zero(t, f.mgr.Len())
}

func TestAdmitUniqueIDsWithCollidingGenerator(t *testing.T) {
	seq := []string{"x", "x", "y", "x", "y", "z"}
	i := 0
	f := newFixture(t, WithIDFunc(func() string {
		id := seq[i%len(seq)]
		i++
		return id
	}))
	f.admit(t, pdf("a.pdf", 1), pdf("b.pdf", 1), pdf("c.pdf", 1))

	var ids []string
	for _, s := range f.mgr.Files() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"x", "y", "z"}, ids)
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	f.admit(t, pdf("a.pdf", 1), pdf("b.pdf", 1), pdf("c.pdf", 1))
	files := f.mgr.Files()

	require.NoError(t, f.mgr.Remove(files[1].ID()))
	assert.Equal(t, []string{"a.pdf", "c.pdf"}, stagedNames(f.mgr))

	_, released := f.previews.Stats()
	assert.Equal(t, 1, released)

	// Unknown and repeated ids are no-ops.
	require.NoError(t, f.mgr.Remove(files[1].ID()))
	require.NoError(t, f.mgr.Remove("missing"))
	require.NoError(t, f.mgr.Remove(""))
	assert.Equal(t, []string{"a.pdf", "c.pdf"}, stagedNames(f.mgr))
	_, released = f.previews.Stats()
	assert.Equal(t, 1, released)
}

func TestRemoveKeepsError(t *testing.T) {
	f := newFixture(t)
	f.admit(t, pdf("a.pdf", 1))
	_, err := f.mgr.Submit(context.Background())
	require.Error(t, err)

	require.NoError(t, f.mgr.Remove(f.mgr.Files()[0].ID()))
	assert.Equal(t, "Please add at least 2 PDF files to merge", f.mgr.Message())
}

func TestMove(t *testing.T) {
	tests := []struct {
		name  string
		index int
		dir   Direction
		want  []string
	}{
		{"first down", 0, Down, []string{"b.pdf", "a.pdf", "c.pdf"}},
		{"last up", 2, Up, []string{"a.pdf", "c.pdf", "b.pdf"}},
		{"middle up", 1, Up, []string{"b.pdf", "a.pdf", "c.pdf"}},
		{"first up is no-op", 0, Up, []string{"a.pdf", "b.pdf", "c.pdf"}},
		{"last down is no-op", 2, Down, []string{"a.pdf", "b.pdf", "c.pdf"}},
		{"negative index", -1, Down, []string{"a.pdf", "b.pdf", "c.pdf"}},
		{"index past end", 3, Up, []string{"a.pdf", "b.pdf", "c.pdf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.admit(t, pdf("a.pdf", 1), pdf("b.pdf", 1), pdf("c.pdf", 1))

			require.NoError(t, f.mgr.Move(tt.index, tt.dir))
			assert.Equal(t, tt.want, stagedNames(f.mgr))
		})
	}
}

func TestMoveRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.admit(t, pdf("a.pdf", 1), pdf("b.pdf", 1), pdf("c.pdf", 1))

	require.NoError(t, f.mgr.Move(1, Down))
	require.NoError(t, f.mgr.Move(2, Up))
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf"}, stagedNames(f.mgr))
}

func TestMoveInvalidDirection(t *testing.T) {
	f := newFixture(t)
	f.admit(t, pdf("a.pdf", 1), pdf("b.pdf", 1))

	err := f.mgr.Move(0, Direction(2))
	assert.ErrorIs(t, err, pdfmerge.ErrInvalidParam)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, stagedNames(f.mgr))
	assert.NoError(t, f.mgr.Err())
}

func TestSubmitTooFewFiles(t *testing.T) {
	for n := 0; n < 2; n++ {
		t.Run(fmt.Sprintf("%d files", n), func(t *testing.T) {
			f := newFixture(t)
			for i := 0; i < n; i++ {
				f.admit(t, pdf(fmt.Sprintf("%d.pdf", i), 1))
			}
			assert.False(t, f.mgr.CanSubmit())

			_, err := f.mgr.Submit(context.Background())
			assert.ErrorIs(t, err, pdfmerge.ErrTooFewFiles)
			assert.Equal(t, "Please add at least 2 PDF files to merge", f.mgr.Message())
			assert.Empty(t, f.merger.calls)
			assert.Equal(t, Idle, f.mgr.State())
		})
	}
}

func TestSubmitSendsCurrentOrderAndDelivers(t *testing.T) {
	f := newFixture(t)
	f.admit(t, pdf("a.pdf", 1), pdf("b.pdf", 1), pdf("c.pdf", 1))
	require.NoError(t, f.mgr.Move(2, Up))
	require.True(t, f.mgr.CanSubmit())

	res, err := f.mgr.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a.pdf", "c.pdf", "b.pdf"}}, f.merger.calls)
	assert.Equal(t, "merged.pdf", f.sink.name)
	assert.Equal(t, "%PDF-1.4 merged", string(f.sink.data))
	assert.Equal(t, Result{Name: "merged.pdf", Size: len("%PDF-1.4 merged"), Location: "mem://merged.pdf"}, res)

	// The batch survives a successful merge.
	assert.Equal(t, []string{"a.pdf", "c.pdf", "b.pdf"}, stagedNames(f.mgr))
	assert.Equal(t, Idle, f.mgr.State())
	assert.NoError(t, f.mgr.Err())
}

func TestSubmitFailures(t *testing.T) {
	tests := []struct {
		name     string
		merger   *recordingMerger
		sinkErr  error
		msg      string
		sentinel error
	}{
		{
			name:     "service error message",
			merger:   &recordingMerger{err: pdfmerge.NewTransportError("Merge", "bad pdf", pdfmerge.ErrMergeFailed)},
			msg:      "bad pdf",
			sentinel: pdfmerge.ErrMergeFailed,
		},
		{
			name:     "empty response",
			merger:   &recordingMerger{data: nil},
			msg:      "Received empty response from server",
			sentinel: pdfmerge.ErrEmptyResponse,
		},
		{
			name:   "plain error",
			merger: &recordingMerger{err: errors.New("connection reset")},
			msg:    "connection reset",
		},
		{
			name:     "delivery failure",
			merger:   &recordingMerger{data: []byte("%PDF")},
			sinkErr:  errors.New("disk full"),
			msg:      "Could not save merged.pdf",
			sentinel: pdfmerge.ErrDelivery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memSink{err: tt.sinkErr}
			m := New(tt.merger, sink)
			defer m.Close()
			_, err := m.Admit(pdf("a.pdf", 1), pdf("b.pdf", 1))
			require.NoError(t, err)

			_, err = m.Submit(context.Background())
			require.Error(t, err)
			assert.True(t, pdfmerge.IsTransport(err))
			assert.Equal(t, tt.msg, m.Message())
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
			assert.Equal(t, Idle, m.State())
			assert.Equal(t, 2, m.Len())
		})
	}
}

func TestSubmitClearsPreviousError(t *testing.T) {
	f := newFixture(t)
	f.admit(t, pdf("a.pdf", 1))
	_, err := f.mgr.Submit(context.Background())
	require.Error(t, err)

	f.admit(t, pdf("b.pdf", 1))
	_, err = f.mgr.Admit(text("notes.txt"))
	require.Error(t, err)

	_, err = f.mgr.Submit(context.Background())
	require.NoError(t, err)
	assert.NoError(t, f.mgr.Err())
}

func TestSubmitBusy(t *testing.T) {
	merger := newBlockingMerger()
	m := New(merger, &memSink{})
	defer m.Close()
	_, err := m.Admit(pdf("a.pdf", 1), pdf("b.pdf", 1))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.Submit(context.Background())
		done <- err
	}()

	select {
	case <-merger.started:
	case <-time.After(5 * time.Second):
		t.Fatal("merge did not start")
	}

	assert.Equal(t, Submitting, m.State())
	assert.False(t, m.CanSubmit())

	_, err = m.Submit(context.Background())
	assert.ErrorIs(t, err, pdfmerge.ErrBusy)
	assert.ErrorIs(t, m.Move(0, Down), pdfmerge.ErrBusy)
	assert.ErrorIs(t, m.Remove(m.Files()[0].ID()), pdfmerge.ErrBusy)
	assert.ErrorIs(t, m.Clear(), pdfmerge.ErrBusy)
	_, err = m.Admit(pdf("c.pdf", 1))
	assert.ErrorIs(t, err, pdfmerge.ErrBusy)

	// A rejected call does not replace the stored error.
	assert.NoError(t, m.Err())
	assert.Equal(t, 2, m.Len())

	close(merger.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("submit did not finish")
	}
	assert.Equal(t, Idle, m.State())
	assert.True(t, m.CanSubmit())
}

func TestSubmitCancelled(t *testing.T) {
	merger := newBlockingMerger()
	m := New(merger, &memSink{})
	defer m.Close()
	_, err := m.Admit(pdf("a.pdf", 1), pdf("b.pdf", 1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Submit(ctx)
		done <- err
	}()
	<-merger.started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("submit did not return after cancel")
	}
	assert.Equal(t, Idle, m.State())
	assert.Equal(t, 2, m.Len())
}

type panickingMerger struct{}

func (panickingMerger) Merge(ctx context.Context, files []pdfmerge.File) ([]byte, error) {
	panic("merge engine crashed")
}

func TestSubmitPanicReturnsToIdle(t *testing.T) {
	m := New(panickingMerger{}, &memSink{})
	defer m.Close()
	_, err := m.Admit(pdf("a.pdf", 1), pdf("b.pdf", 1))
	require.NoError(t, err)

	assert.Panics(t, func() { m.Submit(context.Background()) })

	assert.Equal(t, Idle, m.State())
	assert.True(t, m.CanSubmit())
	assert.NoError(t, m.Move(0, Down))
	assert.Equal(t, 2, m.Len())
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	f.admit(t, pdf("a.pdf", 1), pdf("b.pdf", 1))
	_, err := f.mgr.Admit()
	require.Error(t, err)

	require.NoError(t, f.mgr.Clear())
	assert.Zero(t, f.mgr.Len())
	assert.NoError(t, f.mgr.Err())
	assert.Zero(t, f.previews.Live())
}

func TestCloseReleasesEveryPreviewOnce(t *testing.T) {
	f := newFixture(t)
	f.admit(t, pdf("a.pdf", 1), pdf("b.pdf", 1), pdf("c.pdf", 1))
	require.NoError(t, f.mgr.Remove(f.mgr.Files()[0].ID()))

	require.NoError(t, f.mgr.Close())
	require.NoError(t, f.mgr.Close())

	acquired, released := f.previews.Stats()
	assert.Equal(t, 3, acquired)
	assert.Equal(t, 3, released)
	assert.Zero(t, f.previews.Live())

	_, err := f.mgr.Admit(pdf("d.pdf", 1))
	assert.ErrorIs(t, err, pdfmerge.ErrClosed)
	_, err = f.mgr.Submit(context.Background())
	assert.ErrorIs(t, err, pdfmerge.ErrClosed)
	assert.False(t, f.mgr.CanSubmit())
}

func TestDismissError(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Admit()
	require.Error(t, err)

	f.mgr.DismissError()
	assert.NoError(t, f.mgr.Err())
	assert.Empty(t, f.mgr.Message())
}

func TestStagedFileIsFile(t *testing.T) {
	f := newFixture(t)
	f.admit(t, FileFromBytes("a.pdf", []byte("%PDF-1.4\n%%EOF\n")))

	var file pdfmerge.File = f.mgr.Files()[0]
	assert.Equal(t, "a.pdf", file.Name())
	assert.Equal(t, pdfmerge.MediaTypePDF, file.MediaType())
	assert.Equal(t, int64(len("%PDF-1.4\n%%EOF\n")), file.Size())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "submitting", Submitting.String())
	assert.Equal(t, "State(7)", State(7).String())
}
