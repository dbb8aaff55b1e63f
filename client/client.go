// Package client talks to the merge endpoint: it uploads an ordered set of
// PDF files as one multipart request and returns the merged document.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/lvillar/pdfmerge"
)

// maxErrorBody bounds how much of a failed response is read for a message.
const maxErrorBody = 64 << 10

// Client submits merge requests to one endpoint. It never retries: an
// upload body cannot be replayed once streamed.
type Client struct {
	endpoint string
	http     *http.Client
	timeout  time.Duration
	logger   *slog.Logger
}

// Option is a functional option for configuring a Client via New.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each merge request. Zero, the default, means no limit
// beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the structured logger. Logs are discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client for the merge endpoint URL, typically
// pdfmerge.Endpoint.URL().
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL requests are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Merge uploads files, in order, one part each under the pdfs field, and
// returns the merged document. Every failure is a transport *pdfmerge.Error
// whose message is suitable for the user.
func (c *Client) Merge(ctx context.Context, files []pdfmerge.File) ([]byte, error) {
	if len(files) == 0 {
		return nil, pdfmerge.NewValidationError("Merge", "No files selected", pdfmerge.ErrNoFiles)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeParts(mw, files))
	}()
	defer pr.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, pr)
	if err != nil {
		return nil, pdfmerge.NewTransportError("Merge", "Invalid merge service address", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", pdfmerge.MediaTypePDF)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("merge request failed", "endpoint", c.endpoint, "error", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, pdfmerge.NewTransportError("Merge", "The merge request was cancelled", errors.Join(pdfmerge.ErrNetwork, ctxErr))
		}
		var fe *fileError
		if errors.As(err, &fe) {
			return nil, pdfmerge.NewTransportError("Merge", fe.Error(), fe)
		}
		return nil, pdfmerge.NewTransportError("Merge", "Network error: could not reach the merge service", errors.Join(pdfmerge.ErrNetwork, err))
	}
	defer resp.Body.Close()

	c.logger.Debug("merge response", "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{
			URL:        c.endpoint,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
		}
		msg := se.Message
		if msg == "" {
			msg = "Failed to merge PDFs"
		}
		return nil, pdfmerge.NewTransportError("Merge", msg, errors.Join(pdfmerge.ErrMergeFailed, se))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pdfmerge.NewTransportError("Merge", "Network error: the response was interrupted", errors.Join(pdfmerge.ErrNetwork, err))
	}
	if len(data) == 0 {
		return nil, pdfmerge.NewTransportError("Merge", "Received empty response from server", pdfmerge.ErrEmptyResponse)
	}
	return data, nil
}

// errorMessage extracts the "error" field of a JSON error body. It returns
// "" when the body is absent or not structured.
func errorMessage(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(body, maxErrorBody)).Decode(&payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Error)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeParts(mw *multipart.Writer, files []pdfmerge.File) error {
	for _, f := range files {
		if err := writePart(mw, f); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writePart(mw *multipart.Writer, f pdfmerge.File) error {
	if f == nil {
		return &fileError{name: "", err: pdfmerge.ErrInvalidParam}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		pdfmerge.FieldName, quoteEscaper.Replace(f.Name())))
	h.Set("Content-Type", pdfmerge.MediaTypePDF)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return &fileError{name: f.Name(), err: err}
	}
	defer rc.Close()
	if _, err := io.Copy(part, rc); err != nil {
		return &fileError{name: f.Name(), err: err}
	}
	return nil
}

// fileError reports a staged file that could not be read during upload.
type fileError struct {
	name string
	err  error
}

func (e *fileError) Error() string {
	if e.name == "" {
		return "Invalid file data"
	}
	return fmt.Sprintf("Could not read %s", e.name)
}

func (e *fileError) Unwrap() error { return e.err }
