package pdfmerge

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Endpoint locates the merge service.
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
}

// EndpointOption is a functional option for configuring an Endpoint.
type EndpointOption func(*Endpoint)

// WithScheme sets the URL scheme. The default is "http"; the page scheme is
// never upgraded automatically.
func WithScheme(scheme string) EndpointOption {
	return func(e *Endpoint) {
		e.Scheme = scheme
	}
}

// WithPort sets the service port. The default is DefaultPort.
func WithPort(port int) EndpointOption {
	return func(e *Endpoint) {
		e.Port = port
	}
}

// NewEndpoint creates an Endpoint for host using functional options.
// If no options are specified, it defaults to http on DefaultPort.
//
// Example:
//
//	ep := pdfmerge.NewEndpoint("localhost", pdfmerge.WithPort(8080))
//	ep.URL() // http://localhost:8080/api/merge-pdfs
func NewEndpoint(host string, opts ...EndpointOption) Endpoint {
	e := Endpoint{
		Scheme: "http",
		Host:   host,
		Port:   DefaultPort,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// EndpointFromOrigin derives the merge endpoint from the origin the user
// interface is served from: the origin's hostname with the service port
// substituted. The origin's own scheme and port are ignored.
func EndpointFromOrigin(origin string, opts ...EndpointOption) (Endpoint, error) {
	if !strings.Contains(origin, "://") {
		origin = "http://" + origin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return Endpoint{}, fmt.Errorf("pdfmerge: parsing origin %q: %w", origin, err)
	}
	host := u.Hostname()
	if host == "" {
		return Endpoint{}, fmt.Errorf("pdfmerge: origin %q has no host: %w", origin, ErrInvalidParam)
	}
	return NewEndpoint(host, opts...), nil
}

// URL returns the absolute URL of the merge endpoint.
func (e Endpoint) URL() string {
	u := url.URL{
		Scheme: e.Scheme,
		Host:   net.JoinHostPort(e.Host, strconv.Itoa(e.Port)),
		Path:   MergePath,
	}
	return u.String()
}
