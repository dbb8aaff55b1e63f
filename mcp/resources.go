package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/lvillar/pdfmerge"
	"github.com/lvillar/pdfmerge/batch"
)

const previewResource = "pdf://preview?token="

// RegisterBatchResources adds the batch listing and preview resources for mgr.
func RegisterBatchResources(s *Server, mgr *batch.Manager) {
	s.AddResource(Resource{
		URI:         "pdf://files",
		Name:        "Staged Files",
		Description: "The staged files in merge order, with ids, sizes and preview URIs.",
		MIMEType:    "application/json",
		Handler: func(ctx context.Context, uri string) ([]ResourceContent, error) {
			jsonBytes, err := json.MarshalIndent(snapshot(mgr), "", "  ")
			if err != nil {
				return nil, err
			}
			return []ResourceContent{{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			}}, nil
		},
	})

	s.AddResource(Resource{
		URI:         "pdf://preview",
		Name:        "File Preview",
		Description: "The bytes of a staged file for viewing. Use the previewResource from list_files: pdf://preview?token=...",
		MIMEType:    pdfmerge.MediaTypePDF,
		Handler: func(ctx context.Context, uri string) ([]ResourceContent, error) {
			return readPreview(mgr, uri)
		},
	})
}

func readPreview(mgr *batch.Manager, uri string) ([]ResourceContent, error) {
	token := queryParam(uri, "token")
	if token == "" {
		return nil, fmt.Errorf("missing 'token' parameter in URI")
	}

	f, ok := mgr.Previews().Lookup(token)
	if !ok {
		return nil, fmt.Errorf("preview %s is no longer available", token)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", f.Name(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Name(), err)
	}
	return []ResourceContent{{
		URI:      uri,
		MIMEType: pdfmerge.MediaTypePDF,
		Blob:     base64.StdEncoding.EncodeToString(data),
	}}, nil
}

// queryParam returns a query parameter of a resource URI such as
// pdf://preview?token=abc.
func queryParam(uri, key string) string {
	_, query, ok := strings.Cut(uri, "?")
	if !ok {
		return ""
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return ""
	}
	return values.Get(key)
}
