// Package pageops concatenates PDF documents for the merge service.
//
// Two engines are provided. PDFCPU merges at the object level with pdfcpu
// and keeps annotations, links and outlines. Gofpdi imports every page as a
// template into a fresh gofpdf document, which flattens interactive content
// but tolerates files pdfcpu refuses.
package pageops

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Engine merges inputs, in order, into one PDF written to w: all pages of
// the first input, then all pages of the second, and so on.
type Engine interface {
	Merge(ctx context.Context, w io.Writer, inputs ...io.ReadSeeker) error
}

// Engine names accepted by EngineByName.
const (
	EnginePDFCPU = "pdfcpu"
	EngineGofpdi = "gofpdi"
)

var engines = map[string]func() Engine{
	EnginePDFCPU: func() Engine { return NewPDFCPU() },
	EngineGofpdi: func() Engine { return NewGofpdi() },
}

// EngineByName returns the engine registered under name. An empty name
// selects pdfcpu.
func EngineByName(name string) (Engine, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = EnginePDFCPU
	}
	ctor, ok := engines[name]
	if !ok {
		return nil, fmt.Errorf("pageops: unknown engine %q (want one of %s)", name, strings.Join(EngineNames(), ", "))
	}
	return ctor(), nil
}

// EngineNames lists the registered engine names.
func EngineNames() []string {
	names := make([]string, 0, len(engines))
	for n := range engines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MergeFiles merges the files at inputPaths into outputPath using e.
func MergeFiles(ctx context.Context, e Engine, outputPath string, inputPaths ...string) error {
	if len(inputPaths) == 0 {
		return fmt.Errorf("pageops: no input files provided")
	}

	inputs := make([]io.ReadSeeker, 0, len(inputPaths))
	for _, p := range inputPaths {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("pageops: opening %s: %w", p, err)
		}
		defer f.Close()
		inputs = append(inputs, f)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("pageops: creating %s: %w", outputPath, err)
	}
	if err := e.Merge(ctx, out, inputs...); err != nil {
		out.Close()
		os.Remove(outputPath)
		return err
	}
	return out.Close()
}

// rewind seeks rs back to its start.
func rewind(rs io.ReadSeeker) error {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("pageops: rewinding input: %w", err)
	}
	return nil
}
