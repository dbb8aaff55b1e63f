package pageops_test

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"github.com/lvillar/pdfmerge/pageops"
)

// examplePDF creates a simple PDF with labeled pages for use in examples.
func examplePDF(numPages int, label string) io.ReadSeeker {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 24)
	for i := 1; i <= numPages; i++ {
		pdf.AddPage()
		pdf.SetXY(20, 40)
		pdf.Cell(0, 15, fmt.Sprintf("%s - Page %d", label, i))
	}
	var buf bytes.Buffer
	pdf.Output(&buf)
	return bytes.NewReader(buf.Bytes())
}

// ExamplePDFCPU_Merge demonstrates concatenating two documents in order.
func ExamplePDFCPU_Merge() {
	var merged bytes.Buffer
	err := pageops.NewPDFCPU().Merge(context.Background(), &merged,
		examplePDF(2, "Document A"),
		examplePDF(1, "Document B"),
	)
	if err != nil {
		fmt.Println(err)
		return
	}

	n, err := pageops.PageCount(bytes.NewReader(merged.Bytes()))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("merged document has %d pages\n", n)
	// Output:
	// merged document has 3 pages
}
