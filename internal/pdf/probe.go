// Package pdfutil wraps ledongthuc/pdf for the small amount of PDF
// introspection the validator and archive builder need.
package pdfutil

import (
	"bytes"
	"fmt"

	pdf "github.com/ledongthuc/pdf"
)

// Probe opens PDF bytes and returns the page count. A document that claims
// to be a PDF but cannot be opened, or has no pages, fails the probe; that
// is how corrupt uploads are caught before they reach an archive.
func Probe(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty pdf")
	}
	reader := bytes.NewReader(data)
	doc, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	pages := doc.NumPage()
	if pages < 1 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return pages, nil
}
