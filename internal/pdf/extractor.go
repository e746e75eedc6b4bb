// Package pdfutil inspects uploaded PDFs before they are sent for analysis.
package pdfutil

import (
	"bytes"
	"errors"
	"fmt"

	pdf "github.com/ledongthuc/pdf"
)

// ErrNoPages is returned for PDFs that parse but contain no pages.
var ErrNoPages = errors.New("pdf has no pages")

// Inspect opens the PDF and returns its page count. The parser panics on
// some malformed inputs; those are reported as errors.
func Inspect(data []byte) (pages int, err error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF")) {
		return 0, errors.New("missing pdf header")
	}
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("new pdf reader: %w", err)
	}
	pages = doc.NumPage()
	if pages == 0 {
		return 0, ErrNoPages
	}
	return pages, nil
}
