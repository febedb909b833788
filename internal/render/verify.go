// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ErrNotPDF is returned by VerifyPDF for output that is not a readable PDF.
var ErrNotPDF = errors.New("output is not a readable pdf")

// VerifyPDF parses data and returns its page count. Empty documents fail.
func VerifyPDF(data []byte) (pages int, err error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("%PDF-")) {
		return 0, fmt.Errorf("%w: missing header", ErrNotPDF)
	}
	defer func() {
		// The parser panics on some malformed inputs.
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("%w: %v", ErrNotPDF, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	pages = r.NumPage()
	if pages == 0 {
		return 0, fmt.Errorf("%w: no pages", ErrNotPDF)
	}
	return pages, nil
}
