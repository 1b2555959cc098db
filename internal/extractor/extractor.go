// Package extractor pulls the text layer out of PDF documents.
//
// It uses github.com/ledongthuc/pdf, a pure Go parser, so only embedded text
// is returned. Scanned pages yield no text.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnreadablePDF wraps every parse failure: corrupt, encrypted or non-PDF input.
var ErrUnreadablePDF = errors.New("unreadable pdf")

type Result struct {
	PageCount int
	Text      string
}

type PDFExtractor struct{}

func New() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract returns the page count and the text of all pages joined with line
// breaks. The parser is not cancellable, so on ctx expiry Extract returns
// ctx.Err() and leaves the parse goroutine to finish on its own.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, fmt.Errorf("%w: empty input", ErrUnreadablePDF)
	}

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		res, err := extract(data)
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case o := <-done:
		return o.res, o.err
	}
}

func extract(data []byte) (res Result, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrUnreadablePDF, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}

	numPages := r.NumPage()
	fonts := make(map[string]*pdf.Font)

	var text strings.Builder
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}

		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			return Result{}, fmt.Errorf("%w: page %d: %v", ErrUnreadablePDF, i, err)
		}

		if text.Len() > 0 {
			text.WriteString("\n")
		}
		text.WriteString(strings.TrimRight(pageText, "\n"))
	}

	return Result{PageCount: numPages, Text: text.String()}, nil
}
