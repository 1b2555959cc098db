package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/you-humble/pdftoxml/internal/domain"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Preview streams the uploaded PDF. A non-empty page selection such as
// "1-2" or "3,5" returns a PDF holding only those pages.
func (uc *conversions) Preview(ctx context.Context, ownerID, id, pages string) (domain.FileResult, error) {
	c, err := uc.owned(ctx, ownerID, id)
	if err != nil {
		return domain.FileResult{}, err
	}

	rc, size, err := uc.files.Open(ctx, SourceKey(c))
	if err != nil {
		return domain.FileResult{}, fmt.Errorf("open source: %w", err)
	}

	result := domain.FileResult{
		FileName:    c.OriginalFileName,
		ContentType: pdfMIME,
		Size:        size,
		Content:     rc,
	}

	pages = strings.TrimSpace(pages)
	if pages == "" {
		return result, nil
	}
	defer rc.Close()

	trimmed, err := trimPages(rc, pages)
	if err != nil {
		return domain.FileResult{}, err
	}

	result.Size = int64(len(trimmed))
	result.Content = io.NopCloser(bytes.NewReader(trimmed))
	return result, nil
}

func trimPages(r io.Reader, pages string) ([]byte, error) {
	var selection []string
	for _, part := range strings.Split(pages, ",") {
		if part = strings.TrimSpace(part); part != "" {
			selection = append(selection, part)
		}
	}
	if len(selection) == 0 {
		return nil, fmt.Errorf("%w: empty page selection", domain.ErrInvalidInput)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(data), &out, selection, conf); err != nil {
		return nil, fmt.Errorf("%w: select pages %q: %w", domain.ErrInvalidInput, pages, err)
	}

	return out.Bytes(), nil
}
