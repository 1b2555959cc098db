package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/you-humble/pdftoxml/internal/domain"
)

type Converter interface {
	Convert(ctx context.Context, sourcePath, destinationPath, jobID string) error
}

type processor struct {
	timeout   time.Duration
	store     ConversionStore
	files     FileStore
	converter Converter
}

func NewProcessor(timeout time.Duration, store ConversionStore, files FileStore, converter Converter) *processor {
	return &processor{
		timeout:   timeout,
		store:     store,
		files:     files,
		converter: converter,
	}
}

// Process runs one conversion attempt for a queued job under the configured
// timeout and hands a finished output to replication.
func (p *processor) Process(ctx context.Context, conversionID string) error {
	c, err := p.store.Conversion(ctx, conversionID)
	if err != nil {
		return fmt.Errorf("load conversion %s: %w", conversionID, err)
	}
	if c.Status != domain.StatusPending {
		return fmt.Errorf("process %s: %w", conversionID, domain.ErrConversionNotPending)
	}

	src, err := p.files.Path(SourceKey(c))
	if err != nil {
		return fmt.Errorf("source path: %w", err)
	}
	dst, err := p.files.Path(OutputKey(c))
	if err != nil {
		return fmt.Errorf("output path: %w", err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.converter.Convert(ctx, src, dst, c.ID); err != nil {
		return err
	}

	p.files.Replicate(OutputKey(c))
	return nil
}
