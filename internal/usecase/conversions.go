package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/you-humble/pdftoxml/internal/domain"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	SourceDir = "pdfs"
	OutputDir = "xml"

	pdfMIME   = "application/pdf"
	sniffSize = 3072
)

type FileStore interface {
	Save(ctx context.Context, reader io.Reader, filename string, size int64) (int64, string, error)
	Open(ctx context.Context, filename string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, filename string) error
	Path(filename string) (string, error)
	Replicate(filename string)
}

type ConversionStore interface {
	Create(ctx context.Context, p domain.CreateConversionParams) (domain.Conversion, error)
	Conversion(ctx context.Context, id string) (domain.Conversion, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Conversion, error)
	UpdateStatus(ctx context.Context, id string, status domain.ConversionStatus, reason string) error
	Delete(ctx context.Context, id string) error
}

type Dispatcher interface {
	Enqueue(ctx context.Context, conversionID string) error
}

// IdempotencyStore binds a client supplied key to the conversion it created.
type IdempotencyStore interface {
	Reserve(ctx context.Context, ownerID, key, conversionID string) (string, bool, error)
	Release(ctx context.Context, ownerID, key string) error
}

type conversions struct {
	store      ConversionStore
	files      FileStore
	dispatcher Dispatcher
	idem       IdempotencyStore
	newID      func() string
}

// NewConversions wires the conversion use cases. idem may be nil, which
// turns Idempotency-Key handling off.
func NewConversions(
	store ConversionStore,
	files FileStore,
	dispatcher Dispatcher,
	idem IdempotencyStore,
) *conversions {
	return &conversions{
		store:      store,
		files:      files,
		dispatcher: dispatcher,
		idem:       idem,
		newID:      uuid.NewString,
	}
}

func SourceKey(c domain.Conversion) string {
	return path.Join(SourceDir, c.SourceFileName)
}

func OutputKey(c domain.Conversion) string {
	return path.Join(OutputDir, c.OutputFileName)
}

func (uc *conversions) Upload(
	ctx context.Context,
	ownerID string,
	file io.Reader,
	originalName, idempotencyKey string,
	size int64,
) (domain.Conversion, error) {
	originalName = filepath.Base(strings.TrimSpace(originalName))
	if strings.ToLower(filepath.Ext(originalName)) != ".pdf" {
		return domain.Conversion{}, domain.ErrUnsupportedFile
	}

	body, err := sniffPDF(file)
	if err != nil {
		return domain.Conversion{}, err
	}

	id := uc.newID()
	if idempotencyKey != "" && uc.idem != nil {
		existing, err := uc.reserve(ctx, ownerID, idempotencyKey, id)
		if err != nil || existing.ID != "" {
			return existing, err
		}
	}

	c, err := uc.create(ctx, ownerID, id, originalName, body, size)
	if err != nil {
		if idempotencyKey != "" && uc.idem != nil {
			if rerr := uc.idem.Release(context.WithoutCancel(ctx), ownerID, idempotencyKey); rerr != nil {
				slog.Warn("release idempotency key", slog.String("error", rerr.Error()))
			}
		}
		return domain.Conversion{}, err
	}

	return c, nil
}

func (uc *conversions) create(
	ctx context.Context,
	ownerID, id, originalName string,
	body io.Reader,
	size int64,
) (domain.Conversion, error) {
	params := domain.CreateConversionParams{
		ID:               id,
		OwnerID:          ownerID,
		OriginalFileName: originalName,
		SourceFileName:   id + ".pdf",
		OutputFileName:   id + ".xml",
	}
	sourceKey := path.Join(SourceDir, params.SourceFileName)

	written, _, err := uc.files.Save(ctx, body, sourceKey, size)
	if err != nil {
		return domain.Conversion{}, fmt.Errorf("save file: %w", err)
	}
	params.FileSize = written

	c, err := uc.store.Create(ctx, params)
	if err != nil {
		if derr := uc.files.Delete(context.WithoutCancel(ctx), sourceKey); derr != nil {
			slog.Warn("delete orphaned upload", slog.String("error", derr.Error()))
		}
		return domain.Conversion{}, fmt.Errorf("create conversion: %w", err)
	}

	slog.Debug("enqueue conversion", slog.String("job_id", c.ID))
	if err := uc.dispatcher.Enqueue(ctx, c.ID); err != nil {
		slog.Error("enqueue failed",
			slog.String("job_id", c.ID),
			slog.String("error", err.Error()),
		)
		if serr := uc.store.UpdateStatus(context.WithoutCancel(ctx), c.ID, domain.StatusFailed, err.Error()); serr != nil {
			slog.Error("record FAILED status", slog.String("job_id", c.ID), slog.String("error", serr.Error()))
		}
		return domain.Conversion{}, fmt.Errorf("enqueue: %w", err)
	}

	return c, nil
}

// reserve returns the conversion already bound to key, or a zero value when
// the key is now bound to id.
func (uc *conversions) reserve(ctx context.Context, ownerID, key, id string) (domain.Conversion, error) {
	for range 2 {
		existingID, reserved, err := uc.idem.Reserve(ctx, ownerID, key, id)
		if err != nil {
			return domain.Conversion{}, fmt.Errorf("idempotency: %w", err)
		}
		if reserved {
			return domain.Conversion{}, nil
		}

		c, err := uc.store.Conversion(ctx, existingID)
		if errors.Is(err, domain.ErrConversionNotFound) {
			// the earlier conversion was deleted; the key is free again
			if err := uc.idem.Release(ctx, ownerID, key); err != nil {
				return domain.Conversion{}, fmt.Errorf("idempotency: %w", err)
			}
			continue
		}
		if err != nil {
			return domain.Conversion{}, err
		}

		slog.Debug("idempotent upload replayed", slog.String("job_id", c.ID))
		return c, nil
	}

	return domain.Conversion{}, fmt.Errorf("idempotency: key %q is contended", key)
}

func (uc *conversions) List(ctx context.Context, ownerID string) ([]domain.Conversion, error) {
	return uc.store.ListByOwner(ctx, ownerID)
}

func (uc *conversions) Get(ctx context.Context, ownerID, id string) (domain.ConversionDetails, error) {
	c, err := uc.owned(ctx, ownerID, id)
	if err != nil {
		return domain.ConversionDetails{}, err
	}

	details := domain.ConversionDetails{Conversion: c}
	if c.Status != domain.StatusCompleted {
		return details, nil
	}

	rc, _, err := uc.files.Open(ctx, OutputKey(c))
	if err != nil {
		return domain.ConversionDetails{}, fmt.Errorf("open output: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.ConversionDetails{}, fmt.Errorf("read output: %w", err)
	}
	details.XMLContent = string(data)

	return details, nil
}

func (uc *conversions) Download(ctx context.Context, ownerID, id string) (domain.FileResult, error) {
	c, err := uc.owned(ctx, ownerID, id)
	if err != nil {
		return domain.FileResult{}, err
	}

	switch c.Status {
	case domain.StatusCompleted:
		rc, size, err := uc.files.Open(ctx, OutputKey(c))
		if err != nil {
			return domain.FileResult{}, fmt.Errorf("open output: %w", err)
		}

		return domain.FileResult{
			FileName:    strings.TrimSuffix(c.OriginalFileName, filepath.Ext(c.OriginalFileName)) + ".xml",
			ContentType: "application/xml",
			Size:        size,
			Content:     rc,
		}, nil

	case domain.StatusFailed:
		return domain.FileResult{}, domain.ErrConversionFailed

	default:
		return domain.FileResult{}, domain.ErrNotReady
	}
}

// Delete removes the record first, then both files. Files that are
// already gone are fine.
func (uc *conversions) Delete(ctx context.Context, ownerID, id string) error {
	c, err := uc.owned(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := uc.store.Delete(ctx, c.ID); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, key := range []string{SourceKey(c), OutputKey(c)} {
		g.Go(func() error {
			if err := uc.files.Delete(gCtx, key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("conversion deleted", slog.String("job_id", c.ID))
	return nil
}

func (uc *conversions) owned(ctx context.Context, ownerID, id string) (domain.Conversion, error) {
	c, err := uc.store.Conversion(ctx, id)
	if err != nil {
		return domain.Conversion{}, err
	}
	if c.OwnerID != ownerID {
		return domain.Conversion{}, domain.ErrForbidden
	}
	return c, nil
}

// sniffPDF checks the leading bytes and hands back a reader that still
// yields the whole upload.
func sniffPDF(r io.Reader) (io.Reader, error) {
	head := make([]byte, sniffSize)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	if n == 0 || !mimetype.Detect(head).Is(pdfMIME) {
		return nil, domain.ErrUnsupportedFile
	}

	return io.MultiReader(bytes.NewReader(head), r), nil
}
