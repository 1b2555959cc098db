package converter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/you-humble/pdftoxml/internal/domain"
	"github.com/you-humble/pdftoxml/internal/extractor"
	"github.com/you-humble/pdftoxml/internal/xmldoc"
)

// ErrSourceMissing is the precondition failure for an absent source PDF.
var ErrSourceMissing = errors.New("source file not found")

type Stage string

const (
	StageSource  Stage = "source"
	StageRead    Stage = "read"
	StageExtract Stage = "extract"
	StageRender  Stage = "render"
	StageWrite   Stage = "write"
	StageStatus  Stage = "status"
)

// Error is returned by Convert for every failure after the job was claimed.
type Error struct {
	JobID string
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("convert %s: %s: %v", e.JobID, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type StatusStore interface {
	Claim(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status domain.ConversionStatus, reason string) error
}

type Extractor interface {
	Extract(ctx context.Context, data []byte) (extractor.Result, error)
}

type Pipeline struct {
	store     StatusStore
	extractor Extractor
	now       func() time.Time
}

func New(store StatusStore, ext Extractor) *Pipeline {
	return &Pipeline{
		store:     store,
		extractor: ext,
		now:       time.Now,
	}
}

// Convert turns the PDF at sourcePath into XML at destinationPath and records
// the outcome on job jobID. The job must be PENDING; Convert claims it first
// and returns the store error untouched when the claim is refused.
func (p *Pipeline) Convert(ctx context.Context, sourcePath, destinationPath, jobID string) error {
	if err := p.store.Claim(ctx, jobID); err != nil {
		return fmt.Errorf("claim %s: %w", jobID, err)
	}

	l := slog.With(
		slog.String("job_id", jobID),
		slog.String("source", sourcePath),
	)
	start := time.Now()

	pages, stage, err := p.run(ctx, sourcePath, destinationPath)
	if err != nil {
		convErr := &Error{JobID: jobID, Stage: stage, Err: err}
		l.Warn("conversion failed",
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()),
		)

		statusCtx := context.WithoutCancel(ctx)
		if serr := p.store.UpdateStatus(statusCtx, jobID, domain.StatusFailed, err.Error()); serr != nil {
			l.Error("record FAILED status", slog.String("error", serr.Error()))
			return errors.Join(convErr, &Error{JobID: jobID, Stage: StageStatus, Err: serr})
		}
		return convErr
	}

	if err := p.store.UpdateStatus(context.WithoutCancel(ctx), jobID, domain.StatusCompleted, ""); err != nil {
		l.Error("record COMPLETED status", slog.String("error", err.Error()))
		if rmErr := os.Remove(destinationPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			l.Error("remove unrecorded output", slog.String("error", rmErr.Error()))
		}
		return &Error{JobID: jobID, Stage: StageStatus, Err: err}
	}

	l.Info("conversion completed",
		slog.Int("pages", pages),
		slog.String("output", destinationPath),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (p *Pipeline) run(ctx context.Context, sourcePath, destinationPath string) (int, Stage, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, StageSource, fmt.Errorf("%w: %s", ErrSourceMissing, sourcePath)
		}
		return 0, StageSource, fmt.Errorf("stat source: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return 0, StageRead, err
	}
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return 0, StageRead, fmt.Errorf("read source: %w", err)
	}

	res, err := p.extractor.Extract(ctx, data)
	if err != nil {
		return 0, StageExtract, err
	}

	doc := xmldoc.NewDocument(sourcePath, res.PageCount, res.Text, p.now())
	out, err := xmldoc.Marshal(doc)
	if err != nil {
		return 0, StageRender, err
	}

	if err := ctx.Err(); err != nil {
		return 0, StageWrite, err
	}
	if err := writeFileAtomic(destinationPath, out); err != nil {
		return 0, StageWrite, err
	}

	return res.PageCount, "", nil
}

// writeFileAtomic writes data next to path and renames it into place, so
// readers see either the previous file or the complete new one.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := f.Name()
	defer func() {
		_ = f.Close()
		_ = os.Remove(tempPath)
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
