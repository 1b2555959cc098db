package conversionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/you-humble/pdftoxml/internal/domain"

	"gorm.io/gorm"
)

type conversionRow struct {
	ID               string `gorm:"primaryKey;size:36"`
	OwnerID          string `gorm:"not null;size:36;index:idx_conversions_owner_created,priority:1"`
	Status           string `gorm:"not null;size:16;index"`
	OriginalFileName string `gorm:"not null"`
	SourceFileName   string `gorm:"not null;uniqueIndex"`
	OutputFileName   string `gorm:"not null;uniqueIndex"`
	FileSize         int64
	Error            string
	CreatedAt        time.Time `gorm:"index:idx_conversions_owner_created,priority:2"`
	UpdatedAt        time.Time
}

func (conversionRow) TableName() string {
	return "conversions"
}

func (r conversionRow) toDomain() domain.Conversion {
	return domain.Conversion{
		ID:               r.ID,
		OwnerID:          r.OwnerID,
		Status:           domain.ConversionStatus(r.Status),
		OriginalFileName: r.OriginalFileName,
		SourceFileName:   r.SourceFileName,
		OutputFileName:   r.OutputFileName,
		FileSize:         r.FileSize,
		Error:            r.Error,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type gormConversionStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormConversionStore(db *gorm.DB) *gormConversionStore {
	return &gormConversionStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *gormConversionStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&conversionRow{})
}

// Create inserts a new record. Records always start PENDING.
func (s *gormConversionStore) Create(ctx context.Context, p domain.CreateConversionParams) (domain.Conversion, error) {
	now := s.now()
	row := conversionRow{
		ID:               p.ID,
		OwnerID:          p.OwnerID,
		Status:           string(domain.StatusPending),
		OriginalFileName: p.OriginalFileName,
		SourceFileName:   p.SourceFileName,
		OutputFileName:   p.OutputFileName,
		FileSize:         p.FileSize,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Conversion{}, fmt.Errorf("insert conversion: %w", err)
	}
	return row.toDomain(), nil
}

func (s *gormConversionStore) Conversion(ctx context.Context, id string) (domain.Conversion, error) {
	var row conversionRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Conversion{}, domain.ErrConversionNotFound
	}
	if err != nil {
		return domain.Conversion{}, fmt.Errorf("select conversion: %w", err)
	}
	return row.toDomain(), nil
}

func (s *gormConversionStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Conversion, error) {
	var rows []conversionRow
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}

	out := make([]domain.Conversion, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// Claim moves a PENDING record to IN_PROGRESS. Only one caller can win.
func (s *gormConversionStore) Claim(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).
		Model(&conversionRow{}).
		Where("id = ? AND status = ?", id, string(domain.StatusPending)).
		Updates(map[string]any{
			"status":     string(domain.StatusInProgress),
			"updated_at": s.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("claim conversion: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	if _, err := s.Conversion(ctx, id); err != nil {
		return err
	}
	return domain.ErrConversionNotPending
}

// UpdateStatus records a terminal status. Terminal records are never changed.
func (s *gormConversionStore) UpdateStatus(
	ctx context.Context,
	id string,
	status domain.ConversionStatus,
	reason string,
) error {
	if !status.Terminal() {
		return fmt.Errorf("update status to %s: %w", status, domain.ErrInvalidInput)
	}

	res := s.db.WithContext(ctx).
		Model(&conversionRow{}).
		Where("id = ? AND status IN ?", id, []string{
			string(domain.StatusPending),
			string(domain.StatusInProgress),
		}).
		Updates(map[string]any{
			"status":     string(status),
			"error":      reason,
			"updated_at": s.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("update conversion status: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	if _, err := s.Conversion(ctx, id); err != nil {
		return err
	}
	return domain.ErrConversionTerminal
}

func (s *gormConversionStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&conversionRow{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete conversion: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrConversionNotFound
	}
	return nil
}

// FailStale fails every unfinished record last touched before cutoff and
// returns their ids.
func (s *gormConversionStore) FailStale(ctx context.Context, cutoff time.Time, reason string) ([]string, error) {
	unfinished := []string{string(domain.StatusPending), string(domain.StatusInProgress)}

	var ids []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&conversionRow{}).
			Where("status IN ? AND updated_at < ?", unfinished, cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		return tx.Model(&conversionRow{}).
			Where("id IN ? AND status IN ?", ids, unfinished).
			Updates(map[string]any{
				"status":     string(domain.StatusFailed),
				"error":      reason,
				"updated_at": s.now(),
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("fail stale conversions: %w", err)
	}

	return ids, nil
}
