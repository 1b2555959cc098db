package userstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/you-humble/pdftoxml/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type userRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	Name         string
	Email        string `gorm:"not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

func (userRow) TableName() string {
	return "users"
}

func (r userRow) toDomain() domain.User {
	return domain.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
}

type gormUserStore struct {
	db *gorm.DB
}

func NewGormUserStore(db *gorm.DB) *gormUserStore {
	return &gormUserStore{db: db}
}

func (s *gormUserStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&userRow{})
}

func (s *gormUserStore) Create(ctx context.Context, p domain.CreateUserParams) (domain.User, error) {
	email := normalizeEmail(p.Email)

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&userRow{}).
		Where("email = ?", email).
		Count(&count).Error; err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if count > 0 {
		return domain.User{}, domain.ErrUserExists
	}

	row := userRow{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(p.Name),
		Email:        email,
		PasswordHash: p.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.User{}, domain.ErrUserExists
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}

	return row.toDomain(), nil
}

func (s *gormUserStore) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.first(ctx, "email = ?", normalizeEmail(email))
}

func (s *gormUserStore) User(ctx context.Context, id string) (domain.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *gormUserStore) first(ctx context.Context, query string, arg any) (domain.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where(query, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return row.toDomain(), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
