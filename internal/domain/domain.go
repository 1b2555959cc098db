package domain

import (
	"errors"
	"io"
	"time"
)

type ConversionStatus string

const (
	StatusPending    ConversionStatus = "PENDING"
	StatusInProgress ConversionStatus = "IN_PROGRESS"
	StatusCompleted  ConversionStatus = "COMPLETED"
	StatusFailed     ConversionStatus = "FAILED"
)

// Terminal reports whether no further transition may leave s.
func (s ConversionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Conversion struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	Status ConversionStatus `json:"status"`

	OriginalFileName string `json:"original_file_name"`
	SourceFileName   string `json:"source_file_name"`
	OutputFileName   string `json:"output_file_name"`

	// meta
	FileSize  int64     `json:"file_size"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateConversionParams struct {
	ID               string
	OwnerID          string
	OriginalFileName string
	SourceFileName   string
	OutputFileName   string
	FileSize         int64
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type CreateUserParams struct {
	Name         string
	Email        string
	PasswordHash string
}

type ConversionDetails struct {
	Conversion Conversion `json:"conversion"`
	XMLContent string     `json:"xmlContent,omitempty"`
}

type FileResult struct {
	FileName    string
	ContentType string
	Size        int64
	Content     io.ReadCloser
}

type AuthResult struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var (
	ErrConversionNotFound   = errors.New("conversion not found")
	ErrConversionNotPending = errors.New("conversion is not pending")
	ErrConversionTerminal   = errors.New("conversion already finished")
	ErrConversionFailed     = errors.New("conversion failed")
	ErrNotReady             = errors.New("conversion not ready")
	ErrForbidden            = errors.New("access denied")
	ErrUnsupportedFile      = errors.New("only PDF files are supported")
	ErrQueueFull            = errors.New("conversion queue is full")

	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidInput       = errors.New("invalid input")
)
