package usecase

import (
	"context"
	"testing"

	"github.com/you-humble/pdftoxml/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccounts() *accounts {
	return NewAccounts(newMemUserStore(), plainHasher{}, staticIssuer{})
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	uc := newAccounts()

	reg, err := uc.Register(ctx, "Ada", "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", reg.User.Email)
	assert.Equal(t, "token-for-"+reg.User.ID, reg.Token)

	login, err := uc.Login(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)

	u, err := uc.User(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"empty email", "", "secret1"},
		{"no at sign", "ada.example.com", "secret1"},
		{"short password", "ada@example.com", "12345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newAccounts().Register(context.Background(), "Ada", tt.email, tt.password)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	uc := newAccounts()

	_, err := uc.Register(ctx, "Ada", "ada@example.com", "secret1")
	require.NoError(t, err)
	_, err = uc.Register(ctx, "Ada", "ada@example.com", "secret2")
	require.ErrorIs(t, err, domain.ErrUserExists)
}

func TestLoginFailures(t *testing.T) {
	ctx := context.Background()
	uc := newAccounts()
	_, err := uc.Register(ctx, "Ada", "ada@example.com", "secret1")
	require.NoError(t, err)

	_, err = uc.Login(ctx, "ada@example.com", "wrong-password")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = uc.Login(ctx, "nobody@example.com", "secret1")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestRegisterIssuerError(t *testing.T) {
	uc := NewAccounts(newMemUserStore(), plainHasher{}, staticIssuer{err: errBoom})

	_, err := uc.Register(context.Background(), "Ada", "ada@example.com", "secret1")
	require.ErrorIs(t, err, errBoom)
}
