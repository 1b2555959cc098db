package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/you-humble/pdftoxml/internal/domain"
)

const minPasswordLen = 6

type UserStore interface {
	Create(ctx context.Context, p domain.CreateUserParams) (domain.User, error)
	UserByEmail(ctx context.Context, email string) (domain.User, error)
	User(ctx context.Context, id string) (domain.User, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

type TokenIssuer interface {
	Issue(user domain.User) (string, error)
}

type accounts struct {
	users  UserStore
	hasher PasswordHasher
	tokens TokenIssuer
}

func NewAccounts(users UserStore, hasher PasswordHasher, tokens TokenIssuer) *accounts {
	return &accounts{
		users:  users,
		hasher: hasher,
		tokens: tokens,
	}
}

func (uc *accounts) Register(ctx context.Context, name, email, password string) (domain.AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.AuthResult{}, fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return domain.AuthResult{}, fmt.Errorf("%w: password must be at least %d characters",
			domain.ErrInvalidInput, minPasswordLen)
	}

	hash, err := uc.hasher.Hash(password)
	if err != nil {
		return domain.AuthResult{}, err
	}

	user, err := uc.users.Create(ctx, domain.CreateUserParams{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		return domain.AuthResult{}, err
	}

	return uc.authResult(user)
}

// Login does not tell an unknown email apart from a wrong password.
func (uc *accounts) Login(ctx context.Context, email, password string) (domain.AuthResult, error) {
	user, err := uc.users.UserByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.AuthResult{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.AuthResult{}, err
	}

	if err := uc.hasher.Compare(user.PasswordHash, password); err != nil {
		return domain.AuthResult{}, err
	}

	return uc.authResult(user)
}

func (uc *accounts) User(ctx context.Context, id string) (domain.User, error) {
	return uc.users.User(ctx, id)
}

func (uc *accounts) authResult(user domain.User) (domain.AuthResult, error) {
	token, err := uc.tokens.Issue(user)
	if err != nil {
		return domain.AuthResult{}, err
	}
	return domain.AuthResult{User: user, Token: token}, nil
}
