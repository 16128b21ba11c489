package ports

import (
	"context"

	"github.com/cliptube/account-service/internal/core/domain"
)

// RegisterInput carries the fields of a registration request. ProfileImagePath
// points at a staged local copy of the uploaded picture, or is empty.
type RegisterInput struct {
	Username         string
	Email            string
	Password         string
	ProfileImagePath string
}

// LoginInput identifies an account by username or email plus password.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// TokenPair is one access/refresh token issuance.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// UserService is the session lifecycle controller: it orchestrates the
// credential store, password hasher, and token issuer, and owns the
// refresh-token rotation policy.
type UserService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, in LoginInput) (*domain.User, TokenPair, error)
	Refresh(ctx context.Context, presented string) (TokenPair, error)
	Logout(ctx context.Context, userID string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	UpdateProfileImage(ctx context.Context, userID, localPath string) (string, error)
	Activity(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error)
}
