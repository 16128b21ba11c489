package ports

import (
	"context"

	"github.com/cliptube/account-service/internal/core/domain"
)

// UserRepository defines the persistence contract for accounts.
//
// RotateRefreshToken must be a single atomic conditional update: the stored
// refresh token is replaced with next only when it still equals presented.
// A mismatch is a replay signal and returns domain.ErrTokenReplayed.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error)
	SetRefreshToken(ctx context.Context, id, token string) error
	RotateRefreshToken(ctx context.Context, id, presented, next string) error
	ClearRefreshToken(ctx context.Context, id string) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateProfileImage(ctx context.Context, id, url string) error
}

// UserResolver is the read-only subset of UserRepository needed by the auth
// middleware to turn a token subject into an account.
type UserResolver interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}
