package domain

import (
	"errors"
	"time"
)

// DefaultProfileImageURL is used when an account has no uploaded picture.
const DefaultProfileImageURL = "https://i.sstatic.net/l60Hf.png"

var ErrMissingFields = errors.New("required fields are missing")
var ErrUserExists = errors.New("user already exists")
var ErrUserNotFound = errors.New("user not found")
var ErrInvalidCredentials = errors.New("invalid credentials")
var ErrIncorrectPassword = errors.New("incorrect password")
var ErrInvalidToken = errors.New("invalid token")
var ErrTokenReplayed = errors.New("refresh token is expired or used")
var ErrTooManyAttempts = errors.New("too many failed login attempts")
var ErrUploadFailed = errors.New("media upload failed")

// User models one registered account. PasswordHash and RefreshToken are never
// serialized; handlers additionally zero them before attaching the user to a
// request context.
type User struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	ProfileImageURL string    `json:"profileImageUrl"`
	RefreshToken    string    `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Sanitized returns a copy with the secret fields cleared.
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.PasswordHash = ""
	clone.RefreshToken = ""
	return &clone
}
