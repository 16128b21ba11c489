package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cliptube/account-service/internal/core/domain"
	"github.com/cliptube/account-service/internal/core/ports"
)

// UserService orchestrates the account lifecycle: registration, login, token
// rotation, logout, password change, and profile media. It composes the
// credential store, password hasher, token issuer, media host, login throttle,
// and audit trail.
type UserService struct {
	repo     ports.UserRepository
	tokens   *TokenManager
	media    ports.MediaUploader
	throttle ports.LoginThrottle
	audit    ports.AuditRecorder
	auditLog ports.AuditRepository
	logger   zerolog.Logger
}

func NewUserService(
	repo ports.UserRepository,
	tokens *TokenManager,
	media ports.MediaUploader,
	throttle ports.LoginThrottle,
	audit ports.AuditRecorder,
	auditLog ports.AuditRepository,
	logger zerolog.Logger,
) *UserService {
	return &UserService{
		repo:     repo,
		tokens:   tokens,
		media:    media,
		throttle: throttle,
		audit:    audit,
		auditLog: auditLog,
		logger:   logger,
	}
}

// normalizeIdentity lowercases and trims an identity field, matching the
// storage form used by the uniqueness indexes.
func normalizeIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Register creates an account with a hashed secret. The optional staged
// profile image is uploaded best-effort: a failed upload degrades to the
// placeholder URL rather than failing registration.
func (s *UserService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	username := normalizeIdentity(in.Username)
	email := normalizeIdentity(in.Email)

	if username == "" || email == "" || strings.TrimSpace(in.Password) == "" {
		return nil, domain.ErrMissingFields
	}

	if existing, err := s.repo.FindByUsernameOrEmail(ctx, username, email); err == nil && existing != nil {
		return nil, domain.ErrUserExists
	} else if err != nil && err != domain.ErrUserNotFound {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	imageURL := domain.DefaultProfileImageURL
	if in.ProfileImagePath != "" {
		defer os.Remove(in.ProfileImagePath)
		url, upErr := s.media.Upload(ctx, in.ProfileImagePath)
		if upErr != nil {
			s.logger.Warn().Err(upErr).Str("username", username).Msg("profile image upload failed, using placeholder")
		} else {
			imageURL = url
		}
	}

	now := time.Now().UTC()
	user := &domain.User{
		Username:        username,
		Email:           email,
		PasswordHash:    hash,
		ProfileImageURL: imageURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// The unique indexes are the real duplicate guard; the pre-check above
	// only gives a friendlier fast path.
	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, err
	}

	// Fetch back to confirm the write landed.
	fetched, err := s.repo.FindByID(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("post-create fetch: %w", err)
	}

	s.logger.Info().Str("user_id", fetched.ID).Str("username", username).Msg("user registered")
	return fetched, nil
}

// Login verifies credentials and issues a fresh token pair, persisting the
// refresh token as the single valid one for the account.
func (s *UserService) Login(ctx context.Context, in ports.LoginInput) (*domain.User, ports.TokenPair, error) {
	username := normalizeIdentity(in.Username)
	email := normalizeIdentity(in.Email)

	if username == "" && email == "" {
		return nil, ports.TokenPair{}, domain.ErrMissingFields
	}

	identifier := username
	if identifier == "" {
		identifier = email
	}

	if allowed, err := s.throttle.Allow(ctx, identifier); err != nil {
		s.logger.Warn().Err(err).Msg("login throttle check failed, allowing attempt")
	} else if !allowed {
		return nil, ports.TokenPair{}, domain.ErrTooManyAttempts
	}

	user, err := s.repo.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, ports.TokenPair{}, err
	}

	if !VerifyPassword(in.Password, user.PasswordHash) {
		if err := s.throttle.RecordFailure(ctx, identifier); err != nil {
			s.logger.Warn().Err(err).Msg("failed to record login failure")
		}
		s.record(user.ID, domain.ActionLogin, domain.OutcomeFailure, "bad password")
		return nil, ports.TokenPair{}, domain.ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, ports.TokenPair{}, err
	}

	if err := s.throttle.Reset(ctx, identifier); err != nil {
		s.logger.Warn().Err(err).Msg("failed to reset login throttle")
	}
	s.record(user.ID, domain.ActionLogin, domain.OutcomeSuccess, "")

	return user.Sanitized(), pair, nil
}

// Refresh rotates the refresh token: the presented token must verify against
// the refresh secret and exactly equal the stored current value. The
// compare-and-rotate is a single conditional update, so a superseded token is
// rejected even under concurrent refresh calls.
func (s *UserService) Refresh(ctx context.Context, presented string) (ports.TokenPair, error) {
	if presented == "" {
		return ports.TokenPair{}, domain.ErrInvalidToken
	}

	userID, err := s.tokens.VerifyRefreshToken(presented)
	if err != nil {
		return ports.TokenPair{}, domain.ErrInvalidToken
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return ports.TokenPair{}, domain.ErrInvalidToken
	}

	access, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return ports.TokenPair{}, err
	}
	next, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return ports.TokenPair{}, err
	}

	if err := s.repo.RotateRefreshToken(ctx, user.ID, presented, next); err != nil {
		if err == domain.ErrTokenReplayed {
			s.record(user.ID, domain.ActionRefresh, domain.OutcomeReplay, "stored token mismatch")
		}
		return ports.TokenPair{}, err
	}

	s.record(user.ID, domain.ActionRefresh, domain.OutcomeSuccess, "")
	return ports.TokenPair{AccessToken: access, RefreshToken: next}, nil
}

// Logout invalidates the account's refresh token.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	if err := s.repo.ClearRefreshToken(ctx, userID); err != nil {
		return err
	}
	s.record(userID, domain.ActionLogout, domain.OutcomeSuccess, "")
	return nil
}

// ChangePassword re-hashes the secret after verifying the old one.
func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return domain.ErrMissingFields
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if !VerifyPassword(oldPassword, user.PasswordHash) {
		s.record(userID, domain.ActionPasswordChange, domain.OutcomeFailure, "bad old password")
		return domain.ErrIncorrectPassword
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.repo.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return err
	}
	s.record(userID, domain.ActionPasswordChange, domain.OutcomeSuccess, "")
	return nil
}

// UpdateProfileImage uploads the staged file and persists the resulting URL.
// Unlike registration, an upload failure here is an error.
func (s *UserService) UpdateProfileImage(ctx context.Context, userID, localPath string) (string, error) {
	if localPath == "" {
		return "", domain.ErrMissingFields
	}
	defer os.Remove(localPath)

	url, err := s.media.Upload(ctx, localPath)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("profile image upload failed")
		return "", domain.ErrUploadFailed
	}

	if err := s.repo.UpdateProfileImage(ctx, userID, url); err != nil {
		return "", err
	}
	return url, nil
}

// Activity returns the account's most recent auth audit events.
func (s *UserService) Activity(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error) {
	return s.auditLog.FindByUser(ctx, userID, limit)
}

func (s *UserService) issuePair(ctx context.Context, user *domain.User) (ports.TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return ports.TokenPair{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return ports.TokenPair{}, err
	}
	if err := s.repo.SetRefreshToken(ctx, user.ID, refresh); err != nil {
		return ports.TokenPair{}, err
	}
	return ports.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *UserService) record(userID string, action domain.AuditAction, outcome, reason string) {
	s.audit.Record(domain.AuditEvent{
		UserID:  userID,
		Action:  action,
		Outcome: outcome,
		Reason:  reason,
		At:      time.Now().UTC(),
	})
}
