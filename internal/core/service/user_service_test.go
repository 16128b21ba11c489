package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/cliptube/account-service/internal/core/domain"
	"github.com/cliptube/account-service/internal/core/ports"
)

// stubUserRepo is an in-memory UserRepository with the same atomic
// compare-and-rotate semantics as the Mongo implementation.
type stubUserRepo struct {
	mu     sync.Mutex
	users  map[string]*domain.User
	nextID int
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username || u.Email == user.Email {
			return nil, domain.ErrUserExists
		}
	}
	r.nextID++
	copy := cloneUser(user)
	copy.ID = "u" + strconv.Itoa(r.nextID)
	r.users[copy.ID] = copy
	return cloneUser(copy), nil
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) FindByUsernameOrEmail(_ context.Context, username, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) SetRefreshToken(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.RefreshToken = token
	return nil
}

func (r *stubUserRepo) RotateRefreshToken(_ context.Context, id, presented, next string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	if u.RefreshToken != presented {
		return domain.ErrTokenReplayed
	}
	u.RefreshToken = next
	return nil
}

func (r *stubUserRepo) ClearRefreshToken(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.RefreshToken = ""
	return nil
}

func (r *stubUserRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r *stubUserRepo) UpdateProfileImage(_ context.Context, id, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.ProfileImageURL = url
	return nil
}

type stubThrottle struct {
	mu       sync.Mutex
	blocked  bool
	failures int
	resets   int
}

func (t *stubThrottle) Allow(_ context.Context, _ string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.blocked, nil
}

func (t *stubThrottle) RecordFailure(_ context.Context, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures++
	return nil
}

func (t *stubThrottle) Reset(_ context.Context, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resets++
	return nil
}

type stubRecorder struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *stubRecorder) Record(e domain.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type stubAuditRepo struct{}

func (stubAuditRepo) Insert(_ context.Context, _ *domain.AuditEvent) error { return nil }
func (stubAuditRepo) FindByUser(_ context.Context, _ string, _ int) ([]domain.AuditEvent, error) {
	return nil, nil
}

type stubUploader struct {
	url string
	err error
}

func (u *stubUploader) Upload(_ context.Context, _ string) (string, error) {
	return u.url, u.err
}

type fixture struct {
	svc      *UserService
	repo     *stubUserRepo
	throttle *stubThrottle
	recorder *stubRecorder
	uploader *stubUploader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := NewTokenManager(TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	f := &fixture{
		repo:     newStubUserRepo(),
		throttle: &stubThrottle{},
		recorder: &stubRecorder{},
		uploader: &stubUploader{url: "https://cdn.example.com/pic.png"},
	}
	f.svc = NewUserService(f.repo, tokens, f.uploader, f.throttle, f.recorder, stubAuditRepo{}, zerolog.Nop())
	return f
}

func register(t *testing.T, f *fixture, username, email, password string) *domain.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	return user
}

func TestRegister_HashesPassword(t *testing.T) {
	f := newFixture(t)

	user := register(t, f, "alice", "a@x.com", "pw12345")
	if user.PasswordHash == "pw12345" || user.PasswordHash == "" {
		t.Fatalf("expected stored secret to be a hash, got %q", user.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("pw12345")); err != nil {
		t.Fatalf("stored hash does not verify against password: %v", err)
	}
	if user.ProfileImageURL != domain.DefaultProfileImageURL {
		t.Fatalf("expected placeholder image URL, got %q", user.ProfileImageURL)
	}
}

func TestRegister_NormalizesIdentity(t *testing.T) {
	f := newFixture(t)

	user := register(t, f, "  Alice ", " A@X.Com ", "pw12345")
	if user.Username != "alice" || user.Email != "a@x.com" {
		t.Fatalf("identity not normalized: %q %q", user.Username, user.Email)
	}
}

func TestRegister_RejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice", "a@x.com", "pw12345")

	cases := []ports.RegisterInput{
		{Username: "alice", Email: "other@x.com", Password: "pw12345"},
		{Username: "ALICE", Email: "other@x.com", Password: "pw12345"},
		{Username: " alice ", Email: "other@x.com", Password: "pw12345"},
		{Username: "other", Email: "a@x.com", Password: "pw12345"},
		{Username: "other", Email: "A@X.COM ", Password: "pw12345"},
	}
	for _, in := range cases {
		if _, err := f.svc.Register(context.Background(), in); !errors.Is(err, domain.ErrUserExists) {
			t.Fatalf("expected ErrUserExists for %+v, got %v", in, err)
		}
	}
}

func TestRegister_MissingFields(t *testing.T) {
	f := newFixture(t)

	cases := []ports.RegisterInput{
		{Username: "", Email: "a@x.com", Password: "pw"},
		{Username: "alice", Email: "", Password: "pw"},
		{Username: "alice", Email: "a@x.com", Password: "   "},
	}
	for _, in := range cases {
		if _, err := f.svc.Register(context.Background(), in); !errors.Is(err, domain.ErrMissingFields) {
			t.Fatalf("expected ErrMissingFields for %+v, got %v", in, err)
		}
	}
}

func stagedFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "staged.png")
	if err := os.WriteFile(path, []byte("png"), 0o600); err != nil {
		t.Fatalf("stage file: %v", err)
	}
	return path
}

func TestRegister_UploadsProfileImage(t *testing.T) {
	f := newFixture(t)
	path := stagedFile(t)

	user, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Username: "alice", Email: "a@x.com", Password: "pw12345",
		ProfileImagePath: path,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ProfileImageURL != "https://cdn.example.com/pic.png" {
		t.Fatalf("expected uploaded URL, got %q", user.ProfileImageURL)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected staged file to be removed")
	}
}

func TestRegister_UploadFailureFallsBackToPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.uploader.err = errors.New("host down")

	user, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Username: "alice", Email: "a@x.com", Password: "pw12345",
		ProfileImagePath: stagedFile(t),
	})
	if err != nil {
		t.Fatalf("Register should not fail on upload error: %v", err)
	}
	if user.ProfileImageURL != domain.DefaultProfileImageURL {
		t.Fatalf("expected placeholder after failed upload, got %q", user.ProfileImageURL)
	}
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	created := register(t, f, "alice", "a@x.com", "pw12345")

	user, pair, err := f.svc.Login(context.Background(), ports.LoginInput{Username: "alice", Password: "pw12345"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.PasswordHash != "" || user.RefreshToken != "" {
		t.Fatalf("login result must be sanitized")
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens")
	}

	// The access token's subject must be the account id.
	claims, err := f.svc.tokens.VerifyAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("issued access token invalid: %v", err)
	}
	if claims.Subject != created.ID {
		t.Fatalf("subject mismatch: got %s want %s", claims.Subject, created.ID)
	}

	// The refresh token must be persisted as the account's current one.
	stored, _ := f.repo.FindByID(context.Background(), created.ID)
	if stored.RefreshToken != pair.RefreshToken {
		t.Fatalf("refresh token not persisted")
	}

	if f.throttle.resets != 1 {
		t.Fatalf("expected throttle reset on success")
	}
}

func TestLogin_ByEmail(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice", "a@x.com", "pw12345")

	if _, _, err := f.svc.Login(context.Background(), ports.LoginInput{Email: "A@X.com", Password: "pw12345"}); err != nil {
		t.Fatalf("login by email failed: %v", err)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice", "a@x.com", "pw12345")

	_, _, err := f.svc.Login(context.Background(), ports.LoginInput{Username: "alice", Password: "nope"})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if f.throttle.failures != 1 {
		t.Fatalf("expected failure recorded in throttle")
	}
}

func TestLogin_UserNotFound(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Login(context.Background(), ports.LoginInput{Username: "ghost", Password: "pw"})
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestLogin_MissingIdentifier(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Login(context.Background(), ports.LoginInput{Password: "pw"})
	if !errors.Is(err, domain.ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
}

func TestLogin_Throttled(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice", "a@x.com", "pw12345")
	f.throttle.blocked = true

	_, _, err := f.svc.Login(context.Background(), ports.LoginInput{Username: "alice", Password: "pw12345"})
	if !errors.Is(err, domain.ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
}

func TestRefresh_RotationAndReplay(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice", "a@x.com", "pw12345")

	_, pair, err := f.svc.Login(context.Background(), ports.LoginInput{Username: "alice", Password: "pw12345"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	tokenA := pair.RefreshToken

	// First refresh with A succeeds and yields B.
	rotated, err := f.svc.Refresh(context.Background(), tokenA)
	if err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	if rotated.RefreshToken == tokenA {
		t.Fatalf("rotation must issue a new refresh token")
	}

	// Replaying A must now be rejected: B superseded it.
	if _, err := f.svc.Refresh(context.Background(), tokenA); !errors.Is(err, domain.ErrTokenReplayed) {
		t.Fatalf("expected ErrTokenReplayed on replay, got %v", err)
	}

	// B is still good exactly once.
	if _, err := f.svc.Refresh(context.Background(), rotated.RefreshToken); err != nil {
		t.Fatalf("refresh with current token failed: %v", err)
	}
}

func TestRefresh_ConcurrentCallsRotateOnce(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice", "a@x.com", "pw12345")

	_, pair, err := f.svc.Login(context.Background(), ports.LoginInput{Username: "alice", Password: "pw12345"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Refresh(context.Background(), pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, domain.ErrTokenReplayed) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one winner, got %d", succeeded)
	}
}

func TestRefresh_InvalidInputs(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Refresh(context.Background(), ""); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), "garbage"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for malformed token, got %v", err)
	}

	// Valid signature but the subject no longer resolves to an account.
	orphan, err := f.svc.tokens.IssueRefreshToken("u999")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), orphan); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unknown subject, got %v", err)
	}
}

func TestLogout_InvalidatesRefreshToken(t *testing.T) {
	f := newFixture(t)
	created := register(t, f, "alice", "a@x.com", "pw12345")

	_, pair, err := f.svc.Login(context.Background(), ports.LoginInput{Username: "alice", Password: "pw12345"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := f.svc.Logout(context.Background(), created.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, err := f.svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, domain.ErrTokenReplayed) {
		t.Fatalf("expected refresh after logout to fail, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	created := register(t, f, "alice", "a@x.com", "pw12345")

	if err := f.svc.ChangePassword(context.Background(), created.ID, "wrong", "newpw123"); !errors.Is(err, domain.ErrIncorrectPassword) {
		t.Fatalf("expected ErrIncorrectPassword, got %v", err)
	}

	if err := f.svc.ChangePassword(context.Background(), created.ID, "pw12345", "newpw123"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	// Old password no longer works, new one does.
	if _, _, err := f.svc.Login(context.Background(), ports.LoginInput{Username: "alice", Password: "pw12345"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, _, err := f.svc.Login(context.Background(), ports.LoginInput{Username: "alice", Password: "newpw123"}); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestUpdateProfileImage(t *testing.T) {
	f := newFixture(t)
	created := register(t, f, "alice", "a@x.com", "pw12345")

	url, err := f.svc.UpdateProfileImage(context.Background(), created.ID, stagedFile(t))
	if err != nil {
		t.Fatalf("UpdateProfileImage: %v", err)
	}
	if url != "https://cdn.example.com/pic.png" {
		t.Fatalf("unexpected url: %s", url)
	}

	stored, _ := f.repo.FindByID(context.Background(), created.ID)
	if stored.ProfileImageURL != url {
		t.Fatalf("profile image not persisted")
	}
}

func TestUpdateProfileImage_UploadFailure(t *testing.T) {
	f := newFixture(t)
	created := register(t, f, "alice", "a@x.com", "pw12345")
	f.uploader.err = errors.New("host down")

	if _, err := f.svc.UpdateProfileImage(context.Background(), created.ID, stagedFile(t)); !errors.Is(err, domain.ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v", err)
	}
}

func TestAuditTrail_RecordsOutcomes(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice", "a@x.com", "pw12345")

	_, pair, _ := f.svc.Login(context.Background(), ports.LoginInput{Username: "alice", Password: "pw12345"})
	_, _, _ = f.svc.Login(context.Background(), ports.LoginInput{Username: "alice", Password: "wrong"})
	_, _ = f.svc.Refresh(context.Background(), pair.RefreshToken)
	_, err := f.svc.Refresh(context.Background(), pair.RefreshToken)
	if !errors.Is(err, domain.ErrTokenReplayed) {
		t.Fatalf("expected replay, got %v", err)
	}

	want := []struct {
		action  domain.AuditAction
		outcome string
	}{
		{domain.ActionLogin, domain.OutcomeSuccess},
		{domain.ActionLogin, domain.OutcomeFailure},
		{domain.ActionRefresh, domain.OutcomeSuccess},
		{domain.ActionRefresh, domain.OutcomeReplay},
	}
	if len(f.recorder.events) != len(want) {
		t.Fatalf("expected %d audit events, got %d", len(want), len(f.recorder.events))
	}
	for i, w := range want {
		got := f.recorder.events[i]
		if got.Action != w.action || got.Outcome != w.outcome {
			t.Fatalf("event %d: got %s/%s want %s/%s", i, got.Action, got.Outcome, w.action, w.outcome)
		}
	}
}
