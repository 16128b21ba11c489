package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cliptube/account-service/internal/api/metrics"
	"github.com/cliptube/account-service/internal/core/domain"
	"github.com/cliptube/account-service/internal/core/ports"
)

const profilePictureField = "profilePicture"

// UserHandler exposes the account lifecycle over HTTP. Domain errors are
// returned as-is; the central HTTP error handler performs the single
// translation to status codes and the error envelope.
type UserHandler struct {
	users   ports.UserService
	tempDir string
}

func NewUserHandler(users ports.UserService, tempDir string) *UserHandler {
	return &UserHandler{users: users, tempDir: tempDir}
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

// Register creates a new account from a multipart form with username, email,
// password, and an optional profilePicture file.
//
// @Summary      Register a new user
// @Tags         users
// @Accept       multipart/form-data
// @Produce      json
// @Success      201  {object}  envelope
// @Failure      400  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /api/v1/users/register [post]
func (h *UserHandler) Register(c echo.Context) error {
	in := ports.RegisterInput{
		Username: c.FormValue("username"),
		Email:    c.FormValue("email"),
		Password: c.FormValue("password"),
	}

	// Stage the optional profile picture before handing off to the service.
	if file, err := c.FormFile(profilePictureField); err == nil {
		path, stageErr := h.stageUpload(file)
		if stageErr != nil {
			return stageErr
		}
		in.ProfileImagePath = path
	}

	user, err := h.users.Register(c.Request().Context(), in)
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			metrics.RegistrationsTotal.WithLabelValues("conflict").Inc()
		} else {
			metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		}
		return err
	}

	metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	return respond(c, http.StatusCreated, user.Sanitized(), "user registered successfully")
}

// Login verifies credentials, sets both token cookies, and returns the
// sanitized user plus the token pair in the body.
//
// @Summary      Login
// @Tags         users
// @Accept       json
// @Produce      json
// @Success      200  {object}  envelope
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /api/v1/users/login [post]
func (h *UserHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	user, pair, err := h.users.Login(c.Request().Context(), ports.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(loginResult(err)).Inc()
		return err
	}

	setTokenCookies(c, pair)
	metrics.LoginsTotal.WithLabelValues("success").Inc()

	return respond(c, http.StatusOK, map[string]any{
		"user":         user,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "user logged in successfully")
}

// Logout clears the stored refresh token and both cookies.
func (h *UserHandler) Logout(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	if err := h.users.Logout(c.Request().Context(), user.ID); err != nil {
		return err
	}

	clearTokenCookies(c)
	return respond(c, http.StatusOK, map[string]any{}, "user logged out successfully")
}

// Refresh rotates the refresh token. The presented token comes from the
// refreshToken cookie or the JSON body.
func (h *UserHandler) Refresh(c echo.Context) error {
	presented := ""
	if cookie, err := c.Cookie(refreshTokenCookie); err == nil {
		presented = cookie.Value
	}
	if presented == "" {
		var req refreshRequest
		if err := c.Bind(&req); err == nil {
			presented = req.RefreshToken
		}
	}
	if presented == "" {
		metrics.TokenRefreshesTotal.WithLabelValues("invalid").Inc()
		return echo.NewHTTPError(http.StatusUnauthorized, "token missing")
	}

	pair, err := h.users.Refresh(c.Request().Context(), presented)
	if err != nil {
		if errors.Is(err, domain.ErrTokenReplayed) {
			metrics.TokenRefreshesTotal.WithLabelValues("replayed").Inc()
		} else {
			metrics.TokenRefreshesTotal.WithLabelValues("invalid").Inc()
		}
		return err
	}

	setTokenCookies(c, pair)
	metrics.TokenRefreshesTotal.WithLabelValues("success").Inc()

	return respond(c, http.StatusOK, pair, "access token refreshed")
}

// ChangePassword re-hashes the account secret after checking the old password.
func (h *UserHandler) ChangePassword(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.users.ChangePassword(c.Request().Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}

	return respond(c, http.StatusOK, map[string]any{}, "password changed successfully")
}

// Me returns the authenticated account without secret fields.
func (h *UserHandler) Me(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, user, "user retrieved successfully")
}

// UpdateProfileImage uploads a new picture to the media host and persists the
// returned URL.
func (h *UserHandler) UpdateProfileImage(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	file, err := c.FormFile(profilePictureField)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "profile picture is required")
	}

	path, err := h.stageUpload(file)
	if err != nil {
		return err
	}

	url, err := h.users.UpdateProfileImage(c.Request().Context(), user.ID, path)
	if err != nil {
		metrics.ProfileUploadsTotal.WithLabelValues("error").Inc()
		return err
	}

	metrics.ProfileUploadsTotal.WithLabelValues("success").Inc()
	return respond(c, http.StatusOK, map[string]string{"profileImageUrl": url}, "profile picture updated successfully")
}

// Activity returns the account's recent auth audit events.
func (h *UserHandler) Activity(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	events, err := h.users.Activity(c.Request().Context(), user.ID, 20)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, events, "activity retrieved successfully")
}

// stageUpload copies the multipart file to the staging directory under a
// unique name. The service removes the staged file once the upload settles.
func (h *UserHandler) stageUpload(file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid file upload")
	}
	defer src.Close()

	if err := os.MkdirAll(h.tempDir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(h.tempDir, uuid.NewString()+filepath.Ext(file.Filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "bad_password"
	case errors.Is(err, domain.ErrUserNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrTooManyAttempts):
		return "throttled"
	default:
		return "error"
	}
}
