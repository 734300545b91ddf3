package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohammad-safakhou/ori/internal/runtime"
	"github.com/mohammad-safakhou/ori/internal/store"
)

const tokenTTL = 24 * time.Hour

// UserRepository is the account storage used by the auth endpoints.
type UserRepository interface {
	CreateUser(ctx context.Context, email, name, passwordHash string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, bool, error)
	GetUser(ctx context.Context, id string) (store.User, bool, error)
	UpdateUser(ctx context.Context, id string, upd store.UserUpdate) error
}

type AuthHandler struct {
	Users         UserRepository
	Secret        []byte
	SecureCookies bool
}

func (a *AuthHandler) Register(g *echo.Group) {
	g.POST("/signup", a.signup)
	g.POST("/login", a.login)
	g.POST("/logout", a.logout)

	authed := g.Group("", runtime.EchoAuthMiddleware(a.Secret))
	authed.GET("/me", a.me)
	authed.PUT("/profile", a.updateProfile)
}

// Signup
//
//	@Summary		User signup
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		AuthSignupRequest	true	"Signup payload"
//	@Success		201		{object}	UserResponse
//	@Failure		400		{object}	HTTPError
//	@Failure		409		{object}	HTTPError
//	@Router			/api/auth/signup [post]
func (a *AuthHandler) signup(c echo.Context) error {
	var req AuthSignupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !strings.Contains(req.Email, "@") {
		return echo.NewHTTPError(http.StatusBadRequest, "valid email required")
	}
	if len(req.Password) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "password too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	u, err := a.Users.CreateUser(c.Request().Context(), req.Email, strings.TrimSpace(req.Name), string(hash))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, userResponse(u))
}

// Login
//
//	@Summary		Login
//	@Description	Returns JWT in cookie and body; supports Bearer flows
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		AuthLoginRequest	true	"Login payload"
//	@Success		200		{object}	TokenResponse
//	@Failure		401		{object}	HTTPError
//	@Router			/api/auth/login [post]
func (a *AuthHandler) login(c echo.Context) error {
	var req AuthLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, ok, err := a.Users.GetUserByEmail(c.Request().Context(), req.Email)
	if err != nil {
		return toHTTPError(err)
	}
	if !ok || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	signed, err := runtime.SignJWT(u.ID, a.Secret, tokenTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	cookie := new(http.Cookie)
	cookie.Name = "auth"
	cookie.Value = signed
	cookie.Path = "/"
	cookie.HttpOnly = true
	cookie.SameSite = http.SameSiteLaxMode
	cookie.Secure = a.SecureCookies
	c.SetCookie(cookie)
	c.Response().Header().Set("Authorization", "Bearer "+signed)
	return c.JSON(http.StatusOK, TokenResponse{Token: signed})
}

func (a *AuthHandler) logout(c echo.Context) error {
	cookie := new(http.Cookie)
	cookie.Name = "auth"
	cookie.Value = ""
	cookie.Path = "/"
	cookie.MaxAge = -1
	c.SetCookie(cookie)
	return c.NoContent(http.StatusOK)
}

func (a *AuthHandler) me(c echo.Context) error {
	u, ok, err := a.Users.GetUser(c.Request().Context(), userID(c))
	if err != nil {
		return toHTTPError(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	return c.JSON(http.StatusOK, userResponse(u))
}

// updateProfile
//
//	@Summary	Update name, email, password or completion API key
//	@Tags		auth
//	@Security	BearerAuth
//	@Param		payload	body		ProfileUpdateRequest	true	"Profile changes"
//	@Success	200		{object}	UserResponse
//	@Router		/api/auth/profile [put]
func (a *AuthHandler) updateProfile(c echo.Context) error {
	ctx := c.Request().Context()
	var req ProfileUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id := userID(c)
	u, ok, err := a.Users.GetUser(ctx, id)
	if err != nil {
		return toHTTPError(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}

	upd := store.UserUpdate{Name: req.Name, Email: req.Email, APIKey: req.APIKey}
	if req.NewPassword != "" {
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.CurrentPassword)) != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "current password is incorrect")
		}
		if len(req.NewPassword) < 8 {
			return echo.NewHTTPError(http.StatusBadRequest, "password too short")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		h := string(hash)
		upd.PasswordHash = &h
	}
	if err := a.Users.UpdateUser(ctx, id, upd); err != nil {
		return toHTTPError(err)
	}
	u, _, err = a.Users.GetUser(ctx, id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, userResponse(u))
}

func userResponse(u store.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Name: u.Name, HasAPIKey: u.APIKey != ""}
}

// userID returns the caller set by the auth middleware.
func userID(c echo.Context) string {
	id, _ := c.Get("user_id").(string)
	return id
}
