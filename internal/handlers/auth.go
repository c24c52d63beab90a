package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/ecomcore/shop/internal/hash"
	"github.com/ecomcore/shop/internal/models"
	"github.com/ecomcore/shop/internal/mykafka"
	"github.com/ecomcore/shop/internal/service/token"
)

type AuthHandler struct {
	DB       *gorm.DB
	Tokens   *token.TokenService
	Producer *mykafka.Producer
}

func (h *AuthHandler) publish(c echo.Context, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "user_events", fmt.Sprint(event["userID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Email == "" || req.Username == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email, username and password are required")
	}

	var existing models.User
	if err := h.DB.Where("email = ? OR username = ?", req.Email, req.Username).
		First(&existing).Error; err == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "user already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	user := models.User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: pwHash,
		Role:         models.RoleCustomer,
	}

	// The user and their cart come into existence together.
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&models.Cart{UserID: user.ID}).Error
	})
	if txErr != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, txErr.Error())
	}

	h.publish(c, map[string]any{
		"type":     "user_registered",
		"userID":   user.ID,
		"username": user.Username,
	})

	return c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var user models.User
	err := h.DB.Where("email = ?", req.Email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) && req.Username != "" {
		err = h.DB.Where("username = ?", req.Username).First(&user).Error
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	accessToken, err := token.SignAccessToken(user.ID, user.Role, h.Tokens.JWTSecret, h.Tokens.AccessTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create access token")
	}
	refreshToken, err := token.SignRefreshToken(user.ID, user.Role, h.Tokens.RefreshSecret, h.Tokens.RefreshTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create refresh token")
	}
	if err := token.SaveRefreshToken(h.DB, refreshToken, user.ID, user.Role, h.Tokens.RefreshTTL); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	c.SetCookie(token.NewCookie("accessToken", accessToken, "/", time.Now().Add(h.Tokens.AccessTTL)))
	c.SetCookie(token.NewCookie("refreshToken", refreshToken, "/", time.Now().Add(h.Tokens.RefreshTTL)))

	h.publish(c, map[string]any{
		"type":     "user_logged_in",
		"userID":   user.ID,
		"username": user.Username,
	})

	return c.JSON(http.StatusOK, echo.Map{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"is_admin":      user.Role == models.RoleAdmin,
	})
}

func (h *AuthHandler) LogOut(c echo.Context) error {
	refreshCookie, err := c.Cookie("refreshToken")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh token missing")
	}

	if err := h.Tokens.RevokeRefresh(refreshCookie.Value); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	expired := time.Now().Add(-1 * time.Hour)
	c.SetCookie(token.NewCookie("accessToken", "", "/", expired))
	c.SetCookie(token.NewCookie("refreshToken", "", "/", expired))

	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Me returns the authenticated user's profile, cancellation counter included.
func (h *AuthHandler) Me(c echo.Context) error {
	userID, err := GetID(c)
	if err != nil {
		return err
	}

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, user)
}
