package token

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/ecomcore/shop/internal/models"
)

type TokenService struct {
	DB            *gorm.DB
	JWTSecret     []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// RotateToken exchanges a valid refresh token for a fresh access/refresh pair.
func (t *TokenService) RotateToken(rawToken string) (string, string, error) {
	claims, err := ValidateRefresh(rawToken, t.RefreshSecret, t.DB)
	if err != nil {
		return "", "", err
	}

	userID := uint(claims["sub"].(float64))
	role, _ := claims["role"].(string)

	newAccess, err := SignAccessToken(userID, role, t.JWTSecret, t.AccessTTL)
	if err != nil {
		return "", "", err
	}
	newRefresh, err := SignRefreshToken(userID, role, t.RefreshSecret, t.RefreshTTL)
	if err != nil {
		return "", "", err
	}

	if err := SaveRefreshToken(t.DB, newRefresh, userID, role, t.RefreshTTL); err != nil {
		return "", "", err
	}

	return newAccess, newRefresh, nil
}

func (t *TokenService) RevokeRefresh(raw string) error {
	if err := t.DB.Model(&models.RefreshToken{}).
		Where("token = ?", raw).
		Update("revoked", true).Error; err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// checkCookie returns a valid access token for the request, rotating through
// the refresh token when the access one expired. newRefresh is empty when no
// rotation happened.
func (t *TokenService) checkCookie(c echo.Context) (newAccess, newRefresh, role string, err error) {
	asCookie, cErr := c.Cookie("accessToken")
	if cErr == nil {
		parsed, pErr := jwt.Parse(asCookie.Value, func(j *jwt.Token) (interface{}, error) {
			return t.JWTSecret, nil
		})
		if pErr == nil && parsed.Valid {
			claims := parsed.Claims.(jwt.MapClaims)
			r, _ := claims["role"].(string)
			return asCookie.Value, "", r, nil
		}
		if !errors.Is(pErr, jwt.ErrTokenExpired) {
			return "", "", "", echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}
	}

	rfCookie, cErr := c.Cookie("refreshToken")
	if cErr != nil {
		return "", "", "", echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
	}
	newAccess, newRefresh, err = t.RotateToken(rfCookie.Value)
	if err != nil {
		return "", "", "", echo.NewHTTPError(http.StatusUnauthorized, "cannot rotate token: "+err.Error())
	}

	parsed, _ := jwt.Parse(newAccess, func(j *jwt.Token) (interface{}, error) { return t.JWTSecret, nil })
	claims := parsed.Claims.(jwt.MapClaims)
	r, _ := claims["role"].(string)
	return newAccess, newRefresh, r, nil
}

func (t *TokenService) applyContext(c echo.Context, access, refresh string) {
	if refresh != "" {
		c.SetCookie(NewCookie("accessToken", access, "/", time.Now().Add(t.AccessTTL)))
		c.SetCookie(NewCookie("refreshToken", refresh, "/", time.Now().Add(t.RefreshTTL)))
	}
	parsed, _ := jwt.Parse(access, func(j *jwt.Token) (interface{}, error) { return t.JWTSecret, nil })
	SetUserContext(c, parsed.Claims.(jwt.MapClaims))
}

// AutoRefreshMiddleware authenticates the request, silently rotating expired
// access tokens through the refresh cookie.
func (t *TokenService) AutoRefreshMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		access, refresh, _, err := t.checkCookie(c)
		if err != nil {
			return err
		}
		t.applyContext(c, access, refresh)
		return next(c)
	}
}

// AutoRefreshMiddlewareAdmin is AutoRefreshMiddleware restricted to the admin
// role.
func (t *TokenService) AutoRefreshMiddlewareAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		access, refresh, role, err := t.checkCookie(c)
		if err != nil {
			return err
		}
		if role != models.RoleAdmin {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		t.applyContext(c, access, refresh)
		return next(c)
	}
}

func SetUserContext(c echo.Context, claims jwt.MapClaims) {
	c.Set("userID", uint(claims["sub"].(float64)))
	if r, ok := claims["role"].(string); ok {
		c.Set("role", r)
	}
}
