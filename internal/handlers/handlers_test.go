package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ecomcore/shop/internal/models"
	"github.com/ecomcore/shop/internal/service/orders"
	"github.com/ecomcore/shop/internal/service/token"
)

type testEnv struct {
	T  *testing.T
	E  *echo.Echo
	DB *gorm.DB

	Auth     *AuthHandler
	Cart     *CartHandler
	Products *ProductHandler
	Orders   *OrderHandler
}

func newTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.RefreshToken{}, &models.Product{},
		&models.Cart{}, &models.CartItem{}, &models.Order{}, &models.OrderItem{},
	); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}

	tokens := &token.TokenService{
		DB:            db,
		JWTSecret:     []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}

	return &testEnv{
		T:        t,
		E:        echo.New(),
		DB:       db,
		Auth:     &AuthHandler{DB: db, Tokens: tokens},
		Cart:     &CartHandler{DB: db},
		Products: &ProductHandler{DB: db},
		Orders:   &OrderHandler{Orders: &orders.Service{DB: db}},
	}
}

func (env *testEnv) doJSONRequest(method, path string, body interface{}) (*httptest.ResponseRecorder, echo.Context) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	return rec, c
}

// asUser plants the context values the token middleware would set.
func asUser(c echo.Context, id uint, role string) {
	c.Set("userID", id)
	c.Set("role", role)
}

func (env *testEnv) seedUser(username, role string) models.User {
	u := models.User{
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: "x",
		Role:         role,
	}
	require.NoError(env.T, env.DB.Create(&u).Error)
	return u
}

func (env *testEnv) seedProduct(name string, price float64, stock int) models.Product {
	p := models.Product{Name: name, Price: price, Stock: stock}
	require.NoError(env.T, env.DB.Create(&p).Error)
	return p
}
