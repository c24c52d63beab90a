package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/ecomcore/shop/internal/models"
)

func TestUpdateStock(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser("admin", models.RoleAdmin)
	prod := env.seedProduct("widget", 10.00, 5)

	rec, c := env.doJSONRequest(http.MethodPatch, "/api/v1/admin/products/1/stock", map[string]any{
		"stock": 42,
	})
	asUser(c, admin.ID, admin.Role)
	c.SetParamNames("id")
	c.SetParamValues(strconv.Itoa(int(prod.ID)))
	require.NoError(t, env.Products.UpdateStock(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 42, got.Stock)
	require.Equal(t, prod.Price, got.Price)

	var stored models.Product
	require.NoError(t, env.DB.First(&stored, prod.ID).Error)
	require.Equal(t, 42, stored.Stock)
}

func TestUpdateStockNegative(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser("admin", models.RoleAdmin)
	prod := env.seedProduct("widget", 10.00, 5)

	_, c := env.doJSONRequest(http.MethodPatch, "/api/v1/admin/products/1/stock", map[string]any{
		"stock": -1,
	})
	asUser(c, admin.ID, admin.Role)
	c.SetParamNames("id")
	c.SetParamValues(strconv.Itoa(int(prod.ID)))

	err := env.Products.UpdateStock(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, he.Code)

	var stored models.Product
	require.NoError(t, env.DB.First(&stored, prod.ID).Error)
	require.Equal(t, 5, stored.Stock)
}

func TestUpdateStockUnknownProduct(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser("admin", models.RoleAdmin)

	_, c := env.doJSONRequest(http.MethodPatch, "/api/v1/admin/products/999/stock", map[string]any{
		"stock": 10,
	})
	asUser(c, admin.ID, admin.Role)
	c.SetParamNames("id")
	c.SetParamValues("999")

	err := env.Products.UpdateStock(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, he.Code)
}
