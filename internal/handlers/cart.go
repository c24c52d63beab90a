package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/ecomcore/shop/internal/models"
	"github.com/ecomcore/shop/internal/mykafka"
)

type CartHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
}

func (h *CartHandler) publish(c echo.Context, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "cart_events", fmt.Sprint(event["userID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

// getOrCreateCart backs the lazy 1:1 cart-per-user rule.
func (h *CartHandler) getOrCreateCart(userID uint) (*models.Cart, error) {
	var cart models.Cart
	err := h.DB.Preload("Items").Where("user_id = ?", userID).First(&cart).Error
	if err == nil {
		return &cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cart = models.Cart{UserID: userID}
	if err := h.DB.Create(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

func (h *CartHandler) GetCart(c echo.Context) error {
	userID, err := GetID(c)
	if err != nil {
		return err
	}

	cart, err := h.getOrCreateCart(userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) AddToCart(c echo.Context) error {
	userID, err := GetID(c)
	if err != nil {
		return err
	}

	var req struct {
		ProductID uint `json:"product_id"`
		Quantity  int  `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Quantity <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "quantity must be greater than 0")
	}

	var product models.Product
	if err := h.DB.First(&product, req.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if product.Stock < req.Quantity {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("insufficient stock, only %d items available", product.Stock))
	}

	cart, err := h.getOrCreateCart(userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// One row per (cart, product): adding an existing product merges quantities.
	var item models.CartItem
	findErr := h.DB.Where("cart_id = ? AND product_id = ?", cart.ID, req.ProductID).First(&item).Error
	switch {
	case findErr == nil:
		newQuantity := item.Quantity + req.Quantity
		if newQuantity > product.Stock {
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("cannot add %d more, only %d items available", req.Quantity, product.Stock-item.Quantity))
		}
		item.Quantity = newQuantity
		if err := h.DB.Save(&item).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	case errors.Is(findErr, gorm.ErrRecordNotFound):
		item = models.CartItem{
			CartID:    cart.ID,
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
		}
		if err := h.DB.Create(&item).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, findErr.Error())
	}

	h.publish(c, map[string]any{
		"type":      "cart_item_added",
		"userID":    userID,
		"productID": req.ProductID,
		"quantity":  item.Quantity,
	})

	return c.JSON(http.StatusCreated, item)
}

func (h *CartHandler) UpdateItem(c echo.Context) error {
	userID, err := GetID(c)
	if err != nil {
		return err
	}

	productID, err := strconv.Atoi(c.Param("product_id"))
	if err != nil || productID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Quantity <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "quantity must be greater than 0")
	}

	var cart models.Cart
	if err := h.DB.Where("user_id = ?", userID).First(&cart).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "cart not found")
	}

	var item models.CartItem
	if err := h.DB.Where("cart_id = ? AND product_id = ?", cart.ID, productID).First(&item).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "product not in cart")
	}

	var product models.Product
	if err := h.DB.First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if req.Quantity > product.Stock {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("insufficient stock, only %d items available", product.Stock))
	}

	item.Quantity = req.Quantity
	if err := h.DB.Save(&item).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.publish(c, map[string]any{
		"type":      "cart_item_updated",
		"userID":    userID,
		"productID": productID,
		"quantity":  item.Quantity,
	})

	return c.JSON(http.StatusOK, item)
}

func (h *CartHandler) RemoveItem(c echo.Context) error {
	userID, err := GetID(c)
	if err != nil {
		return err
	}

	productID, err := strconv.Atoi(c.Param("product_id"))
	if err != nil || productID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	var cart models.Cart
	if err := h.DB.Where("user_id = ?", userID).First(&cart).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "cart not found")
	}

	res := h.DB.Where("cart_id = ? AND product_id = ?", cart.ID, productID).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, res.Error.Error())
	}
	if res.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "product not in cart")
	}

	h.publish(c, map[string]any{
		"type":      "cart_item_removed",
		"userID":    userID,
		"productID": productID,
	})

	return c.NoContent(http.StatusNoContent)
}

func (h *CartHandler) ClearCart(c echo.Context) error {
	userID, err := GetID(c)
	if err != nil {
		return err
	}

	var cart models.Cart
	if err := h.DB.Where("user_id = ?", userID).First(&cart).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "cart not found")
	}

	if err := h.DB.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.publish(c, map[string]any{
		"type":   "cart_cleared",
		"userID": userID,
	})

	return c.NoContent(http.StatusNoContent)
}
