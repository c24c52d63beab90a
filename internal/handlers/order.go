package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ecomcore/shop/internal/models"
	"github.com/ecomcore/shop/internal/mykafka"
	"github.com/ecomcore/shop/internal/service/orders"
)

type OrderHandler struct {
	Orders   *orders.Service
	Producer *mykafka.Producer
}

func (h *OrderHandler) publish(c echo.Context, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "order_events", fmt.Sprint(event["orderID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

func orderError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, orders.ErrEmptyCart),
		errors.Is(err, orders.ErrInsufficientStock),
		errors.Is(err, orders.ErrInvalidStateTransition),
		errors.Is(err, orders.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, orders.ErrOrderNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, orders.ErrForbidden),
		errors.Is(err, orders.ErrAccountSuspended):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *OrderHandler) PlaceOrder(c echo.Context) error {
	userID, err := GetID(c)
	if err != nil {
		return err
	}

	order, err := h.Orders.PlaceOrder(c.Request().Context(), userID)
	if err != nil {
		return orderError(err)
	}

	h.publish(c, map[string]any{
		"type":    "order_placed",
		"orderID": order.ID,
		"userID":  userID,
		"total":   order.TotalAmount,
	})

	return c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	userID, err := GetID(c)
	if err != nil {
		return err
	}

	list, err := h.Orders.ListOrders(c.Request().Context(), userID, GetRole(c))
	if err != nil {
		return orderError(err)
	}

	return c.JSON(http.StatusOK, list)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	userID, err := GetID(c)
	if err != nil {
		return err
	}

	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil || orderID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	order, err := h.Orders.GetOrder(c.Request().Context(), uint(orderID), userID, GetRole(c))
	if err != nil {
		return orderError(err)
	}

	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil || orderID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	order, err := h.Orders.UpdateStatus(c.Request().Context(), uint(orderID), req.Status)
	if err != nil {
		return orderError(err)
	}

	h.publish(c, map[string]any{
		"type":    "order_status_updated",
		"orderID": order.ID,
		"status":  order.Status,
	})

	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) CancelOrder(c echo.Context) error {
	userID, err := GetID(c)
	if err != nil {
		return err
	}

	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil || orderID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	cancelErr := h.Orders.CancelOrder(c.Request().Context(), uint(orderID), userID, GetRole(c))
	if cancelErr != nil && !errors.Is(cancelErr, orders.ErrAccountSuspended) {
		return orderError(cancelErr)
	}

	// The cancellation is committed at this point even when the suspension
	// signal fires.
	h.publish(c, map[string]any{
		"type":    "order_cancelled",
		"orderID": orderID,
		"userID":  userID,
		"status":  models.OrderStatusCancelled,
	})

	if cancelErr != nil {
		return orderError(cancelErr)
	}
	return c.NoContent(http.StatusNoContent)
}
