// Package orders implements the order lifecycle: placement from the cart,
// listing, admin status updates and cancellation with stock restoration.
package orders

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gorm.io/gorm"

	"github.com/ecomcore/shop/internal/inventory"
	"github.com/ecomcore/shop/internal/metrics"
	"github.com/ecomcore/shop/internal/models"
)

// A user whose cancellation count exceeds this is flagged as suspended.
const cancellationLimit = 3

type Service struct {
	DB *gorm.DB
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// PlaceOrder turns the user's cart into a pending order. Validation of every
// line happens before any mutation; order rows, stock decrements and the cart
// cleanup commit as one transaction or not at all.
func (s *Service) PlaceOrder(ctx context.Context, userID uint) (*models.Order, error) {
	var order models.Order

	txErr := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cart models.Cart
		if err := tx.Where("user_id = ?", userID).First(&cart).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEmptyCart
			}
			return err
		}

		var items []models.CartItem
		if err := tx.Where("cart_id = ?", cart.ID).Find(&items).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		// Validate all lines before touching anything. Partial reservation
		// must not happen.
		var total float64
		products := make(map[uint]models.Product, len(items))
		for _, it := range items {
			var p models.Product
			if err := tx.First(&p, it.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: product %d", ErrProductNotFound, it.ProductID)
				}
				return err
			}
			if p.Stock < it.Quantity {
				return fmt.Errorf("%w for %s: only %d items available", ErrInsufficientStock, p.Name, p.Stock)
			}
			products[it.ProductID] = p
			total += p.Price * float64(it.Quantity)
		}

		order = models.Order{
			UserID:      userID,
			TotalAmount: round2(total),
			Status:      models.OrderStatusPending,
			Items:       make([]models.OrderItem, 0, len(items)),
		}
		for _, it := range items {
			p := products[it.ProductID]
			order.Items = append(order.Items, models.OrderItem{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Price:     p.Price, // purchase-time snapshot
			})
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		for _, it := range items {
			if err := inventory.Reserve(tx, it.ProductID, it.Quantity); err != nil {
				if errors.Is(err, inventory.ErrInsufficientStock) {
					p := products[it.ProductID]
					return fmt.Errorf("%w for %s: only %d items available", ErrInsufficientStock, p.Name, p.Stock)
				}
				return err
			}
		}

		// Cart stays, its items go.
		if err := tx.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		return nil
	})
	if txErr != nil {
		metrics.OrderPlacementFailedTotal.WithLabelValues(failReason(txErr)).Inc()
		return nil, txErr
	}

	metrics.OrdersPlacedTotal.Inc()
	return &order, nil
}

// ListOrders returns orders newest first. Admins see all orders, customers
// only their own.
func (s *Service) ListOrders(ctx context.Context, userID uint, role string) ([]models.Order, error) {
	q := s.DB.WithContext(ctx).Model(&models.Order{}).Preload("Items")
	if role != models.RoleAdmin {
		q = q.Where("user_id = ?", userID)
	}

	var orders []models.Order
	if err := q.Order("created_at DESC, id DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID, userID uint, role string) (*models.Order, error) {
	var order models.Order
	if err := s.DB.WithContext(ctx).Preload("Items").First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if role != models.RoleAdmin && order.UserID != userID {
		return nil, ErrForbidden
	}
	return &order, nil
}

// UpdateStatus sets an order to any known status. There is deliberately no
// transition table: admins may move an order backwards.
func (s *Service) UpdateStatus(ctx context.Context, orderID uint, status string) (*models.Order, error) {
	if !models.ValidOrderStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	var order models.Order
	if err := s.DB.WithContext(ctx).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	order.Status = status
	if err := s.DB.WithContext(ctx).Save(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder cancels a pending order: restores every line's stock, marks the
// order cancelled and bumps the owner's cancellation counter, all in one
// transaction. If the counter then exceeds the limit the cancellation still
// stands and ErrAccountSuspended is returned on top.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID uint, role string) error {
	suspended := false

	txErr := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		if role != models.RoleAdmin && order.UserID != userID {
			return ErrForbidden
		}
		if order.Status != models.OrderStatusPending {
			return fmt.Errorf("%w: order is %s", ErrInvalidStateTransition, order.Status)
		}

		var items []models.OrderItem
		if err := tx.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
			return err
		}
		for _, it := range items {
			// Restore skips rows for products deleted since the purchase.
			if err := inventory.Restore(tx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}

		// Guarded flip so a concurrent cancellation cannot restore stock twice.
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, models.OrderStatusPending).
			Update("status", models.OrderStatusCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: order is no longer pending", ErrInvalidStateTransition)
		}

		// Atomic increment, same shape as the stock ledger, so two
		// concurrent cancellations by one user never lose a count.
		if err := tx.Model(&models.User{}).
			Where("id = ?", order.UserID).
			Update("order_cancellation_count", gorm.Expr("order_cancellation_count + 1")).Error; err != nil {
			return err
		}
		var owner models.User
		if err := tx.First(&owner, order.UserID).Error; err != nil {
			return err
		}

		suspended = owner.OrderCancellationCount > cancellationLimit
		return nil
	})
	if txErr != nil {
		return txErr
	}

	metrics.OrdersCancelledTotal.Inc()
	if suspended {
		metrics.AccountsSuspendedTotal.Inc()
		return ErrAccountSuspended
	}
	return nil
}

func failReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	default:
		return "internal"
	}
}
