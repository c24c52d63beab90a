// Package inventory holds the stock ledger used by order placement and
// cancellation. Both operations run on the caller's transaction handle so
// stock movements commit or roll back together with the order rows.
package inventory

import (
	"errors"

	"gorm.io/gorm"

	"github.com/ecomcore/shop/internal/models"
)

var ErrInsufficientStock = errors.New("insufficient stock")

// Reserve decrements the product's stock by quantity. The decrement is a
// single guarded UPDATE (stock >= quantity in the WHERE clause), so two
// concurrent placements cannot both pass the check and overdraw the row.
func Reserve(tx *gorm.DB, productID uint, quantity int) error {
	res := tx.Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// Restore increments the product's stock by quantity. No upper bound is
// enforced. A missing product is not an error: cancellation of historical
// orders must survive catalog deletions.
func Restore(tx *gorm.DB, productID uint, quantity int) error {
	res := tx.Model(&models.Product{}).
		Where("id = ?", productID).
		Update("stock", gorm.Expr("stock + ?", quantity))
	return res.Error
}
