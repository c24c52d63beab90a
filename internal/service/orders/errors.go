package orders

import (
	"errors"

	"github.com/ecomcore/shop/internal/inventory"
)

var (
	ErrValidation             = errors.New("validation")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrProductNotFound        = errors.New("product not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidStateTransition = errors.New("only pending orders can be cancelled")

	// ErrAccountSuspended is returned after a cancellation has already been
	// committed. It warns the caller, it does not undo anything.
	ErrAccountSuspended = errors.New("account suspended due to excessive order cancellations")
)

// ErrInsufficientStock is shared with the inventory ledger so that a failed
// final reserve and a failed pre-check surface as the same kind.
var ErrInsufficientStock = inventory.ErrInsufficientStock
