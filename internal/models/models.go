package models

import (
	"time"
)

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// ValidOrderStatus reports whether s is one of the known order statuses.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"  json:"id"`
	Email        string `gorm:"uniqueIndex;not null"      json:"email"`
	Username     string `gorm:"uniqueIndex;not null"      json:"username"`
	PasswordHash string `gorm:"not null"                  json:"-"`
	Role         string `gorm:"not null;default:customer" json:"role"`
	// Incremented on every successful order cancellation, never reset.
	OrderCancellationCount int       `gorm:"not null;default:0" json:"order_cancellation_count"`
	CreatedAt              time.Time `json:"created_at"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"           json:"id"`
	Token     string `gorm:"uniqueIndex;not null" json:"token"`
	UserID    uint   `gorm:"index;not null"       json:"user_id"`
	Role      string `gorm:"not null"             json:"role"`
	ExpiresAt int64  `gorm:"not null"             json:"expires_at"`
	Revoked   bool   `gorm:"default:false"        json:"revoked"`
}

type Product struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"index;not null"           json:"name"`
	Description string    `json:"description"`
	Price       float64   `gorm:"not null"                 json:"price"`
	Stock       int       `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Cart is created lazily, one per user. Placing an order clears the items but
// keeps the cart row.
type Cart struct {
	ID     uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uint       `gorm:"uniqueIndex;not null"     json:"user_id"`
	Items  []CartItem `gorm:"constraint:OnDelete:CASCADE" json:"items"`
}

type CartItem struct {
	ID        uint `gorm:"primaryKey;autoIncrement"              json:"id"`
	CartID    uint `gorm:"uniqueIndex:idx_cart_product;not null" json:"cart_id"`
	ProductID uint `gorm:"uniqueIndex:idx_cart_product;not null" json:"product_id"`
	Quantity  int  `gorm:"not null;check:quantity > 0"           json:"quantity"`
}

type Order struct {
	ID     uint `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uint `gorm:"index;not null"           json:"user_id"`
	// Sum of item price*quantity at placement time, rounded to 2 decimals.
	// Never recomputed from live product prices.
	TotalAmount float64     `gorm:"not null"                 json:"total_amount"`
	Status      string      `gorm:"not null;default:pending" json:"status"`
	Items       []OrderItem `gorm:"constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type OrderItem struct {
	ID        uint `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   uint `gorm:"index;not null"           json:"order_id"`
	ProductID uint `gorm:"not null"                 json:"product_id"`
	Quantity  int  `gorm:"not null"                 json:"quantity"`
	// Price is the product price at purchase time; it stays fixed even if the
	// catalog price changes afterwards.
	Price     float64   `gorm:"not null"                 json:"price"`
	CreatedAt time.Time `json:"created_at"`
}
