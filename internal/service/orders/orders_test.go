package orders

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ecomcore/shop/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{}, &models.Product{}, &models.Cart{}, &models.CartItem{},
		&models.Order{}, &models.OrderItem{},
	); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}

	return db
}

func newService(t *testing.T) (*Service, *gorm.DB) {
	db := newTestDB(t)
	return &Service{DB: db}, db
}

func seedUser(t *testing.T, db *gorm.DB, username, role string) models.User {
	u := models.User{
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: "x",
		Role:         role,
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func seedProduct(t *testing.T, db *gorm.DB, name string, price float64, stock int) models.Product {
	p := models.Product{Name: name, Price: price, Stock: stock}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func seedCart(t *testing.T, db *gorm.DB, userID uint) models.Cart {
	c := models.Cart{UserID: userID}
	require.NoError(t, db.Create(&c).Error)
	return c
}

func addCartItem(t *testing.T, db *gorm.DB, cartID, productID uint, qty int) {
	require.NoError(t, db.Create(&models.CartItem{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  qty,
	}).Error)
}

func productStock(t *testing.T, db *gorm.DB, id uint) int {
	var p models.Product
	require.NoError(t, db.First(&p, id).Error)
	return p.Stock
}

func cartItemCount(t *testing.T, db *gorm.DB, cartID uint) int64 {
	var n int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("cart_id = ?", cartID).Count(&n).Error)
	return n
}

func TestPlaceOrder(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	user := seedUser(t, db, "alice", models.RoleCustomer)
	prod := seedProduct(t, db, "widget", 10.00, 5)
	cart := seedCart(t, db, user.ID)
	addCartItem(t, db, cart.ID, prod.ID, 2)

	order, err := svc.PlaceOrder(ctx, user.ID)
	require.NoError(t, err)

	require.Equal(t, user.ID, order.UserID)
	require.Equal(t, models.OrderStatusPending, order.Status)
	require.Equal(t, 20.00, order.TotalAmount)
	require.Len(t, order.Items, 1)
	require.Equal(t, prod.ID, order.Items[0].ProductID)
	require.Equal(t, 2, order.Items[0].Quantity)
	require.Equal(t, 10.00, order.Items[0].Price)

	require.Equal(t, 3, productStock(t, db, prod.ID))
	require.EqualValues(t, 0, cartItemCount(t, db, cart.ID))

	// cart row itself survives
	var c models.Cart
	require.NoError(t, db.First(&c, cart.ID).Error)
}

func TestPlaceOrderMultipleLines(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	user := seedUser(t, db, "alice", models.RoleCustomer)
	p1 := seedProduct(t, db, "widget", 2.50, 10)
	p2 := seedProduct(t, db, "gadget", 19.99, 4)
	cart := seedCart(t, db, user.ID)
	addCartItem(t, db, cart.ID, p1.ID, 3)
	addCartItem(t, db, cart.ID, p2.ID, 1)

	order, err := svc.PlaceOrder(ctx, user.ID)
	require.NoError(t, err)

	require.Len(t, order.Items, 2)
	require.Equal(t, 27.49, order.TotalAmount)
	require.Equal(t, 7, productStock(t, db, p1.ID))
	require.Equal(t, 3, productStock(t, db, p2.ID))
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	user := seedUser(t, db, "alice", models.RoleCustomer)

	// no cart at all
	_, err := svc.PlaceOrder(ctx, user.ID)
	require.ErrorIs(t, err, ErrEmptyCart)

	// cart exists but has no items
	seedCart(t, db, user.ID)
	_, err = svc.PlaceOrder(ctx, user.ID)
	require.ErrorIs(t, err, ErrEmptyCart)

	var n int64
	require.NoError(t, db.Model(&models.Order{}).Count(&n).Error)
	require.EqualValues(t, 0, n)
}

func TestPlaceOrderInsufficientStock(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	user := seedUser(t, db, "alice", models.RoleCustomer)
	p1 := seedProduct(t, db, "widget", 5.00, 10)
	p2 := seedProduct(t, db, "gadget", 7.00, 1)
	cart := seedCart(t, db, user.ID)
	addCartItem(t, db, cart.ID, p1.ID, 2)
	addCartItem(t, db, cart.ID, p2.ID, 3)

	_, err := svc.PlaceOrder(ctx, user.ID)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Contains(t, err.Error(), "gadget")

	// nothing moved: no order, no stock change, cart untouched
	var n int64
	require.NoError(t, db.Model(&models.Order{}).Count(&n).Error)
	require.EqualValues(t, 0, n)
	require.Equal(t, 10, productStock(t, db, p1.ID))
	require.Equal(t, 1, productStock(t, db, p2.ID))
	require.EqualValues(t, 2, cartItemCount(t, db, cart.ID))
}

func TestPlaceOrderProductDeleted(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	user := seedUser(t, db, "alice", models.RoleCustomer)
	prod := seedProduct(t, db, "widget", 5.00, 10)
	cart := seedCart(t, db, user.ID)
	addCartItem(t, db, cart.ID, prod.ID, 1)

	require.NoError(t, db.Delete(&models.Product{}, prod.ID).Error)

	_, err := svc.PlaceOrder(ctx, user.ID)
	require.ErrorIs(t, err, ErrProductNotFound)
	require.EqualValues(t, 1, cartItemCount(t, db, cart.ID))
}

func TestPriceSnapshotSurvivesPriceChange(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	user := seedUser(t, db, "alice", models.RoleCustomer)
	prod := seedProduct(t, db, "widget", 10.00, 5)
	cart := seedCart(t, db, user.ID)
	addCartItem(t, db, cart.ID, prod.ID, 1)

	order, err := svc.PlaceOrder(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Product{}).
		Where("id = ?", prod.ID).Update("price", 15.00).Error)

	var item models.OrderItem
	require.NoError(t, db.Where("order_id = ?", order.ID).First(&item).Error)
	require.Equal(t, 10.00, item.Price)

	got, err := svc.GetOrder(ctx, order.ID, user.ID, user.Role)
	require.NoError(t, err)
	require.Equal(t, 10.00, got.TotalAmount)
}

func TestCancelOrder(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	user := seedUser(t, db, "alice", models.RoleCustomer)
	prod := seedProduct(t, db, "widget", 10.00, 5)
	cart := seedCart(t, db, user.ID)
	addCartItem(t, db, cart.ID, prod.ID, 2)

	order, err := svc.PlaceOrder(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 3, productStock(t, db, prod.ID))

	require.NoError(t, svc.CancelOrder(ctx, order.ID, user.ID, user.Role))

	require.Equal(t, 5, productStock(t, db, prod.ID))

	var got models.Order
	require.NoError(t, db.First(&got, order.ID).Error)
	require.Equal(t, models.OrderStatusCancelled, got.Status)

	var owner models.User
	require.NoError(t, db.First(&owner, user.ID).Error)
	require.Equal(t, 1, owner.OrderCancellationCount)
}

func TestCancelOrderTwice(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	user := seedUser(t, db, "alice", models.RoleCustomer)
	prod := seedProduct(t, db, "widget", 10.00, 5)
	cart := seedCart(t, db, user.ID)
	addCartItem(t, db, cart.ID, prod.ID, 2)

	order, err := svc.PlaceOrder(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, svc.CancelOrder(ctx, order.ID, user.ID, user.Role))
	err = svc.CancelOrder(ctx, order.ID, user.ID, user.Role)
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	// stock restored exactly once
	require.Equal(t, 5, productStock(t, db, prod.ID))

	var owner models.User
	require.NoError(t, db.First(&owner, user.ID).Error)
	require.Equal(t, 1, owner.OrderCancellationCount)
}

func TestCancelNonPendingOrder(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	user := seedUser(t, db, "alice", models.RoleCustomer)
	prod := seedProduct(t, db, "widget", 10.00, 5)
	cart := seedCart(t, db, user.ID)

	for _, status := range []string{
		models.OrderStatusShipped,
		models.OrderStatusDelivered,
		models.OrderStatusCancelled,
	} {
		addCartItem(t, db, cart.ID, prod.ID, 1)
		order, err := svc.PlaceOrder(ctx, user.ID)
		require.NoError(t, err)

		_, err = svc.UpdateStatus(ctx, order.ID, status)
		require.NoError(t, err)

		err = svc.CancelOrder(ctx, order.ID, user.ID, user.Role)
		require.ErrorIs(t, err, ErrInvalidStateTransition)
	}
}

func TestCancelOrderAuthorization(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	owner := seedUser(t, db, "alice", models.RoleCustomer)
	other := seedUser(t, db, "bob", models.RoleCustomer)
	admin := seedUser(t, db, "root", models.RoleAdmin)

	prod := seedProduct(t, db, "widget", 10.00, 10)
	cart := seedCart(t, db, owner.ID)
	addCartItem(t, db, cart.ID, prod.ID, 1)

	order, err := svc.PlaceOrder(ctx, owner.ID)
	require.NoError(t, err)

	err = svc.CancelOrder(ctx, order.ID, other.ID, other.Role)
	require.ErrorIs(t, err, ErrForbidden)

	// an admin can cancel someone else's order; the counter goes to the owner
	require.NoError(t, svc.CancelOrder(ctx, order.ID, admin.ID, admin.Role))

	var got models.User
	require.NoError(t, db.First(&got, owner.ID).Error)
	require.Equal(t, 1, got.OrderCancellationCount)
}

func TestCancelOrderNotFound(t *testing.T) {
	svc, db := newService(t)
	user := seedUser(t, db, "alice", models.RoleCustomer)

	err := svc.CancelOrder(context.Background(), 12345, user.ID, user.Role)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCancellationSuspensionSignal(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	user := seedUser(t, db, "alice", models.RoleCustomer)
	prod := seedProduct(t, db, "widget", 10.00, 100)
	cart := seedCart(t, db, user.ID)

	// first three cancellations pass quietly
	for i := 0; i < 3; i++ {
		addCartItem(t, db, cart.ID, prod.ID, 1)
		order, err := svc.PlaceOrder(ctx, user.ID)
		require.NoError(t, err)
		require.NoError(t, svc.CancelOrder(ctx, order.ID, user.ID, user.Role))
	}

	// the fourth commits too, but comes back with the suspension signal
	addCartItem(t, db, cart.ID, prod.ID, 1)
	order, err := svc.PlaceOrder(ctx, user.ID)
	require.NoError(t, err)

	err = svc.CancelOrder(ctx, order.ID, user.ID, user.Role)
	require.ErrorIs(t, err, ErrAccountSuspended)

	var got models.Order
	require.NoError(t, db.First(&got, order.ID).Error)
	require.Equal(t, models.OrderStatusCancelled, got.Status)

	var owner models.User
	require.NoError(t, db.First(&owner, user.ID).Error)
	require.Equal(t, 4, owner.OrderCancellationCount)
	require.Equal(t, 100, productStock(t, db, prod.ID))
}

func TestCancellationCounterSeesCommittedCount(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	user := seedUser(t, db, "alice", models.RoleCustomer)
	prod := seedProduct(t, db, "widget", 10.00, 100)
	cart := seedCart(t, db, user.ID)

	addCartItem(t, db, cart.ID, prod.ID, 1)
	order, err := svc.PlaceOrder(ctx, user.ID)
	require.NoError(t, err)

	// Cancellations from another session land while this order is pending.
	// The increment reads the row state, not a count loaded earlier, so the
	// threshold check must see 3+1 here and signal suspension.
	require.NoError(t, db.Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("order_cancellation_count", 3).Error)

	err = svc.CancelOrder(ctx, order.ID, user.ID, user.Role)
	require.ErrorIs(t, err, ErrAccountSuspended)

	var owner models.User
	require.NoError(t, db.First(&owner, user.ID).Error)
	require.Equal(t, 4, owner.OrderCancellationCount)
}

func TestCancelSkipsDeletedProduct(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	user := seedUser(t, db, "alice", models.RoleCustomer)
	keep := seedProduct(t, db, "widget", 10.00, 5)
	gone := seedProduct(t, db, "gadget", 3.00, 5)
	cart := seedCart(t, db, user.ID)
	addCartItem(t, db, cart.ID, keep.ID, 1)
	addCartItem(t, db, cart.ID, gone.ID, 1)

	order, err := svc.PlaceOrder(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, db.Delete(&models.Product{}, gone.ID).Error)

	require.NoError(t, svc.CancelOrder(ctx, order.ID, user.ID, user.Role))
	require.Equal(t, 5, productStock(t, db, keep.ID))
}

func TestPlaceThenCancelRoundTrip(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	user := seedUser(t, db, "alice", models.RoleCustomer)
	p1 := seedProduct(t, db, "widget", 1.25, 7)
	p2 := seedProduct(t, db, "gadget", 99.90, 2)
	cart := seedCart(t, db, user.ID)
	addCartItem(t, db, cart.ID, p1.ID, 4)
	addCartItem(t, db, cart.ID, p2.ID, 2)

	order, err := svc.PlaceOrder(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, svc.CancelOrder(ctx, order.ID, user.ID, user.Role))

	require.Equal(t, 7, productStock(t, db, p1.ID))
	require.Equal(t, 2, productStock(t, db, p2.ID))
}

func TestListOrders(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", models.RoleCustomer)
	bob := seedUser(t, db, "bob", models.RoleCustomer)
	admin := seedUser(t, db, "root", models.RoleAdmin)

	prod := seedProduct(t, db, "widget", 10.00, 100)
	aliceCart := seedCart(t, db, alice.ID)
	bobCart := seedCart(t, db, bob.ID)

	addCartItem(t, db, aliceCart.ID, prod.ID, 1)
	first, err := svc.PlaceOrder(ctx, alice.ID)
	require.NoError(t, err)

	addCartItem(t, db, bobCart.ID, prod.ID, 1)
	_, err = svc.PlaceOrder(ctx, bob.ID)
	require.NoError(t, err)

	addCartItem(t, db, aliceCart.ID, prod.ID, 2)
	second, err := svc.PlaceOrder(ctx, alice.ID)
	require.NoError(t, err)

	mine, err := svc.ListOrders(ctx, alice.ID, alice.Role)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, second.ID, mine[0].ID) // newest first
	require.Equal(t, first.ID, mine[1].ID)
	require.Len(t, mine[0].Items, 1)

	all, err := svc.ListOrders(ctx, admin.ID, admin.Role)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestGetOrder(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice", models.RoleCustomer)
	bob := seedUser(t, db, "bob", models.RoleCustomer)
	admin := seedUser(t, db, "root", models.RoleAdmin)

	prod := seedProduct(t, db, "widget", 10.00, 100)
	cart := seedCart(t, db, alice.ID)
	addCartItem(t, db, cart.ID, prod.ID, 1)

	order, err := svc.PlaceOrder(ctx, alice.ID)
	require.NoError(t, err)

	got, err := svc.GetOrder(ctx, order.ID, alice.ID, alice.Role)
	require.NoError(t, err)
	require.Equal(t, order.ID, got.ID)
	require.Len(t, got.Items, 1)

	_, err = svc.GetOrder(ctx, order.ID, bob.ID, bob.Role)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.GetOrder(ctx, order.ID, admin.ID, admin.Role)
	require.NoError(t, err)

	_, err = svc.GetOrder(ctx, 999, alice.ID, alice.Role)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdateStatusIsPermissive(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	user := seedUser(t, db, "alice", models.RoleCustomer)
	prod := seedProduct(t, db, "widget", 10.00, 10)
	cart := seedCart(t, db, user.ID)
	addCartItem(t, db, cart.ID, prod.ID, 1)

	order, err := svc.PlaceOrder(ctx, user.ID)
	require.NoError(t, err)

	// forward and backward moves are both allowed
	for _, status := range []string{
		models.OrderStatusDelivered,
		models.OrderStatusPending,
		models.OrderStatusShipped,
	} {
		got, err := svc.UpdateStatus(ctx, order.ID, status)
		require.NoError(t, err)
		require.Equal(t, status, got.Status)
	}

	_, err = svc.UpdateStatus(ctx, order.ID, "exploded")
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpdateStatus(ctx, 999, models.OrderStatusShipped)
	require.ErrorIs(t, err, ErrOrderNotFound)
}
