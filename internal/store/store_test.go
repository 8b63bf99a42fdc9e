package store_test

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/store/storetest"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(userID *string) *models.Order {
	return &models.Order{
		ID:              uuid.NewString(),
		OrderNumber:     "ORD-" + uuid.NewString()[:12],
		CustomerName:    "Jane Doe",
		CustomerEmail:   "jane@example.com",
		CustomerPhone:   "+1 555 0100",
		ShippingAddress: "1 Main St",
		ShippingCity:    "Springfield",
		ShippingCountry: "US",
		PaymentMethod:   models.PaymentMethodCreditCard,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		UserID:          userID,
	}
}

func line(productID string, qty int, price int64) models.OrderItem {
	return models.OrderItem{
		ID:        uuid.NewString(),
		ProductID: productID,
		Quantity:  qty,
		Price:     decimal.NewFromInt(price),
	}
}

func TestPlaceOrderTx(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	p := storetest.Product(t, s, "xps", 1000, 5)

	order := newOrder(nil)
	order.Total = decimal.NewFromInt(2000)
	items := []models.OrderItem{line(p.ID, 2, 1000)}

	require.NoError(t, s.PlaceOrderTx(ctx, order, items))

	got, err := s.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, got.OrderNumber)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(2000)))
	assert.Nil(t, got.UserID)
	assert.Nil(t, got.User)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "xps", got.Items[0].ProductName)
	assert.Equal(t, p.Images[0], got.Items[0].ProductImage)
	assert.Equal(t, 2, got.Items[0].Quantity)

	after, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, after.Stock)
}

func TestPlaceOrderTx_InsufficientStockRollsBack(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	plenty := storetest.Product(t, s, "gram", 1500, 10)
	scarce := storetest.Product(t, s, "blade", 2800, 1)

	order := newOrder(nil)
	items := []models.OrderItem{line(plenty.ID, 3, 1500), line(scarce.ID, 2, 2800)}

	err := s.PlaceOrderTx(ctx, order, items)
	var stockErr *store.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "blade", stockErr.ProductName)

	_, err = s.GetOrderByID(ctx, order.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	p1, err := s.GetProductByID(ctx, plenty.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, p1.Stock)

	p2, err := s.GetProductByID(ctx, scarce.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p2.Stock)
}

func TestPlaceOrderTx_RepeatedProductLinesAccumulate(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	p := storetest.Product(t, s, "zephyrus", 1650, 3)

	err := s.PlaceOrderTx(ctx, newOrder(nil), []models.OrderItem{line(p.ID, 2, 1650), line(p.ID, 2, 1650)})
	var stockErr *store.StockError
	require.True(t, errors.As(err, &stockErr))

	after, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, after.Stock)
}

func TestPlaceOrderTx_UnknownProduct(t *testing.T) {
	s := storetest.New(t)

	err := s.PlaceOrderTx(context.Background(), newOrder(nil), []models.OrderItem{line("missing", 1, 10)})
	var stockErr *store.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Empty(t, stockErr.ProductName)
	assert.Equal(t, "insufficient stock for a product", stockErr.Error())
}

func TestPlaceOrderTx_CancelledContext(t *testing.T) {
	s := storetest.New(t)
	p := storetest.Product(t, s, "swift", 1100, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.PlaceOrderTx(ctx, newOrder(nil), []models.OrderItem{line(p.ID, 1, 1100)})
	require.Error(t, err)

	after, err := s.GetProductByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, after.Stock)
}

func TestListOrders_Scoping(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	alice := storetest.User(t, s, "alice@example.com", models.RoleUser)
	bob := storetest.User(t, s, "bob@example.com", models.RoleUser)
	p := storetest.Product(t, s, "spectre", 1550, 50)

	first := newOrder(&alice.ID)
	require.NoError(t, s.PlaceOrderTx(ctx, first, []models.OrderItem{line(p.ID, 1, 1550)}))
	second := newOrder(&alice.ID)
	require.NoError(t, s.PlaceOrderTx(ctx, second, []models.OrderItem{line(p.ID, 1, 1550)}))
	require.NoError(t, s.PlaceOrderTx(ctx, newOrder(&bob.ID), []models.OrderItem{line(p.ID, 1, 1550)}))
	require.NoError(t, s.PlaceOrderTx(ctx, newOrder(nil), []models.OrderItem{line(p.ID, 1, 1550)}))

	mine, err := s.ListOrders(ctx, store.OrderFilter{UserID: &alice.ID})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID, "newest first")
	assert.Equal(t, first.ID, mine[1].ID)
	require.NotNil(t, mine[0].User)
	assert.Equal(t, "alice@example.com", mine[0].User.Email)

	all, err := s.ListOrders(ctx, store.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	for _, o := range all {
		assert.Len(t, o.Items, 1)
	}

	require.NoError(t, s.UpdateOrderStatus(ctx, first.ID, models.OrderStatusPending, models.OrderStatusCancelled))
	cancelled, err := s.ListOrders(ctx, store.OrderFilter{Status: models.OrderStatusCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, first.ID, cancelled[0].ID)
}

func TestUpdateOrderStatus_CompareAndSet(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	p := storetest.Product(t, s, "surface", 1300, 5)
	order := newOrder(nil)
	require.NoError(t, s.PlaceOrderTx(ctx, order, []models.OrderItem{line(p.ID, 1, 1300)}))

	require.NoError(t, s.UpdateOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusProcessing))

	err := s.UpdateOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusCancelled)
	assert.ErrorIs(t, err, store.ErrStatusConflict)

	err = s.UpdateOrderStatus(ctx, "nope", models.OrderStatusPending, models.OrderStatusCancelled)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.UpdatePaymentStatus(ctx, order.ID, models.PaymentStatusPaid))
	got, err := s.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, got.Status)
	assert.Equal(t, models.PaymentStatusPaid, got.PaymentStatus)
}

func TestProducts_FilterAndDelete(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	cheap := storetest.Product(t, s, "chromebook", 300, 5)
	mid := storetest.Product(t, s, "thinkpad", 1900, 5)
	storetest.Product(t, s, "macbook", 2400, 5)

	min := decimal.NewFromInt(1000)
	max := decimal.NewFromInt(2000)
	got, err := s.ListProducts(ctx, store.ProductFilter{MinPrice: &min, MaxPrice: &max})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mid.ID, got[0].ID)

	got, err = s.ListProducts(ctx, store.ProductFilter{Search: "THINK"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = s.ListProducts(ctx, store.ProductFilter{SortBy: "price", Desc: true})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "macbook", got[0].Name)
	assert.Equal(t, cheap.ID, got[2].ID)

	require.NoError(t, s.PlaceOrderTx(ctx, newOrder(nil), []models.OrderItem{line(mid.ID, 1, 1900)}))
	assert.ErrorIs(t, s.DeleteProduct(ctx, mid.ID), store.ErrProductInUse)
	assert.NoError(t, s.DeleteProduct(ctx, cheap.ID))
	assert.ErrorIs(t, s.DeleteProduct(ctx, cheap.ID), store.ErrNotFound)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s := storetest.New(t)
	storetest.User(t, s, "dup@example.com", models.RoleUser)

	err := s.CreateUser(context.Background(), &models.User{
		ID: uuid.NewString(), Email: "dup@example.com", Name: "Dup", Password: "x", Role: models.RoleUser,
	})
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)
}

func TestGetDashboardStats(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	storetest.User(t, s, "admin@example.com", models.RoleAdmin)
	customer := storetest.User(t, s, "c@example.com", models.RoleUser)
	p := storetest.Product(t, s, "spectre", 1500, 10)
	storetest.Product(t, s, "envy", 900, 10)

	delivered := newOrder(&customer.ID)
	delivered.Total = decimal.NewFromInt(3000)
	require.NoError(t, s.PlaceOrderTx(ctx, delivered, []models.OrderItem{line(p.ID, 2, 1500)}))
	for _, step := range []models.OrderStatus{models.OrderStatusProcessing, models.OrderStatusShipped, models.OrderStatusDelivered} {
		got, err := s.GetOrderByID(ctx, delivered.ID)
		require.NoError(t, err)
		require.NoError(t, s.UpdateOrderStatus(ctx, delivered.ID, got.Status, step))
	}

	pending := newOrder(nil)
	pending.Total = decimal.NewFromInt(1500)
	require.NoError(t, s.PlaceOrderTx(ctx, pending, []models.OrderItem{line(p.ID, 1, 1500)}))

	stats, err := s.GetDashboardStats(ctx, 5)
	require.NoError(t, err)
	assert.True(t, stats.TotalRevenue.Equal(decimal.NewFromInt(3000)), stats.TotalRevenue.String())
	assert.Equal(t, 2, stats.TotalOrders)
	assert.Equal(t, 1, stats.TotalCustomers)
	assert.Equal(t, 2, stats.TotalProducts)
	require.Len(t, stats.RecentOrders, 2)
	assert.Equal(t, pending.ID, stats.RecentOrders[0].ID)
}

func TestGetDashboardStats_Empty(t *testing.T) {
	s := storetest.New(t)

	stats, err := s.GetDashboardStats(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, stats.TotalRevenue.IsZero())
	assert.Empty(t, stats.RecentOrders)
}
