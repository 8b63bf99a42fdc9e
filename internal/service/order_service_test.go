package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/store/storetest"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = util.InitLogger("test")
}

type recordingPublisher struct {
	mu       sync.Mutex
	err      error
	placed   []*models.OrderPlacedEvent
	statuses []*models.OrderStatusChangedEvent
	payments []*models.PaymentStatusChangedEvent
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, e)
	return p.err
}

func (p *recordingPublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, e)
	return p.err
}

func (p *recordingPublisher) PublishPaymentStatusChanged(_ context.Context, e *models.PaymentStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments = append(p.payments, e)
	return p.err
}

type orderFixture struct {
	store    *store.Store
	service  *OrderService
	events   *recordingPublisher
	admin    *auth.Identity
	customer *auth.Identity
	other    *auth.Identity
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()

	s := storetest.New(t)
	events := &recordingPublisher{}

	admin := storetest.User(t, s, "admin@example.com", models.RoleAdmin)
	customer := storetest.User(t, s, "alice@example.com", models.RoleUser)
	other := storetest.User(t, s, "bob@example.com", models.RoleUser)

	return &orderFixture{
		store:    s,
		service:  NewOrderService(s, events),
		events:   events,
		admin:    &auth.Identity{UserID: admin.ID, Role: models.RoleAdmin},
		customer: &auth.Identity{UserID: customer.ID, Role: models.RoleUser},
		other:    &auth.Identity{UserID: other.ID, Role: models.RoleUser},
	}
}

func checkout(lines ...OrderLineRequest) *PlaceOrderRequest {
	return &PlaceOrderRequest{
		Items:           lines,
		CustomerName:    "Jane Doe",
		CustomerEmail:   "jane@example.com",
		CustomerPhone:   "+1 555 0100",
		ShippingAddress: "1 Main St",
		ShippingCity:    "Springfield",
		ShippingCountry: "US",
		ShippingZip:     "12345",
		PaymentMethod:   models.PaymentMethodCreditCard,
	}
}

func orderLine(productID string, qty int, price int64) OrderLineRequest {
	return OrderLineRequest{ProductID: productID, Quantity: qty, Price: decimal.NewFromInt(price)}
}

func (f *orderFixture) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := f.store.GetProductByID(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func (f *orderFixture) orderCount(t *testing.T) int {
	t.Helper()
	orders, err := f.store.ListOrders(context.Background(), store.OrderFilter{})
	require.NoError(t, err)
	return len(orders)
}

func TestPlaceOrder(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	p1 := storetest.Product(t, f.store, "P1", 1000, 5)

	order, err := f.service.PlaceOrder(ctx, nil, checkout(orderLine(p1.ID, 1, 1000)))
	require.NoError(t, err)

	assert.True(t, order.Total.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Nil(t, order.UserID)
	assert.Regexp(t, regexp.MustCompile(`^ORD-\d{8}-[0-9A-F]{12}$`), order.OrderNumber)
	require.Len(t, order.Items, 1)
	assert.Equal(t, p1.ID, order.Items[0].ProductID)
	assert.Equal(t, 4, f.stock(t, p1.ID))

	require.Len(t, f.events.placed, 1)
	assert.Equal(t, order.ID, f.events.placed[0].OrderID)
	assert.Equal(t, models.EventTypeOrderPlaced, f.events.placed[0].EventType)
}

func TestPlaceOrder_TotalMatchesLines(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	a := storetest.Product(t, f.store, "a", 1000, 5)
	b := storetest.Product(t, f.store, "b", 250, 5)

	req := checkout(orderLine(a.ID, 2, 1000), OrderLineRequest{ProductID: b.ID, Quantity: 3, Price: decimal.RequireFromString("249.99")})
	order, err := f.service.PlaceOrder(ctx, f.customer, req)
	require.NoError(t, err)

	assert.Equal(t, "2749.97", order.Total.StringFixed(2))
	require.NotNil(t, order.UserID)
	assert.Equal(t, f.customer.UserID, *order.UserID)

	stored, err := f.store.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, item := range stored.Items {
		sum = sum.Add(item.Subtotal())
	}
	assert.True(t, stored.Total.Equal(sum))
	assert.Equal(t, 3, f.stock(t, a.ID))
	assert.Equal(t, 2, f.stock(t, b.ID))
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	p1 := storetest.Product(t, f.store, "P1", 1000, 5)

	_, err := f.service.PlaceOrder(ctx, f.customer, checkout(orderLine(p1.ID, 10, 1000)))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "P1", stockErr.ProductName)
	assert.Equal(t, "Insufficient stock for P1.", err.Error())
	assert.Equal(t, 5, f.stock(t, p1.ID))
	assert.Equal(t, 0, f.orderCount(t))
	assert.Empty(t, f.events.placed)
}

func TestPlaceOrder_PartialStockLeavesNothing(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	plenty := storetest.Product(t, f.store, "plenty", 500, 10)
	scarce := storetest.Product(t, f.store, "scarce", 700, 1)

	_, err := f.service.PlaceOrder(ctx, nil, checkout(orderLine(plenty.ID, 3, 500), orderLine(scarce.ID, 2, 700)))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, scarce.ID, stockErr.ProductID)
	assert.Equal(t, 10, f.stock(t, plenty.ID))
	assert.Equal(t, 1, f.stock(t, scarce.ID))
	assert.Equal(t, 0, f.orderCount(t))
}

func TestPlaceOrder_UnknownProduct(t *testing.T) {
	f := newOrderFixture(t)

	_, err := f.service.PlaceOrder(context.Background(), nil, checkout(orderLine("missing", 1, 100)))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Insufficient stock for a product.", err.Error())
}

func TestPlaceOrder_Validation(t *testing.T) {
	f := newOrderFixture(t)
	p := storetest.Product(t, f.store, "p", 1000, 5)

	tests := []struct {
		name   string
		mutate func(r *PlaceOrderRequest)
		field  string
	}{
		{"no items", func(r *PlaceOrderRequest) { r.Items = nil }, "items"},
		{"zero quantity", func(r *PlaceOrderRequest) { r.Items[0].Quantity = 0 }, "items[0].quantity"},
		{"negative quantity", func(r *PlaceOrderRequest) { r.Items[0].Quantity = -1 }, "items[0].quantity"},
		{"zero price", func(r *PlaceOrderRequest) { r.Items[0].Price = decimal.Zero }, "items[0].price"},
		{"negative price", func(r *PlaceOrderRequest) { r.Items[0].Price = decimal.NewFromInt(-5) }, "items[0].price"},
		{"sub-cent price", func(r *PlaceOrderRequest) { r.Items[0].Price = decimal.RequireFromString("10.001") }, "items[0].price"},
		{"price beyond storable range", func(r *PlaceOrderRequest) { r.Items[0].Price = decimal.New(1, 10) }, "items[0].price"},
		{"quantity beyond int32", func(r *PlaceOrderRequest) { r.Items[0].Quantity = 1 << 31 }, "items[0].quantity"},
		{"total beyond storable range", func(r *PlaceOrderRequest) {
			r.Items[0].Price = decimal.RequireFromString("9999999999.99")
			r.Items[0].Quantity = 2
		}, "total"},
		{"missing product", func(r *PlaceOrderRequest) { r.Items[0].ProductID = " " }, "items[0].product_id"},
		{"bad email", func(r *PlaceOrderRequest) { r.CustomerEmail = "not-an-email" }, "customer_email"},
		{"blank name", func(r *PlaceOrderRequest) { r.CustomerName = "   " }, "customer_name"},
		{"missing phone", func(r *PlaceOrderRequest) { r.CustomerPhone = "" }, "customer_phone"},
		{"missing address", func(r *PlaceOrderRequest) { r.ShippingAddress = "" }, "shipping_address"},
		{"missing city", func(r *PlaceOrderRequest) { r.ShippingCity = "" }, "shipping_city"},
		{"missing country", func(r *PlaceOrderRequest) { r.ShippingCountry = "" }, "shipping_country"},
		{"unknown payment method", func(r *PlaceOrderRequest) { r.PaymentMethod = "bitcoin" }, "payment_method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := checkout(orderLine(p.ID, 1, 1000))
			tt.mutate(req)

			_, err := f.service.PlaceOrder(context.Background(), nil, req)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	assert.Equal(t, 5, f.stock(t, p.ID))
	assert.Equal(t, 0, f.orderCount(t))
}

func TestPlaceOrder_OptionalZip(t *testing.T) {
	f := newOrderFixture(t)
	p := storetest.Product(t, f.store, "p", 1000, 5)

	req := checkout(orderLine(p.ID, 1, 1000))
	req.ShippingZip = ""
	req.PaymentMethod = models.PaymentMethodCashOnDelivery

	_, err := f.service.PlaceOrder(context.Background(), nil, req)
	require.NoError(t, err)
}

func TestPlaceOrder_PublishFailureIsNotAnError(t *testing.T) {
	f := newOrderFixture(t)
	f.events.err = errors.New("broker down")
	p := storetest.Product(t, f.store, "p", 1000, 5)

	_, err := f.service.PlaceOrder(context.Background(), nil, checkout(orderLine(p.ID, 1, 1000)))
	require.NoError(t, err)
	assert.Equal(t, 1, f.orderCount(t))
}

func TestPlaceOrder_ConcurrentLastUnit(t *testing.T) {
	f := newOrderFixture(t)
	p := storetest.Product(t, f.store, "last", 1000, 1)

	const buyers = 2
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, buyers)
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.service.PlaceOrder(context.Background(), nil, checkout(orderLine(p.ID, 1, 1000)))
		}(i)
	}
	close(start)
	wg.Wait()

	var succeeded, outOfStock int
	for _, err := range errs {
		var stockErr *InsufficientStockError
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &stockErr):
			outOfStock++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, outOfStock)
	assert.Equal(t, 0, f.stock(t, p.ID))
	assert.Equal(t, 1, f.orderCount(t))
}

func TestPlaceOrder_ConcurrentOversubscription(t *testing.T) {
	f := newOrderFixture(t)
	p := storetest.Product(t, f.store, "hot", 1000, 3)

	const buyers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.PlaceOrder(context.Background(), nil, checkout(orderLine(p.ID, 1, 1000)))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 0, f.stock(t, p.ID))
}

func placed(t *testing.T, f *orderFixture, identity *auth.Identity) *models.OrderDetails {
	t.Helper()
	p := storetest.Product(t, f.store, "laptop", 1000, 10)
	order, err := f.service.PlaceOrder(context.Background(), identity, checkout(orderLine(p.ID, 1, 1000)))
	require.NoError(t, err)
	return order
}

func TestUpdateOrderStatus_Lifecycle(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := placed(t, f, f.customer)

	for _, next := range []string{"PROCESSING", "SHIPPED", "DELIVERED"} {
		require.NoError(t, f.service.UpdateOrderStatus(ctx, f.admin, order.ID, next))
	}

	for _, next := range []string{"PENDING", "PROCESSING", "SHIPPED", "CANCELLED", "DELIVERED"} {
		err := f.service.UpdateOrderStatus(ctx, f.admin, order.ID, next)
		assert.ErrorIs(t, err, ErrInvalidTransition, next)
	}

	got, err := f.store.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, got.Status)

	require.Len(t, f.events.statuses, 3)
	assert.Equal(t, models.OrderStatusShipped, f.events.statuses[2].From)
	assert.Equal(t, models.OrderStatusDelivered, f.events.statuses[2].To)
}

func TestUpdateOrderStatus_CancelFromPending(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := placed(t, f, nil)

	require.NoError(t, f.service.UpdateOrderStatus(ctx, f.admin, order.ID, "CANCELLED"))

	err := f.service.UpdateOrderStatus(ctx, f.admin, order.ID, "PROCESSING")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateOrderStatus_CancelDoesNotRestock(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	p := storetest.Product(t, f.store, "p", 1000, 2)
	order, err := f.service.PlaceOrder(ctx, nil, checkout(orderLine(p.ID, 1, 1000)))
	require.NoError(t, err)

	require.NoError(t, f.service.UpdateOrderStatus(ctx, f.admin, order.ID, "CANCELLED"))
	assert.Equal(t, 1, f.stock(t, p.ID))
}

func TestUpdateOrderStatus_Rejections(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := placed(t, f, f.customer)

	err := f.service.UpdateOrderStatus(ctx, f.admin, order.ID, "LOST")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "status")

	err = f.service.UpdateOrderStatus(ctx, f.admin, order.ID, "SHIPPED")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = f.service.UpdateOrderStatus(ctx, f.customer, order.ID, "PROCESSING")
	assert.ErrorIs(t, err, ErrForbidden)

	err = f.service.UpdateOrderStatus(ctx, nil, order.ID, "PROCESSING")
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = f.service.UpdateOrderStatus(ctx, f.admin, "missing", "PROCESSING")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := f.store.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, got.Status)
	assert.Empty(t, f.events.statuses)
}

func TestUpdatePaymentStatus(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := placed(t, f, nil)

	require.NoError(t, f.service.UpdatePaymentStatus(ctx, f.admin, order.ID, "PAID"))
	require.NoError(t, f.service.UpdatePaymentStatus(ctx, f.admin, order.ID, "REFUNDED"))

	got, err := f.store.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, got.PaymentStatus)
	assert.Equal(t, models.OrderStatusPending, got.Status)
	assert.Len(t, f.events.payments, 2)

	var verr *ValidationError
	assert.ErrorAs(t, f.service.UpdatePaymentStatus(ctx, f.admin, order.ID, "SETTLED"), &verr)
	assert.ErrorIs(t, f.service.UpdatePaymentStatus(ctx, f.customer, order.ID, "PAID"), ErrForbidden)
	assert.ErrorIs(t, f.service.UpdatePaymentStatus(ctx, f.admin, "missing", "PAID"), ErrNotFound)
}

func TestListOrders_Scoping(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	mine := placed(t, f, f.customer)
	theirs := placed(t, f, f.other)
	anonymous := placed(t, f, nil)
	require.NoError(t, f.service.UpdateOrderStatus(ctx, f.admin, theirs.ID, "PROCESSING"))
	require.NoError(t, f.service.UpdateOrderStatus(ctx, f.admin, theirs.ID, "SHIPPED"))
	require.NoError(t, f.service.UpdateOrderStatus(ctx, f.admin, theirs.ID, "DELIVERED"))

	_, err := f.service.ListOrders(ctx, nil, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	own, err := f.service.ListOrders(ctx, f.customer, "")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, mine.ID, own[0].ID)
	assert.Nil(t, own[0].User)
	require.Len(t, own[0].Items, 1)
	assert.Equal(t, "laptop", own[0].Items[0].ProductName)
	assert.NotEmpty(t, own[0].Items[0].ProductImage)

	all, err := f.service.ListOrders(ctx, f.admin, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, anonymous.ID, all[0].ID)
	assert.Equal(t, theirs.ID, all[1].ID)
	assert.Equal(t, mine.ID, all[2].ID)
	require.NotNil(t, all[1].User)
	assert.Equal(t, "bob@example.com", all[1].User.Email)
	assert.Nil(t, all[0].User)

	delivered, err := f.service.ListOrders(ctx, f.admin, "DELIVERED")
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.Equal(t, theirs.ID, delivered[0].ID)

	none, err := f.service.ListOrders(ctx, f.customer, "DELIVERED")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.service.ListOrders(ctx, f.admin, "LOST")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestGetOrder_Scoping(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	mine := placed(t, f, f.customer)
	anonymous := placed(t, f, nil)

	got, err := f.service.GetOrder(ctx, f.customer, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.OrderNumber, got.OrderNumber)
	assert.Nil(t, got.User)

	_, err = f.service.GetOrder(ctx, f.other, mine.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.service.GetOrder(ctx, f.customer, anonymous.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.service.GetOrder(ctx, nil, mine.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	asAdmin, err := f.service.GetOrder(ctx, f.admin, mine.ID)
	require.NoError(t, err)
	require.NotNil(t, asAdmin.User)
	assert.Equal(t, "alice@example.com", asAdmin.User.Email)

	_, err = f.service.GetOrder(ctx, f.admin, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDashboardStats_RequiresAdmin(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	placed(t, f, f.customer)

	_, err := f.service.DashboardStats(ctx, f.customer)
	assert.ErrorIs(t, err, ErrForbidden)

	stats, err := f.service.DashboardStats(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalOrders)
	assert.Equal(t, 2, stats.TotalCustomers)
}

func TestGenerateOrderNumber(t *testing.T) {
	at := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	a := generateOrderNumber(at)
	b := generateOrderNumber(at)

	assert.Regexp(t, `^ORD-20240309-[0-9A-F]{12}$`, a)
	assert.NotEqual(t, a, b)
}
