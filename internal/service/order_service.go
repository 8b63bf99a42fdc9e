package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EventPublisher receives order domain events after the owning transaction commits
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishPaymentStatusChanged(ctx context.Context, event *models.PaymentStatusChangedEvent) error
}

// OrderService handles order placement, fulfillment and queries
type OrderService struct {
	store  *store.Store
	events EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(store *store.Store, events EventPublisher) *OrderService {
	return &OrderService{
		store:  store,
		events: events,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// PlaceOrderRequest is a checkout submission. Line prices come from the client.
type PlaceOrderRequest struct {
	Items           []OrderLineRequest   `json:"items" validate:"required,min=1,dive"`
	CustomerName    string               `json:"customer_name" validate:"required"`
	CustomerEmail   string               `json:"customer_email" validate:"required,email"`
	CustomerPhone   string               `json:"customer_phone" validate:"required"`
	ShippingAddress string               `json:"shipping_address" validate:"required"`
	ShippingCity    string               `json:"shipping_city" validate:"required"`
	ShippingCountry string               `json:"shipping_country" validate:"required"`
	ShippingZip     string               `json:"shipping_zip"`
	PaymentMethod   models.PaymentMethod `json:"payment_method" validate:"required,oneof=credit_card paypal cash_on_delivery"`
}

// OrderLineRequest is one submitted cart line
type OrderLineRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0,lte=2147483647"`
	Price     decimal.Decimal `json:"price" validate:"-"`
}

func (r *PlaceOrderRequest) normalize() {
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerEmail = strings.TrimSpace(r.CustomerEmail)
	r.CustomerPhone = strings.TrimSpace(r.CustomerPhone)
	r.ShippingAddress = strings.TrimSpace(r.ShippingAddress)
	r.ShippingCity = strings.TrimSpace(r.ShippingCity)
	r.ShippingCountry = strings.TrimSpace(r.ShippingCountry)
	r.ShippingZip = strings.TrimSpace(r.ShippingZip)
	for i := range r.Items {
		r.Items[i].ProductID = strings.TrimSpace(r.Items[i].ProductID)
	}
}

func (r *PlaceOrderRequest) validate() error {
	verr := validateStruct(r)
	if verr == nil {
		verr = &ValidationError{}
	}
	for i, item := range r.Items {
		if problem := amountProblem(item.Price); problem != "" {
			verr.add(fmt.Sprintf("items[%d].price", i), problem)
		}
	}
	if len(verr.Fields) == 0 && r.total().GreaterThanOrEqual(maxAmount) {
		verr.add("total", fmt.Sprintf("must be less than %s", maxAmount))
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// total sums the submitted line prices
func (r *PlaceOrderRequest) total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range r.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// PlaceOrder validates a checkout and commits the order together with the
// stock decrements of every line. Anonymous checkout is allowed; a non-nil
// identity links the order to the account.
func (s *OrderService) PlaceOrder(ctx context.Context, identity *auth.Identity, req *PlaceOrderRequest) (*models.OrderDetails, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	req.normalize()
	if err := req.validate(); err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:              uuid.NewString(),
		OrderNumber:     generateOrderNumber(now),
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		ShippingCity:    req.ShippingCity,
		ShippingCountry: req.ShippingCountry,
		ShippingZip:     req.ShippingZip,
		PaymentMethod:   req.PaymentMethod,
		Total:           req.total(),
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
	}
	if identity != nil {
		userID := identity.UserID
		order.UserID = &userID
	}

	items := make([]models.OrderItem, len(req.Items))
	for i, line := range req.Items {
		items[i] = models.OrderItem{
			ID:        uuid.NewString(),
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     line.Price,
		}
	}

	start := time.Now()
	err := s.store.PlaceOrderTx(ctx, order, items)
	util.OrderPlacementLatency.Observe(time.Since(start).Seconds())

	var stockErr *store.StockError
	switch {
	case errors.As(err, &stockErr):
		util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
		s.logger.Info("Order rejected for insufficient stock",
			zap.String("product_id", stockErr.ProductID),
			zap.Int("requested", stockErr.Requested))
		return nil, &InsufficientStockError{ProductID: stockErr.ProductID, ProductName: stockErr.ProductName}
	case err != nil:
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.Total.String()))

	s.publishOrderPlaced(ctx, order, items)

	details := &models.OrderDetails{Order: *order, Items: make([]models.OrderItemDetails, len(items))}
	for i, item := range items {
		details.Items[i] = models.OrderItemDetails{OrderItem: item}
	}
	return details, nil
}

func (s *OrderService) publishOrderPlaced(ctx context.Context, order *models.Order, items []models.OrderItem) {
	data := make([]models.OrderItemData, len(items))
	for i, item := range items {
		data[i] = models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}

	event := &models.OrderPlacedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderPlaced, order.CreatedAt),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Total:       order.Total,
		Items:       data,
	}
	if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}
}

// UpdateOrderStatus moves an order one step through the fulfillment state
// machine. Unknown values are rejected before anything is read or written.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, identity *auth.Identity, orderID, status string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderStatus")
	defer span.End()

	if err := requireAdmin(identity); err != nil {
		return err
	}

	next, err := models.ParseOrderStatus(strings.TrimSpace(status))
	if err != nil {
		return newValidationError("status", "must be one of: PENDING PROCESSING SHIPPED DELIVERED CANCELLED")
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}

	current := order.Status
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, next)
	}

	switch err := s.store.UpdateOrderStatus(ctx, orderID, current, next); {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrStatusConflict):
		return fmt.Errorf("%w: order %s is no longer %s", ErrConflict, order.OrderNumber, current)
	case err != nil:
		return fmt.Errorf("failed to update order status: %w", err)
	}

	util.OrderStatusTransitionsTotal.WithLabelValues(string(current), string(next)).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("from", string(current)),
		zap.String("to", string(next)),
		zap.String("admin_id", identity.UserID))

	event := &models.OrderStatusChangedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderStatusChanged, s.now().UTC()),
		OrderID:   orderID,
		From:      current,
		To:        next,
	}
	if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
	return nil
}

// UpdatePaymentStatus records a payment outcome. Payment status is independent
// of the fulfillment state machine.
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, identity *auth.Identity, orderID, status string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdatePaymentStatus")
	defer span.End()

	if err := requireAdmin(identity); err != nil {
		return err
	}

	next, err := models.ParsePaymentStatus(strings.TrimSpace(status))
	if err != nil {
		return newValidationError("payment_status", "must be one of: PENDING PAID FAILED REFUNDED")
	}

	switch err := s.store.UpdatePaymentStatus(ctx, orderID, next); {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("failed to update payment status: %w", err)
	}

	s.logger.Info("Payment status updated",
		zap.String("order_id", orderID),
		zap.String("payment_status", string(next)))

	event := &models.PaymentStatusChangedEvent{
		BaseEvent: newBaseEvent(models.EventTypePaymentStatusChanged, s.now().UTC()),
		OrderID:   orderID,
		Status:    next,
	}
	if err := s.events.PublishPaymentStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish PaymentStatusChanged event",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
	return nil
}

// ListOrders returns orders newest first. Customers only see their own orders
// and never the purchaser fields; admins see every order.
func (s *OrderService) ListOrders(ctx context.Context, identity *auth.Identity, status string) ([]models.OrderDetails, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	if identity == nil {
		return nil, ErrUnauthorized
	}

	var filter store.OrderFilter
	if status = strings.TrimSpace(status); status != "" {
		parsed, err := models.ParseOrderStatus(status)
		if err != nil {
			return nil, newValidationError("status", "must be one of: PENDING PROCESSING SHIPPED DELIVERED CANCELLED")
		}
		filter.Status = parsed
	}
	if !identity.IsAdmin() {
		userID := identity.UserID
		filter.UserID = &userID
	}

	orders, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	if !identity.IsAdmin() {
		for i := range orders {
			orders[i].User = nil
		}
	}
	return orders, nil
}

// GetOrder returns one order under the same scoping as ListOrders. Orders of
// other customers are reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, identity *auth.Identity, orderID string) (*models.OrderDetails, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	if identity == nil {
		return nil, ErrUnauthorized
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if !identity.IsAdmin() {
		if order.UserID == nil || *order.UserID != identity.UserID {
			return nil, ErrNotFound
		}
		order.User = nil
	}
	return order, nil
}

// DashboardStats returns the back office summary
func (s *OrderService) DashboardStats(ctx context.Context, identity *auth.Identity) (*models.DashboardStats, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.DashboardStats")
	defer span.End()

	if err := requireAdmin(identity); err != nil {
		return nil, err
	}

	stats, err := s.store.GetDashboardStats(ctx, 5)
	if err != nil {
		return nil, fmt.Errorf("failed to load dashboard stats: %w", err)
	}
	return stats, nil
}

// generateOrderNumber returns ORD-YYYYMMDD- followed by 12 random hex digits
func generateOrderNumber(now time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), id[:12])
}

func newBaseEvent(eventType string, at time.Time) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: at,
	}
}

func requireAdmin(identity *auth.Identity) error {
	if identity == nil {
		return ErrUnauthorized
	}
	if !identity.IsAdmin() {
		return ErrForbidden
	}
	return nil
}
