package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/auth"
	"storefront/internal/cart"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// CartService keeps server-side carts keyed by an opaque cart id and submits
// them through the order workflow
type CartService struct {
	store   *store.Store
	storage cart.Storage
	orders  *OrderService
	logger  *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store *store.Store, storage cart.Storage, orders *OrderService) *CartService {
	return &CartService{
		store:   store,
		storage: storage,
		orders:  orders,
		logger:  util.GetLogger(),
	}
}

// CheckoutRequest is a checkout form without lines; the lines come from the cart
type CheckoutRequest struct {
	CustomerName    string               `json:"customer_name"`
	CustomerEmail   string               `json:"customer_email"`
	CustomerPhone   string               `json:"customer_phone"`
	ShippingAddress string               `json:"shipping_address"`
	ShippingCity    string               `json:"shipping_city"`
	ShippingCountry string               `json:"shipping_country"`
	ShippingZip     string               `json:"shipping_zip"`
	PaymentMethod   models.PaymentMethod `json:"payment_method"`
}

// Open returns the hydrated cart stored under cartID
func (s *CartService) Open(ctx context.Context, cartID string) (*cart.Cart, error) {
	c := cart.New(cartID, s.storage)
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// AddProduct adds one unit of a catalog product. Name, price, image and brand
// are copied from the catalog at the time of the add.
func (s *CartService) AddProduct(ctx context.Context, cartID, productID string) (*cart.Cart, cart.Ack, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddProduct")
	defer span.End()

	if productID == "" {
		return nil, "", newValidationError("product_id", "is required")
	}

	product, err := s.store.GetProductByID(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load product: %w", err)
	}

	item := cart.Item{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.Price,
		Image:     product.PrimaryImage(),
		Brand:     product.Brand,
	}
	return cart.Update(ctx, cartID, s.storage, func(ctx context.Context, c *cart.Cart) (cart.Ack, error) {
		return c.AddItem(ctx, item)
	})
}

// UpdateQuantity sets the quantity of a line; qty <= 0 removes it
func (s *CartService) UpdateQuantity(ctx context.Context, cartID, productID string, qty int) (*cart.Cart, cart.Ack, error) {
	return cart.Update(ctx, cartID, s.storage, func(ctx context.Context, c *cart.Cart) (cart.Ack, error) {
		return c.UpdateQuantity(ctx, productID, qty)
	})
}

// RemoveItem drops a line
func (s *CartService) RemoveItem(ctx context.Context, cartID, productID string) (*cart.Cart, cart.Ack, error) {
	return cart.Update(ctx, cartID, s.storage, func(ctx context.Context, c *cart.Cart) (cart.Ack, error) {
		return c.RemoveItem(ctx, productID)
	})
}

// Clear empties the cart
func (s *CartService) Clear(ctx context.Context, cartID string) (*cart.Cart, cart.Ack, error) {
	return cart.Update(ctx, cartID, s.storage, func(ctx context.Context, c *cart.Cart) (cart.Ack, error) {
		return c.Clear(ctx)
	})
}

// Checkout places an order for the cart contents and, once the order has
// committed, deducts the ordered quantities from the cart. Units added while
// the order was being placed stay in the cart. A failed checkout leaves the
// cart untouched.
func (s *CartService) Checkout(ctx context.Context, identity *auth.Identity, cartID string, req *CheckoutRequest) (*models.OrderDetails, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Checkout")
	defer span.End()

	c, err := s.Open(ctx, cartID)
	if err != nil {
		return nil, err
	}

	items := c.Items()
	if len(items) == 0 {
		return nil, newValidationError("items", "cart is empty")
	}

	order := &PlaceOrderRequest{
		Items:           make([]OrderLineRequest, len(items)),
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		ShippingCity:    req.ShippingCity,
		ShippingCountry: req.ShippingCountry,
		ShippingZip:     req.ShippingZip,
		PaymentMethod:   req.PaymentMethod,
	}
	for i, item := range items {
		order.Items[i] = OrderLineRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}

	placed, err := s.orders.PlaceOrder(ctx, identity, order)
	if err != nil {
		return nil, err
	}

	_, _, err = cart.Update(ctx, cartID, s.storage, func(ctx context.Context, c *cart.Cart) (cart.Ack, error) {
		return c.Deduct(ctx, items)
	})
	if err != nil {
		s.logger.Error("Failed to update cart after checkout",
			zap.String("cart", cartID),
			zap.String("order_id", placed.ID),
			zap.Error(err))
	}
	return placed, nil
}
