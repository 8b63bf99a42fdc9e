// Package cart holds a shopper's draft purchase. The cart is never checked
// against live stock; only order placement is authoritative.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrNotHydrated is returned by mutations issued before Load completed
	ErrNotHydrated = errors.New("cart not hydrated")
	// ErrNoSnapshot is returned by a Storage holding nothing for a key
	ErrNoSnapshot = errors.New("no cart snapshot")
	// ErrInvalidItem is returned when an item has no product id
	ErrInvalidItem = errors.New("cart item requires a product id")
	// ErrContended is returned by a Storage that gave up on an update after
	// repeated concurrent writes to the same key
	ErrContended = errors.New("cart is being modified concurrently")
)

// Item is one cart line, keyed by ProductID
type Item struct {
	ProductID string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image"`
	Brand     string          `json:"brand"`
}

// Ack is the acknowledgment shown to the shopper after a mutation
type Ack string

const (
	AckAdded       Ack = "Item added to cart!"
	AckIncremented Ack = "Item quantity updated in cart!"
	AckUpdated     Ack = "Cart updated"
	AckRemoved     Ack = "Item removed from cart"
	AckCleared     Ack = "Cart cleared"
)

// Storage is the key-value mirror a cart persists to.
//
// UpdateCart performs one atomic read-modify-write of the snapshot under key:
// fn receives the current snapshot (nil when there is none) and returns the
// replacement. An error from fn aborts the update without writing. fn may be
// invoked more than once when the storage retries after a concurrent write.
type Storage interface {
	LoadCart(ctx context.Context, key string) ([]byte, error)
	SaveCart(ctx context.Context, key string, data []byte) error
	UpdateCart(ctx context.Context, key string, fn func(data []byte) ([]byte, error)) error
}

type Cart struct {
	mu      sync.Mutex
	key     string
	storage Storage
	items   []Item

	hydrated bool
	ready    chan struct{}
}

// New returns an unhydrated cart mirrored to storage under key
func New(key string, storage Storage) *Cart {
	return &Cart{
		key:     key,
		storage: storage,
		ready:   make(chan struct{}),
	}
}

// Key returns the storage key of the cart
func (c *Cart) Key() string {
	return c.key
}

// Load rehydrates the cart from storage. A missing or unreadable snapshot
// starts an empty cart; a storage failure leaves the cart unhydrated so a
// later Load can retry. Only the first successful call has any effect.
func (c *Cart) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hydrated {
		return nil
	}

	data, err := c.storage.LoadCart(ctx, c.key)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		data = nil
	case err != nil:
		return fmt.Errorf("load cart: %w", err)
	}

	c.hydrateLocked(data)
	return nil
}

// Update applies fn to the cart stored under key as a single atomic
// read-modify-write on storage. Concurrent updates of the same key are never
// lost. The returned cart reflects the written snapshot and stays mirrored to
// storage.
func Update(ctx context.Context, key string, storage Storage, fn func(ctx context.Context, c *Cart) (Ack, error)) (*Cart, Ack, error) {
	var (
		c   *Cart
		ack Ack
	)

	err := storage.UpdateCart(ctx, key, func(data []byte) ([]byte, error) {
		c = New(key, nil)
		c.mu.Lock()
		c.hydrateLocked(data)
		c.mu.Unlock()

		var err error
		if ack, err = fn(ctx, c); err != nil {
			return nil, err
		}
		return c.snapshot()
	})
	if err != nil {
		return nil, "", err
	}

	c.mu.Lock()
	c.storage = storage
	c.mu.Unlock()
	return c, ack, nil
}

// hydrateLocked decodes a snapshot and marks the cart ready. A nil snapshot
// starts an empty cart. c.mu must be held.
func (c *Cart) hydrateLocked(data []byte) {
	items := []Item{}
	if data != nil {
		if err := json.Unmarshal(data, &items); err != nil {
			util.GetLogger().Warn("Discarding unreadable cart snapshot",
				zap.String("cart", c.key),
				zap.Error(err))
			items = []Item{}
		}
	}

	c.items = sanitize(items)
	c.hydrated = true
	close(c.ready)
}

// Ready is closed once the cart has been hydrated
func (c *Cart) Ready() <-chan struct{} {
	return c.ready
}

// IsReady reports whether Load has completed
func (c *Cart) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hydrated
}

// AddItem increments the line for item.ProductID or appends it with quantity 1
func (c *Cart) AddItem(ctx context.Context, item Item) (Ack, error) {
	if item.ProductID == "" {
		return "", ErrInvalidItem
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hydrated {
		return "", ErrNotHydrated
	}

	ack := AckAdded
	if i := c.indexOf(item.ProductID); i >= 0 {
		c.items[i].Quantity++
		ack = AckIncremented
	} else {
		item.Quantity = 1
		c.items = append(c.items, item)
	}

	return ack, c.persist(ctx, "add")
}

// UpdateQuantity sets the quantity of a line. qty <= 0 removes the line.
func (c *Cart) UpdateQuantity(ctx context.Context, productID string, qty int) (Ack, error) {
	if qty <= 0 {
		return c.RemoveItem(ctx, productID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hydrated {
		return "", ErrNotHydrated
	}

	if i := c.indexOf(productID); i >= 0 {
		c.items[i].Quantity = qty
	}
	return AckUpdated, c.persist(ctx, "update")
}

// RemoveItem drops a line. Removing an absent line is a no-op.
func (c *Cart) RemoveItem(ctx context.Context, productID string) (Ack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hydrated {
		return "", ErrNotHydrated
	}

	if i := c.indexOf(productID); i >= 0 {
		c.items = append(c.items[:i], c.items[i+1:]...)
	}
	return AckRemoved, c.persist(ctx, "remove")
}

// Clear empties the cart
func (c *Cart) Clear(ctx context.Context) (Ack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hydrated {
		return "", ErrNotHydrated
	}

	c.items = []Item{}
	return AckCleared, c.persist(ctx, "clear")
}

// Deduct lowers each line by the quantity given for the same product and
// drops lines that reach zero. Lines not named in items are left alone, so
// units added after a checkout read the cart survive it.
func (c *Cart) Deduct(ctx context.Context, items []Item) (Ack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hydrated {
		return "", ErrNotHydrated
	}

	for _, item := range items {
		if i := c.indexOf(item.ProductID); i >= 0 {
			c.items[i].Quantity -= item.Quantity
		}
	}
	c.items = sanitize(c.items)

	if len(c.items) == 0 {
		return AckCleared, c.persist(ctx, "deduct")
	}
	return AckUpdated, c.persist(ctx, "deduct")
}

// Items returns a copy of the lines. An unhydrated cart reports no lines.
func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Total returns the sum of price * quantity over all lines
func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := decimal.Zero
	for _, item := range c.items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// ItemCount returns the sum of quantities over all lines
func (c *Cart) ItemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, item := range c.items {
		count += item.Quantity
	}
	return count
}

func (c *Cart) indexOf(productID string) int {
	for i, item := range c.items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// persist mirrors the current lines to storage. The in-memory state is kept
// even when the write fails. A cart built inside Update has no storage; its
// snapshot is written by the surrounding UpdateCart.
func (c *Cart) persist(ctx context.Context, op string) error {
	util.CartMutationsTotal.WithLabelValues(op).Inc()

	data, err := json.Marshal(c.items)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if c.storage == nil {
		return nil
	}
	if err := c.storage.SaveCart(ctx, c.key, data); err != nil {
		util.GetLogger().Error("Failed to save cart",
			zap.String("cart", c.key),
			zap.Error(err))
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (c *Cart) snapshot() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(c.items)
	if err != nil {
		return nil, fmt.Errorf("encode cart: %w", err)
	}
	return data, nil
}

// sanitize drops lines a snapshot should never contain and merges duplicates
func sanitize(items []Item) []Item {
	out := make([]Item, 0, len(items))
	seen := make(map[string]int, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Quantity <= 0 {
			continue
		}
		if i, ok := seen[item.ProductID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		seen[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out
}
