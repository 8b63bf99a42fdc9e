package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/cart"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb     *redis.Client
	cartTTL time.Duration
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(addr, password string, db int, cartTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, cartTTL: cartTTL}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func cartKey(key string) string {
	return fmt.Sprintf("cart:%s", key)
}

// LoadCart returns the stored cart snapshot, or cart.ErrNoSnapshot
func (c *Client) LoadCart(ctx context.Context, key string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, cartKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cart.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return data, nil
}

// SaveCart stores a cart snapshot and refreshes its TTL
func (c *Client) SaveCart(ctx context.Context, key string, data []byte) error {
	if err := c.rdb.Set(ctx, cartKey(key), data, c.cartTTL).Err(); err != nil {
		return fmt.Errorf("set cart: %w", err)
	}
	return nil
}

// maxCartUpdateAttempts bounds the optimistic retries of UpdateCart
const maxCartUpdateAttempts = 10

// UpdateCart applies fn to the snapshot under WATCH and writes the result in
// a MULTI/EXEC transaction. A concurrent write to the key aborts the EXEC and
// the read-modify-write is retried with the fresh snapshot.
func (c *Client) UpdateCart(ctx context.Context, key string, fn func(data []byte) ([]byte, error)) error {
	k := cartKey(key)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return fmt.Errorf("get cart: %w", err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, c.cartTTL)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxCartUpdateAttempts; attempt++ {
		err := c.rdb.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return cart.ErrContended
}

var _ cart.Storage = (*Client)(nil)
