package store

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

const orderColumns = `o.id, o.order_number, o.customer_name, o.customer_email, o.customer_phone,
	o.shipping_address, o.shipping_city, o.shipping_country, o.shipping_zip, o.payment_method,
	o.total, o.status, o.payment_status, o.user_id, o.created_at, o.updated_at`

// OrderFilter scopes an order listing. A nil UserID means all users.
type OrderFilter struct {
	UserID *string
	Status models.OrderStatus
	Limit  int
}

type orderRow struct {
	models.Order
	PurchaserName  sql.NullString `db:"purchaser_name"`
	PurchaserEmail sql.NullString `db:"purchaser_email"`
}

func (r orderRow) details() models.OrderDetails {
	d := models.OrderDetails{Order: r.Order, Items: []models.OrderItemDetails{}}
	if r.PurchaserEmail.Valid {
		d.User = &models.Purchaser{Name: r.PurchaserName.String, Email: r.PurchaserEmail.String}
	}
	return d
}

// PlaceOrderTx creates the order header and its lines and decrements stock for
// every line in one transaction. If any line cannot be covered by current
// stock a *StockError is returned and nothing is persisted.
func (s *Store) PlaceOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		order.CreatedAt = now()
		order.UpdatedAt = order.CreatedAt

		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO orders (id, order_number, customer_name, customer_email, customer_phone,
				shipping_address, shipping_city, shipping_country, shipping_zip, payment_method,
				total, status, payment_status, user_id, created_at, updated_at)
			VALUES (:id, :order_number, :customer_name, :customer_email, :customer_phone,
				:shipping_address, :shipping_city, :shipping_country, :shipping_zip, :payment_method,
				:total, :status, :payment_status, :user_id, :created_at, :updated_at)`, order)
		if err != nil {
			return err
		}

		// Rows are locked in product id order so two orders naming the same
		// products in a different order cannot deadlock. Lines referencing the
		// same product are decremented one after another, so each guarded update
		// sees the previous one.
		for _, item := range byProductID(items) {
			if err := decrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		for i := range items {
			items[i].OrderID = order.ID
			items[i].Position = i
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO order_items (id, order_id, product_id, quantity, price, position)
				VALUES (:id, :order_id, :product_id, :quantity, :price, :position)`, &items[i])
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func byProductID(items []models.OrderItem) []models.OrderItem {
	sorted := make([]models.OrderItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ProductID < sorted[j].ProductID
	})
	return sorted
}

// decrementStock is a single guarded update: the row lock taken by UPDATE
// makes the availability check and the write atomic under concurrent orders.
func decrementStock(ctx context.Context, tx *sqlx.Tx, productID string, quantity int) error {
	res, err := tx.ExecContext(ctx,
		tx.Rebind("UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ? AND stock >= ?"),
		quantity, now(), productID, quantity)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var name string
	err = tx.GetContext(ctx, &name, tx.Rebind("SELECT name FROM products WHERE id = ?"), productID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return &StockError{ProductID: productID, ProductName: name, Requested: quantity}
}

// GetOrderByID retrieves an order with its lines and purchaser
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.OrderDetails, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT `+orderColumns+`, u.name AS purchaser_name, u.email AS purchaser_email
		FROM orders o LEFT JOIN users u ON u.id = o.user_id
		WHERE o.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	orders := []models.OrderDetails{row.details()}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListOrders retrieves orders newest first, each with its lines
func (s *Store) ListOrders(ctx context.Context, filter OrderFilter) ([]models.OrderDetails, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.UserID != nil {
		where = append(where, "o.user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Status != "" {
		where = append(where, "o.status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + orderColumns + `, u.name AS purchaser_name, u.email AS purchaser_email
		FROM orders o LEFT JOIN users u ON u.id = o.user_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY o.created_at DESC, o.id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []orderRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	orders := make([]models.OrderDetails, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.details())
	}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the lines of all given orders in one query
func (s *Store) attachItems(ctx context.Context, orders []models.OrderDetails) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	query, args, err := sqlx.In(`
		SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price, oi.position,
			COALESCE(p.name, '') AS product_name, COALESCE(p.images, '[]') AS product_images
		FROM order_items oi LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id IN (?)
		ORDER BY oi.order_id, oi.position`, ids)
	if err != nil {
		return err
	}

	var items []models.OrderItemDetails
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return err
	}

	for _, item := range items {
		if len(item.ProductImages) > 0 {
			item.ProductImage = item.ProductImages[0]
		}
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return nil
}

// UpdateOrderStatus moves an order from one status to another. The update only
// applies while the order is still in from.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?"),
		to, now(), orderID, from)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists bool
	err = s.db.GetContext(ctx, &exists,
		s.db.Rebind("SELECT EXISTS(SELECT 1 FROM orders WHERE id = ?)"), orderID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStatusConflict
}

// UpdatePaymentStatus records a payment outcome
func (s *Store) UpdatePaymentStatus(ctx context.Context, orderID string, status models.PaymentStatus) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE orders SET payment_status = ?, updated_at = ? WHERE id = ?"),
		status, now(), orderID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}
