package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const productColumns = `id, name, brand, description, price, stock, images, processor, ram, storage,
	display, gpu, battery, weight, os, featured, created_at, updated_at`

// ProductFilter narrows a catalog listing
type ProductFilter struct {
	Brand    string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Search   string
	Featured bool
	SortBy   string
	Desc     bool
}

var productSortColumns = map[string]string{
	"createdAt": "created_at",
	"price":     "price",
	"name":      "name",
	"stock":     "stock",
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		s.db.Rebind("SELECT "+productColumns+" FROM products WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// ListProducts retrieves catalog products matching filter
func (s *Store) ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	var (
		where []string
		args  []interface{}
	)

	if filter.Brand != "" {
		where = append(where, "brand = ?")
		args = append(args, filter.Brand)
	}
	if filter.Featured {
		where = append(where, "featured = ?")
		args = append(args, true)
	}
	if filter.MinPrice != nil {
		where = append(where, "price >= ?")
		args = append(args, *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		where = append(where, "price <= ?")
		args = append(args, *filter.MaxPrice)
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		where = append(where, "(LOWER(name) LIKE ? OR LOWER(brand) LIKE ? OR LOWER(description) LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}

	query := "SELECT " + productColumns + " FROM products"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	column, ok := productSortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if filter.Desc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id", column, direction)

	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products, s.db.Rebind(query), args...)
	return products, err
}

// CreateProduct inserts a new product. ID must be set by the caller.
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (:id, :name, :brand, :description, :price, :stock, :images, :processor, :ram, :storage,
			:display, :gpu, :battery, :weight, :os, :featured, :created_at, :updated_at)`, p)
	return err
}

// UpdateProduct overwrites the editable fields of a product
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	p.UpdatedAt = now()

	res, err := s.db.NamedExecContext(ctx, `
		UPDATE products SET name = :name, brand = :brand, description = :description, price = :price,
			stock = :stock, images = :images, processor = :processor, ram = :ram, storage = :storage,
			display = :display, gpu = :gpu, battery = :battery, weight = :weight, os = :os,
			featured = :featured, updated_at = :updated_at
		WHERE id = :id`, p)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// DeleteProduct removes a product that no order references
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var referenced bool
		err := tx.GetContext(ctx, &referenced,
			tx.Rebind("SELECT EXISTS(SELECT 1 FROM order_items WHERE product_id = ?)"), id)
		if err != nil {
			return err
		}
		if referenced {
			return ErrProductInUse
		}

		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM products WHERE id = ?"), id)
		if err != nil {
			return err
		}
		return expectOneRow(res)
	})
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
