package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a laptop in the catalog
type Product struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Brand       string          `db:"brand" json:"brand"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Stock       int             `db:"stock" json:"stock"`
	Images      StringList      `db:"images" json:"images"`
	Processor   string          `db:"processor" json:"processor"`
	RAM         string          `db:"ram" json:"ram"`
	Storage     string          `db:"storage" json:"storage"`
	Display     string          `db:"display" json:"display"`
	GPU         string          `db:"gpu" json:"gpu,omitempty"`
	Battery     string          `db:"battery" json:"battery,omitempty"`
	Weight      *float64        `db:"weight" json:"weight,omitempty"`
	OS          string          `db:"os" json:"os"`
	Featured    bool            `db:"featured" json:"featured"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// PrimaryImage returns the first image reference, if any
func (p *Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// User is a storefront account, either a customer or an administrator
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	Password  string    `db:"password" json:"-"`
	Role      Role      `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order is the immutable header of a placed purchase. Only Status and
// PaymentStatus change after creation.
type Order struct {
	ID              string          `db:"id" json:"id"`
	OrderNumber     string          `db:"order_number" json:"order_number"`
	CustomerName    string          `db:"customer_name" json:"customer_name"`
	CustomerEmail   string          `db:"customer_email" json:"customer_email"`
	CustomerPhone   string          `db:"customer_phone" json:"customer_phone"`
	ShippingAddress string          `db:"shipping_address" json:"shipping_address"`
	ShippingCity    string          `db:"shipping_city" json:"shipping_city"`
	ShippingCountry string          `db:"shipping_country" json:"shipping_country"`
	ShippingZip     string          `db:"shipping_zip" json:"shipping_zip,omitempty"`
	PaymentMethod   PaymentMethod   `db:"payment_method" json:"payment_method"`
	Total           decimal.Decimal `db:"total" json:"total"`
	Status          OrderStatus     `db:"status" json:"status"`
	PaymentStatus   PaymentStatus   `db:"payment_status" json:"payment_status"`
	UserID          *string         `db:"user_id" json:"user_id,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem is a line of an order. Price is the unit price captured at
// order time and never follows later catalog changes.
type OrderItem struct {
	ID        string          `db:"id" json:"id"`
	OrderID   string          `db:"order_id" json:"order_id"`
	ProductID string          `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Position  int             `db:"position" json:"-"`
}

// Subtotal returns price * quantity
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderItemDetails is an order line joined with product display fields
type OrderItemDetails struct {
	OrderItem
	ProductName   string     `db:"product_name" json:"product_name"`
	ProductImages StringList `db:"product_images" json:"-"`
	ProductImage  string     `db:"-" json:"product_image,omitempty"`
}

// Purchaser holds account identity fields only shown to administrators
type Purchaser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// OrderDetails is an order with its lines, as returned by the query service
type OrderDetails struct {
	Order
	Items []OrderItemDetails `json:"items"`
	User  *Purchaser         `json:"user,omitempty"`
}

// StringList is stored as a JSON array so the same schema works on
// Postgres and SQLite.
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *StringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode string list: %w", err)
	}
	*l = out
	return nil
}

// DashboardStats summarizes the shop for the admin back office
type DashboardStats struct {
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	TotalOrders    int             `json:"total_orders"`
	TotalCustomers int             `json:"total_customers"`
	TotalProducts  int             `json:"total_products"`
	RecentOrders   []OrderDetails  `json:"recent_orders"`
}
