package store

import (
	"context"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// GetDashboardStats returns the back office counters and the latest orders.
// Revenue only counts delivered orders.
func (s *Store) GetDashboardStats(ctx context.Context, recent int) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var revenue decimal.NullDecimal
		err := tx.GetContext(ctx, &revenue,
			tx.Rebind("SELECT SUM(total) FROM orders WHERE status = ?"), models.OrderStatusDelivered)
		if err != nil {
			return err
		}
		stats.TotalRevenue = decimal.Zero
		if revenue.Valid {
			stats.TotalRevenue = revenue.Decimal
		}

		if err := tx.GetContext(ctx, &stats.TotalOrders, "SELECT COUNT(*) FROM orders"); err != nil {
			return err
		}
		err = tx.GetContext(ctx, &stats.TotalCustomers,
			tx.Rebind("SELECT COUNT(*) FROM users WHERE role = ?"), models.RoleUser)
		if err != nil {
			return err
		}
		return tx.GetContext(ctx, &stats.TotalProducts, "SELECT COUNT(*) FROM products")
	})
	if err != nil {
		return nil, err
	}

	stats.RecentOrders, err = s.ListOrders(ctx, OrderFilter{Limit: recent})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
