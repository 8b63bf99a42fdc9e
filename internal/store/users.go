package store

import (
	"context"
	"database/sql"
	"errors"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateUser inserts a new account. ID and password hash must be set by the caller.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	user.CreatedAt = now()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var taken bool
		err := tx.GetContext(ctx, &taken,
			tx.Rebind("SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)"), user.Email)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateEmail
		}

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO users (id, email, name, password, role, created_at)
			VALUES (:id, :email, :name, :password, :role, :created_at)`, user)
		return err
	})
}

// GetUserByEmail retrieves an account by its login email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		s.db.Rebind("SELECT id, email, name, password, role, created_at FROM users WHERE email = ?"), email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves an account by ID
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		s.db.Rebind("SELECT id, email, name, password, role, created_at FROM users WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsersByRole retrieves accounts with the given role, newest first
func (s *Store) ListUsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	users := []models.User{}
	err := s.db.SelectContext(ctx, &users,
		s.db.Rebind("SELECT id, email, name, password, role, created_at FROM users WHERE role = ? ORDER BY created_at DESC"),
		role)
	return users, err
}

// UpdateUserCredentials overwrites the password hash and role of an account
func (s *Store) UpdateUserCredentials(ctx context.Context, user *models.User) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE users SET password = ?, role = ? WHERE id = ?"),
		user.Password, user.Role, user.ID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}
