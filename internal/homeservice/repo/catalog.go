package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
)

// Service is a catalog entry. Only the fields bookings depend on are read.
type Service struct {
	ID            int64
	Name          string
	CommissionPct decimal.Decimal
	IsActive      bool
}

// Address is a saved customer address.
type Address struct {
	ID        int64
	UserID    int64
	Line1     string
	Pincode   string
	City      string
	State     string
	Latitude  sql.NullFloat64
	Longitude sql.NullFloat64
}

// CatalogRepo reads catalog and address data owned by other services.
type CatalogRepo struct {
	db *sql.DB
}

func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

func (r *CatalogRepo) GetService(ctx context.Context, id int64) (Service, error) {
	var s Service
	err := r.db.QueryRowContext(ctx, `SELECT id, name, commission_pct, is_active FROM services WHERE id = ?`, id).
		Scan(&s.ID, &s.Name, &s.CommissionPct, &s.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Service{}, ErrNotFound
		}
		return Service{}, err
	}
	return s, nil
}

// GetAddress loads an address owned by userID.
func (r *CatalogRepo) GetAddress(ctx context.Context, userID, addressID int64) (Address, error) {
	var (
		a                    Address
		pincode, city, state sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, user_id, line1, pincode, city, state, latitude, longitude FROM customer_addresses WHERE id = ? AND user_id = ?`, addressID, userID).
		Scan(&a.ID, &a.UserID, &a.Line1, &pincode, &city, &state, &a.Latitude, &a.Longitude)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Address{}, ErrNotFound
		}
		return Address{}, err
	}
	a.Pincode, a.City, a.State = pincode.String, city.String, state.String
	return a, nil
}
