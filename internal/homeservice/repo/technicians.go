package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Technician is the read model of technicians used by matching and wallet code.
type Technician struct {
	ID                int64
	UserID            int64
	KYCStatus         string
	ProfileComplete   bool
	TrainingCompleted bool
	WorkStatus        string
	IsOnline          bool
	ServiceIDs        []int64
	Pincode           string
	City              string
	State             string
	WalletBalance     decimal.Decimal
}

// HasSkill reports whether the normalized skill set contains serviceID.
func (t Technician) HasSkill(serviceID int64) bool {
	for _, id := range t.ServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

// AreaField selects the column used by the non-geo fallback.
type AreaField string

const (
	AreaPincode AreaField = "pincode"
	AreaCity    AreaField = "city"
	AreaState   AreaField = "state"
)

const technicianColumns = `id, user_id, kyc_status, profile_complete, training_completed, work_status, is_online, skills, pincode, city, state, wallet_balance`

// TechniciansRepo provides access to technician profiles.
type TechniciansRepo struct {
	db *sql.DB
}

// NewTechniciansRepo constructs a TechniciansRepo.
func NewTechniciansRepo(db *sql.DB) *TechniciansRepo {
	return &TechniciansRepo{db: db}
}

func scanTechnician(row rowScanner) (Technician, error) {
	var (
		t       Technician
		skills  []byte
		pincode sql.NullString
		city    sql.NullString
		state   sql.NullString
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.KYCStatus, &t.ProfileComplete, &t.TrainingCompleted, &t.WorkStatus, &t.IsOnline, &skills, &pincode, &city, &state, &t.WalletBalance); err != nil {
		return Technician{}, err
	}
	t.ServiceIDs = ParseSkills(skills)
	t.Pincode = pincode.String
	t.City = city.String
	t.State = state.String
	return t, nil
}

// Get loads a technician by profile id.
func (r *TechniciansRepo) Get(ctx context.Context, id int64) (Technician, error) {
	t, err := scanTechnician(r.db.QueryRowContext(ctx, `SELECT `+technicianColumns+` FROM technicians WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Technician{}, ErrNotFound
		}
		return Technician{}, err
	}
	return t, nil
}

// ListApprovedOnline returns technicians passing every status precondition.
// Skill matching happens on the normalized set in Go.
func (r *TechniciansRepo) ListApprovedOnline(ctx context.Context) ([]Technician, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+technicianColumns+` FROM technicians
		WHERE kyc_status = 'approved' AND profile_complete = 1 AND training_completed = 1
		AND work_status = 'approved' AND is_online = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FilterByArea keeps the ids whose service area matches value. Pincode matches
// exactly, city and state case-insensitively.
func (r *TechniciansRepo) FilterByArea(ctx context.Context, ids []int64, field AreaField, value string) ([]int64, error) {
	value = strings.TrimSpace(value)
	if len(ids) == 0 || value == "" {
		return nil, nil
	}
	var predicate string
	switch field {
	case AreaPincode:
		predicate = `pincode = ?`
	case AreaCity:
		predicate = `LOWER(city) = LOWER(?)`
	case AreaState:
		predicate = `LOWER(state) = LOWER(?)`
	default:
		return nil, fmt.Errorf("unknown area field %q", field)
	}
	args := append(int64Args(ids), value)
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM technicians WHERE id IN (`+placeholders(len(ids))+`) AND `+predicate+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

// SetOnline toggles availability.
func (r *TechniciansRepo) SetOnline(ctx context.Context, id int64, online bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE technicians SET is_online = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, online, id)
	return err
}
