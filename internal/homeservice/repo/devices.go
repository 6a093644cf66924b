package repo

import (
	"context"
	"database/sql"
)

// DevicesRepo reads push tokens registered by the mobile apps.
type DevicesRepo struct {
	db *sql.DB
}

func NewDevicesRepo(db *sql.DB) *DevicesRepo { return &DevicesRepo{db: db} }

// TokensForUser returns FCM tokens of one user.
func (r *DevicesRepo) TokensForUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT token FROM device_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	return scanTokens(rows)
}

// TokensForTechnicians returns tokens keyed by technician profile id.
func (r *DevicesRepo) TokensForTechnicians(ctx context.Context, technicianIDs []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(technicianIDs))
	if len(technicianIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT t.id, d.token FROM technicians t JOIN device_tokens d ON d.user_id = t.user_id WHERE t.id IN (`+placeholders(len(technicianIDs))+`)`, int64Args(technicianIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    int64
			token string
		)
		if err := rows.Scan(&id, &token); err != nil {
			return nil, err
		}
		out[id] = append(out[id], token)
	}
	return out, rows.Err()
}

// DeleteToken drops a token the push provider reported as unregistered.
func (r *DevicesRepo) DeleteToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM device_tokens WHERE token = ?`, token)
	return err
}

func scanTokens(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}
