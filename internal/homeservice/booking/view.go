package booking

import (
	"time"

	"fixitBack/internal/homeservice/repo"
)

// View is a booking as returned to the apps.
type View struct {
	ID            int64                `json:"id"`
	CustomerID    int64                `json:"customer_id"`
	ServiceID     int64                `json:"service_id"`
	TechnicianID  *int64               `json:"technician_id,omitempty"`
	BaseAmount    string               `json:"base_amount"`
	Address       repo.AddressSnapshot `json:"address"`
	ScheduledAt   time.Time            `json:"scheduled_at"`
	Status        string               `json:"status"`
	PaymentStatus string               `json:"payment_status"`
	CancelReason  string               `json:"cancel_reason,omitempty"`
	AssignedAt    *time.Time           `json:"assigned_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

func toView(b repo.Booking) View {
	v := View{
		ID:            b.ID,
		CustomerID:    b.CustomerID,
		ServiceID:     b.ServiceID,
		BaseAmount:    b.BaseAmount.StringFixed(2),
		Address:       b.Address,
		ScheduledAt:   b.ScheduledAt,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		CancelReason:  b.CancelReason.String,
		CreatedAt:     b.CreatedAt,
	}
	if b.TechnicianID.Valid {
		id := b.TechnicianID.Int64
		v.TechnicianID = &id
	}
	if b.AssignedAt.Valid {
		t := b.AssignedAt.Time
		v.AssignedAt = &t
	}
	return v
}

// Offer is a live job offer in the technician inbox.
type Offer struct {
	BroadcastID int64     `json:"broadcast_id"`
	BookingID   int64     `json:"booking_id"`
	SentAt      time.Time `json:"sent_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Status      string    `json:"status"`
}

func toOffer(bc repo.Broadcast) Offer {
	return Offer{BroadcastID: bc.ID, BookingID: bc.BookingID, SentAt: bc.SentAt, ExpiresAt: bc.ExpiresAt, Status: bc.Status}
}
