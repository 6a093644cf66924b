package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TypeBookingCreated       = "booking.created"
	TypeBookingBroadcasted   = "booking.broadcasted"
	TypeBookingAccepted      = "booking.accepted"
	TypeBookingStatusChanged = "booking.status_changed"
	TypeBookingCancelled     = "booking.cancelled"
	TypePaymentVerified      = "payment.verified"
	TypeWalletCredited       = "wallet.credited"
	TypeWithdrawalApproved   = "withdrawal.approved"
)

// Event is a booking lifecycle fact published after commit.
type Event struct {
	Type         string    `json:"type"`
	BookingID    int64     `json:"booking_id,omitempty"`
	TechnicianID int64     `json:"technician_id,omitempty"`
	Status       string    `json:"status,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Publisher emits lifecycle events. Callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by booking so one booking stays on one partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := strconv.FormatInt(event.BookingID, 10)
	if event.BookingID == 0 {
		key = strconv.FormatInt(event.TechnicianID, 10)
	}
	msg := kafka.Message{Key: []byte(key), Value: body, Time: event.OccurredAt}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event %s: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop drops events; used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
