package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"firebase.google.com/go/messaging"
)

// TokenStore resolves FCM tokens.
type TokenStore interface {
	TokensForUser(ctx context.Context, userID int64) ([]string, error)
	TokensForTechnicians(ctx context.Context, technicianIDs []int64) (map[int64][]string, error)
	DeleteToken(ctx context.Context, token string) error
}

type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Push sends notifications through Firebase Cloud Messaging.
type Push struct {
	client messagingClient
	tokens TokenStore
	logger Logger
}

func NewPush(client messagingClient, tokens TokenStore, logger Logger) *Push {
	return &Push{client: client, tokens: tokens, logger: logger}
}

func (p *Push) NotifyTechnicians(ctx context.Context, ids []int64, job JobSummary) error {
	if len(ids) == 0 {
		return nil
	}
	byTech, err := p.tokens.TokensForTechnicians(ctx, ids)
	if err != nil {
		return fmt.Errorf("load technician tokens: %w", err)
	}
	data := map[string]string{
		"type":       MessageJobOffer,
		"booking_id": strconv.FormatInt(job.BookingID, 10),
		"service_id": strconv.FormatInt(job.ServiceID, 10),
		"amount":     job.BaseAmount,
		"expires_at": job.ExpiresAt.UTC().Format(time.RFC3339),
	}
	body := fmt.Sprintf("%s · ₹%s", job.ServiceName, job.BaseAmount)
	var errs []error
	for _, id := range ids {
		errs = append(errs, p.sendAll(ctx, byTech[id], "New job nearby", body, data))
	}
	return errors.Join(errs...)
}

func (p *Push) NotifyCustomer(ctx context.Context, customerID int64, ev Event) error {
	tokens, err := p.tokens.TokensForUser(ctx, customerID)
	if err != nil {
		return fmt.Errorf("load customer tokens: %w", err)
	}
	data := map[string]string{
		"type":       ev.Type,
		"booking_id": strconv.FormatInt(ev.BookingID, 10),
		"status":     ev.Status,
	}
	return p.sendAll(ctx, tokens, customerTitle(ev), "Booking #"+strconv.FormatInt(ev.BookingID, 10), data)
}

func (p *Push) NotifyJobTaken(ctx context.Context, ids []int64, bookingID int64) error {
	if len(ids) == 0 {
		return nil
	}
	byTech, err := p.tokens.TokensForTechnicians(ctx, ids)
	if err != nil {
		return fmt.Errorf("load technician tokens: %w", err)
	}
	data := map[string]string{"type": MessageJobTaken, "booking_id": strconv.FormatInt(bookingID, 10)}
	var errs []error
	for _, id := range ids {
		errs = append(errs, p.sendAll(ctx, byTech[id], "Job no longer available", "Another technician accepted this job", data))
	}
	return errors.Join(errs...)
}

func customerTitle(ev Event) string {
	switch ev.Type {
	case EventBookingAccepted:
		return "A technician accepted your booking"
	case EventBookingCancelled:
		return "Booking cancelled"
	case EventPaymentVerified:
		return "Payment received"
	default:
		return "Booking update"
	}
}

func (p *Push) sendAll(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	var errs []error
	for _, token := range tokens {
		if err := p.send(ctx, token, title, body, data); err != nil {
			if messaging.IsRegistrationTokenNotRegistered(err) {
				if derr := p.tokens.DeleteToken(ctx, token); derr != nil {
					p.logger.Errorf("fcm: drop stale token: %v", derr)
				}
				continue
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Push) send(ctx context.Context, token, title, body string, data map[string]string) error {
	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "high_priority_channel",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority": "10",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: title,
						Body:  body,
					},
					Sound: "default",
				},
			},
		},
	}
	if _, err := p.client.Send(ctx, message); err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}
