// Package availability keeps the online technician index in step with the
// technician apps.
package availability

import (
	"context"
	"fmt"

	"fixitBack/internal/apierror"
	"fixitBack/internal/homeservice/geo"
	"fixitBack/internal/identity"
)

// Logger is a minimal logger interface required by availability.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type Index interface {
	Update(ctx context.Context, technicianID int64, lat, lon float64) error
	Remove(ctx context.Context, technicianID int64) error
}

type OnlineStore interface {
	SetOnline(ctx context.Context, id int64, online bool) error
}

type Service struct {
	index  Index
	store  OnlineStore
	logger Logger
}

func NewService(index Index, store OnlineStore, logger Logger) *Service {
	return &Service{index: index, store: store, logger: logger}
}

// ReportLocation records a position sent over HTTP.
func (s *Service) ReportLocation(ctx context.Context, who identity.Identity, lat, lon float64) error {
	if !who.IsTechnician() {
		return apierror.New(apierror.CodeForbidden, "technician access only", nil)
	}
	if err := geo.ValidCoords(lat, lon); err != nil {
		return apierror.New(apierror.CodeValidation, "request validation failed", map[string]string{"location": err.Error()})
	}
	return s.UpdateLocation(ctx, who.ProfileID, lat, lon)
}

// UpdateLocation places the technician in the index and marks them online.
// It also receives positions from the technician socket.
func (s *Service) UpdateLocation(ctx context.Context, technicianID int64, lat, lon float64) error {
	if err := s.index.Update(ctx, technicianID, lat, lon); err != nil {
		return fmt.Errorf("index technician %d: %w", technicianID, err)
	}
	if err := s.store.SetOnline(ctx, technicianID, true); err != nil {
		return fmt.Errorf("mark technician %d online: %w", technicianID, err)
	}
	return nil
}

// GoOffline removes the technician from matching.
func (s *Service) GoOffline(ctx context.Context, who identity.Identity) error {
	if !who.IsTechnician() {
		return apierror.New(apierror.CodeForbidden, "technician access only", nil)
	}
	if err := s.store.SetOnline(ctx, who.ProfileID, false); err != nil {
		return fmt.Errorf("mark technician %d offline: %w", who.ProfileID, err)
	}
	if err := s.index.Remove(ctx, who.ProfileID); err != nil {
		return fmt.Errorf("unindex technician %d: %w", who.ProfileID, err)
	}
	s.logger.Infof("technician %d went offline", who.ProfileID)
	return nil
}
