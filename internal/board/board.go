// Package board manages the posting side of the marketplace: ride offers from
// drivers and ride requests from riders.
package board

import (
	"context"

	"github.com/google/uuid"

	"github.com/example/ride-share/internal/apperror"
	"github.com/example/ride-share/internal/models"
	"github.com/example/ride-share/internal/storage"
)

type Service struct {
	Ledger storage.Ledger
}

func NewService(ledger storage.Ledger) *Service {
	return &Service{Ledger: ledger}
}

// Listing carries the user-editable fields of an offer or request.
type Listing struct {
	DateTime    int64  `json:"date_time"`
	StartPoint  string `json:"start_point"`
	Destination string `json:"destination"`
}

func (l Listing) validate() error {
	if l.StartPoint == "" {
		return apperror.Validation("start point is required")
	}
	if l.Destination == "" {
		return apperror.Validation("destination is required")
	}
	if l.DateTime <= 0 {
		return apperror.Validation("date/time is required")
	}
	return nil
}

func (s *Service) PostOffer(ctx context.Context, driverID, driverEmail string, l Listing) (*models.RideOffer, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	offer := &models.RideOffer{
		ID:          uuid.NewString(),
		DriverID:    driverID,
		DriverEmail: driverEmail,
		DateTime:    l.DateTime,
		StartPoint:  l.StartPoint,
		Destination: l.Destination,
		Status:      models.StatusAvailable,
	}
	err := s.Ledger.Update(ctx, func(tx storage.Tx) error {
		return tx.PutOffer(offer)
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}

func (s *Service) PostRequest(ctx context.Context, riderID, riderEmail string, l Listing) (*models.RideRequest, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	req := &models.RideRequest{
		ID:          uuid.NewString(),
		RiderID:     riderID,
		RiderEmail:  riderEmail,
		DateTime:    l.DateTime,
		StartPoint:  l.StartPoint,
		Destination: l.Destination,
		Status:      models.StatusAvailable,
	}
	err := s.Ledger.Update(ctx, func(tx storage.Tx) error {
		return tx.PutRequest(req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// UpdateOffer replaces the route and time of the caller's own offer. Accepted
// offers are historical records and can no longer be edited.
func (s *Service) UpdateOffer(ctx context.Context, offerID, callerID string, l Listing) (*models.RideOffer, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	var offer *models.RideOffer
	err := s.Ledger.Update(ctx, func(tx storage.Tx) error {
		var err error
		offer, err = tx.GetOffer(offerID)
		if err != nil {
			return err
		}
		if offer.DriverID != callerID {
			return apperror.Forbidden("offer belongs to another driver")
		}
		if offer.Status != models.StatusAvailable {
			return apperror.Conflict("offer has already been accepted")
		}
		offer.DateTime = l.DateTime
		offer.StartPoint = l.StartPoint
		offer.Destination = l.Destination
		return tx.PutOffer(offer)
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}

func (s *Service) UpdateRequest(ctx context.Context, requestID, callerID string, l Listing) (*models.RideRequest, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	var req *models.RideRequest
	err := s.Ledger.Update(ctx, func(tx storage.Tx) error {
		var err error
		req, err = tx.GetRequest(requestID)
		if err != nil {
			return err
		}
		if req.RiderID != callerID {
			return apperror.Forbidden("request belongs to another rider")
		}
		if req.Status != models.StatusAvailable {
			return apperror.Conflict("request has already been accepted")
		}
		req.DateTime = l.DateTime
		req.StartPoint = l.StartPoint
		req.Destination = l.Destination
		return tx.PutRequest(req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Service) DeleteOffer(ctx context.Context, offerID, callerID string) error {
	return s.Ledger.Update(ctx, func(tx storage.Tx) error {
		offer, err := tx.GetOffer(offerID)
		if err != nil {
			return err
		}
		if offer.DriverID != callerID {
			return apperror.Forbidden("offer belongs to another driver")
		}
		if offer.Status != models.StatusAvailable {
			return apperror.Conflict("offer has already been accepted")
		}
		return tx.DeleteOffer(offerID)
	})
}

func (s *Service) DeleteRequest(ctx context.Context, requestID, callerID string) error {
	return s.Ledger.Update(ctx, func(tx storage.Tx) error {
		req, err := tx.GetRequest(requestID)
		if err != nil {
			return err
		}
		if req.RiderID != callerID {
			return apperror.Forbidden("request belongs to another rider")
		}
		if req.Status != models.StatusAvailable {
			return apperror.Conflict("request has already been accepted")
		}
		return tx.DeleteRequest(requestID)
	})
}
