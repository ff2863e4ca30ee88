// Package listing serves the read side: available offers and requests, and a
// user's in-flight rides, soonest first.
package listing

import (
	"context"
	"sort"

	"github.com/example/ride-share/internal/models"
	"github.com/example/ride-share/internal/storage"
)

type Service struct {
	Ledger storage.Ledger
}

func NewService(ledger storage.Ledger) *Service {
	return &Service{Ledger: ledger}
}

func (s *Service) AvailableOffers(ctx context.Context) ([]models.RideOffer, error) {
	var offers []models.RideOffer
	err := s.Ledger.View(ctx, func(tx storage.Tx) error {
		var err error
		offers, err = tx.ListOffersByStatus(models.StatusAvailable)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].DateTime < offers[j].DateTime })
	return offers, nil
}

func (s *Service) AvailableRequests(ctx context.Context) ([]models.RideRequest, error) {
	var reqs []models.RideRequest
	err := s.Ledger.View(ctx, func(tx storage.Tx) error {
		var err error
		reqs, err = tx.ListRequestsByStatus(models.StatusAvailable)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].DateTime < reqs[j].DateTime })
	return reqs, nil
}

// RidesForUser lists accepted rides where the user is the driver or the rider.
func (s *Service) RidesForUser(ctx context.Context, userID string) ([]models.AcceptedRide, error) {
	var rides []models.AcceptedRide
	err := s.Ledger.View(ctx, func(tx storage.Tx) error {
		var err error
		rides, err = tx.ListRidesForUser(userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rides, func(i, j int) bool { return rides[i].DateTime < rides[j].DateTime })
	return rides, nil
}
