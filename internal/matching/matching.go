// Package matching transitions board listings into accepted rides.
package matching

import (
	"context"

	"github.com/google/uuid"

	"github.com/example/ride-share/internal/apperror"
	"github.com/example/ride-share/internal/models"
	"github.com/example/ride-share/internal/observability"
	"github.com/example/ride-share/internal/storage"
)

type Engine struct {
	Ledger storage.Ledger
}

func NewEngine(ledger storage.Ledger) *Engine {
	return &Engine{Ledger: ledger}
}

// AcceptOffer claims an available offer for the rider. The status flip and the
// AcceptedRide creation happen in one transaction: an offer is never left
// marked accepted without its ride. Losing the race to another rider is a
// Conflict and creates nothing.
func (e *Engine) AcceptOffer(ctx context.Context, offerID, riderID, riderEmail string) (*models.AcceptedRide, error) {
	var ride *models.AcceptedRide
	err := e.Ledger.Update(ctx, func(tx storage.Tx) error {
		offer, err := tx.GetOffer(offerID)
		if err != nil {
			return err
		}
		if offer.Status != models.StatusAvailable {
			return apperror.Conflict("offer is no longer available")
		}
		if offer.DriverID == riderID {
			return apperror.Validation("cannot accept your own offer")
		}
		offer.RiderID = riderID
		offer.RiderEmail = riderEmail
		offer.Status = models.StatusAccepted
		if err := tx.PutOffer(offer); err != nil {
			return err
		}
		ride = models.RideFromOffer(offer)
		ride.ID = uuid.NewString()
		return tx.PutRide(ride)
	})
	if err != nil {
		return nil, err
	}
	observability.AcceptsTotal.Inc()
	return ride, nil
}

// AcceptRequest is the symmetric operation: a driver claims a rider's request.
func (e *Engine) AcceptRequest(ctx context.Context, requestID, driverID, driverEmail string) (*models.AcceptedRide, error) {
	var ride *models.AcceptedRide
	err := e.Ledger.Update(ctx, func(tx storage.Tx) error {
		req, err := tx.GetRequest(requestID)
		if err != nil {
			return err
		}
		if req.Status != models.StatusAvailable {
			return apperror.Conflict("request is no longer available")
		}
		if req.RiderID == driverID {
			return apperror.Validation("cannot accept your own request")
		}
		req.DriverID = driverID
		req.DriverEmail = driverEmail
		req.Status = models.StatusAccepted
		if err := tx.PutRequest(req); err != nil {
			return err
		}
		ride = models.RideFromRequest(req)
		ride.ID = uuid.NewString()
		return tx.PutRide(ride)
	})
	if err != nil {
		return nil, err
	}
	observability.AcceptsTotal.Inc()
	return ride, nil
}
