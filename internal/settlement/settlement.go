// Package settlement drives the per-ride confirmation state machine and the
// points transfer that completes it.
package settlement

import (
	"context"

	"github.com/example/ride-share/internal/apperror"
	"github.com/example/ride-share/internal/models"
	"github.com/example/ride-share/internal/observability"
	"github.com/example/ride-share/internal/storage"
)

type Protocol struct {
	Ledger storage.Ledger
}

func NewProtocol(ledger storage.Ledger) *Protocol {
	return &Protocol{Ledger: ledger}
}

// Outcome reports the state of a ride after a confirmation.
type Outcome struct {
	Ride    *models.AcceptedRide `json:"ride"`
	Settled bool                 `json:"settled"`
}

// Confirm records one party's confirmation. Confirming twice from the same
// role is a no-op. When the other party has already confirmed, the same
// transaction transfers the ride's points from rider to driver and removes
// the ride, so either everything settles or nothing does.
//
// If the rider cannot cover the points, the completing confirm is rejected
// before its flag is persisted: the ride keeps the first party's confirmation
// and the confirm can be retried once the rider's balance improves.
func (p *Protocol) Confirm(ctx context.Context, rideID string, role models.Role) (Outcome, error) {
	return p.run(ctx, rideID, func(ride *models.AcceptedRide) (models.Role, error) {
		if role != models.RoleDriver && role != models.RoleRider {
			return "", apperror.Validation("unknown role " + string(role))
		}
		return role, nil
	})
}

// ConfirmBy is Confirm addressed by the authenticated user: the role is
// resolved from the ride inside the transaction, and non-participants are
// rejected.
func (p *Protocol) ConfirmBy(ctx context.Context, rideID, userID string) (Outcome, error) {
	return p.run(ctx, rideID, func(ride *models.AcceptedRide) (models.Role, error) {
		role := ride.RoleOf(userID)
		if role == "" {
			return "", apperror.Forbidden("not a participant of this ride")
		}
		return role, nil
	})
}

func (p *Protocol) run(ctx context.Context, rideID string, pick func(*models.AcceptedRide) (models.Role, error)) (Outcome, error) {
	var out Outcome
	err := p.Ledger.Update(ctx, func(tx storage.Tx) error {
		ride, err := tx.GetRide(rideID)
		if err != nil {
			return err
		}
		role, err := pick(ride)
		if err != nil {
			return err
		}
		if role == models.RoleDriver {
			ride.DriverConfirmed = true
		} else {
			ride.RiderConfirmed = true
		}
		if !ride.FullyConfirmed() {
			if err := tx.PutRide(ride); err != nil {
				return err
			}
			out = Outcome{Ride: ride}
			return nil
		}
		if err := transfer(tx, ride); err != nil {
			return err
		}
		if err := tx.DeleteRide(ride.ID); err != nil {
			return err
		}
		out = Outcome{Ride: ride, Settled: true}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	if out.Settled {
		observability.SettlementsTotal.Inc()
		observability.PointsTransferred.Add(float64(out.Ride.Points))
	}
	return out, nil
}

// transfer moves ride.Points from rider to driver inside tx. The rider's
// balance is checked first; a short balance aborts the whole transaction.
func transfer(tx storage.Tx, ride *models.AcceptedRide) error {
	rider, err := tx.GetUser(ride.RiderID)
	if err != nil {
		return err
	}
	if rider.Points < ride.Points {
		observability.SettlementFailures.Inc()
		return apperror.InsufficientPoints(rider.Points, ride.Points)
	}
	driver, err := tx.GetUser(ride.DriverID)
	if err != nil {
		return err
	}
	rider.Points -= ride.Points
	driver.Points += ride.Points
	if err := tx.PutUser(rider); err != nil {
		return err
	}
	return tx.PutUser(driver)
}
