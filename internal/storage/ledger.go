package storage

import (
	"context"

	"github.com/example/ride-share/internal/models"
)

// Tx is the record API available inside a ledger transaction. Reads inside an
// Update transaction lock the record until commit, so a read-modify-write on a
// user balance or a ride's confirmation flags cannot race another transaction.
type Tx interface {
	GetUser(id string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	PutUser(u *models.User) error

	GetOffer(id string) (*models.RideOffer, error)
	PutOffer(o *models.RideOffer) error
	DeleteOffer(id string) error
	ListOffersByStatus(status models.Status) ([]models.RideOffer, error)

	GetRequest(id string) (*models.RideRequest, error)
	PutRequest(r *models.RideRequest) error
	DeleteRequest(id string) error
	ListRequestsByStatus(status models.Status) ([]models.RideRequest, error)

	GetRide(id string) (*models.AcceptedRide, error)
	PutRide(r *models.AcceptedRide) error
	DeleteRide(id string) error
	ListRidesForUser(userID string) ([]models.AcceptedRide, error)
}

// Ledger is the sole shared mutable resource. Update runs fn in a read-write
// transaction: either every write in fn is applied or none are. View runs fn
// read-only; writes inside a View are an error.
type Ledger interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
	Close() error
}
