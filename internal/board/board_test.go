package board

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-share/internal/apperror"
	"github.com/example/ride-share/internal/models"
	"github.com/example/ride-share/internal/storage"
)

var valid = Listing{DateTime: 1700000000000, StartPoint: "Campus", Destination: "Airport"}

func TestPostOffer(t *testing.T) {
	s := NewService(storage.NewMemoryLedger())
	offer, err := s.PostOffer(context.Background(), "d1", "d@uni.edu", valid)
	require.NoError(t, err)
	assert.NotEmpty(t, offer.ID)
	assert.Equal(t, models.StatusAvailable, offer.Status)
	assert.Equal(t, "d@uni.edu", offer.DriverEmail)
}

func TestPostOffer_Validation(t *testing.T) {
	s := NewService(storage.NewMemoryLedger())
	cases := []Listing{
		{DateTime: 1, Destination: "Airport"},          // no start
		{DateTime: 1, StartPoint: "Campus"},            // no destination
		{StartPoint: "Campus", Destination: "Airport"}, // no time
	}
	for _, l := range cases {
		_, err := s.PostOffer(context.Background(), "d1", "d@uni.edu", l)
		assert.ErrorIs(t, err, apperror.ErrValidation)
	}
}

func TestUpdateOffer_OwnerOnly(t *testing.T) {
	s := NewService(storage.NewMemoryLedger())
	ctx := context.Background()
	offer, err := s.PostOffer(ctx, "d1", "d@uni.edu", valid)
	require.NoError(t, err)

	_, err = s.UpdateOffer(ctx, offer.ID, "someone-else", valid)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	updated, err := s.UpdateOffer(ctx, offer.ID, "d1", Listing{DateTime: 42, StartPoint: "Dorms", Destination: "Stadium"})
	require.NoError(t, err)
	assert.Equal(t, "Dorms", updated.StartPoint)
	assert.Equal(t, int64(42), updated.DateTime)
}

func TestUpdateOffer_AcceptedIsConflict(t *testing.T) {
	ledger := storage.NewMemoryLedger()
	s := NewService(ledger)
	ctx := context.Background()
	offer, err := s.PostOffer(ctx, "d1", "d@uni.edu", valid)
	require.NoError(t, err)

	require.NoError(t, ledger.Update(ctx, func(tx storage.Tx) error {
		o, err := tx.GetOffer(offer.ID)
		if err != nil {
			return err
		}
		o.Status = models.StatusAccepted
		return tx.PutOffer(o)
	}))

	_, err = s.UpdateOffer(ctx, offer.ID, "d1", valid)
	assert.ErrorIs(t, err, apperror.ErrConflict)
	err = s.DeleteOffer(ctx, offer.ID, "d1")
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestDeleteOffer(t *testing.T) {
	ledger := storage.NewMemoryLedger()
	s := NewService(ledger)
	ctx := context.Background()
	offer, err := s.PostOffer(ctx, "d1", "d@uni.edu", valid)
	require.NoError(t, err)

	require.ErrorIs(t, s.DeleteOffer(ctx, offer.ID, "intruder"), apperror.ErrForbidden)
	require.NoError(t, s.DeleteOffer(ctx, offer.ID, "d1"))
	require.ErrorIs(t, s.DeleteOffer(ctx, offer.ID, "d1"), apperror.ErrNotFound)
}

func TestRequestLifecycle(t *testing.T) {
	s := NewService(storage.NewMemoryLedger())
	ctx := context.Background()

	req, err := s.PostRequest(ctx, "r1", "r@uni.edu", valid)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, req.Status)

	updated, err := s.UpdateRequest(ctx, req.ID, "r1", Listing{DateTime: 7, StartPoint: "A", Destination: "B"})
	require.NoError(t, err)
	assert.Equal(t, "A", updated.StartPoint)

	_, err = s.UpdateRequest(ctx, req.ID, "not-owner", valid)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	require.NoError(t, s.DeleteRequest(ctx, req.ID, "r1"))
}
