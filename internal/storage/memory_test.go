package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-share/internal/apperror"
	"github.com/example/ride-share/internal/models"
)

func TestMemoryLedger_UserRoundTrip(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	err := l.Update(ctx, func(tx Tx) error {
		return tx.PutUser(&models.User{ID: "u1", Email: "a@uni.edu", Points: 100})
	})
	require.NoError(t, err)

	err = l.View(ctx, func(tx Tx) error {
		u, err := tx.GetUser("u1")
		require.NoError(t, err)
		assert.Equal(t, "a@uni.edu", u.Email)
		assert.Equal(t, 100, u.Points)

		byEmail, err := tx.GetUserByEmail("a@uni.edu")
		require.NoError(t, err)
		assert.Equal(t, "u1", byEmail.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryLedger_GetMissingIsNotFound(t *testing.T) {
	l := NewMemoryLedger()
	err := l.View(context.Background(), func(tx Tx) error {
		_, err := tx.GetRide("nope")
		return err
	})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestMemoryLedger_UpdateRollsBackOnError(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Update(ctx, func(tx Tx) error {
		return tx.PutOffer(&models.RideOffer{ID: "o1", DriverID: "d1", Status: models.StatusAvailable})
	}))

	boom := errors.New("boom")
	err := l.Update(ctx, func(tx Tx) error {
		o, err := tx.GetOffer("o1")
		require.NoError(t, err)
		o.Status = models.StatusAccepted
		require.NoError(t, tx.PutOffer(o))
		require.NoError(t, tx.PutRide(&models.AcceptedRide{ID: "r1", DriverID: "d1", RiderID: "u2"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	// neither the status flip nor the ride survived the failed transaction
	err = l.View(ctx, func(tx Tx) error {
		o, err := tx.GetOffer("o1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusAvailable, o.Status)
		_, err = tx.GetRide("r1")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryLedger_WritesVisibleInsideTransaction(t *testing.T) {
	l := NewMemoryLedger()
	err := l.Update(context.Background(), func(tx Tx) error {
		require.NoError(t, tx.PutRide(&models.AcceptedRide{ID: "r1", DriverID: "d1", RiderID: "u2"}))
		r, err := tx.GetRide("r1")
		require.NoError(t, err)
		assert.Equal(t, "d1", r.DriverID)

		rides, err := tx.ListRidesForUser("u2")
		require.NoError(t, err)
		assert.Len(t, rides, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryLedger_ViewRejectsWrites(t *testing.T) {
	l := NewMemoryLedger()
	err := l.View(context.Background(), func(tx Tx) error {
		return tx.PutUser(&models.User{ID: "u1"})
	})
	assert.Error(t, err)
}

func TestMemoryLedger_DeleteInsideTransaction(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, l.Update(ctx, func(tx Tx) error {
		return tx.PutRide(&models.AcceptedRide{ID: "r1", DriverID: "d1", RiderID: "u2"})
	}))

	require.NoError(t, l.Update(ctx, func(tx Tx) error {
		if err := tx.DeleteRide("r1"); err != nil {
			return err
		}
		_, err := tx.GetRide("r1")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
		return nil
	}))

	err := l.Update(ctx, func(tx Tx) error { return tx.DeleteRide("r1") })
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestMemoryLedger_ListByStatus(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, l.Update(ctx, func(tx Tx) error {
		if err := tx.PutOffer(&models.RideOffer{ID: "o1", Status: models.StatusAvailable}); err != nil {
			return err
		}
		if err := tx.PutOffer(&models.RideOffer{ID: "o2", Status: models.StatusAccepted}); err != nil {
			return err
		}
		return tx.PutRequest(&models.RideRequest{ID: "q1", Status: models.StatusAvailable})
	}))

	err := l.View(ctx, func(tx Tx) error {
		offers, err := tx.ListOffersByStatus(models.StatusAvailable)
		require.NoError(t, err)
		require.Len(t, offers, 1)
		assert.Equal(t, "o1", offers[0].ID)

		reqs, err := tx.ListRequestsByStatus(models.StatusAvailable)
		require.NoError(t, err)
		assert.Len(t, reqs, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryLedger_CopiesDoNotAlias(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, l.Update(ctx, func(tx Tx) error {
		return tx.PutUser(&models.User{ID: "u1", Points: 100})
	}))

	require.NoError(t, l.View(ctx, func(tx Tx) error {
		u, err := tx.GetUser("u1")
		require.NoError(t, err)
		u.Points = 0 // mutating the returned record must not touch the store
		return nil
	}))

	require.NoError(t, l.View(ctx, func(tx Tx) error {
		u, err := tx.GetUser("u1")
		require.NoError(t, err)
		assert.Equal(t, 100, u.Points)
		return nil
	}))
}
