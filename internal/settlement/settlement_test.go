package settlement

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-share/internal/apperror"
	"github.com/example/ride-share/internal/models"
	"github.com/example/ride-share/internal/storage"
)

func seed(t *testing.T, riderPoints int) (*Protocol, *storage.MemoryLedger) {
	t.Helper()
	l := storage.NewMemoryLedger()
	err := l.Update(context.Background(), func(tx storage.Tx) error {
		if err := tx.PutUser(&models.User{ID: "driver", Email: "d@uni.edu", Points: 100}); err != nil {
			return err
		}
		if err := tx.PutUser(&models.User{ID: "rider", Email: "r@uni.edu", Points: riderPoints}); err != nil {
			return err
		}
		return tx.PutRide(&models.AcceptedRide{
			ID: "ride1", DriverID: "driver", RiderID: "rider",
			DriverEmail: "d@uni.edu", RiderEmail: "r@uni.edu", Points: models.RideCost,
		})
	})
	require.NoError(t, err)
	return NewProtocol(l), l
}

func points(t *testing.T, l *storage.MemoryLedger, id string) int {
	t.Helper()
	var pts int
	require.NoError(t, l.View(context.Background(), func(tx storage.Tx) error {
		u, err := tx.GetUser(id)
		if err != nil {
			return err
		}
		pts = u.Points
		return nil
	}))
	return pts
}

func rideExists(t *testing.T, l *storage.MemoryLedger, id string) bool {
	t.Helper()
	err := l.View(context.Background(), func(tx storage.Tx) error {
		_, err := tx.GetRide(id)
		return err
	})
	return err == nil
}

func TestConfirm_FirstPartyOnlyRecordsFlag(t *testing.T) {
	p, l := seed(t, 100)

	out, err := p.Confirm(context.Background(), "ride1", models.RoleDriver)
	require.NoError(t, err)
	assert.False(t, out.Settled)
	assert.True(t, out.Ride.DriverConfirmed)
	assert.False(t, out.Ride.RiderConfirmed)

	// no transfer yet
	assert.Equal(t, 100, points(t, l, "driver"))
	assert.Equal(t, 100, points(t, l, "rider"))
	assert.True(t, rideExists(t, l, "ride1"))
}

func TestConfirm_DualConfirmationSettles(t *testing.T) {
	p, l := seed(t, 100)
	ctx := context.Background()

	_, err := p.Confirm(ctx, "ride1", models.RoleDriver)
	require.NoError(t, err)
	out, err := p.Confirm(ctx, "ride1", models.RoleRider)
	require.NoError(t, err)

	assert.True(t, out.Settled)
	assert.Equal(t, 150, points(t, l, "driver"))
	assert.Equal(t, 50, points(t, l, "rider"))
	assert.False(t, rideExists(t, l, "ride1"))

	// total points conserved
	assert.Equal(t, 200, points(t, l, "driver")+points(t, l, "rider"))
}

func TestConfirm_IdempotentPerRole(t *testing.T) {
	p, l := seed(t, 100)
	ctx := context.Background()

	first, err := p.Confirm(ctx, "ride1", models.RoleDriver)
	require.NoError(t, err)
	second, err := p.Confirm(ctx, "ride1", models.RoleDriver)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.False(t, second.Settled)
	assert.Equal(t, 100, points(t, l, "driver"))
	assert.Equal(t, 100, points(t, l, "rider"))
}

func TestConfirm_SettlesExactlyOnce(t *testing.T) {
	p, _ := seed(t, 100)
	ctx := context.Background()

	_, err := p.Confirm(ctx, "ride1", models.RoleDriver)
	require.NoError(t, err)
	out, err := p.Confirm(ctx, "ride1", models.RoleRider)
	require.NoError(t, err)
	require.True(t, out.Settled)

	// the ride is gone, so a replayed confirm cannot settle again
	_, err = p.Confirm(ctx, "ride1", models.RoleRider)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestConfirm_InsufficientPointsRejectsCompletingConfirm(t *testing.T) {
	p, l := seed(t, 20)
	ctx := context.Background()

	_, err := p.Confirm(ctx, "ride1", models.RoleDriver)
	require.NoError(t, err)

	_, err = p.Confirm(ctx, "ride1", models.RoleRider)
	assert.ErrorIs(t, err, apperror.ErrInsufficientPoints)

	// balances untouched, driver's confirmation kept, rider's flag NOT persisted
	assert.Equal(t, 100, points(t, l, "driver"))
	assert.Equal(t, 20, points(t, l, "rider"))
	require.NoError(t, l.View(ctx, func(tx storage.Tx) error {
		ride, err := tx.GetRide("ride1")
		require.NoError(t, err)
		assert.True(t, ride.DriverConfirmed)
		assert.False(t, ride.RiderConfirmed)
		return nil
	}))
}

func TestConfirm_RetriesAfterTopUp(t *testing.T) {
	p, l := seed(t, 20)
	ctx := context.Background()

	_, err := p.Confirm(ctx, "ride1", models.RoleDriver)
	require.NoError(t, err)
	_, err = p.Confirm(ctx, "ride1", models.RoleRider)
	require.ErrorIs(t, err, apperror.ErrInsufficientPoints)

	// rider tops up, the retried confirm settles
	require.NoError(t, l.Update(ctx, func(tx storage.Tx) error {
		u, err := tx.GetUser("rider")
		if err != nil {
			return err
		}
		u.Points += 50
		return tx.PutUser(u)
	}))

	out, err := p.Confirm(ctx, "ride1", models.RoleRider)
	require.NoError(t, err)
	assert.True(t, out.Settled)
	assert.Equal(t, 150, points(t, l, "driver"))
	assert.Equal(t, 20, points(t, l, "rider"))
}

func TestConfirm_UnknownRideIsNotFound(t *testing.T) {
	p, _ := seed(t, 100)
	_, err := p.Confirm(context.Background(), "missing", models.RoleDriver)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestConfirm_UnknownRoleIsRejected(t *testing.T) {
	p, _ := seed(t, 100)
	_, err := p.Confirm(context.Background(), "ride1", models.Role("passenger"))
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestConfirmBy_ResolvesRoleFromRide(t *testing.T) {
	p, l := seed(t, 100)
	ctx := context.Background()

	_, err := p.ConfirmBy(ctx, "ride1", "driver")
	require.NoError(t, err)
	out, err := p.ConfirmBy(ctx, "ride1", "rider")
	require.NoError(t, err)
	assert.True(t, out.Settled)
	assert.Equal(t, 150, points(t, l, "driver"))
}

func TestConfirm_ConcurrentConfirmsSettleExactlyOnce(t *testing.T) {
	// Both parties confirm at the same time. The ledger must serialize the
	// two transactions so exactly one of them performs the settlement.
	for i := 0; i < 100; i++ {
		p, l := seed(t, 100)
		ctx := context.Background()

		var wg sync.WaitGroup
		outcomes := make([]Outcome, 2)
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			outcomes[0], errs[0] = p.Confirm(ctx, "ride1", models.RoleDriver)
		}()
		go func() {
			defer wg.Done()
			outcomes[1], errs[1] = p.Confirm(ctx, "ride1", models.RoleRider)
		}()
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		settled := 0
		for _, out := range outcomes {
			if out.Settled {
				settled++
			}
		}
		assert.Equal(t, 1, settled, "exactly one confirm must settle")
		assert.Equal(t, 150, points(t, l, "driver"))
		assert.Equal(t, 50, points(t, l, "rider"))
		assert.False(t, rideExists(t, l, "ride1"))
	}
}

func TestConfirmBy_StrangerIsForbidden(t *testing.T) {
	p, _ := seed(t, 100)
	_, err := p.ConfirmBy(context.Background(), "ride1", "someone-else")
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}
