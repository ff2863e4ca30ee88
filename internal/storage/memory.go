package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/example/ride-share/internal/apperror"
	"github.com/example/ride-share/internal/models"
)

var errReadOnly = errors.New("storage: write inside read-only transaction")

// MemoryLedger is an in-process Ledger used for local runs and tests. A single
// store-wide mutex is held for the whole transaction, which serializes
// concurrent Updates. Writes are staged per transaction and applied only when
// fn returns nil, so a failed transaction leaves the store untouched.
type MemoryLedger struct {
	mu       sync.RWMutex
	users    map[string]models.User
	offers   map[string]models.RideOffer
	requests map[string]models.RideRequest
	rides    map[string]models.AcceptedRide
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		users:    make(map[string]models.User),
		offers:   make(map[string]models.RideOffer),
		requests: make(map[string]models.RideRequest),
		rides:    make(map[string]models.AcceptedRide),
	}
}

func (m *MemoryLedger) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := newMemTx(m, true)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (m *MemoryLedger) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(newMemTx(m, false))
}

func (m *MemoryLedger) Close() error { return nil }

// memTx stages writes in side maps; a nil pointer marks a deletion.
type memTx struct {
	l        *MemoryLedger
	writable bool
	users    map[string]*models.User
	offers   map[string]*models.RideOffer
	requests map[string]*models.RideRequest
	rides    map[string]*models.AcceptedRide
}

func newMemTx(l *MemoryLedger, writable bool) *memTx {
	return &memTx{
		l:        l,
		writable: writable,
		users:    make(map[string]*models.User),
		offers:   make(map[string]*models.RideOffer),
		requests: make(map[string]*models.RideRequest),
		rides:    make(map[string]*models.AcceptedRide),
	}
}

func (t *memTx) commit() {
	for id, u := range t.users {
		if u == nil {
			delete(t.l.users, id)
		} else {
			t.l.users[id] = *u
		}
	}
	for id, o := range t.offers {
		if o == nil {
			delete(t.l.offers, id)
		} else {
			t.l.offers[id] = *o
		}
	}
	for id, r := range t.requests {
		if r == nil {
			delete(t.l.requests, id)
		} else {
			t.l.requests[id] = *r
		}
	}
	for id, r := range t.rides {
		if r == nil {
			delete(t.l.rides, id)
		} else {
			t.l.rides[id] = *r
		}
	}
}

func (t *memTx) GetUser(id string) (*models.User, error) {
	if u, staged := t.users[id]; staged {
		if u == nil {
			return nil, apperror.NotFound("user", id)
		}
		cp := *u
		return &cp, nil
	}
	if u, ok := t.l.users[id]; ok {
		return &u, nil
	}
	return nil, apperror.NotFound("user", id)
}

func (t *memTx) GetUserByEmail(email string) (*models.User, error) {
	for _, u := range t.users {
		if u != nil && u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	for id, u := range t.l.users {
		if _, staged := t.users[id]; staged {
			continue
		}
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (t *memTx) PutUser(u *models.User) error {
	if !t.writable {
		return errReadOnly
	}
	cp := *u
	t.users[u.ID] = &cp
	return nil
}

func (t *memTx) GetOffer(id string) (*models.RideOffer, error) {
	if o, staged := t.offers[id]; staged {
		if o == nil {
			return nil, apperror.NotFound("offer", id)
		}
		cp := *o
		return &cp, nil
	}
	if o, ok := t.l.offers[id]; ok {
		return &o, nil
	}
	return nil, apperror.NotFound("offer", id)
}

func (t *memTx) PutOffer(o *models.RideOffer) error {
	if !t.writable {
		return errReadOnly
	}
	cp := *o
	t.offers[o.ID] = &cp
	return nil
}

func (t *memTx) DeleteOffer(id string) error {
	if !t.writable {
		return errReadOnly
	}
	if _, err := t.GetOffer(id); err != nil {
		return err
	}
	t.offers[id] = nil
	return nil
}

func (t *memTx) ListOffersByStatus(status models.Status) ([]models.RideOffer, error) {
	var out []models.RideOffer
	for id, o := range t.l.offers {
		if _, staged := t.offers[id]; staged {
			continue
		}
		if o.Status == status {
			out = append(out, o)
		}
	}
	for _, o := range t.offers {
		if o != nil && o.Status == status {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (t *memTx) GetRequest(id string) (*models.RideRequest, error) {
	if r, staged := t.requests[id]; staged {
		if r == nil {
			return nil, apperror.NotFound("request", id)
		}
		cp := *r
		return &cp, nil
	}
	if r, ok := t.l.requests[id]; ok {
		return &r, nil
	}
	return nil, apperror.NotFound("request", id)
}

func (t *memTx) PutRequest(r *models.RideRequest) error {
	if !t.writable {
		return errReadOnly
	}
	cp := *r
	t.requests[r.ID] = &cp
	return nil
}

func (t *memTx) DeleteRequest(id string) error {
	if !t.writable {
		return errReadOnly
	}
	if _, err := t.GetRequest(id); err != nil {
		return err
	}
	t.requests[id] = nil
	return nil
}

func (t *memTx) ListRequestsByStatus(status models.Status) ([]models.RideRequest, error) {
	var out []models.RideRequest
	for id, r := range t.l.requests {
		if _, staged := t.requests[id]; staged {
			continue
		}
		if r.Status == status {
			out = append(out, r)
		}
	}
	for _, r := range t.requests {
		if r != nil && r.Status == status {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (t *memTx) GetRide(id string) (*models.AcceptedRide, error) {
	if r, staged := t.rides[id]; staged {
		if r == nil {
			return nil, apperror.NotFound("ride", id)
		}
		cp := *r
		return &cp, nil
	}
	if r, ok := t.l.rides[id]; ok {
		return &r, nil
	}
	return nil, apperror.NotFound("ride", id)
}

func (t *memTx) PutRide(r *models.AcceptedRide) error {
	if !t.writable {
		return errReadOnly
	}
	cp := *r
	t.rides[r.ID] = &cp
	return nil
}

func (t *memTx) DeleteRide(id string) error {
	if !t.writable {
		return errReadOnly
	}
	if _, err := t.GetRide(id); err != nil {
		return err
	}
	t.rides[id] = nil
	return nil
}

func (t *memTx) ListRidesForUser(userID string) ([]models.AcceptedRide, error) {
	var out []models.AcceptedRide
	for id, r := range t.l.rides {
		if _, staged := t.rides[id]; staged {
			continue
		}
		if r.DriverID == userID || r.RiderID == userID {
			out = append(out, r)
		}
	}
	for _, r := range t.rides {
		if r != nil && (r.DriverID == userID || r.RiderID == userID) {
			out = append(out, *r)
		}
	}
	return out, nil
}
