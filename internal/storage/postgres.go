package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/example/ride-share/internal/apperror"
	"github.com/example/ride-share/internal/models"
)

// PostgresLedger backs the Ledger with Postgres. Record reads inside an Update
// transaction use SELECT ... FOR UPDATE, so concurrent settlements of the same
// ride or transfers touching the same balance serialize on row locks.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(dsn string) (*PostgresLedger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresLedger{db: db}, nil
}

func (p *PostgresLedger) Update(ctx context.Context, fn func(Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return apperror.StoreUnavailable(err)
	}
	pt := &pgTx{ctx: ctx, tx: tx, forUpdate: true}
	if err := fn(pt); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperror.StoreUnavailable(err)
	}
	return nil
}

func (p *PostgresLedger) View(ctx context.Context, fn func(Tx) error) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return apperror.StoreUnavailable(err)
	}
	defer tx.Rollback()
	return fn(&pgTx{ctx: ctx, tx: tx})
}

func (p *PostgresLedger) Close() error { return p.db.Close() }

// Migrate applies the given schema SQL. Used by cmd/server when MIGRATE=true.
func (p *PostgresLedger) Migrate(ctx context.Context, schema string) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return apperror.StoreUnavailable(err)
	}
	return nil
}

type pgTx struct {
	ctx       context.Context
	tx        *sql.Tx
	forUpdate bool
}

func (t *pgTx) lock() string {
	if t.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func (t *pgTx) GetUser(id string) (*models.User, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT id, email, password_hash, points FROM users WHERE id=$1`+t.lock(), id)
	return scanUser(row, id)
}

func (t *pgTx) GetUserByEmail(email string) (*models.User, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT id, email, password_hash, points FROM users WHERE email=$1`+t.lock(), email)
	return scanUser(row, email)
}

func scanUser(row *sql.Row, key string) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Points)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", key)
	}
	if err != nil {
		return nil, apperror.StoreUnavailable(err)
	}
	return &u, nil
}

func (t *pgTx) PutUser(u *models.User) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO users(id, email, password_hash, points) VALUES($1,$2,$3,$4)
		 ON CONFLICT (id) DO UPDATE SET email=$2, password_hash=$3, points=$4`,
		u.ID, u.Email, u.PasswordHash, u.Points)
	if isUniqueViolation(err) {
		// two registrations raced on the same email; the users.email
		// constraint caught the loser
		return apperror.Conflict("email already registered")
	}
	if err != nil {
		return apperror.StoreUnavailable(err)
	}
	return nil
}

// isUniqueViolation reports whether err is Postgres error class 23505,
// a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (t *pgTx) GetOffer(id string) (*models.RideOffer, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT id, driver_id, driver_email, COALESCE(rider_id,''), COALESCE(rider_email,''),
		        date_time, start_point, destination, status
		 FROM ride_offers WHERE id=$1`+t.lock(), id)
	var o models.RideOffer
	err := row.Scan(&o.ID, &o.DriverID, &o.DriverEmail, &o.RiderID, &o.RiderEmail,
		&o.DateTime, &o.StartPoint, &o.Destination, &o.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("offer", id)
	}
	if err != nil {
		return nil, apperror.StoreUnavailable(err)
	}
	return &o, nil
}

func (t *pgTx) PutOffer(o *models.RideOffer) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO ride_offers(id, driver_id, driver_email, rider_id, rider_email, date_time, start_point, destination, status)
		 VALUES($1,$2,$3,NULLIF($4,''),NULLIF($5,''),$6,$7,$8,$9)
		 ON CONFLICT (id) DO UPDATE SET rider_id=NULLIF($4,''), rider_email=NULLIF($5,''),
		   date_time=$6, start_point=$7, destination=$8, status=$9`,
		o.ID, o.DriverID, o.DriverEmail, o.RiderID, o.RiderEmail,
		o.DateTime, o.StartPoint, o.Destination, o.Status)
	if err != nil {
		return apperror.StoreUnavailable(err)
	}
	return nil
}

func (t *pgTx) DeleteOffer(id string) error {
	return t.deleteFrom("ride_offers", "offer", id)
}

func (t *pgTx) ListOffersByStatus(status models.Status) ([]models.RideOffer, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT id, driver_id, driver_email, COALESCE(rider_id,''), COALESCE(rider_email,''),
		        date_time, start_point, destination, status
		 FROM ride_offers WHERE status=$1`, status)
	if err != nil {
		return nil, apperror.StoreUnavailable(err)
	}
	defer rows.Close()
	var out []models.RideOffer
	for rows.Next() {
		var o models.RideOffer
		if err := rows.Scan(&o.ID, &o.DriverID, &o.DriverEmail, &o.RiderID, &o.RiderEmail,
			&o.DateTime, &o.StartPoint, &o.Destination, &o.Status); err != nil {
			return nil, apperror.StoreUnavailable(err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.StoreUnavailable(err)
	}
	return out, nil
}

func (t *pgTx) GetRequest(id string) (*models.RideRequest, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT id, rider_id, rider_email, COALESCE(driver_id,''), COALESCE(driver_email,''),
		        date_time, start_point, destination, status
		 FROM ride_requests WHERE id=$1`+t.lock(), id)
	var r models.RideRequest
	err := row.Scan(&r.ID, &r.RiderID, &r.RiderEmail, &r.DriverID, &r.DriverEmail,
		&r.DateTime, &r.StartPoint, &r.Destination, &r.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("request", id)
	}
	if err != nil {
		return nil, apperror.StoreUnavailable(err)
	}
	return &r, nil
}

func (t *pgTx) PutRequest(r *models.RideRequest) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO ride_requests(id, rider_id, rider_email, driver_id, driver_email, date_time, start_point, destination, status)
		 VALUES($1,$2,$3,NULLIF($4,''),NULLIF($5,''),$6,$7,$8,$9)
		 ON CONFLICT (id) DO UPDATE SET driver_id=NULLIF($4,''), driver_email=NULLIF($5,''),
		   date_time=$6, start_point=$7, destination=$8, status=$9`,
		r.ID, r.RiderID, r.RiderEmail, r.DriverID, r.DriverEmail,
		r.DateTime, r.StartPoint, r.Destination, r.Status)
	if err != nil {
		return apperror.StoreUnavailable(err)
	}
	return nil
}

func (t *pgTx) DeleteRequest(id string) error {
	return t.deleteFrom("ride_requests", "request", id)
}

func (t *pgTx) ListRequestsByStatus(status models.Status) ([]models.RideRequest, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT id, rider_id, rider_email, COALESCE(driver_id,''), COALESCE(driver_email,''),
		        date_time, start_point, destination, status
		 FROM ride_requests WHERE status=$1`, status)
	if err != nil {
		return nil, apperror.StoreUnavailable(err)
	}
	defer rows.Close()
	var out []models.RideRequest
	for rows.Next() {
		var r models.RideRequest
		if err := rows.Scan(&r.ID, &r.RiderID, &r.RiderEmail, &r.DriverID, &r.DriverEmail,
			&r.DateTime, &r.StartPoint, &r.Destination, &r.Status); err != nil {
			return nil, apperror.StoreUnavailable(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.StoreUnavailable(err)
	}
	return out, nil
}

func (t *pgTx) GetRide(id string) (*models.AcceptedRide, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT id, driver_id, rider_id, driver_email, rider_email, date_time,
		        start_point, destination, points, driver_confirmed, rider_confirmed
		 FROM accepted_rides WHERE id=$1`+t.lock(), id)
	var r models.AcceptedRide
	err := row.Scan(&r.ID, &r.DriverID, &r.RiderID, &r.DriverEmail, &r.RiderEmail,
		&r.DateTime, &r.StartPoint, &r.Destination, &r.Points, &r.DriverConfirmed, &r.RiderConfirmed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("ride", id)
	}
	if err != nil {
		return nil, apperror.StoreUnavailable(err)
	}
	return &r, nil
}

func (t *pgTx) PutRide(r *models.AcceptedRide) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO accepted_rides(id, driver_id, rider_id, driver_email, rider_email, date_time, start_point, destination, points, driver_confirmed, rider_confirmed)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 ON CONFLICT (id) DO UPDATE SET driver_confirmed=$10, rider_confirmed=$11`,
		r.ID, r.DriverID, r.RiderID, r.DriverEmail, r.RiderEmail,
		r.DateTime, r.StartPoint, r.Destination, r.Points, r.DriverConfirmed, r.RiderConfirmed)
	if err != nil {
		return apperror.StoreUnavailable(err)
	}
	return nil
}

func (t *pgTx) DeleteRide(id string) error {
	return t.deleteFrom("accepted_rides", "ride", id)
}

func (t *pgTx) ListRidesForUser(userID string) ([]models.AcceptedRide, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT id, driver_id, rider_id, driver_email, rider_email, date_time,
		        start_point, destination, points, driver_confirmed, rider_confirmed
		 FROM accepted_rides WHERE driver_id=$1 OR rider_id=$1`, userID)
	if err != nil {
		return nil, apperror.StoreUnavailable(err)
	}
	defer rows.Close()
	var out []models.AcceptedRide
	for rows.Next() {
		var r models.AcceptedRide
		if err := rows.Scan(&r.ID, &r.DriverID, &r.RiderID, &r.DriverEmail, &r.RiderEmail,
			&r.DateTime, &r.StartPoint, &r.Destination, &r.Points,
			&r.DriverConfirmed, &r.RiderConfirmed); err != nil {
			return nil, apperror.StoreUnavailable(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.StoreUnavailable(err)
	}
	return out, nil
}

func (t *pgTx) deleteFrom(table, resource, id string) error {
	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM `+table+` WHERE id=$1`, id)
	if err != nil {
		return apperror.StoreUnavailable(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
