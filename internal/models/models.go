package models

import "time"

// Status of an offer or request on the board.
type Status string

const (
	StatusAvailable Status = "available"
	StatusAccepted  Status = "accepted"
)

// Role identifies which side of a ride a user is on.
type Role string

const (
	RoleDriver Role = "driver"
	RoleRider  Role = "rider"
)

const (
	// StartingPoints is granted to every user at registration.
	StartingPoints = 100
	// RideCost is the fixed points price of a ride, set when a ride is accepted.
	RideCost = 50
)

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Points       int    `json:"points"`
}

type RideOffer struct {
	ID          string `json:"id"`
	DriverID    string `json:"driver_id"`
	DriverEmail string `json:"driver_email"`
	RiderID     string `json:"rider_id,omitempty"`
	RiderEmail  string `json:"rider_email,omitempty"`
	DateTime    int64  `json:"date_time"` // epoch millis
	StartPoint  string `json:"start_point"`
	Destination string `json:"destination"`
	Status      Status `json:"status"`
}

type RideRequest struct {
	ID          string `json:"id"`
	RiderID     string `json:"rider_id"`
	RiderEmail  string `json:"rider_email"`
	DriverID    string `json:"driver_id,omitempty"`
	DriverEmail string `json:"driver_email,omitempty"`
	DateTime    int64  `json:"date_time"`
	StartPoint  string `json:"start_point"`
	Destination string `json:"destination"`
	Status      Status `json:"status"`
}

// AcceptedRide pairs a driver and a rider pending mutual confirmation.
// Points is fixed at creation; the confirmation flags only ever go false -> true.
type AcceptedRide struct {
	ID              string `json:"id"`
	DriverID        string `json:"driver_id"`
	RiderID         string `json:"rider_id"`
	DriverEmail     string `json:"driver_email"`
	RiderEmail      string `json:"rider_email"`
	DateTime        int64  `json:"date_time"`
	StartPoint      string `json:"start_point"`
	Destination     string `json:"destination"`
	Points          int    `json:"points"`
	DriverConfirmed bool   `json:"driver_confirmed"`
	RiderConfirmed  bool   `json:"rider_confirmed"`
}

// RideFromOffer seeds an AcceptedRide from an accepted offer.
func RideFromOffer(o *RideOffer) *AcceptedRide {
	return &AcceptedRide{
		DriverID:    o.DriverID,
		RiderID:     o.RiderID,
		DriverEmail: o.DriverEmail,
		RiderEmail:  o.RiderEmail,
		DateTime:    o.DateTime,
		StartPoint:  o.StartPoint,
		Destination: o.Destination,
		Points:      RideCost,
	}
}

// RideFromRequest seeds an AcceptedRide from an accepted request.
func RideFromRequest(r *RideRequest) *AcceptedRide {
	return &AcceptedRide{
		DriverID:    r.DriverID,
		RiderID:     r.RiderID,
		DriverEmail: r.DriverEmail,
		RiderEmail:  r.RiderEmail,
		DateTime:    r.DateTime,
		StartPoint:  r.StartPoint,
		Destination: r.Destination,
		Points:      RideCost,
	}
}

func (r *AcceptedRide) FullyConfirmed() bool {
	return r.DriverConfirmed && r.RiderConfirmed
}

// RoleOf returns the side userID is on, or "" if they are not a participant.
func (r *AcceptedRide) RoleOf(userID string) Role {
	switch userID {
	case r.DriverID:
		return RoleDriver
	case r.RiderID:
		return RoleRider
	}
	return ""
}

func (r *AcceptedRide) When() time.Time {
	return time.UnixMilli(r.DateTime)
}
