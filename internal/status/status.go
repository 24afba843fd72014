package status

import (
	"errors"
	"fmt"
)

var (
	ErrQueueClosed     = errors.New("queue: queue is closed")
	ErrQueueNotFound   = errors.New("queue: queue not found")
	ErrAlreadyInQueue  = errors.New("queue: phone number already in line")
	ErrAlreadyInOther  = errors.New("queue: customer is already in another line")
	ErrPartyNotFound   = errors.New("queue: party not in line")
	ErrCustomerExists  = errors.New("customer: customer already exists")
	ErrCustomerMissing = errors.New("customer: customer not found")
	ErrLocationMissing = errors.New("business: location not found")
)

// GeofenceError reports a join attempt from outside a location's
// configured radius. Overage is how far past the allowed edge the device
// measured, in meters.
type GeofenceError struct {
	Distance float64
	Radius   float64
}

func (e *GeofenceError) Error() string {
	return fmt.Sprintf("geofence: %.0fm away with a %.0fm radius", e.Distance, e.Radius)
}

// Overage is the distance past the radius edge, in meters.
func (e *GeofenceError) Overage() float64 {
	return e.Distance - e.Radius
}
