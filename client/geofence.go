package client

import (
	"radius/models"
	"radius/utils"
)

// RadiusBufferMeters pads every business geofence to forgive device
// location jitter at the boundary.
const RadiusBufferMeters = 10.0

// GeofenceResult reports one join-precondition check.
type GeofenceResult struct {
	Distance float64
	Radius   float64
	Allowed  bool
}

// Overage is how far past the configured radius the device measured,
// for the "you are N meters away" rejection message.
func (r GeofenceResult) Overage() float64 {
	return r.Distance - r.Radius
}

// CheckGeofence decides whether a device may join a business's queue:
// allowed iff the great-circle distance to the business is within the
// configured radius plus the fixed buffer. A negative radius disables
// the fence.
func CheckGeofence(business models.Coordinates, radius float64, device models.Coordinates) GeofenceResult {
	distance := utils.HaversineMeters(business, device)
	return GeofenceResult{
		Distance: distance,
		Radius:   radius,
		Allowed:  radius < 0 || distance <= radius+RadiusBufferMeters,
	}
}
