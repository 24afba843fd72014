package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"radius/models"
)

func TestHaversineMeters_KnownDistances(t *testing.T) {
	seattle := models.Coordinates{Latitude: 47.6062, Longitude: -122.3321}
	portland := models.Coordinates{Latitude: 45.5152, Longitude: -122.6784}

	// Seattle to Portland is roughly 233 km as the crow flies.
	d := HaversineMeters(seattle, portland)
	assert.InDelta(t, 233000, d, 2000)

	assert.Zero(t, HaversineMeters(seattle, seattle))

	// Symmetry.
	assert.InDelta(t, d, HaversineMeters(portland, seattle), 0.001)
}

func TestHaversineMeters_ShortRange(t *testing.T) {
	// Two points ~111m apart along a meridian (0.001 degrees latitude).
	a := models.Coordinates{Latitude: 47.6553, Longitude: -122.3035}
	b := models.Coordinates{Latitude: 47.6563, Longitude: -122.3035}

	assert.InDelta(t, 111.2, HaversineMeters(a, b), 1)
}

func TestOrdinal(t *testing.T) {
	cases := map[int]string{
		1:   "1st",
		2:   "2nd",
		3:   "3rd",
		4:   "4th",
		10:  "10th",
		11:  "11th",
		12:  "12th",
		13:  "13th",
		21:  "21st",
		22:  "22nd",
		23:  "23rd",
		101: "101st",
		111: "111th",
		112: "112th",
	}

	for n, want := range cases {
		assert.Equal(t, want, Ordinal(n), "n=%d", n)
	}
}

func TestFormatPhone(t *testing.T) {
	assert.Equal(t, "(206)555-0123", FormatPhone("2065550123"))
	assert.Equal(t, "(206)5550", FormatPhone("2065550"))
	assert.Equal(t, "20", FormatPhone("20"))
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "A L", ShortName("ada", "lovelace"))
	assert.Equal(t, "A", ShortName("Ada", ""))
}

func TestCircuitBreaker_ExecuteSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	calls := 0
	err := cb.Execute(ctx, func() error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ExecuteFailure(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	wantErr := errors.New("delivery failed")
	err := cb.Execute(ctx, func() error { return wantErr })

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_TripsAfterRepeatedFailures(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	wantErr := errors.New("delivery failed")
	for i := 0; i < int(cb.maxRequests); i++ {
		_ = cb.Execute(ctx, func() error { return wantErr })
	}

	assert.Equal(t, StateOpen, cb.State())

	calls := 0
	err := cb.Execute(ctx, func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Zero(t, calls)
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
