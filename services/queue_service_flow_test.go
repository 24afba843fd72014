package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radius/config"
	"radius/internal/status"
	"radius/models"
)

// These tests drive Join and Leave against a real store. Redis is a mock
// with no expectations: the derived live state is incidental here and the
// service ignores cache write failures.
func setupFlowService(t *testing.T) (*tests.TestApp, *QueueService) {
	t.Helper()

	app, err := tests.NewTestApp(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)

	queues := core.NewBaseCollection("queues")
	queues.Fields.Add(
		&core.TextField{Name: "name"},
		&core.BoolField{Name: "open"},
		&core.NumberField{Name: "version", OnlyInt: true},
		&core.JSONField{Name: "parties"},
		&core.TextField{Name: "location"},
	)
	require.NoError(t, app.Save(queues))

	locations := core.NewBaseCollection("locations")
	locations.Fields.Add(
		&core.TextField{Name: "name"},
		&core.TextField{Name: "address"},
		&core.TextField{Name: "phoneNumber"},
		&core.NumberField{Name: "latitude"},
		&core.NumberField{Name: "longitude"},
		&core.NumberField{Name: "radius"},
		&core.TextField{Name: "type"},
		&core.JSONField{Name: "hours"},
		&core.JSONField{Name: "queues"},
	)
	require.NoError(t, app.Save(locations))

	customers := core.NewBaseCollection("customers")
	customers.Fields.Add(
		&core.TextField{Name: "uid"},
		&core.TextField{Name: "firstName"},
		&core.TextField{Name: "lastName"},
		&core.EmailField{Name: "email"},
		&core.TextField{Name: "phoneNumber"},
		&core.TextField{Name: "currentQueue"},
		&core.JSONField{Name: "favorites"},
		&core.JSONField{Name: "recents"},
		&core.TextField{Name: "pushToken"},
	)
	require.NoError(t, app.Save(customers))

	db, _ := redismock.NewClientMock()
	cfg := &config.Config{
		GeofenceBufferMeters: 10,
		PositionCacheTTL:     15 * time.Second,
		InactiveQueueTTL:     time.Hour,
		RecentsLimit:         10,
		NotifyPositionCutoff: 5,
	}

	service := NewQueueService(
		app,
		db,
		NewBusinessService(app, cfg.GeofenceBufferMeters),
		NewCustomerService(app, cfg),
		NewNotifier(nil, nil, nil, cfg),
		NewLiveHub(nil),
		nil,
		cfg,
	)
	return app, service
}

func createFlowQueue(t *testing.T, app core.App, open bool, parties ...models.Party) string {
	t.Helper()

	collection, err := app.FindCollectionByNameOrId("queues")
	require.NoError(t, err)

	record := core.NewRecord(collection)
	record.Set("name", "Front Desk")
	record.Set("open", open)
	record.Set("parties", parties)
	require.NoError(t, app.Save(record))
	return record.Id
}

func createFlowLocation(t *testing.T, app core.App, queueID string, coords models.Coordinates, radius float64) string {
	t.Helper()

	collection, err := app.FindCollectionByNameOrId("locations")
	require.NoError(t, err)

	record := core.NewRecord(collection)
	record.Set("name", "Pike Place Chowder")
	record.Set("latitude", coords.Latitude)
	record.Set("longitude", coords.Longitude)
	record.Set("radius", radius)
	record.Set("queues", []string{queueID})
	require.NoError(t, app.Save(record))
	return record.Id
}

func createFlowCustomer(t *testing.T, app core.App, uid, phone, currentQueue string) {
	t.Helper()

	collection, err := app.FindCollectionByNameOrId("customers")
	require.NoError(t, err)

	record := core.NewRecord(collection)
	record.Set("uid", uid)
	record.Set("firstName", "Ada")
	record.Set("lastName", "Lovelace")
	record.Set("phoneNumber", phone)
	record.Set("currentQueue", currentQueue)
	require.NoError(t, app.Save(record))
}

func flowJoinRequest(phone string) models.JoinRequest {
	return models.JoinRequest{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		PhoneNumber: phone,
		Size:        4,
	}
}

// deviceNear offsets a position north by roughly the given distance.
func deviceNear(origin models.Coordinates, meters float64) *models.Coordinates {
	return &models.Coordinates{
		Latitude:  origin.Latitude + meters/111195.0,
		Longitude: origin.Longitude,
	}
}

func TestJoin_AppendsPartyAndRecordsCustomer(t *testing.T) {
	app, service := setupFlowService(t)
	ctx := context.Background()

	queueID := createFlowQueue(t, app, true)
	business := models.Coordinates{Latitude: 47.6089, Longitude: -122.3406}
	businessID := createFlowLocation(t, app, queueID, business, 50)
	createFlowCustomer(t, app, "cust-1", "2065550100", "")

	queue, err := service.Join(ctx, queueID, flowJoinRequest("2065550100"), "cust-1", deviceNear(business, 30))
	require.NoError(t, err)

	require.Len(t, queue.Parties, 1)
	party := queue.Parties[0]
	assert.NotEmpty(t, party.ID)
	assert.Equal(t, "2065550100", party.PhoneNumber)
	assert.Equal(t, models.QuoteNotSet, party.Quote)
	assert.False(t, party.CheckIn.IsZero())
	assert.EqualValues(t, 1, queue.Version)
	assert.Equal(t, 0, queue.PositionOf(models.PartyRef{ID: party.ID}))

	customer, err := service.customers.Get(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, queueID, customer.CurrentQueue)
	assert.Equal(t, []string{businessID}, customer.Recents)

	// The saved document matches what Join returned.
	stored, err := service.Snapshot(ctx, queueID)
	require.NoError(t, err)
	assert.Equal(t, queue.Version, stored.Version)
	require.Len(t, stored.Parties, 1)
	assert.Equal(t, party.ID, stored.Parties[0].ID)
}

func TestJoin_RejectsClosedQueue(t *testing.T) {
	app, service := setupFlowService(t)

	queueID := createFlowQueue(t, app, false)

	_, err := service.Join(context.Background(), queueID, flowJoinRequest("2065550100"), "", nil)
	assert.ErrorIs(t, err, status.ErrQueueClosed)

	stored, err := service.Snapshot(context.Background(), queueID)
	require.NoError(t, err)
	assert.Empty(t, stored.Parties)
	assert.EqualValues(t, 0, stored.Version)
}

func TestJoin_RejectsDuplicatePhone(t *testing.T) {
	app, service := setupFlowService(t)

	queueID := createFlowQueue(t, app, true, models.Party{
		ID:          "p1",
		LastName:    "Hopper",
		PhoneNumber: "2065550100",
		CheckIn:     time.Now().UTC(),
	})

	_, err := service.Join(context.Background(), queueID, flowJoinRequest("2065550100"), "", nil)
	assert.ErrorIs(t, err, status.ErrAlreadyInQueue)
}

func TestJoin_RejectsCustomerAlreadyInAnotherLine(t *testing.T) {
	app, service := setupFlowService(t)

	queueID := createFlowQueue(t, app, true)
	createFlowCustomer(t, app, "cust-1", "2065550100", "some-other-queue")

	_, err := service.Join(context.Background(), queueID, flowJoinRequest("2065550100"), "cust-1", nil)
	assert.ErrorIs(t, err, status.ErrAlreadyInOther)
}

func TestJoin_RejectsDeviceOutsideGeofence(t *testing.T) {
	app, service := setupFlowService(t)

	queueID := createFlowQueue(t, app, true)
	business := models.Coordinates{Latitude: 47.6089, Longitude: -122.3406}
	createFlowLocation(t, app, queueID, business, 50)

	_, err := service.Join(context.Background(), queueID, flowJoinRequest("2065550100"), "", deviceNear(business, 200))

	var geoErr *status.GeofenceError
	require.ErrorAs(t, err, &geoErr)
	assert.Equal(t, 50.0, geoErr.Radius)
	assert.Greater(t, geoErr.Distance, 50.0)
}

func TestJoin_UnknownQueueIsNotFound(t *testing.T) {
	_, service := setupFlowService(t)

	_, err := service.Join(context.Background(), "missing", flowJoinRequest("2065550100"), "", nil)
	assert.ErrorIs(t, err, status.ErrQueueNotFound)
}

func TestLeave_RemovesPartyAndClearsCustomer(t *testing.T) {
	app, service := setupFlowService(t)
	ctx := context.Background()

	queueID := createFlowQueue(t, app, true,
		models.Party{ID: "p1", LastName: "Lovelace", PhoneNumber: "2065550100", CheckIn: time.Now().UTC()},
		models.Party{ID: "p2", LastName: "Hopper", PhoneNumber: "2065550200", CheckIn: time.Now().UTC()},
	)
	createFlowCustomer(t, app, "cust-1", "2065550100", queueID)

	queue, err := service.Leave(ctx, queueID, models.PartyRef{ID: "p1"})
	require.NoError(t, err)

	// Everyone behind moves up one place.
	require.Len(t, queue.Parties, 1)
	assert.Equal(t, "p2", queue.Parties[0].ID)
	assert.EqualValues(t, 1, queue.Version)

	customer, err := service.customers.Get(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "", customer.CurrentQueue)

	_, err = service.Leave(ctx, queueID, models.PartyRef{ID: "p1"})
	assert.ErrorIs(t, err, status.ErrPartyNotFound)
}

func TestLeave_EmptyRefIsNotFound(t *testing.T) {
	_, service := setupFlowService(t)

	_, err := service.Leave(context.Background(), "q1", models.PartyRef{})
	assert.ErrorIs(t, err, status.ErrPartyNotFound)
}

func TestLeave_ByNameAndPhone(t *testing.T) {
	app, service := setupFlowService(t)

	queueID := createFlowQueue(t, app, true, models.Party{
		ID:          "p1",
		LastName:    "Lovelace",
		PhoneNumber: "2065550100",
		CheckIn:     time.Now().UTC(),
	})

	queue, err := service.Leave(context.Background(), queueID, models.PartyRef{
		LastName:    "Lovelace",
		PhoneNumber: "2065550100",
	})
	require.NoError(t, err)
	assert.Empty(t, queue.Parties)
}

func TestJoin_InvalidRequestNeverReachesTheStore(t *testing.T) {
	app, service := setupFlowService(t)

	queueID := createFlowQueue(t, app, true)

	_, err := service.Join(context.Background(), queueID, models.JoinRequest{PhoneNumber: "123"}, "", nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, status.ErrQueueClosed))

	stored, err := service.Snapshot(context.Background(), queueID)
	require.NoError(t, err)
	assert.Empty(t, stored.Parties)
}
