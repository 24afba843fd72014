package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"radius/internal/status"
	"radius/models"
	"radius/utils"
)

// BusinessService reads the locations collection and owns the geofence
// rule gating joins.
type BusinessService struct {
	app                  core.App
	geofenceBufferMeters float64
}

func NewBusinessService(app core.App, geofenceBufferMeters float64) *BusinessService {
	return &BusinessService{app: app, geofenceBufferMeters: geofenceBufferMeters}
}

func (s *BusinessService) Location(ctx context.Context, uid string) (*models.BusinessLocation, error) {
	record, err := s.app.FindRecordById("locations", uid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrLocationMissing
		}
		return nil, fmt.Errorf("find location %s: %w", uid, err)
	}
	return locationFromRecord(record)
}

func (s *BusinessService) AllLocations(ctx context.Context) ([]models.BusinessLocation, error) {
	records, err := s.app.FindRecordsByFilter("locations", "id != ''", "name", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return locationsFromRecords(records)
}

func (s *BusinessService) LocationsByIDs(ctx context.Context, ids []string) ([]models.BusinessLocation, error) {
	if len(ids) == 0 {
		return []models.BusinessLocation{}, nil
	}

	exprs := make([]any, len(ids))
	for i, id := range ids {
		exprs[i] = id
	}
	records, err := s.app.FindAllRecords("locations", dbx.In("id", exprs...))
	if err != nil {
		return nil, fmt.Errorf("list locations by id: %w", err)
	}
	return locationsFromRecords(records)
}

// LocationForQueue resolves which location a queue belongs to.
func (s *BusinessService) LocationForQueue(ctx context.Context, queueID string) (*models.BusinessLocation, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"locations",
		"queues ~ {:queue}",
		dbx.Params{"queue": queueID},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrLocationMissing
		}
		return nil, fmt.Errorf("find location for queue %s: %w", queueID, err)
	}
	return locationFromRecord(record)
}

// CheckGeofence verifies a device position against a location's radius
// plus the configured buffer. A negative radius means the location has no
// geofence and every position passes.
func (s *BusinessService) CheckGeofence(loc *models.BusinessLocation, device models.Coordinates) error {
	if loc.Radius < 0 {
		return nil
	}

	distance := utils.HaversineMeters(device, loc.Coordinates)
	if distance <= loc.Radius+s.geofenceBufferMeters {
		return nil
	}
	return &status.GeofenceError{Distance: distance, Radius: loc.Radius}
}

func locationsFromRecords(records []*core.Record) ([]models.BusinessLocation, error) {
	locations := make([]models.BusinessLocation, 0, len(records))
	for _, record := range records {
		loc, err := locationFromRecord(record)
		if err != nil {
			return nil, err
		}
		locations = append(locations, *loc)
	}
	return locations, nil
}

func locationFromRecord(record *core.Record) (*models.BusinessLocation, error) {
	loc := models.BusinessLocation{
		UID:         record.Id,
		Name:        record.GetString("name"),
		Address:     record.GetString("address"),
		PhoneNumber: record.GetString("phoneNumber"),
		Type:        record.GetString("type"),
		Coordinates: models.Coordinates{
			Latitude:  record.GetFloat("latitude"),
			Longitude: record.GetFloat("longitude"),
		},
		Radius: record.GetFloat("radius"),
		Queues: []string{},
	}

	if err := unmarshalIDList(record, "queues", &loc.Queues); err != nil {
		return nil, fmt.Errorf("location %s queues: %w", loc.UID, err)
	}

	if raw := record.GetString("hours"); raw != "" && raw != "null" {
		if err := record.UnmarshalJSONField("hours", &loc.Hours); err != nil {
			return nil, fmt.Errorf("location %s hours: %w", loc.UID, err)
		}
	}

	return &loc, nil
}
