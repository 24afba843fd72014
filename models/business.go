package models

import (
	"encoding/json"
	"fmt"
)

// Coordinates is a point in decimal degrees. The wire representation is a
// two element array: [latitude, longitude].
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

func (c Coordinates) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Latitude, c.Longitude})
}

func (c *Coordinates) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("coordinates: %w", err)
	}
	c.Latitude = pair[0]
	c.Longitude = pair[1]
	return nil
}

// DayHours is one day's open and close times as "HH:MM" strings. A nil
// pair means the business is closed that day. Wire form: [open, close]
// with nulls for closed days.
type DayHours struct {
	Open  *string
	Close *string
}

func (d DayHours) Closed() bool {
	return d.Open == nil || d.Close == nil
}

func (d DayHours) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]*string{d.Open, d.Close})
}

func (d *DayHours) UnmarshalJSON(data []byte) error {
	var pair [2]*string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("hours: %w", err)
	}
	d.Open = pair[0]
	d.Close = pair[1]
	return nil
}

// BusinessLocation is one physical storefront of a business. Hours is
// indexed Sunday through Saturday. Radius is the geofence in meters
// inside which customers may join the line; a negative radius means no
// geofence is configured.
type BusinessLocation struct {
	UID         string      `json:"uid"`
	Name        string      `json:"name"`
	Address     string      `json:"address"`
	PhoneNumber string      `json:"phoneNumber"`
	Hours       [7]DayHours `json:"hours"`
	Coordinates Coordinates `json:"coordinates"`
	Type        string      `json:"type"`
	Queues      []string    `json:"queues"`
	Radius      float64     `json:"geoFenceRadius"`
}

// ActiveQueue returns the uid of the location's live queue, or "". By
// convention the first listed queue is the active one.
func (b *BusinessLocation) ActiveQueue() string {
	if len(b.Queues) == 0 {
		return ""
	}
	return b.Queues[0]
}

// DecodeBusinessLocation decodes and shape-checks a stored location
// document.
func DecodeBusinessLocation(data []byte) (*BusinessLocation, error) {
	var loc BusinessLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, fmt.Errorf("decode business location: %w", err)
	}
	return &loc, nil
}
