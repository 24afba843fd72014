// Package client is the Go SDK for the waitlist backend: an HTTP API
// client, a realtime queue listener, and the position-tracking view
// model the mobile apps build their queue screen on.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"radius/models"
)

// Client calls the waitlist HTTP API. The zero value is not usable;
// construct with New.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// GetCustomer fetches one customer record by uid.
func (c *Client) GetCustomer(ctx context.Context, uid string) (*models.Customer, error) {
	var customer models.Customer
	if err := c.get(ctx, "/api/customers?uid="+url.QueryEscape(uid), &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// SaveCustomer persists the full customer document.
func (c *Client) SaveCustomer(ctx context.Context, customer models.Customer) error {
	return c.post(ctx, "/api/customers", customer, nil)
}

// NewCustomer registers a customer and returns the canonical record.
func (c *Client) NewCustomer(ctx context.Context, req models.NewCustomerRequest) (*models.Customer, error) {
	var customer models.Customer
	if err := c.post(ctx, "/api/customers/new", req, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetBusinessLocation fetches one business by uid.
func (c *Client) GetBusinessLocation(ctx context.Context, uid string) (*models.BusinessLocation, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/api/businesses/"+url.PathEscape(uid)+"/location", &raw); err != nil {
		return nil, err
	}
	return models.DecodeBusinessLocation(raw)
}

// GetAllLocations fetches every business, sorted by name.
func (c *Client) GetAllLocations(ctx context.Context) ([]models.BusinessLocation, error) {
	var locations []models.BusinessLocation
	if err := c.get(ctx, "/api/businesses/locations/all", &locations); err != nil {
		return nil, err
	}
	return locations, nil
}

// GetLocations batch-fetches businesses by id, for the favorites and
// recents rows.
func (c *Client) GetLocations(ctx context.Context, ids []string) ([]models.BusinessLocation, error) {
	encoded, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}

	var locations []models.BusinessLocation
	if err := c.get(ctx, "/api/businesses/locations?locations="+url.QueryEscape(string(encoded)), &locations); err != nil {
		return nil, err
	}
	return locations, nil
}

// GetQueueInfo fetches the browse-screen summary for one queue.
func (c *Client) GetQueueInfo(ctx context.Context, queueID string) (models.QueueInfo, error) {
	var info models.QueueInfo
	if err := c.get(ctx, "/api/queues/info?uid="+url.QueryEscape(queueID), &info); err != nil {
		return models.QueueInfo{}, err
	}
	return info, nil
}

type joinPayload struct {
	models.JoinRequest
	CustomerUID string              `json:"customerUid,omitempty"`
	Device      *models.Coordinates `json:"device,omitempty"`
}

// JoinQueue appends a party to the queue and returns the updated state.
// Passing the device position lets the server re-check the geofence.
func (c *Client) JoinQueue(ctx context.Context, queueID string, req models.JoinRequest, customerUID string, device *models.Coordinates) (*models.Queue, error) {
	payload := joinPayload{JoinRequest: req, CustomerUID: customerUID, Device: device}

	var queue models.Queue
	if err := c.post(ctx, "/api/queues/"+url.PathEscape(queueID), payload, &queue); err != nil {
		return nil, err
	}
	return &queue, nil
}

type leavePayload struct {
	PartyID     string `json:"partyId,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// LeaveQueue removes the caller's party and returns the updated state.
func (c *Client) LeaveQueue(ctx context.Context, queueID string, ref models.PartyRef) (*models.Queue, error) {
	payload := leavePayload{PartyID: ref.ID, LastName: ref.LastName, PhoneNumber: ref.PhoneNumber}

	var queue models.Queue
	if err := c.post(ctx, "/api/queues/"+url.PathEscape(queueID)+"/leave", payload, &queue); err != nil {
		return nil, err
	}
	return &queue, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, endpoint string, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", endpoint, ErrBackend, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return errorForStatus(res.StatusCode, endpoint)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	return nil
}
