package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"radius/config"
	"radius/internal/status"
	"radius/models"
)

// CustomerService owns the customers collection: profile data, the
// single currentQueue pointer, favorites and recents.
type CustomerService struct {
	app    core.App
	config *config.Config
}

func NewCustomerService(app core.App, cfg *config.Config) *CustomerService {
	return &CustomerService{app: app, config: cfg}
}

func (s *CustomerService) Get(ctx context.Context, uid string) (*models.Customer, error) {
	record, err := s.findByUID(s.app, uid)
	if err != nil {
		return nil, err
	}
	return customerFromRecord(record)
}

// Create registers a new customer with no active queue and empty
// favorites/recents.
func (s *CustomerService) Create(ctx context.Context, req models.NewCustomerRequest) (*models.Customer, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.findByUID(s.app, req.UID); err == nil {
		return nil, status.ErrCustomerExists
	} else if !errors.Is(err, status.ErrCustomerMissing) {
		return nil, err
	}

	collection, err := s.app.FindCollectionByNameOrId("customers")
	if err != nil {
		return nil, fmt.Errorf("customers collection: %w", err)
	}

	record := core.NewRecord(collection)
	customer := models.Customer{
		UID:         req.UID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Favorites:   []string{},
		Recents:     []string{},
	}
	applyCustomer(record, customer)

	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("create customer %s: %w", req.UID, err)
	}
	return &customer, nil
}

// Update overwrites a customer's stored profile with the given document.
func (s *CustomerService) Update(ctx context.Context, customer models.Customer) error {
	record, err := s.findByUID(s.app, customer.UID)
	if err != nil {
		return err
	}

	applyCustomer(record, customer)
	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("update customer %s: %w", customer.UID, err)
	}
	return nil
}

// SetCurrentQueue points a customer at the queue they just joined and
// records the business as a recent visit.
func (s *CustomerService) SetCurrentQueue(ctx context.Context, uid, queueID, businessID string) error {
	record, err := s.findByUID(s.app, uid)
	if err != nil {
		return err
	}

	customer, err := customerFromRecord(record)
	if err != nil {
		return err
	}

	customer.CurrentQueue = queueID
	if businessID != "" {
		customer.AddRecent(businessID, s.config.RecentsLimit)
	}

	applyCustomer(record, *customer)
	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("set current queue for %s: %w", uid, err)
	}
	return nil
}

// ClearCurrentQueueByPhone clears the queue pointer of whichever
// customer holds the given phone number and queue. Used when a party
// leaves or is removed, where only the party (not the customer uid) is
// known.
func (s *CustomerService) ClearCurrentQueueByPhone(ctx context.Context, phone, queueID string) error {
	record, err := s.app.FindFirstRecordByFilter(
		"customers",
		"phoneNumber = {:phone} && currentQueue = {:queue}",
		dbx.Params{"phone": phone, "queue": queueID},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Guest party with no registered customer; nothing to clear.
			return nil
		}
		return fmt.Errorf("find customer by phone: %w", err)
	}

	record.Set("currentQueue", "")
	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("clear current queue: %w", err)
	}
	return nil
}

func (s *CustomerService) findByUID(app core.App, uid string) (*core.Record, error) {
	record, err := app.FindFirstRecordByFilter("customers", "uid = {:uid}", dbx.Params{"uid": uid})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrCustomerMissing
		}
		return nil, fmt.Errorf("find customer %s: %w", uid, err)
	}
	return record, nil
}

func customerFromRecord(record *core.Record) (*models.Customer, error) {
	customer := models.Customer{
		UID:          record.GetString("uid"),
		FirstName:    record.GetString("firstName"),
		LastName:     record.GetString("lastName"),
		Email:        record.GetString("email"),
		PhoneNumber:  record.GetString("phoneNumber"),
		CurrentQueue: record.GetString("currentQueue"),
		PushToken:    record.GetString("pushToken"),
		Favorites:    []string{},
		Recents:      []string{},
	}

	if err := unmarshalIDList(record, "favorites", &customer.Favorites); err != nil {
		return nil, fmt.Errorf("customer %s favorites: %w", customer.UID, err)
	}
	if err := unmarshalIDList(record, "recents", &customer.Recents); err != nil {
		return nil, fmt.Errorf("customer %s recents: %w", customer.UID, err)
	}
	return &customer, nil
}

func unmarshalIDList(record *core.Record, key string, dst *[]string) error {
	raw := record.GetString(key)
	if raw == "" || raw == "null" {
		return nil
	}
	return record.UnmarshalJSONField(key, dst)
}

func applyCustomer(record *core.Record, customer models.Customer) {
	record.Set("uid", customer.UID)
	record.Set("firstName", customer.FirstName)
	record.Set("lastName", customer.LastName)
	record.Set("email", customer.Email)
	record.Set("phoneNumber", customer.PhoneNumber)
	record.Set("currentQueue", customer.CurrentQueue)
	record.Set("pushToken", customer.PushToken)
	record.Set("favorites", customer.Favorites)
	record.Set("recents", customer.Recents)
}
