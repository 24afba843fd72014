package models

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Customer is an end user of the waitlist. CurrentQueue holds the uid of
// the one queue they are waiting in, or "" when not in line.
type Customer struct {
	UID          string   `json:"uid"`
	FirstName    string   `json:"firstName"`
	LastName     string   `json:"lastName"`
	Email        string   `json:"email"`
	PhoneNumber  string   `json:"phoneNumber"`
	CurrentQueue string   `json:"currentQueue"`
	Favorites    []string `json:"favorites"`
	Recents      []string `json:"recents"`
	PushToken    string   `json:"pushToken,omitempty"`
}

// AddRecent moves a business to the front of the recents list, dropping
// duplicates and capping the list at limit.
func (c *Customer) AddRecent(businessID string, limit int) {
	recents := []string{businessID}
	for _, id := range c.Recents {
		if id != businessID {
			recents = append(recents, id)
		}
	}
	if limit > 0 && len(recents) > limit {
		recents = recents[:limit]
	}
	c.Recents = recents
}

// NewCustomerRequest carries the initial data unique to a registering
// customer.
type NewCustomerRequest struct {
	UID         string `json:"uid"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email,omitempty"`
}

func (r NewCustomerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UID, validation.Required),
		validation.Field(&r.FirstName, validation.Required),
		validation.Field(&r.LastName, validation.Required),
		validation.Field(&r.PhoneNumber, validation.Required, validation.Length(10, 10), is.Digit),
		validation.Field(&r.Email, is.Email),
	)
}
