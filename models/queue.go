package models

import (
	"encoding/json"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// QuoteNotSet marks a party that has not yet been given an estimated
// call time by the business.
const QuoteNotSet = -1

// Message is a single note from staff to a waiting party. On the wire it
// is a two element array: ["<RFC3339 time>", "<text>"].
type Message struct {
	Posted time.Time
	Body   string
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{m.Posted.UTC().Format(time.RFC3339), m.Body})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("message: %w", err)
	}
	posted, err := time.Parse(time.RFC3339, pair[0])
	if err != nil {
		return fmt.Errorf("message timestamp %q: %w", pair[0], err)
	}
	m.Posted = posted
	m.Body = pair[1]
	return nil
}

// Party is one entry in a queue's waiting list.
type Party struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	PhoneNumber string    `json:"phoneNumber"`
	Size        int       `json:"size"`
	CheckIn     time.Time `json:"checkIn"`
	Quote       int       `json:"quote"`
	Messages    []Message `json:"messages"`
	PushToken   string    `json:"pushToken,omitempty"`
}

// PartyRef identifies a party within a queue. The server-assigned ID is
// authoritative; lastName+phoneNumber is the legacy fallback for clients
// that predate party ids.
type PartyRef struct {
	ID          string `json:"id,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

func (r PartyRef) Matches(p Party) bool {
	if r.ID != "" {
		return r.ID == p.ID
	}
	return r.LastName == p.LastName && r.PhoneNumber == p.PhoneNumber
}

func (r PartyRef) IsZero() bool {
	return r.ID == "" && r.LastName == "" && r.PhoneNumber == ""
}

// Queue is the live waiting list of one business location. Parties[0] is
// the front of the line; order is join order.
type Queue struct {
	UID     string  `json:"uid"`
	Name    string  `json:"name"`
	Open    bool    `json:"open"`
	Version int64   `json:"version"`
	Parties []Party `json:"parties"`
}

// PositionOf returns the zero-based rank of the first matching party, or
// -1 when the reference is not in the list.
func (q *Queue) PositionOf(ref PartyRef) int {
	for i, p := range q.Parties {
		if ref.Matches(p) {
			return i
		}
	}
	return -1
}

// HasPhone reports whether any party already holds the given phone number.
func (q *Queue) HasPhone(phone string) bool {
	for _, p := range q.Parties {
		if p.PhoneNumber == phone {
			return true
		}
	}
	return false
}

// Append adds a party to the back of the line.
func (q *Queue) Append(p Party) {
	q.Parties = append(q.Parties, p)
}

// Remove takes the first matching party out of the list, preserving the
// relative order of everyone else.
func (q *Queue) Remove(ref PartyRef) (Party, bool) {
	i := q.PositionOf(ref)
	if i < 0 {
		return Party{}, false
	}
	removed := q.Parties[i]
	q.Parties = append(q.Parties[:i], q.Parties[i+1:]...)
	return removed, true
}

// LongestWait returns how long the front of the line has been waiting, or
// zero for an empty queue.
func (q *Queue) LongestWait(now time.Time) time.Duration {
	if len(q.Parties) == 0 {
		return 0
	}
	wait := now.Sub(q.Parties[0].CheckIn)
	if wait < 0 {
		return 0
	}
	return wait
}

// QueueInfo is the lightweight summary shown on browse screens.
type QueueInfo struct {
	Open           bool `json:"open"`
	Length         int  `json:"length"`
	LongestWaitMin int  `json:"longestWaitMin"`
}

// JoinRequest is the client-supplied portion of a new party.
type JoinRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
	Size        int    `json:"size"`
	PushToken   string `json:"pushToken,omitempty"`
}

func (r JoinRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required),
		validation.Field(&r.LastName, validation.Required),
		validation.Field(&r.PhoneNumber, validation.Required, validation.Length(10, 10), is.Digit),
		validation.Field(&r.Size, validation.Required, validation.Min(1)),
	)
}

// QueueChannel names the realtime channel carrying a queue's snapshots.
func QueueChannel(uid string) string {
	return "queue-" + uid
}

// PartyChannel names the per-party notification channel.
func PartyChannel(partyID string) string {
	return "party-" + partyID
}

// SnapshotType tags realtime queue documents on the wire.
const SnapshotType = "queue_snapshot"

// Snapshot is the realtime envelope published on a queue's channel after
// every mutation.
type Snapshot struct {
	Type  string `json:"type"`
	Queue Queue  `json:"queue"`
}

// DecodeParties decodes a stored parties document. The caller fills in
// UID and record-level fields.
func DecodeParties(data []byte) ([]Party, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var parties []Party
	if err := json.Unmarshal(data, &parties); err != nil {
		return nil, fmt.Errorf("decode parties: %w", err)
	}
	return parties, nil
}

// DecodeSnapshot validates and unpacks a realtime message. Messages of
// any other type, or with a malformed body, are rejected.
func DecodeSnapshot(data []byte) (*Queue, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Type != SnapshotType {
		return nil, fmt.Errorf("decode snapshot: unexpected type %q", s.Type)
	}
	return &s.Queue, nil
}
