package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radius/models"
)

func snapshotWith(parties ...models.Party) models.Queue {
	return models.Queue{UID: "q1", Open: true, Parties: parties}
}

func TestQueueView_NoQueueIDMeansNotInLine(t *testing.T) {
	view := NewQueueView(nil, "", models.PartyRef{LastName: "Hopper", PhoneNumber: "2065550100"}, QueueViewCallbacks{})

	assert.False(t, view.InLine())
	assert.Equal(t, NotInLine, view.Position())
	assert.Equal(t, "not in a line", view.PositionLabel())
	assert.Nil(t, view.listener)
}

func TestQueueView_PositionDerivation(t *testing.T) {
	view := NewQueueView(nil, "", models.PartyRef{LastName: "Hopper", PhoneNumber: "2065550100"}, QueueViewCallbacks{})
	view.queueID = "q1"

	view.HandleSnapshot(snapshotWith(
		models.Party{ID: "p1", LastName: "Lovelace", PhoneNumber: "2065550199"},
		models.Party{ID: "p2", LastName: "Hopper", PhoneNumber: "2065550100"},
		models.Party{ID: "p3", LastName: "Curie", PhoneNumber: "2065550150"},
	))

	assert.True(t, view.InLine())
	assert.Equal(t, 1, view.Position())
	assert.Equal(t, "2nd in line", view.PositionLabel())
}

func TestQueueView_PositionLabelOrdinals(t *testing.T) {
	tests := []struct {
		index int
		label string
	}{
		{0, "1st in line"},
		{1, "2nd in line"},
		{2, "3rd in line"},
		{3, "4th in line"},
		{10, "11th in line"},
		{20, "21st in line"},
	}

	for _, tt := range tests {
		identity := models.PartyRef{ID: "me"}
		view := NewQueueView(nil, "", identity, QueueViewCallbacks{})
		view.queueID = "q1"

		parties := make([]models.Party, tt.index+1)
		for i := range parties {
			parties[i] = models.Party{ID: "other"}
		}
		parties[tt.index].ID = "me"

		view.HandleSnapshot(snapshotWith(parties...))
		assert.Equal(t, tt.label, view.PositionLabel())
	}
}

func TestQueueView_UpdateCallbackFiresWithRank(t *testing.T) {
	var gotPosition int
	var gotQueue models.Queue

	view := NewQueueView(nil, "", models.PartyRef{ID: "me"}, QueueViewCallbacks{
		OnUpdate: func(position int, queue models.Queue) {
			gotPosition = position
			gotQueue = queue
		},
	})
	view.queueID = "q1"

	view.HandleSnapshot(snapshotWith(
		models.Party{ID: "other"},
		models.Party{ID: "me"},
	))

	assert.Equal(t, 1, gotPosition)
	assert.Len(t, gotQueue.Parties, 2)
}

func TestQueueView_DisappearanceIsImplicitLeave(t *testing.T) {
	removed := false
	view := NewQueueView(nil, "", models.PartyRef{ID: "me"}, QueueViewCallbacks{
		OnRemoved: func() { removed = true },
	})
	view.queueID = "q1"

	view.HandleSnapshot(snapshotWith(models.Party{ID: "me"}))
	require.True(t, view.InLine())
	require.False(t, removed)

	// Staff removed the party: the next snapshot has no match.
	view.HandleSnapshot(snapshotWith(models.Party{ID: "someone-else"}))

	assert.True(t, removed)
	assert.False(t, view.InLine())
	assert.Equal(t, "not in a line", view.PositionLabel())
}

func TestQueueView_NeverInLineIsNotARemoval(t *testing.T) {
	removed := false
	view := NewQueueView(nil, "", models.PartyRef{ID: "me"}, QueueViewCallbacks{
		OnRemoved: func() { removed = true },
	})
	view.queueID = "q1"

	view.HandleSnapshot(snapshotWith(models.Party{ID: "someone-else"}))

	assert.False(t, removed)
	assert.False(t, view.InLine())
}

func TestQueueView_MessagesFromLastSnapshot(t *testing.T) {
	view := NewQueueView(nil, "", models.PartyRef{ID: "me"}, QueueViewCallbacks{})
	view.queueID = "q1"

	assert.Nil(t, view.Messages())

	view.HandleSnapshot(snapshotWith(models.Party{
		ID:       "me",
		Messages: []models.Message{{Body: "Your table is almost ready"}},
	}))

	messages := view.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "Your table is almost ready", messages[0].Body)
}

func TestQueueView_LeaveClearsMembership(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/queues/q1/leave", r.URL.Path)

		var payload leavePayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "me", payload.PartyID)

		json.NewEncoder(w).Encode(snapshotWith())
	}))
	defer server.Close()

	view := NewQueueView(nil, "", models.PartyRef{ID: "me"}, QueueViewCallbacks{})
	view.queueID = "q1"
	view.HandleSnapshot(snapshotWith(models.Party{ID: "me"}))
	require.True(t, view.InLine())

	api := New(server.URL, "")
	require.NoError(t, view.Leave(context.Background(), api))

	assert.False(t, view.InLine())
	assert.Equal(t, "", view.queueID)
}

func TestQueueView_LeaveRacesSnapshotDelivery(t *testing.T) {
	// Snapshots clear membership on the delivery goroutine while Leave
	// reads it; both sides go through the view's lock.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(snapshotWith())
	}))
	defer server.Close()
	api := New(server.URL, "")

	view := NewQueueView(nil, "", models.PartyRef{ID: "me"}, QueueViewCallbacks{})
	view.queueID = "q1"
	view.HandleSnapshot(snapshotWith(models.Party{ID: "me"}))
	require.True(t, view.InLine())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			view.HandleSnapshot(snapshotWith(models.Party{ID: "someone-else"}))
		}
	}()

	require.NoError(t, view.Leave(context.Background(), api))
	<-done

	assert.False(t, view.InLine())
	assert.Equal(t, "", view.queueID)
}

func TestQueueView_JoinScenario(t *testing.T) {
	// Inside the geofence: radius 50m, device 30m out.
	business := models.Coordinates{Latitude: 47.6062, Longitude: -122.3321}
	device := coordsAtDistance(business, 30)
	require.True(t, CheckGeofence(business, 50, device).Allowed)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload joinPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		json.NewEncoder(w).Encode(snapshotWith(
			models.Party{ID: "earlier", PhoneNumber: "2065550000"},
			models.Party{
				ID:          "party-new",
				FirstName:   payload.FirstName,
				LastName:    payload.LastName,
				PhoneNumber: payload.PhoneNumber,
				Size:        payload.Size,
			},
		))
	}))
	defer server.Close()

	api := New(server.URL, "")
	queue, err := api.JoinQueue(context.Background(), "q1", models.JoinRequest{
		FirstName:   "Grace",
		LastName:    "Hopper",
		PhoneNumber: "2065550100",
		Size:        2,
	}, "cust-1", &device)
	require.NoError(t, err)

	// The queue gained a party with the caller's phone number.
	require.True(t, queue.HasPhone("2065550100"))

	// The customer's stored queue pointer follows the join.
	customer := models.Customer{UID: "cust-1"}
	customer.CurrentQueue = queue.UID

	// Position derivation on the next snapshot finds the new party.
	view := NewQueueView(nil, "", models.PartyRef{ID: "party-new"}, QueueViewCallbacks{})
	view.queueID = customer.CurrentQueue
	view.HandleSnapshot(*queue)

	assert.Equal(t, 1, view.Position())
	assert.Equal(t, "2nd in line", view.PositionLabel())
}
