package client

import (
	"context"
	"sync"

	pubnub "github.com/pubnub/go"

	"radius/models"
	"radius/utils"
)

// NotInLine is the position reported when the customer has no party in
// the subscribed queue.
const NotInLine = -1

// QueueViewCallbacks receive state transitions. Both are optional.
type QueueViewCallbacks struct {
	// OnUpdate fires on every new snapshot the customer appears in,
	// with their zero-based rank.
	OnUpdate func(position int, queue models.Queue)
	// OnRemoved fires once when the customer's party disappears from a
	// snapshot it previously appeared in: staff removed them, or the
	// queue was cleared. The view clears its membership and releases
	// the subscription.
	OnRemoved func()
}

// QueueView is the queue-screen view model: it owns the listener for
// the customer's current queue and derives their position from each
// snapshot. A customer with no current queue gets a view that reports
// "not in a line" and never subscribes.
type QueueView struct {
	identity  models.PartyRef
	queueID   string
	callbacks QueueViewCallbacks
	listener  *QueueListener

	mu        sync.Mutex
	queue     *models.Queue
	position  int
	wasInLine bool
}

// NewQueueView builds the view model for one customer. queueID is the
// customer's stored current queue; when empty, no subscription is
// created. pn may be nil only when queueID is empty.
func NewQueueView(pn *pubnub.PubNub, queueID string, identity models.PartyRef, callbacks QueueViewCallbacks) *QueueView {
	v := &QueueView{
		identity:  identity,
		queueID:   queueID,
		callbacks: callbacks,
		position:  NotInLine,
	}

	if queueID != "" {
		v.listener = NewQueueListener(pn, queueID, v.HandleSnapshot)
	}
	return v
}

// HandleSnapshot ingests one queue snapshot and recomputes the
// customer's position. It is the listener's kickback target.
func (v *QueueView) HandleSnapshot(queue models.Queue) {
	v.mu.Lock()
	v.queue = &queue
	v.position = queue.PositionOf(v.identity)
	inLine := v.position >= 0
	removed := v.wasInLine && !inLine
	v.wasInLine = inLine
	onUpdate := v.callbacks.OnUpdate
	onRemoved := v.callbacks.OnRemoved
	v.mu.Unlock()

	if removed {
		// Server-side removal is an implicit leave: clear membership and
		// release the subscription without a second request. The release
		// happens off this goroutine because Free waits out the delivery
		// that is running right now.
		v.mu.Lock()
		v.queueID = ""
		v.mu.Unlock()
		go v.Free()
		if onRemoved != nil {
			onRemoved()
		}
		return
	}

	if inLine && onUpdate != nil {
		onUpdate(v.Position(), queue)
	}
}

// InLine reports whether the customer currently appears in the queue.
func (v *QueueView) InLine() bool {
	return v.Position() != NotInLine
}

// Position is the customer's zero-based rank, or NotInLine.
func (v *QueueView) Position() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position
}

// PositionLabel renders the rank for display: "3rd in line", or "not
// in a line".
func (v *QueueView) PositionLabel() string {
	pos := v.Position()
	if pos == NotInLine {
		return "not in a line"
	}
	return utils.Ordinal(pos+1) + " in line"
}

// Queue returns the last snapshot seen, or nil before the first one.
func (v *QueueView) Queue() *models.Queue {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.queue
}

// Messages returns the customer's message feed from the last snapshot.
func (v *QueueView) Messages() []models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.queue == nil {
		return nil
	}
	i := v.queue.PositionOf(v.identity)
	if i < 0 {
		return nil
	}
	return v.queue.Parties[i].Messages
}

// Leave removes the customer's party server-side, then releases the
// subscription and clears membership. The caller still owns clearing
// the customer's stored queue pointer via SaveCustomer.
func (v *QueueView) Leave(ctx context.Context, api *Client) error {
	v.mu.Lock()
	queueID := v.queueID
	v.mu.Unlock()

	if _, err := api.LeaveQueue(ctx, queueID, v.identity); err != nil {
		return err
	}
	v.clear()
	return nil
}

// Free releases the subscription without mutating anything server-side.
func (v *QueueView) Free() {
	if v.listener != nil {
		v.listener.Free()
	}
}

func (v *QueueView) clear() {
	v.Free()
	v.mu.Lock()
	v.position = NotInLine
	v.queueID = ""
	v.mu.Unlock()
}
