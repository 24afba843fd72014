package client

import (
	"encoding/json"
	"log/slog"
	"sync"

	pubnub "github.com/pubnub/go"

	"radius/models"
)

// QueueListener maintains a live subscription to one queue's channel
// and delivers every decoded snapshot to the caller's handler. Free
// must be called exactly once when the owning view is torn down or the
// queue id changes.
type QueueListener struct {
	pn       *pubnub.PubNub
	listener *pubnub.Listener
	queueID  string
	kickback func(models.Queue)

	done     chan struct{}
	freeOnce sync.Once

	mu    sync.Mutex // serializes deliveries with Free
	freed bool
}

// NewQueueListener subscribes to the queue's channel and starts
// delivering snapshots. Malformed or foreign messages are logged and
// skipped, never surfaced to the handler.
func NewQueueListener(pn *pubnub.PubNub, queueID string, kickback func(models.Queue)) *QueueListener {
	l := &QueueListener{
		pn:       pn,
		listener: pubnub.NewListener(),
		queueID:  queueID,
		kickback: kickback,
		done:     make(chan struct{}),
	}

	pn.AddListener(l.listener)
	go l.run(l.listener.Message, l.listener.Status)
	pn.Subscribe().
		Channels([]string{models.QueueChannel(queueID)}).
		Execute()

	return l
}

// Free cancels the subscription. It waits out any delivery already in
// flight, so after it returns the handler will not be invoked again.
// Safe to call more than once, but not from inside the handler itself.
func (l *QueueListener) Free() {
	l.freeOnce.Do(func() {
		close(l.done)
		l.mu.Lock()
		l.freed = true
		l.mu.Unlock()
		if l.pn != nil {
			l.pn.Unsubscribe().
				Channels([]string{models.QueueChannel(l.queueID)}).
				Execute()
			l.pn.RemoveListener(l.listener)
		}
	})
}

func (l *QueueListener) run(messages chan *pubnub.PNMessage, statuses chan *pubnub.PNStatus) {
	for {
		select {
		case <-l.done:
			return
		case status := <-statuses:
			if status != nil && status.Error {
				slog.Warn("queue subscription error", "queue", l.queueID, "operation", status.Operation)
			}
		case msg := <-messages:
			if msg == nil {
				return
			}
			l.handle(msg)
		}
	}
}

func (l *QueueListener) handle(msg *pubnub.PNMessage) {
	if msg.Channel != models.QueueChannel(l.queueID) {
		return
	}

	// The transport hands the payload back as decoded interface{};
	// round-trip through JSON to apply the typed decode rules.
	raw, err := json.Marshal(msg.Message)
	if err != nil {
		slog.Warn("queue message marshal failed", "queue", l.queueID, "error", err)
		return
	}

	queue, err := models.DecodeSnapshot(raw)
	if err != nil {
		slog.Warn("queue message rejected", "queue", l.queueID, "error", err)
		return
	}

	// The subscribed channel is authoritative for the queue's identity.
	queue.UID = l.queueID

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.freed {
		return
	}
	l.kickback(*queue)
}
