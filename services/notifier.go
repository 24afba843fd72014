package services

import (
	"context"
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"

	"radius/config"
	"radius/models"
	"radius/monitoring"
	"radius/utils"
)

// Notifier delivers realtime queue snapshots and per-party notifications.
// PubNub carries the document feed the mobile listener subscribes to;
// APNs reaches parties that registered a push token. Both transports sit
// behind circuit breakers so a broken upstream fails fast.
type Notifier struct {
	pubnub  *pubnub.PubNub
	apns    *apns2.Client
	monitor *monitoring.Monitor
	config  *config.Config

	pubnubBreaker *utils.CircuitBreaker
	apnsBreaker   *utils.CircuitBreaker
}

func NewNotifier(pn *pubnub.PubNub, apns *apns2.Client, monitor *monitoring.Monitor, cfg *config.Config) *Notifier {
	return &Notifier{
		pubnub:        pn,
		apns:          apns,
		monitor:       monitor,
		config:        cfg,
		pubnubBreaker: utils.NewCircuitBreaker("pubnub"),
		apnsBreaker:   utils.NewCircuitBreaker("apns"),
	}
}

// QueueSnapshot publishes the full queue document on the queue's channel.
// Every listener gets the complete state, which is what lets clients
// detect their own removal.
func (n *Notifier) QueueSnapshot(ctx context.Context, q *models.Queue) error {
	snapshot := models.Snapshot{Type: models.SnapshotType, Queue: *q}
	return n.publish(ctx, models.QueueChannel(q.UID), snapshot)
}

// PositionUpdates sends per-party rank notifications for a snapshot,
// throttled so far-back parties are not spammed on every change.
func (n *Notifier) PositionUpdates(ctx context.Context, q *models.Queue) {
	for i, p := range q.Parties {
		position := i + 1
		if !shouldNotifyPosition(position) {
			continue
		}

		msg := map[string]any{
			"type":     "queue_position",
			"queue_id": q.UID,
			"position": position,
			"message":  positionMessage(position),
		}
		if err := n.publish(ctx, models.PartyChannel(p.ID), msg); err != nil {
			slog.Warn("position publish failed", "queue", q.UID, "party", p.ID, "error", err)
		}

		if position <= n.config.NotifyPositionCutoff {
			n.push(ctx, p, positionMessage(position))
		}
	}
}

// PartyMessage notifies one party of a new staff message.
func (n *Notifier) PartyMessage(ctx context.Context, queueID string, p models.Party, text string) {
	msg := map[string]any{
		"type":     "party_message",
		"queue_id": queueID,
		"message":  text,
	}
	if err := n.publish(ctx, models.PartyChannel(p.ID), msg); err != nil {
		slog.Warn("message publish failed", "queue", queueID, "party", p.ID, "error", err)
	}
	n.push(ctx, p, text)
}

// PartyRemoved notifies a party that staff took them out of the line.
func (n *Notifier) PartyRemoved(ctx context.Context, queueID string, p models.Party, reason string) {
	msg := map[string]any{
		"type":     "queue_removed",
		"queue_id": queueID,
		"reason":   reason,
	}
	if err := n.publish(ctx, models.PartyChannel(p.ID), msg); err != nil {
		slog.Warn("removal publish failed", "queue", queueID, "party", p.ID, "error", err)
	}
	n.push(ctx, p, "You have been removed from the line.")
}

func (n *Notifier) publish(ctx context.Context, channel string, message any) error {
	if n.pubnub == nil {
		return nil
	}

	err := n.pubnubBreaker.Execute(ctx, func() error {
		_, _, err := n.pubnub.Publish().
			Channel(channel).
			Message(message).
			Execute()
		return err
	})
	if err != nil {
		n.monitor.TrackPublish("pubnub", "error")
		return fmt.Errorf("publish to %s: %w", channel, err)
	}

	n.monitor.TrackPublish("pubnub", "success")
	return nil
}

func (n *Notifier) push(ctx context.Context, p models.Party, alert string) {
	if n.apns == nil || p.PushToken == "" {
		return
	}

	err := n.apnsBreaker.Execute(ctx, func() error {
		notification := &apns2.Notification{
			DeviceToken: p.PushToken,
			Topic:       n.config.APNsTopic,
			Payload:     payload.NewPayload().Alert(alert).Sound("default"),
		}
		res, err := n.apns.PushWithContext(ctx, notification)
		if err != nil {
			return err
		}
		if !res.Sent() {
			return fmt.Errorf("apns rejected push: %s", res.Reason)
		}
		return nil
	})
	if err != nil {
		n.monitor.TrackPush("error")
		slog.Warn("push notification failed", "party", p.ID, "error", err)
		return
	}

	n.monitor.TrackPush("success")
}

// shouldNotifyPosition throttles rank notifications: everyone near the
// front hears about every change, the back of a long line only hears
// about round numbers.
func shouldNotifyPosition(position int) bool {
	switch {
	case position <= 5:
		return true
	case position <= 20:
		return position%2 == 0
	case position <= 100:
		return position%10 == 0
	default:
		return position%50 == 0
	}
}

func positionMessage(position int) string {
	switch {
	case position == 1:
		return "You're next!"
	case position <= 5:
		return fmt.Sprintf("Almost there! You're %s in line", utils.Ordinal(position))
	default:
		return fmt.Sprintf("You are %s in line", utils.Ordinal(position))
	}
}
