package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"radius/config"
	"radius/internal/status"
	"radius/models"
	"radius/monitoring"
)

const activeQueuesKey = "active_queues"

func positionKey(queueID, partyID string) string {
	return fmt.Sprintf("queue:position:%s:%s", queueID, partyID)
}

func infoKey(queueID string) string {
	return fmt.Sprintf("queue:info:%s", queueID)
}

// QueueService owns the queue documents: join and leave mutations,
// snapshot publishing, and the derived live state kept in Redis
// (per-party position cache and queue summaries). All mutations run
// inside a store transaction and bump the document version, so two racing
// writers serialize instead of overwriting each other's party list.
type QueueService struct {
	app        core.App
	Redis      *redis.Client
	businesses *BusinessService
	customers  *CustomerService
	notifier   *Notifier
	live       *LiveHub
	monitor    *monitoring.Monitor
	Config     *config.Config
}

func NewQueueService(
	app core.App,
	redisClient *redis.Client,
	businesses *BusinessService,
	customers *CustomerService,
	notifier *Notifier,
	live *LiveHub,
	monitor *monitoring.Monitor,
	cfg *config.Config,
) *QueueService {
	return &QueueService{
		app:        app,
		Redis:      redisClient,
		businesses: businesses,
		customers:  customers,
		notifier:   notifier,
		live:       live,
		monitor:    monitor,
		Config:     cfg,
	}
}

// Snapshot loads and decodes the current state of one queue.
func (s *QueueService) Snapshot(ctx context.Context, queueID string) (*models.Queue, error) {
	record, err := s.findQueue(s.app, queueID)
	if err != nil {
		return nil, err
	}
	return queueFromRecord(record)
}

// Join appends a new party to the back of the line and returns the
// updated queue. The device position, when supplied, is checked against
// the owning location's geofence. A registered customer may only wait in
// one line at a time.
func (s *QueueService) Join(ctx context.Context, queueID string, req models.JoinRequest, customerUID string, device *models.Coordinates) (*models.Queue, error) {
	if err := req.Validate(); err != nil {
		s.monitor.TrackJoin(queueID, "invalid")
		return nil, err
	}

	loc, err := s.businesses.LocationForQueue(ctx, queueID)
	if err != nil && !errors.Is(err, status.ErrLocationMissing) {
		return nil, err
	}

	if device != nil && loc != nil {
		if err := s.businesses.CheckGeofence(loc, *device); err != nil {
			s.monitor.TrackJoin(queueID, "geofence_rejected")
			return nil, err
		}
	}

	if customerUID != "" {
		customer, err := s.customers.Get(ctx, customerUID)
		if err != nil && !errors.Is(err, status.ErrCustomerMissing) {
			return nil, err
		}
		if customer != nil && customer.CurrentQueue != "" && customer.CurrentQueue != queueID {
			s.monitor.TrackJoin(queueID, "already_in_other")
			return nil, status.ErrAlreadyInOther
		}
	}

	party := models.Party{
		ID:          uuid.NewString(),
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		Size:        req.Size,
		CheckIn:     time.Now().UTC(),
		Quote:       models.QuoteNotSet,
		Messages:    []models.Message{},
		PushToken:   req.PushToken,
	}

	queue, err := s.mutate(queueID, func(q *models.Queue) error {
		if !q.Open {
			return status.ErrQueueClosed
		}
		if q.HasPhone(req.PhoneNumber) {
			return status.ErrAlreadyInQueue
		}
		q.Append(party)
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, status.ErrQueueClosed):
			s.monitor.TrackJoin(queueID, "closed")
		case errors.Is(err, status.ErrAlreadyInQueue):
			s.monitor.TrackJoin(queueID, "duplicate")
		}
		return nil, err
	}

	s.monitor.TrackJoin(queueID, "success")
	slog.Info("party joined queue", "queue", queueID, "party", party.ID, "size", party.Size)

	if customerUID != "" {
		businessID := ""
		if loc != nil {
			businessID = loc.UID
		}
		if err := s.customers.SetCurrentQueue(ctx, customerUID, queueID, businessID); err != nil {
			slog.Warn("record current queue failed", "customer", customerUID, "error", err)
		}
	}

	s.publish(ctx, queue)
	return queue, nil
}

// Leave removes a party from the line, preserving the order of everyone
// behind them, and clears the matching customer's queue pointer.
func (s *QueueService) Leave(ctx context.Context, queueID string, ref models.PartyRef) (*models.Queue, error) {
	if ref.IsZero() {
		return nil, status.ErrPartyNotFound
	}

	var removed models.Party
	queue, err := s.mutate(queueID, func(q *models.Queue) error {
		p, ok := q.Remove(ref)
		if !ok {
			return status.ErrPartyNotFound
		}
		removed = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.monitor.TrackLeave(queueID, "user")
	slog.Info("party left queue", "queue", queueID, "party", removed.ID)

	if err := s.customers.ClearCurrentQueueByPhone(ctx, removed.PhoneNumber, queueID); err != nil {
		slog.Warn("clear current queue failed", "queue", queueID, "error", err)
	}

	s.Redis.Del(ctx, positionKey(queueID, removed.ID))
	s.publish(ctx, queue)
	return queue, nil
}

// Remove is the staff-initiated variant of Leave: the removed party is
// told why, and the removal is attributed to staff in the metrics.
func (s *QueueService) Remove(ctx context.Context, queueID string, ref models.PartyRef, reason string) (*models.Queue, error) {
	var removed models.Party
	queue, err := s.mutate(queueID, func(q *models.Queue) error {
		p, ok := q.Remove(ref)
		if !ok {
			return status.ErrPartyNotFound
		}
		removed = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.monitor.TrackLeave(queueID, "staff")
	slog.Info("party removed by staff", "queue", queueID, "party", removed.ID, "reason", reason)

	if err := s.customers.ClearCurrentQueueByPhone(ctx, removed.PhoneNumber, queueID); err != nil {
		slog.Warn("clear current queue failed", "queue", queueID, "error", err)
	}

	s.Redis.Del(ctx, positionKey(queueID, removed.ID))
	s.notifier.PartyRemoved(ctx, queueID, removed, reason)
	s.publish(ctx, queue)
	return queue, nil
}

// AppendMessage adds a timestamped staff note to one party and notifies
// them.
func (s *QueueService) AppendMessage(ctx context.Context, queueID string, ref models.PartyRef, text string) (*models.Queue, error) {
	if text == "" {
		return nil, errors.New("queue: empty message")
	}

	var target models.Party
	queue, err := s.mutate(queueID, func(q *models.Queue) error {
		i := q.PositionOf(ref)
		if i < 0 {
			return status.ErrPartyNotFound
		}
		q.Parties[i].Messages = append(q.Parties[i].Messages, models.Message{
			Posted: time.Now().UTC(),
			Body:   text,
		})
		target = q.Parties[i]
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.PartyMessage(ctx, queueID, target, text)
	s.publish(ctx, queue)
	return queue, nil
}

// SetQuote records the estimated call time (minutes) staff gave a party.
func (s *QueueService) SetQuote(ctx context.Context, queueID string, ref models.PartyRef, quote int) (*models.Queue, error) {
	queue, err := s.mutate(queueID, func(q *models.Queue) error {
		i := q.PositionOf(ref)
		if i < 0 {
			return status.ErrPartyNotFound
		}
		q.Parties[i].Quote = quote
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, queue)
	return queue, nil
}

// SetOpen opens or closes a queue. Closing does not evict waiting
// parties; it only stops new joins.
func (s *QueueService) SetOpen(ctx context.Context, queueID string, open bool) (*models.Queue, error) {
	queue, err := s.mutate(queueID, func(q *models.Queue) error {
		q.Open = open
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("queue open state changed", "queue", queueID, "open", open)
	s.publish(ctx, queue)
	return queue, nil
}

// Info returns the browse-screen summary for a queue, served from the
// Redis cache when fresh.
func (s *QueueService) Info(ctx context.Context, queueID string) (models.QueueInfo, error) {
	fields, err := s.Redis.HGetAll(ctx, infoKey(queueID)).Result()
	if err == nil && len(fields) > 0 {
		info, ok := infoFromHash(fields)
		if ok {
			return info, nil
		}
	}

	queue, err := s.Snapshot(ctx, queueID)
	if err != nil {
		return models.QueueInfo{}, err
	}

	info := summarize(queue, time.Now())
	s.cacheInfo(ctx, queueID, info)
	return info, nil
}

// RefreshLiveState recomputes the Redis-side derived state for a queue:
// per-party positions (with TTL, so stale entries age out) and the
// summary hash.
func (s *QueueService) RefreshLiveState(ctx context.Context, queue *models.Queue) {
	for i, p := range queue.Parties {
		s.Redis.Set(ctx, positionKey(queue.UID, p.ID), i, s.Config.PositionCacheTTL)
	}

	info := summarize(queue, time.Now())
	s.cacheInfo(ctx, queue.UID, info)
	s.monitor.SetWaitlistLength(queue.UID, info.Length)

	if queue.Open {
		s.Redis.SAdd(ctx, activeQueuesKey, queue.UID)
	} else if len(queue.Parties) == 0 {
		s.Redis.SRem(ctx, activeQueuesKey, queue.UID)
	}
}

// Publish pushes a queue's current state to every realtime surface. Used
// by record hooks so staff edits through the admin UI reach listeners the
// same way API mutations do.
func (s *QueueService) Publish(ctx context.Context, queue *models.Queue) {
	s.publish(ctx, queue)
}

// RefreshSummaries periodically recomputes live state for every active
// queue, keeping position TTLs alive and wait times fresh between
// mutations.
func (s *QueueService) RefreshSummaries(ctx context.Context) {
	ticker := time.NewTicker(s.Config.SummaryRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refreshAll(ctx)
		case <-ctx.Done():
			slog.Info("summary refresher stopping")
			return
		}
	}
}

func (s *QueueService) refreshAll(ctx context.Context) {
	queueIDs, err := s.Redis.SMembers(ctx, activeQueuesKey).Result()
	if err != nil {
		slog.Warn("list active queues failed", "error", err)
		return
	}

	for _, queueID := range queueIDs {
		queue, err := s.Snapshot(ctx, queueID)
		if err != nil {
			continue
		}
		s.RefreshLiveState(ctx, queue)
		s.notifier.PositionUpdates(ctx, queue)
	}
}

// CleanupInactiveQueues drops queues that no longer exist or have closed
// and emptied out from the active set, along with their summary hashes.
func (s *QueueService) CleanupInactiveQueues(ctx context.Context) {
	ticker := time.NewTicker(s.Config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupInactive(ctx)
		case <-ctx.Done():
			slog.Info("queue cleaner stopping")
			return
		}
	}
}

func (s *QueueService) cleanupInactive(ctx context.Context) {
	queueIDs, err := s.Redis.SMembers(ctx, activeQueuesKey).Result()
	if err != nil {
		return
	}

	for _, queueID := range queueIDs {
		queue, err := s.Snapshot(ctx, queueID)
		if err == nil && (queue.Open || len(queue.Parties) > 0) {
			continue
		}

		s.Redis.SRem(ctx, activeQueuesKey, queueID)
		s.Redis.Del(ctx, infoKey(queueID))
		slog.Info("dropped inactive queue", "queue", queueID)
	}
}

// mutate loads a queue, applies fn, bumps the version and saves, all
// inside one transaction. fn sees the decoded document and may modify it
// in place.
func (s *QueueService) mutate(queueID string, fn func(q *models.Queue) error) (*models.Queue, error) {
	var queue *models.Queue

	err := s.app.RunInTransaction(func(txApp core.App) error {
		record, err := s.findQueue(txApp, queueID)
		if err != nil {
			return err
		}

		q, err := queueFromRecord(record)
		if err != nil {
			return err
		}

		if err := fn(q); err != nil {
			return err
		}

		q.Version++
		record.Set("open", q.Open)
		record.Set("version", q.Version)
		record.Set("parties", q.Parties)

		if err := txApp.Save(record); err != nil {
			return fmt.Errorf("save queue %s: %w", queueID, err)
		}

		queue = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return queue, nil
}

func (s *QueueService) publish(ctx context.Context, queue *models.Queue) {
	if err := s.notifier.QueueSnapshot(ctx, queue); err != nil {
		slog.Warn("snapshot publish failed", "queue", queue.UID, "error", err)
	}
	s.live.Broadcast(queue)
	s.RefreshLiveState(ctx, queue)
}

func (s *QueueService) cacheInfo(ctx context.Context, queueID string, info models.QueueInfo) {
	s.Redis.HSet(ctx, infoKey(queueID),
		"open", info.Open,
		"length", info.Length,
		"longest_wait_min", info.LongestWaitMin,
	)
	s.Redis.Expire(ctx, infoKey(queueID), s.Config.InactiveQueueTTL)
}

func (s *QueueService) findQueue(app core.App, queueID string) (*core.Record, error) {
	record, err := app.FindRecordById("queues", queueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrQueueNotFound
		}
		return nil, fmt.Errorf("find queue %s: %w", queueID, err)
	}
	return record, nil
}

func queueFromRecord(record *core.Record) (*models.Queue, error) {
	queue := models.Queue{
		UID:     record.Id,
		Name:    record.GetString("name"),
		Open:    record.GetBool("open"),
		Version: int64(record.GetInt("version")),
		Parties: []models.Party{},
	}

	if raw := record.GetString("parties"); raw != "" && raw != "null" {
		parties, err := models.DecodeParties([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("queue %s: %w", queue.UID, err)
		}
		queue.Parties = parties
	}

	return &queue, nil
}

func summarize(queue *models.Queue, now time.Time) models.QueueInfo {
	return models.QueueInfo{
		Open:           queue.Open,
		Length:         len(queue.Parties),
		LongestWaitMin: int(queue.LongestWait(now).Minutes()),
	}
}

func infoFromHash(fields map[string]string) (models.QueueInfo, bool) {
	open, okOpen := fields["open"]
	length, okLen := fields["length"]
	wait, okWait := fields["longest_wait_min"]
	if !okOpen || !okLen || !okWait {
		return models.QueueInfo{}, false
	}

	info := models.QueueInfo{Open: open == "1" || open == "true"}
	if _, err := fmt.Sscanf(length, "%d", &info.Length); err != nil {
		return models.QueueInfo{}, false
	}
	if _, err := fmt.Sscanf(wait, "%d", &info.LongestWaitMin); err != nil {
		return models.QueueInfo{}, false
	}
	return info, true
}
