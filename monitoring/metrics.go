package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	waitlistLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waitlist_length",
			Help: "Current number of parties waiting per queue",
		},
		[]string{"queue_id"},
	)

	joinOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_joins_total",
			Help: "Join attempts by outcome",
		},
		[]string{"queue_id", "result"},
	)

	leaveOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_leaves_total",
			Help: "Parties removed from a line, by trigger",
		},
		[]string{"queue_id", "trigger"},
	)

	realtimePublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_publishes_total",
			Help: "Realtime snapshot and notification publishes",
		},
		[]string{"transport", "status"},
	)

	pushNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_notifications_total",
			Help: "APNs pushes by status",
		},
		[]string{"status"},
	)

	liveFeedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_feed_clients",
			Help: "Currently connected websocket dashboard clients",
		},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.collectQueueMetrics(context.Background())
	}
}

func (m *Monitor) collectQueueMetrics(ctx context.Context) {
	queueIDs, err := m.redis.SMembers(ctx, "active_queues").Result()
	if err != nil {
		return
	}

	for _, queueID := range queueIDs {
		length, err := m.redis.HGet(ctx, "queue:info:"+queueID, "length").Int()
		if err != nil {
			continue
		}
		waitlistLength.WithLabelValues(queueID).Set(float64(length))
	}
}

func (m *Monitor) TrackJoin(queueID, result string) {
	joinOperations.WithLabelValues(queueID, result).Inc()
}

func (m *Monitor) TrackLeave(queueID, trigger string) {
	leaveOperations.WithLabelValues(queueID, trigger).Inc()
}

func (m *Monitor) TrackPublish(transport, status string) {
	realtimePublishes.WithLabelValues(transport, status).Inc()
}

func (m *Monitor) TrackPush(status string) {
	pushNotifications.WithLabelValues(status).Inc()
}

func (m *Monitor) SetLiveFeedClients(count int) {
	liveFeedClients.Set(float64(count))
}

func (m *Monitor) SetWaitlistLength(queueID string, length int) {
	waitlistLength.WithLabelValues(queueID).Set(float64(length))
}
