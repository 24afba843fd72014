package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radius/config"
	"radius/models"
)

func setupTestQueueService() (*QueueService, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	cfg := &config.Config{
		PositionCacheTTL:     15 * time.Second,
		InactiveQueueTTL:     time.Hour,
		NotifyPositionCutoff: 5,
	}

	service := &QueueService{
		Redis:  db,
		Config: cfg,
	}

	return service, mock
}

func testQueue(open bool, parties ...models.Party) *models.Queue {
	return &models.Queue{
		UID:     "q1",
		Name:    "Front Desk",
		Open:    open,
		Parties: parties,
	}
}

func TestRefreshLiveState_CachesPositionsAndSummary(t *testing.T) {
	service, mock := setupTestQueueService()
	defer mock.ClearExpect()

	ctx := context.Background()
	now := time.Now().UTC()
	queue := testQueue(true,
		models.Party{ID: "p1", PhoneNumber: "2065550100", CheckIn: now.Add(-10 * time.Minute)},
		models.Party{ID: "p2", PhoneNumber: "2065550101", CheckIn: now},
	)

	mock.ExpectSet("queue:position:q1:p1", 0, 15*time.Second).SetVal("OK")
	mock.ExpectSet("queue:position:q1:p2", 1, 15*time.Second).SetVal("OK")
	mock.ExpectHSet("queue:info:q1", "open", true, "length", 2, "longest_wait_min", 10).SetVal(3)
	mock.ExpectExpire("queue:info:q1", time.Hour).SetVal(true)
	mock.ExpectSAdd("active_queues", "q1").SetVal(1)

	service.RefreshLiveState(ctx, queue)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshLiveState_DropsClosedEmptyQueue(t *testing.T) {
	service, mock := setupTestQueueService()
	defer mock.ClearExpect()

	ctx := context.Background()
	queue := testQueue(false)

	mock.ExpectHSet("queue:info:q1", "open", false, "length", 0, "longest_wait_min", 0).SetVal(3)
	mock.ExpectExpire("queue:info:q1", time.Hour).SetVal(true)
	mock.ExpectSRem("active_queues", "q1").SetVal(1)

	service.RefreshLiveState(ctx, queue)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInfo_ServedFromCache(t *testing.T) {
	service, mock := setupTestQueueService()
	defer mock.ClearExpect()

	mock.ExpectHGetAll("queue:info:q1").SetVal(map[string]string{
		"open":             "1",
		"length":           "4",
		"longest_wait_min": "25",
	})

	info, err := service.Info(context.Background(), "q1")

	require.NoError(t, err)
	assert.True(t, info.Open)
	assert.Equal(t, 4, info.Length)
	assert.Equal(t, 25, info.LongestWaitMin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInfoFromHash_RejectsPartialHash(t *testing.T) {
	_, ok := infoFromHash(map[string]string{"open": "1"})
	assert.False(t, ok)

	_, ok = infoFromHash(map[string]string{
		"open":             "1",
		"length":           "not-a-number",
		"longest_wait_min": "5",
	})
	assert.False(t, ok)
}

func TestCleanupInactive_RemovesMissingQueues(t *testing.T) {
	service, mock := setupTestQueueService()
	defer mock.ClearExpect()

	mock.ExpectSMembers("active_queues").SetVal([]string{})
	service.cleanupInactive(context.Background())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSummarize(t *testing.T) {
	now := time.Now().UTC()
	queue := testQueue(true,
		models.Party{ID: "p1", CheckIn: now.Add(-45 * time.Minute)},
		models.Party{ID: "p2", CheckIn: now.Add(-5 * time.Minute)},
	)

	info := summarize(queue, now)

	assert.True(t, info.Open)
	assert.Equal(t, 2, info.Length)
	assert.Equal(t, 45, info.LongestWaitMin)
}
