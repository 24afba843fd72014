package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"

	"radius/config"
	"radius/handlers"
	_ "radius/migrations"
	"radius/monitoring"
	"radius/security"
	"radius/services"
	"radius/utils"
)

func Start() error {
	app := pocketbase.New()

	cfg := config.LoadConfig()

	redisClient, err := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	var pn *pubnub.PubNub
	if cfg.PubNubPublishKey != "" {
		pn = pubnub.NewPubNub(pnConfig)
	} else {
		slog.Warn("pubnub keys not configured, realtime publishing disabled")
	}

	apnsClient := newAPNsClient(cfg)

	monitor := monitoring.NewMonitor(redisClient)
	notifier := services.NewNotifier(pn, apnsClient, monitor, cfg)
	liveHub := services.NewLiveHub(monitor)

	customerService := services.NewCustomerService(app, cfg)
	businessService := services.NewBusinessService(app, cfg.GeofenceBufferMeters)
	storageService := services.NewStorageService(app)
	queueService := services.NewQueueService(app, redisClient, businessService, customerService, notifier, liveHub, monitor, cfg)

	queueHandler := handlers.NewQueueHandler(queueService, liveHub)
	customerHandler := handlers.NewCustomerHandler(customerService)
	businessHandler := handlers.NewBusinessHandler(businessService, storageService)
	adminHandler := handlers.NewAdminHandler(queueService, liveHub)

	rateLimiter := security.NewRateLimiter(redisClient, cfg.JoinRateLimitPerMinute)

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go queueService.RefreshSummaries(ctx)
	go queueService.CleanupInactiveQueues(ctx)

	go handleShutdown(cancel)

	setupQueueHooks(app, queueService)

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		// Customer endpoints
		se.Router.GET("/api/customers", customerHandler.Get)
		se.Router.POST("/api/customers", customerHandler.Update)
		se.Router.POST("/api/customers/new", customerHandler.Create)

		// Business endpoints
		se.Router.GET("/api/businesses/locations/all", businessHandler.AllLocations).BindFunc(rateLimiter.AntiBot())
		se.Router.GET("/api/businesses/locations", businessHandler.Locations)
		se.Router.GET("/api/businesses/{uid}/location", businessHandler.Location)
		se.Router.GET("/api/businesses/{uid}/images/{file}", businessHandler.Image)
		se.Router.POST("/api/businesses/{uid}/images", businessHandler.UploadImage)
		se.Router.DELETE("/api/businesses/{uid}/images/{file}", businessHandler.DeleteImage)

		// Queue endpoints
		se.Router.GET("/api/queues/info", queueHandler.Info)
		se.Router.GET("/api/queues/{uid}", queueHandler.Snapshot)
		se.Router.POST("/api/queues/{uid}", queueHandler.Join).BindFunc(rateLimiter.JoinLimit())
		se.Router.POST("/api/queues/{uid}/leave", queueHandler.Leave)
		se.Router.POST("/api/queues/{uid}/message", queueHandler.Message)
		se.Router.GET("/api/queues/{uid}/live", queueHandler.Live)

		// Admin endpoints
		se.Router.GET("/api/admin/queues/{uid}", adminHandler.Dashboard)
		se.Router.POST("/api/admin/queues/{uid}/remove", adminHandler.RemoveParty)
		se.Router.POST("/api/admin/queues/{uid}/open", adminHandler.SetOpen)
		se.Router.POST("/api/admin/queues/{uid}/quote", adminHandler.SetQuote)
		se.Router.POST("/api/admin/queues/{uid}/publish", adminHandler.Publish)

		if cfg.EnableMetrics {
			se.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		se.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return se.Next()
	})

	return app.Start()
}

// setupQueueHooks rebroadcasts queue state after any record change, so
// edits made through the admin UI reach realtime listeners the same way
// API mutations do.
func setupQueueHooks(app *pocketbase.PocketBase, queueService *services.QueueService) {
	app.OnRecordAfterUpdateSuccess("queues").BindFunc(func(e *core.RecordEvent) error {
		queue, err := queueService.Snapshot(context.Background(), e.Record.Id)
		if err == nil {
			queueService.Publish(context.Background(), queue)
		}
		return e.Next()
	})

	app.OnRecordAfterCreateSuccess("queues").BindFunc(func(e *core.RecordEvent) error {
		ctx := context.Background()
		if e.Record.GetBool("open") {
			queueService.Redis.SAdd(ctx, "active_queues", e.Record.Id)
			slog.Info("tracking new queue", "queue", e.Record.Id)
		}
		return e.Next()
	})

	app.OnRecordAfterDeleteSuccess("queues").BindFunc(func(e *core.RecordEvent) error {
		ctx := context.Background()
		queueService.Redis.SRem(ctx, "active_queues", e.Record.Id)
		queueService.Redis.Del(ctx, "queue:info:"+e.Record.Id)
		slog.Info("dropped deleted queue", "queue", e.Record.Id)
		return e.Next()
	})
}

func newAPNsClient(cfg *config.Config) *apns2.Client {
	if cfg.APNsCertPath == "" {
		slog.Warn("apns certificate not configured, push notifications disabled")
		return nil
	}

	cert, err := certificate.FromP12File(cfg.APNsCertPath, cfg.APNsCertPassword)
	if err != nil {
		slog.Error("load apns certificate failed", "path", cfg.APNsCertPath, "error", err)
		return nil
	}

	client := apns2.NewClient(cert)
	if cfg.APNsProduction {
		return client.Production()
	}
	return client.Development()
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
