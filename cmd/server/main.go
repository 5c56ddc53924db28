package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"pulseboard/internal/config"
	"pulseboard/internal/handlers"
	"pulseboard/internal/jobs"
	"pulseboard/internal/logging"
	"pulseboard/internal/middleware"
	"pulseboard/internal/models"
	"pulseboard/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting PulseBoard Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Load configuration
	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Snapshot: %s)", cfg.Port, cfg.SnapshotDB)

	// Initialize the snapshot store
	snapshots, err := services.NewSnapshotService(cfg.SnapshotDB)
	if err != nil {
		log.Fatalf("❌ Failed to open snapshot store: %v", err)
	}
	defer snapshots.Close()

	// Initialize core services
	historyLog := services.NewHistoryLog(cfg.HistoryLogCap)
	contextService := services.NewContextService(historyLog)
	focusService := services.NewFocusService(contextService, historyLog)
	boardState := services.NewBoardState()
	connManager := services.NewConnectionManager()
	pinService := services.NewPinService(cfg.GridColumns)
	subscriptionService := services.NewSubscriptionService(cfg.DefaultRefreshRate, cfg.StaleAfter)
	stats := services.NewPipelineStats()

	// Initialize Prometheus metrics
	services.InitMetrics(connManager)
	log.Println("✅ Prometheus metrics initialized")

	// Each widget's batch goes out as one notification: broadcast to the
	// rendering clients, bump the subscription watermark, refresh the
	// widget's data with the latest payload.
	notifier := func(ctx context.Context, notification models.WidgetUpdateNotification) error {
		connManager.Broadcast(notification)
		subscriptionService.MarkUpdated(notification.WidgetID)
		if len(notification.Updates) > 0 {
			last := notification.Updates[len(notification.Updates)-1]
			pinService.Touch(notification.WidgetID, last.Data)
		}
		return nil
	}

	updateQueue := services.NewUpdateQueueService(
		cfg.QueueCapacity, cfg.HistoryCapacity, cfg.BatchSize, cfg.ThrottleDelay,
		notifier, stats,
	)

	// Newly pinned widgets start receiving live updates immediately
	pinService.OnPin(func(widget *models.DashboardWidget) {
		subscriptionService.Subscribe(widget, nil)
	})

	// Restore the last snapshot, if any
	if snapshot, err := snapshots.Load(context.Background()); err == nil {
		boardState.Restore(snapshot)
		pinService.Restore(snapshot.Widgets)
		subscriptionService.Restore(snapshot.Subscriptions)
		contextService.SetSyncEnabled(snapshot.SyncEnabled)
		log.Printf("✅ Snapshot restored (%d widgets, %d subscriptions)", len(snapshot.Widgets), len(snapshot.Subscriptions))
	} else if !errors.Is(err, services.ErrNoSnapshot) {
		log.Printf("⚠️ Failed to load snapshot: %v", err)
	}

	// Start polled data sources
	pollingService, err := services.NewPollingService(updateQueue, cfg.SourcesFile)
	if err != nil {
		log.Fatalf("❌ Failed to create polling service: %v", err)
	}
	if err := pollingService.Start(); err != nil {
		log.Printf("⚠️ Polling service failed to start: %v", err)
	}
	defer pollingService.Stop()

	// Start maintenance jobs
	runner := jobs.NewRunner()
	runner.Register(jobs.NewSubscriptionCleanup(subscriptionService, cfg.OptimizeInterval))
	runner.Register(jobs.NewSnapshotAutosave(snapshots, boardState, pinService, subscriptionService, contextService, cfg.AutosaveInterval))
	runner.Start()
	defer runner.Stop()

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(connManager, pinService)
	dashboardHandler := handlers.NewDashboardHandler(pinService, subscriptionService, boardState)
	contextHandler := handlers.NewContextHandler(contextService, focusService, historyLog)
	updatesHandler := handlers.NewUpdatesHandler(updateQueue, subscriptionService, pinService, stats)
	wsHandler := handlers.NewUpdatesWebSocketHandler(connManager, updateQueue)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:               "PulseBoard",
		DisableStartupMessage: false,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	// Prometheus HTTP metrics
	prometheus := fiberprometheus.New("pulseboard")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	rateLimits := middleware.DefaultRateLimitConfig()

	// Routes
	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api", rateLimits.GlobalAPI())

	api.Get("/widgets", dashboardHandler.ListWidgets)
	api.Post("/widgets", dashboardHandler.PinDirect)
	api.Delete("/widgets/:id", dashboardHandler.Unpin)
	api.Put("/widgets/:id/position", dashboardHandler.Reposition)
	api.Get("/layout", dashboardHandler.GetLayout)
	api.Get("/board", dashboardHandler.GetBoardState)
	api.Patch("/board", dashboardHandler.UpdateBoardState)

	api.Post("/pins", dashboardHandler.StagePin)
	api.Post("/pins/:messageId/confirm", dashboardHandler.ConfirmPin)
	api.Delete("/pins/:messageId", dashboardHandler.CancelPin)

	api.Get("/context", contextHandler.GetContext)
	api.Put("/context", contextHandler.UpdateContext)
	api.Post("/context/sync", contextHandler.Sync)
	api.Put("/context/sync", contextHandler.SetSyncEnabled)
	api.Post("/context/bridge", contextHandler.Bridge)
	api.Get("/context/history", contextHandler.GetHistory)

	api.Post("/focus", contextHandler.StartFocus)
	api.Get("/focus", contextHandler.GetFocus)
	api.Put("/focus", contextHandler.UpdateFocus)
	api.Delete("/focus", contextHandler.EndFocus)

	api.Post("/updates", rateLimits.Ingest(), updatesHandler.Ingest)
	api.Post("/updates/flush", updatesHandler.Flush)
	api.Get("/updates/:id", updatesHandler.WidgetHistory)
	api.Get("/stats", updatesHandler.Stats)

	api.Get("/subscriptions", updatesHandler.ListSubscriptions)
	api.Post("/subscriptions", updatesHandler.Subscribe)
	api.Put("/subscriptions/:id", updatesHandler.UpdateSubscription)
	api.Delete("/subscriptions/:id", updatesHandler.Unsubscribe)

	// WebSocket upgrade
	app.Use("/ws", rateLimits.WebSocket(), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/updates", websocket.New(wsHandler.Handle))

	// Graceful shutdown: save a final snapshot before exit
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-shutdown
		log.Println("🛑 Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		snapshot := boardState.BuildSnapshot(pinService, subscriptionService, contextService)
		if err := snapshots.Save(ctx, snapshot); err != nil {
			log.Printf("⚠️ Failed to save final snapshot: %v", err)
		}

		if err := app.ShutdownWithContext(ctx); err != nil {
			log.Printf("⚠️ Server shutdown error: %v", err)
		}
	}()

	log.Printf("🌐 Server listening on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}

	log.Println("✅ Server stopped")
}
