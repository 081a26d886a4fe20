package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"seat-reservation/config"
	"seat-reservation/internal/handlers"
	"seat-reservation/internal/payment"
	"seat-reservation/monitoring"
	"seat-reservation/security"
	"seat-reservation/services"
	"seat-reservation/utils"

	_ "seat-reservation/migrations"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := monitoring.NewMonitor()
	if cfg.EnableMetrics {
		go monitoring.Serve(":" + cfg.MetricsPort)
	}

	sweepMode, err := services.ParseSweepMode(cfg.SweepMode)
	if err != nil {
		return err
	}

	// Seat map storage
	catalog := services.NewPocketBaseCatalog(app)
	var redisStore *services.RedisSeatMapStore
	var store services.SeatMapStore
	switch cfg.SeatMapStore {
	case "redis":
		redisStore = services.NewRedisSeatMapStore(redisClient)
		store = redisStore
	case "pocketbase":
		store = services.NewPocketBaseSeatMapStore(app)
	default:
		return fmt.Errorf("unknown seat map store %q", cfg.SeatMapStore)
	}

	opts := []services.ReservationOption{
		services.WithMonitor(monitor),
		services.WithMaxRetries(cfg.LockMaxRetries),
		services.WithMaxLockDuration(cfg.MaxLockDuration),
	}
	if cfg.AMQPURL != "" {
		publisher, err := services.NewAMQPSeatEventPublisher(cfg.AMQPURL)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, services.WithPublisher(publisher))
	}

	// Initialize services
	reservations := services.NewReservationService(store, catalog, opts...)
	sweeper := services.NewSweeper(reservations, catalog, monitor, cfg.SweepInterval, sweepMode)

	providers, simulator := setupPaymentProviders(cfg)
	pn := services.NewPubNub(cfg)
	paymentService := services.NewPaymentService(reservations, catalog, providers, services.NewPubNubNotifier(pn), monitor, cfg.PaymentCurrency)

	// Initialize handlers
	seatHandler := handlers.NewSeatHandler(reservations, cfg.DefaultLockDuration)
	paymentHandler := handlers.NewPaymentHandler(paymentService, simulator)
	adminHandler := handlers.NewAdminHandler(sweeper, redisClient)
	rateLimiter := security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		sweeper.Start()
		if cfg.PubNubSubscribeKey != "" {
			go services.NewPaymentListener(pn, cfg.PaymentNotifyChannel, paymentService).Run(ctx)
		}

		// Seat endpoints
		e.Router.POST("/api/seats/lock", seatHandler.LockSeats).BindFunc(rateLimiter.Limit("lock"))
		e.Router.POST("/api/seats/locked", seatHandler.GetLockedSeats)
		e.Router.POST("/api/seats/unlock", seatHandler.UnlockSeats)
		e.Router.GET("/api/events/{slug}/availability", seatHandler.GetAvailability)

		// Order and payment endpoints
		e.Router.POST("/api/orders/{orderId}/complete-payment", seatHandler.CompletePayment)
		e.Router.POST("/api/orders/{orderId}/checkout", paymentHandler.Checkout)
		e.Router.POST("/api/payments/webhook", paymentHandler.Webhook).BindFunc(security.WebhookToken(cfg.WebhookTokenHash))
		e.Router.GET("/api/payments/{providerOrderId}/status", paymentHandler.PaymentStatus)

		// Admin endpoints
		e.Router.POST("/api/admin/sweep", adminHandler.Sweep).Bind(apis.RequireSuperuserAuth())

		// Test endpoint for payment simulation
		if cfg.IsDevelopment() {
			e.Router.POST("/api/test/simulate-payment", paymentHandler.SimulatePayment)
		}

		e.Router.GET("/health", adminHandler.Health)

		log.Println("Server routes registered")

		if redisStore != nil {
			syncSeatMapsToRedis(app, redisStore)
			setupSeatMapHooks(app, redisStore)
		}

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		sweeper.Stop()
		cancel()
		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// setupPaymentProviders registers the configured provider behind a circuit
// breaker. The simulator is returned only when simulated payments are enabled.
func setupPaymentProviders(cfg *config.Config) (*payment.Registry, handlers.StatusSetter) {
	registry := payment.NewRegistry()

	switch payment.ProviderName(cfg.PaymentProvider) {
	case payment.ProviderSimulated:
		sim := payment.NewSimulatedProvider(cfg.SimulatedCheckout)
		registry.Register(payment.NewBreakerProvider(sim))
		if cfg.IsDevelopment() {
			return registry, sim
		}
	default:
		slog.Warn("Unknown payment provider, checkout disabled", "provider", cfg.PaymentProvider)
	}
	return registry, nil
}

// syncSeatMapsToRedis copies seat maps that Redis does not know yet. Maps
// already in Redis keep their live locks.
func syncSeatMapsToRedis(app *pocketbase.PocketBase, store *services.RedisSeatMapStore) {
	ctx := context.Background()

	records, err := app.FindAllRecords("seat_maps")
	if err != nil {
		log.Printf("Error fetching seat maps: %v", err)
		return
	}

	synced := 0
	for _, record := range records {
		if _, err := store.GetSeatMap(ctx, record.Id); err == nil {
			continue
		}

		layout, err := services.SeatMapFromRecord(record)
		if err != nil {
			slog.Error("Invalid seat map record", "seat_map", record.Id, "error", err)
			continue
		}
		if err := store.SyncLayout(ctx, layout); err != nil {
			slog.Error("Failed to sync seat map to Redis", "seat_map", record.Id, "error", err)
			continue
		}
		synced++
	}

	log.Printf("Synced %d of %d seat maps to Redis", synced, len(records))
}

// setupSeatMapHooks copies seat map layouts edited in the admin UI into Redis.
func setupSeatMapHooks(app *pocketbase.PocketBase, store *services.RedisSeatMapStore) {
	syncLayout := func(e *core.RecordEvent) error {
		layout, err := services.SeatMapFromRecord(e.Record)
		if err != nil {
			slog.Error("Invalid seat map record", "seat_map", e.Record.Id, "error", err)
			return e.Next()
		}
		if err := store.SyncLayout(e.Context, layout); err != nil {
			slog.Error("Failed to sync seat map to Redis", "seat_map", layout.ID, "error", err)
			return e.Next()
		}
		slog.Info("Synced seat map to Redis", "seat_map", layout.ID, "seats", len(layout.Seats))
		return e.Next()
	}

	app.OnRecordAfterCreateSuccess("seat_maps").BindFunc(syncLayout)
	app.OnRecordAfterUpdateSuccess("seat_maps").BindFunc(syncLayout)
	app.OnRecordAfterDeleteSuccess("seat_maps").BindFunc(func(e *core.RecordEvent) error {
		if err := store.DeleteSeatMap(e.Context, e.Record.Id); err != nil {
			slog.Error("Failed to delete seat map from Redis", "seat_map", e.Record.Id, "error", err)
		}
		return e.Next()
	})
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
