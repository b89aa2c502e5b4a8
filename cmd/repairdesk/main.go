package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	cfhttp "github.com/Strob0t/RepairDesk/internal/adapter/http"
	"github.com/Strob0t/RepairDesk/internal/adapter/memory"
	cfnats "github.com/Strob0t/RepairDesk/internal/adapter/nats"
	"github.com/Strob0t/RepairDesk/internal/adapter/natskv"
	cfotel "github.com/Strob0t/RepairDesk/internal/adapter/otel"
	"github.com/Strob0t/RepairDesk/internal/adapter/postgres"
	"github.com/Strob0t/RepairDesk/internal/adapter/ristretto"
	"github.com/Strob0t/RepairDesk/internal/adapter/tiered"
	"github.com/Strob0t/RepairDesk/internal/adapter/ws"
	"github.com/Strob0t/RepairDesk/internal/config"
	"github.com/Strob0t/RepairDesk/internal/logger"
	"github.com/Strob0t/RepairDesk/internal/middleware"
	"github.com/Strob0t/RepairDesk/internal/port/agentstore"
	"github.com/Strob0t/RepairDesk/internal/port/broadcast"
	"github.com/Strob0t/RepairDesk/internal/port/cache"
	"github.com/Strob0t/RepairDesk/internal/port/database"
	"github.com/Strob0t/RepairDesk/internal/port/notificationstore"
	"github.com/Strob0t/RepairDesk/internal/port/notifier"
	"github.com/Strob0t/RepairDesk/internal/resilience"
	"github.com/Strob0t/RepairDesk/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"registry_backend", cfg.Registry.Backend,
		"chat_store", cfg.Chat.Store,
		"nats", cfg.NATS.URL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	otelShutdown, err := cfotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	var metrics *cfotel.Metrics
	if cfg.OTEL.Enabled {
		if metrics, err = cfotel.NewMetrics(); err != nil {
			return fmt.Errorf("otel metrics: %w", err)
		}
	}

	// --- Infrastructure ---

	var queue *cfnats.Queue
	if cfg.NATS.URL != "" {
		queue, err = cfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := queue.Drain(); err != nil {
				slog.Warn("nats drain", "error", err)
			}
		}()
	}

	chatStore, closeChatStore, err := openChatStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeChatStore()

	agents, notifs, err := openRegistry(ctx, cfg, queue)
	if err != nil {
		return err
	}

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB<<20, cfg.Cache.L1TTL)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()

	var l2, idemStore cache.Cache
	idemStore = l1
	if queue != nil {
		kv, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			return fmt.Errorf("l2 cache: %w", err)
		}
		l2 = natskv.NewCache(kv)

		idemKV, err := queue.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
		if err != nil {
			return fmt.Errorf("idempotency store: %w", err)
		}
		idemStore = natskv.NewCache(idemKV)
	}
	statusCache := tiered.New(l1, l2, cfg.Cache.L1TTL)

	// --- Real-time ---

	hub := ws.NewHub(cfg.Server.WSOrigins)
	defer hub.Close()

	var publisher broadcast.Publisher = hub
	if queue != nil {
		relay := cfnats.NewRelay(hub, queue)
		stopRelay, err := relay.Start(ctx)
		if err != nil {
			return fmt.Errorf("room relay: %w", err)
		}
		defer stopRelay()
		publisher = relay
	}

	// --- Services ---

	notifiers, err := buildNotifiers(cfg.Notify)
	if err != nil {
		return err
	}
	urgent := service.NewNotificationService(notifiers, cfg.Notify.Events, resilience.NewGroup(cfg.Breaker), cfg.Notify.Timeout, metrics)
	defer urgent.Wait()

	agentSvc := service.NewAgentService(agents, publisher)
	dispatcher := service.NewNotificationDispatcher(agents, notifs, publisher, urgent, metrics)
	dispatcher.SetBaseURL(cfg.Notify.BaseURL)

	chatSvc := service.NewChatService(chatStore, agentSvc, dispatcher, cfg.Chat.EstimatedWaitMinutes)
	chatSvc.SetCache(statusCache, cfg.Chat.StatusCacheTTL)
	chatSvc.SetMetrics(metrics)
	if queue != nil {
		chatSvc.SetQueue(queue)
	}
	stopEvents, err := chatSvc.StartEventSubscriber(ctx)
	if err != nil {
		return fmt.Errorf("chat event subscriber: %w", err)
	}
	defer stopEvents()

	// --- HTTP ---

	limiter, stopCleanup := middleware.NewRateLimiterFromConfig(cfg.Rate)
	defer stopCleanup()

	handlers := &cfhttp.Handlers{
		Chats:      chatSvc,
		Agents:     agentSvc,
		Dispatcher: dispatcher,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(cfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	if cfg.OTEL.Enabled {
		r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	}

	r.Get("/health", healthHandler(queue, hub))
	r.Get("/ws", hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(cfhttp.SecurityHeaders)
		r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
		cfhttp.MountRoutes(r, handlers, cfhttp.RouteMiddleware{
			RateLimit:   limiter.Handler,
			Idempotency: middleware.Idempotency(idemStore, cfg.Idempotency.TTL),
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openChatStore returns the session system of record and its cleanup.
func openChatStore(ctx context.Context, cfg *config.Config) (database.ChatStore, func(), error) {
	if cfg.Chat.Store == config.StoreMemory {
		slog.Warn("using in-memory chat store; sessions are lost on restart")
		return memory.NewChatStore(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")
	return postgres.NewStore(pool), pool.Close, nil
}

// openRegistry builds the agent registry and notification store for the
// configured backend.
func openRegistry(ctx context.Context, cfg *config.Config, queue *cfnats.Queue) (agentstore.Store, notificationstore.Store, error) {
	if cfg.Registry.Backend != config.BackendNATSKV {
		return memory.NewAgentStore(cfg.Registry.DefaultMaxChats),
			memory.NewNotificationStore(cfg.Registry.NotificationCap), nil
	}

	agentKV, err := queue.KeyValue(ctx, cfg.Registry.AgentBucket, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("agent registry: %w", err)
	}
	notifKV, err := queue.KeyValue(ctx, cfg.Registry.NotificationBucket, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("notification store: %w", err)
	}
	slog.Info("shared registry enabled", "agent_bucket", cfg.Registry.AgentBucket)
	return natskv.NewAgentStore(agentKV, cfg.Registry.DefaultMaxChats),
		natskv.NewNotificationStore(notifKV, cfg.Registry.NotificationCap), nil
}

// buildNotifiers creates one urgent-channel notifier per configured provider.
func buildNotifiers(cfg config.Notify) ([]notifier.Notifier, error) {
	settings := map[string]map[string]string{
		"slack": {"webhook_url": cfg.SlackWebhookURL},
		"email": {
			"host":       cfg.SMTPHost,
			"port":       cfg.SMTPPort,
			"from":       cfg.SMTPFrom,
			"user":       cfg.SMTPUser,
			"password":   cfg.SMTPPassword,
			"recipients": strings.Join(cfg.Recipients, ","),
		},
	}

	notifiers := make([]notifier.Notifier, 0, len(cfg.Providers))
	for _, name := range cfg.Providers {
		n, err := notifier.New(name, settings[name])
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	if len(notifiers) > 0 {
		slog.Info("urgent channel enabled", "providers", cfg.Providers, "events", cfg.Events)
	}
	return notifiers, nil
}

// healthHandler returns an http.HandlerFunc that reports service health.
func healthHandler(queue *cfnats.Queue, hub *ws.Hub) http.HandlerFunc {
	type healthStatus struct {
		Status      string `json:"status"`
		NATS        string `json:"nats"`
		Connections int    `json:"connections"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{Status: "ok", NATS: "disabled", Connections: hub.ConnectionCount()}
		code := http.StatusOK
		if queue != nil {
			status.NATS = "connected"
			if !queue.IsConnected() {
				status.NATS = "disconnected"
				status.Status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}
