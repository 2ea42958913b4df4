// Package app wires the collab service from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"collab-service/internal/auth"
	"collab-service/internal/broadcast"
	"collab-service/internal/config"
	"collab-service/internal/connections"
	"collab-service/internal/db"
	"collab-service/internal/handlers"
	"collab-service/internal/health"
	"collab-service/internal/kafka"
	"collab-service/internal/messages"
	"collab-service/internal/middleware"
	"collab-service/internal/observability"
	"collab-service/internal/presence"
	"collab-service/internal/rabbitmq"
	"collab-service/internal/repositories"
	"collab-service/internal/rooms"
	"collab-service/internal/telemetry"
	"collab-service/internal/users"
	"collab-service/internal/ws"
)

const (
	tokenTTL        = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
	healthInterval  = 15 * time.Second
)

type App struct {
	cfg config.Config

	router *gin.Engine
	health *health.Server
	jwt    *auth.JWTService
	memory *repositories.MemoryStore
	relay  *broadcast.AMQP

	closers []func() error
}

type stores struct {
	connections repositories.ConnectionRepository
	rooms       repositories.RoomRepository
	messages    repositories.MessageRepository
	profiles    repositories.ProfileRepository
}

// New builds every component. Close releases what New opened, also after a failed New.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{cfg: cfg}
	checkers := map[string]health.Checker{}

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return shutdownTracing(sctx)
	})

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AuditExchange)
	a.closers = append(a.closers, auditPublisher.Close)
	log.Printf("audit publisher mode=%s reason=%q", rabbitmq.PublisherMode(auditPublisher), rabbitmq.PublisherNoopReason(auditPublisher))
	observability.SetPublisher(auditPublisher)
	emitter := telemetry.NewAuditEmitter(auditPublisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment)

	st, err := a.openStores(ctx, checkers)
	if err != nil {
		a.Close()
		return nil, err
	}

	hub := ws.NewHub()
	broadcaster := a.openBroadcaster(hub)

	stream := kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
	a.closers = append(a.closers, stream.Close)

	presenceStore, err := a.openPresence(ctx, checkers)
	if err != nil {
		a.Close()
		return nil, err
	}

	connectionSvc := connections.NewService(st.connections, emitter)
	messageSvc := messages.NewService(st.messages, st.rooms, st.profiles, broadcaster, stream)
	roomSvc := rooms.NewService(st.rooms, st.profiles, connectionSvc, messageSvc, emitter)
	tracker := presence.NewTracker(presenceStore, roomSvc, broadcaster, cfg.PresenceStaleAfter)
	userSvc := users.NewService(st.profiles, connectionSvc, tracker)

	a.jwt, err = auth.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, tokenTTL)
	if err != nil {
		a.Close()
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.RequestIDMiddleware(), observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.Register(router, handlers.API{
		Rooms:       handlers.NewRoomHandler(roomSvc),
		Messages:    handlers.NewMessageHandler(messageSvc),
		Connections: handlers.NewConnectionHandler(connectionSvc),
		Presence:    handlers.NewPresenceHandler(tracker),
		Users:       handlers.NewUserHandler(userSvc),
	}, middleware.AuthMiddleware(a.jwt))

	roomWS := ws.NewRoomWebSocketHandler(hub, roomSvc, a.jwt, broadcaster)
	router.GET("/ws/rooms/:room_id", roomWS.Handle)

	handlers.RegisterDebugRoutes(router, emitter, hub, cfg.DebugRoutes)

	a.router = router
	a.health = health.NewServer(checkers)
	return a, nil
}

func (a *App) openStores(ctx context.Context, checkers map[string]health.Checker) (stores, error) {
	if a.cfg.Store == config.StoreMemory {
		log.Printf("store mode=memory")
		a.memory = repositories.NewMemoryStore()
		return stores{connections: a.memory, rooms: a.memory, messages: a.memory, profiles: a.memory}, nil
	}

	database, err := db.Connect(ctx, a.cfg.DatabaseDSN)
	if err != nil {
		return stores{}, err
	}
	a.closers = append(a.closers, database.Close)
	if err := db.Migrate(ctx, database); err != nil {
		return stores{}, err
	}
	checkers["postgres"] = pingDB(database)
	log.Printf("store mode=postgres")
	return stores{
		connections: repositories.NewConnectionRepo(database),
		rooms:       repositories.NewRoomRepo(database),
		messages:    repositories.NewMessageRepo(database),
		profiles:    repositories.NewProfileRepo(database),
	}, nil
}

func (a *App) openBroadcaster(hub *ws.Hub) broadcast.Broadcaster {
	if a.cfg.AMQPURL == "" {
		log.Printf("broadcast mode=local")
		return broadcast.NewLocal(hub)
	}
	publisher := rabbitmq.NewPublisher(a.cfg.AMQPURL, a.cfg.RealtimeExchange)
	a.closers = append(a.closers, publisher.Close)
	if rabbitmq.PublisherMode(publisher) != "amqp" {
		log.Printf("broadcast mode=local reason=%q", rabbitmq.PublisherNoopReason(publisher))
		return broadcast.NewLocal(hub)
	}
	consumer := rabbitmq.NewConsumer(a.cfg.AMQPURL, a.cfg.RealtimeExchange, broadcast.BindingKey)
	a.relay = broadcast.NewAMQP(hub, publisher, consumer)
	log.Printf("broadcast mode=amqp exchange=%s", a.cfg.RealtimeExchange)
	return a.relay
}

func (a *App) openPresence(ctx context.Context, checkers map[string]health.Checker) (presence.Store, error) {
	if a.cfg.RedisURL == "" {
		log.Printf("presence store=memory")
		return presence.NewMemoryStore(), nil
	}
	rdb, err := presence.OpenRedis(ctx, a.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)
	checkers["redis"] = pingRedis(rdb)
	log.Printf("presence store=redis")
	return presence.NewRedisStore(rdb, 10*a.cfg.PresenceStaleAfter), nil
}

func pingDB(database *sqlx.DB) health.Checker {
	return func(ctx context.Context) error {
		return database.PingContext(ctx)
	}
}

func pingRedis(rdb *redis.Client) health.Checker {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

// Router exposes the HTTP surface.
func (a *App) Router() http.Handler { return a.router }

// Tokens issues and validates bearer tokens with the configured secret.
func (a *App) Tokens() *auth.JWTService { return a.jwt }

// Memory returns the in-memory store, or nil when running on postgres.
func (a *App) Memory() *repositories.MemoryStore { return a.memory }

// Run serves HTTP, gRPC health and the broadcast relay until ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpServer := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcLis, err := net.Listen("tcp", ":"+a.cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errs := make(chan error, 3)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("http listening port=%s", a.cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("grpc health listening port=%s", a.cfg.GRPCPort)
		if err := a.health.Serve(grpcLis); err != nil {
			errs <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	if a.relay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.relay.Run(ctx); err != nil {
				errs <- fmt.Errorf("broadcast relay: %w", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.watchHealth(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
		log.Printf("shutting down: %v", runErr)
	}
	cancel()

	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	a.health.Stop()
	wg.Wait()
	return runErr
}

func (a *App) watchHealth(ctx context.Context) {
	a.health.Refresh(ctx)
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.health.Refresh(ctx)
		}
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
	a.closers = nil
	observability.SetPublisher(nil)
}
