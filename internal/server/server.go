package server

import (
	"time"

	"backend-runlink/internal/activity"
	"backend-runlink/internal/auth"
	"backend-runlink/internal/challenge"
	"backend-runlink/internal/config"
	"backend-runlink/internal/feed"
	"backend-runlink/internal/queue"
	"backend-runlink/internal/stream"
	"backend-runlink/internal/syncer"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Queue  *queue.Queue
	Sync   *syncer.Coordinator
	Stream *stream.Hub
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, q *queue.Queue) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	feedStore := feed.NewStore(db)
	coord := syncer.New(q, feedStore, syncer.Options{
		MaxAttempts:    cfg.SyncMaxAttempts,
		BaseDelay:      time.Duration(cfg.SyncBaseDelaySec) * time.Second,
		PublishTimeout: time.Duration(cfg.SyncTimeoutSec) * time.Second,
	})

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Queue:  q,
		Sync:   coord,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(s, feedStore)
	return s
}

func registerRoutes(s *Server, feedStore *feed.Store) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	manager := activity.NewManager(s.Cfg.SplitUnitMeters, s.Queue, s.Sync, s.Stream)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB, s.Redis))
	activity.RegisterRoutes(s.App.Group("/activities"), manager, jwtMiddleware)
	challenge.RegisterRoutes(s.App.Group("/challenges"), challenge.NewService(s.DB, feedStore), jwtMiddleware)
	feed.RegisterRoutes(s.App.Group("/feed"), feedStore)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
