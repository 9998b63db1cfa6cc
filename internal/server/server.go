package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/w2vasia/gps-track/internal/config"
	"github.com/w2vasia/gps-track/internal/pool"
	"github.com/w2vasia/gps-track/internal/stream"
	"github.com/w2vasia/gps-track/internal/tracks"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub
	Pool   *pool.Pool
	Logger *zap.Logger
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, parserPool *pool.Pool, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient, log),
		Pool:   parserPool,
		Logger: log,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	ttl := time.Duration(s.Cfg.StatsCacheTTLSeconds) * time.Second
	svc := tracks.NewService(s.DB, s.Redis, s.Pool, s.Stream, s.Logger, ttl)

	tracks.RegisterRoutes(s.App.Group("/tracks"), svc)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
