package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"bookrag/agent"
	"bookrag/app/api"
	"bookrag/chunk"
	"bookrag/extract"
	"bookrag/ingest"
	"bookrag/model"
	"bookrag/store"
	"bookrag/types"
)

type Server struct {
	cfg    types.Config
	logger *slog.Logger
}

func NewServer(cfg types.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
}

func (s *Server) Stop() {
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
	ctx := context.Background()
	cfg := s.cfg

	port, _ := strconv.Atoi(os.Getenv("PG_PORT"))
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("PG_HOST"), port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"))
	pool, err := store.NewPostgresStore(ctx, connStr, cfg.EmbedDimension)
	if err != nil {
		log.Fatal("error connecting to Postgres database: ", err)
		return
	}
	if err := pool.Init(ctx); err != nil {
		log.Fatal("error creating tables: ", err)
		return
	}

	embedder, err := model.NewEmbedder(cfg.EmbedProvider, cfg.EmbedDimension)
	if err != nil {
		log.Fatal("error configuring embedding provider: ", err)
		return
	}
	generator, err := model.NewGenerator(cfg.GenProvider)
	if err != nil {
		log.Fatal("error configuring generation provider: ", err)
		return
	}

	ragService := agent.NewService(
		agent.NewRetrievalEngine(embedder, pool),
		agent.NewAnswerAgent(generator),
		agent.NewCitationAgent(),
		pool,
		cfg.ScoreThreshold,
	)

	orchestrator := ingest.NewOrchestrator(
		extract.NewSitemap(cfg.SitemapURL, cfg.FetchTimeout),
		extract.NewExtractor(cfg.FetchTimeout),
		chunk.New(chunk.Config{
			MinSize: cfg.ChunkMinSize,
			MaxSize: cfg.ChunkMaxSize,
			Overlap: cfg.ChunkOverlap,
		}),
		embedder,
		pool, pool, pool,
		cfg.PageWorkers,
	)

	var (
		app = fiber.New(fiber.Config{
			ErrorHandler: api.ErrorHandler,
			// Ingestion runs inside the request; several hundred pages
			// can take minutes.
			ReadTimeout: 30 * time.Second,
		})
		checkHandler  = api.NewCheckHandler()
		queryHandler  = api.NewQueryHandler(ragService, cfg.QueryTimeout)
		ingestHandler = api.NewIngestHandler(orchestrator, pool, cfg.IngestAPIKey)
		check         = app.Group("/check")
		apiv1         = app.Group("/api/v1")
	)

	apiv1.Use(limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
	}))

	check.Get("/healthy", checkHandler.HandleHealthy)
	apiv1.Post("/query", queryHandler.HandleQuery)
	apiv1.Post("/ingest", ingestHandler.HandleIngest)
	apiv1.Get("/jobs/:id", ingestHandler.HandleGetJob)

	s.logger.Info("server listening", "addr", cfg.ListenAddr,
		"embed_provider", cfg.EmbedProvider, "gen_provider", cfg.GenProvider)
	if err := app.Listen(cfg.ListenAddr); err != nil {
		s.logger.Error("error starting server", "error", err.Error())
	}
}
