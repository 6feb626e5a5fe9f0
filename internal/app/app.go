package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hanziloop/core/internal/config"
	"github.com/hanziloop/core/internal/database"
	"github.com/hanziloop/core/internal/middleware"
	"github.com/hanziloop/core/internal/modules/character"
	"github.com/hanziloop/core/internal/modules/phrase"
	"github.com/hanziloop/core/internal/pkg/cache"
	pkgcron "github.com/hanziloop/core/internal/pkg/cron"
	pkgredis "github.com/hanziloop/core/internal/pkg/redis"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const cacheSweepInterval = 10 * time.Minute

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	logger *zap.Logger
	cancel context.CancelFunc
	sched  *pkgcron.Scheduler
}

// New initializes the application: config → DB → cache → services → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	phraseCache, err := buildCache(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, err
	}

	gen, err := phrase.NewClient(cfg.AI, cfg.Phrase, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("generation client: %w", err)
	}

	charSvc := character.NewService(db)
	phraseSvc := phrase.NewService(db, phraseCache, gen, charSvc, cfg.Phrase, logger)

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(corsConfig(cfg)))

	sched := pkgcron.New()
	registerCronJobs(sched, phraseSvc, logger)
	go sched.Start(ctx)

	app := &App{cfg: cfg, router: router, db: db, logger: logger, cancel: cancel, sched: sched}
	app.registerRoutes(phraseSvc)

	return app, nil
}

func buildCache(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (cache.PhraseCache, error) {
	if cfg.Phrase.CacheBackend == "redis" {
		rc, err := pkgredis.Connect(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		return cache.NewRedis(rc, logger), nil
	}

	mem := cache.NewMemory()
	go mem.StartSweeper(ctx, cacheSweepInterval)
	return mem, nil
}

func corsConfig(cfg *config.AppConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		c.AllowOrigins = cfg.AllowedOrigins
	} else {
		c.AllowOriginFunc = func(origin string) bool { return true }
	}
	return c
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown cleans up background goroutines.
func (a *App) Shutdown() { a.cancel() }
