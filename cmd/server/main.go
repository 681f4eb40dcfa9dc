package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "h2grid/docs" // swagger docs

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"h2grid/internal/auth"
	"h2grid/internal/cache"
	"h2grid/internal/config"
	"h2grid/internal/db"
	"h2grid/internal/handler"
	"h2grid/internal/logger"
	"h2grid/internal/mailer"
	"h2grid/internal/middleware"
	"h2grid/internal/model"
	"h2grid/internal/optimizer"
	"h2grid/internal/repository"
	"h2grid/internal/resource"
	"h2grid/internal/router"
	"h2grid/internal/scheduler"
	"h2grid/internal/service"
	"h2grid/internal/storage"
)

// @title H2 Grid API
// @version 1.0
// @description Green-hydrogen infrastructure mapping: assets, geo queries, planning and optimization.
// @host localhost:8080
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database init", "error", err)
	}

	userRepo := repository.NewUserRepository(gormDB)
	projectRepo := repository.NewProjectRepository(gormDB)
	favoriteRepo := repository.NewFavoriteRepository(gormDB)
	logRepo := repository.NewOptimizationLogRepository(gormDB)
	assetRepos := repository.AssetRepositories(gormDB)

	if cfg.ResetDB {
		log.Warn("RESET_DB=true detected, dropping all tables")
		resetTables(gormDB, log)
	}

	migrators := []interface{ Migrate(context.Context) error }{userRepo, projectRepo, favoriteRepo, logRepo}
	for _, repo := range assetRepos {
		migrators = append(migrators, repo)
	}
	for _, m := range migrators {
		if err := m.Migrate(ctx); err != nil {
			log.Fatal("auto-migrate", "error", err)
		}
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, log)
	defer cacheClient.Close()

	var pool *pgxpool.Pool
	postGISRepo := repository.NewPostGISRepository(nil)
	if cfg.PostGIS.Host != "" {
		if pool, err = db.NewPostGIS(ctx, cfg.PostGIS.DSN()); err != nil {
			log.Warn("postgis disabled", "error", err)
		} else {
			defer pool.Close()
			postGISRepo = repository.NewPostGISRepository(pool)
		}
	}

	var uploader storage.Uploader
	if cfg.Cloudinary.Enabled() {
		c, err := storage.NewCloudinary(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret)
		if err != nil {
			log.Warn("attachment uploads disabled", "error", err)
		} else {
			uploader = c
		}
	}

	// Auth components
	jwtService := auth.NewJWTService(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry)
	blacklist := auth.NewRedisBlacklist(cacheClient)
	mail := mailer.New(cfg.SendGridAPIKey, cfg.MailFrom, log)
	opt := optimizer.NewClient(cfg.OptimizerURL, cfg.OptimizerTimeout)

	// Services
	assets := make(map[string]service.AssetService, len(assetRepos))
	assetHandlers := make(map[string]*handler.AssetHandler, len(assetRepos))
	for route, repo := range assetRepos {
		assets[route] = service.NewAssetService(repo, cacheClient, uploader, log)
		assetHandlers[route] = handler.NewAssetHandler(assets[route])
	}
	userService := service.NewUserService(userRepo, cacheClient, mail)
	authService := service.NewAuthService(userRepo, jwtService, blacklist, auth.NewIDTokenVerifier(cfg.GoogleClientID), mail, cacheClient, log)
	optimizationService := service.NewOptimizationService(opt, logRepo, assets, userService, log)
	adminService := service.NewAdminService(assets, userService, []service.HealthCheck{
		{Name: "database", Critical: true, Check: func(ctx context.Context) error { return db.Ping(ctx, gormDB) }},
		{Name: "redis", Disabled: cfg.RedisAddr == "", Check: cacheClient.Ping},
		{Name: "optimizer", Disabled: cfg.OptimizerURL == "", Check: opt.Health},
		{Name: "postgis", Disabled: pool == nil, Check: postGISRepo.Ping},
	}, log)

	sched := scheduler.New(userRepo, logRepo, log)
	if err := sched.Start(); err != nil {
		log.Fatal("scheduler start", "error", err)
	}

	cookies := handler.NewCookiePolicy(cfg.IsProduction())
	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Deps{
		Config:    cfg,
		Logger:    log,
		JWT:       jwtService,
		Blacklist: blacklist,
		Users:     userService,
		RateLimit: middleware.NewFixedWindowStore(cfg.RateLimitMax, cfg.RateLimitWindow),
	}, router.Handlers{
		Auth:         handler.NewAuthHandler(authService, jwtService, cookies),
		User:         handler.NewUserHandler(userService, authService, cookies),
		Assets:       assetHandlers,
		Project:      handler.NewProjectHandler(service.NewProjectService(projectRepo)),
		Favorite:     handler.NewFavoriteHandler(service.NewFavoriteService(favoriteRepo)),
		Optimization: handler.NewOptimizationHandler(optimizationService),
		Admin:        handler.NewAdminHandler(adminService, userService),
		Seed:         handler.NewSeedHandler(adminService, &http.Client{Timeout: 30 * time.Second}),
		PostGIS:      handler.NewPostGISHandler(service.NewPostGISService(postGISRepo, log)),
	})

	log.Info("swagger documentation available", "url", swaggerURL(cfg))

	go func() {
		addr := ":" + cfg.ServerPort
		log.Info("server listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server start", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	// in-flight optimizer calls may run for the full optimizer timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.OptimizerTimeout+10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}
	<-sched.Stop().Done()
	optimizationService.Close()
}

func resetTables(gormDB *gorm.DB, log *logger.Logger) {
	for _, table := range []interface{}{&model.OptimizationLog{}, &model.Favorite{}, &model.Project{}, &model.User{}} {
		if err := gormDB.Migrator().DropTable(table); err != nil {
			log.Warn("drop table failed (may not exist)", "error", err)
		}
	}
	for _, def := range resource.All() {
		if err := gormDB.Migrator().DropTable(def.Table); err != nil {
			log.Warn("drop table failed (may not exist)", "table", def.Table, "error", err)
		}
	}
}

func swaggerURL(cfg *config.Config) string {
	host := cfg.SwaggerHost
	if host == "" {
		host = "localhost:" + cfg.ServerPort
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return host + "/swagger/index.html"
}
