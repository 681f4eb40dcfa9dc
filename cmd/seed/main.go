package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"h2grid/internal/auth"
	"h2grid/internal/cache"
	"h2grid/internal/config"
	"h2grid/internal/db"
	"h2grid/internal/logger"
	"h2grid/internal/mailer"
	"h2grid/internal/model"
	"h2grid/internal/repository"
	"h2grid/internal/service"
)

func main() {
	source := flag.String("source", "seed.json", "seed file path or http(s) URL")
	overwrite := flag.Bool("overwrite", false, "update assets that already exist by name")
	adminEmail := flag.String("admin-email", "", "create an admin user with this email")
	adminUsername := flag.String("admin-username", "admin", "username for the admin user")
	adminPassword := flag.String("admin-password", "", "password for the admin user")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	gormDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	log.Info("Connected to database")

	userRepo := repository.NewUserRepository(gormDB)
	if err := userRepo.Migrate(ctx); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	var adminID *uuid.UUID
	if *adminEmail != "" {
		admin, err := ensureAdmin(ctx, userRepo, *adminUsername, *adminEmail, *adminPassword)
		if err != nil {
			log.Fatal("Failed to create admin user", "error", err)
		}
		adminID = &admin.ID
		log.Info("Admin user ready", "username", admin.Username, "id", admin.ID)
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, log)
	defer cacheClient.Close()

	assets := make(map[string]service.AssetService)
	for route, repo := range repository.AssetRepositories(gormDB) {
		if err := repo.Migrate(ctx); err != nil {
			log.Fatal("Failed to run migrations", "assetType", route, "error", err)
		}
		assets[route] = service.NewAssetService(repo, cacheClient, nil, log)
	}
	admin := service.NewAdminService(assets, service.NewUserService(userRepo, cacheClient, mailer.NewLogMailer(log)), nil, log)

	log.Info("Loading seed data", "source", *source)
	data, err := service.LoadSeed(ctx, &http.Client{Timeout: time.Minute}, *source)
	if err != nil {
		log.Fatal("Failed to load seed data", "error", err)
	}

	report := admin.Import(ctx, data, service.ImportOptions{Overwrite: *overwrite, Validate: true}, adminID)
	for route, counts := range report.Results {
		log.Info("Seeded asset type", "assetType", route, "created", counts.Created, "updated", counts.Updated, "errors", counts.Errors)
	}
	for _, msg := range report.Errors {
		log.Warn("Seed item rejected", "reason", msg)
	}
	log.Info("Seed completed")
}

// ensureAdmin returns the user registered under email, promoting it to
// admin, or creates a new verified admin.
func ensureAdmin(ctx context.Context, users repository.UserRepository, username, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	existing, err := users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup admin: %w", err)
	}
	if existing != nil {
		existing.Role = model.RoleAdmin
		existing.IsActive = true
		if err := users.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("promote admin: %w", err)
		}
		return existing, nil
	}

	if !auth.IsStrongPassword(password) {
		return nil, errors.New(auth.PasswordRule)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username:     username,
		Fullname:     "Administrator",
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		IsVerified:   true,
		IsActive:     true,
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	return user, nil
}
