// Package bootstrap wires up runtime dependencies for the command binaries.
package bootstrap

import (
	"fmt"
	"log"

	"parley/internal/cache"
	"parley/internal/config"
	"parley/internal/database"
	"parley/internal/models"
	"parley/internal/seed"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	SeedDemoData bool
}

// InitRuntime connects to the database and Redis and optionally seeds demo
// data. Redis may come back nil; callers run without realtime in that case.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	rdb := cache.Connect(cfg.RedisURL)

	if err := ensureDevAccount(cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development account: %w", err)
	}

	if opts.SeedDemoData {
		if err := seed.Seed(db, seed.Options{NumUsers: 25, NumGroups: 6}); err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return db, rdb, nil
}

// ensureDevAccount creates a known login in non-production environments so
// developers always have an account to poke the API with.
func ensureDevAccount(cfg *config.Config, db *gorm.DB) error {
	if cfg.Env == "production" || cfg.Env == "prod" {
		return nil
	}

	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", "dev").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seed.DefaultSeedPassword), bcrypt.MinCost)
	if err != nil {
		return err
	}
	if err := db.Create(&models.User{
		Username: "dev",
		Password: string(hash),
		Name:     "Dev Account",
	}).Error; err != nil {
		return err
	}
	log.Printf("Created development account %q (password %q)", "dev", seed.DefaultSeedPassword)
	return nil
}
