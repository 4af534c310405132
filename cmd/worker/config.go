package main

import (
	"log"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/config"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/utils"
)

// Config holds all configuration for the worker
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	HealthAddr    string
}

// loadConfig derives worker settings from the application config so
// the worker and the API always talk to the same Redis
func loadConfig(appCfg *config.Config) *Config {
	cfg := &Config{
		RedisAddr:     appCfg.Redis.Host,
		RedisPassword: appCfg.Redis.Password,
		RedisDB:       appCfg.Redis.DB,
		HealthAddr:    utils.GetEnvVariable("WORKER_HEALTH_ADDR", ":9999"),
	}

	log.Printf("[Config] Redis: %s (db %d), Health: %s",
		cfg.RedisAddr, cfg.RedisDB, cfg.HealthAddr)

	return cfg
}
