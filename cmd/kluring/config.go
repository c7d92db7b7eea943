package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/kluring/internal/engine"
)

// settings is the process configuration read from the environment.
type settings struct {
	Port     int
	DBPath   string // empty disables the journal
	AdminKey string
	Tick     time.Duration
	Dev      bool
	Origins  []string
	Engine   engine.Config
}

func loadSettings() settings {
	cfg := engine.DefaultConfig()
	cfg.Restock = engine.ParseRestockCount(envOrDefault("KLURING_RESTOCK", "1"))
	cfg.RandSeed = uint64(envIntOrDefault("KLURING_SEED", 0))
	cfg.NoiseSeed = int64(cfg.RandSeed)
	cfg.AllOrientations = envBool("KLURING_ALL_ORIENTATIONS")
	cfg.NoiseWeight = envFloatOrDefault("KLURING_NOISE_WEIGHT", 0)
	cfg.NoiseScale = envFloatOrDefault("KLURING_NOISE_SCALE", cfg.NoiseScale)

	dbPath := "data/kluring.db"
	if v, ok := os.LookupEnv("KLURING_DB"); ok {
		dbPath = v
	}

	var origins []string
	for _, o := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return settings{
		Port:     envIntOrDefault("KLURING_PORT", 8080),
		DBPath:   dbPath,
		AdminKey: os.Getenv("KLURING_ADMIN_KEY"),
		Tick:     time.Duration(envIntOrDefault("KLURING_TICK_MS", 50)) * time.Millisecond,
		Dev:      envBool("KLURING_DEV"),
		Origins:  origins,
		Engine:   cfg,
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloatOrDefault(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}
