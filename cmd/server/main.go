package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fruit-quality-eval/backend/internal/api"
)

func main() {
	baseDir, err := os.Getwd()
	if err != nil {
		logrus.Fatalf("determine working directory: %v", err)
	}

	dataDir := filepath.Join(baseDir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logrus.Fatalf("create data directory: %v", err)
	}

	cfg := api.Config{
		DBPath: filepath.Join(dataDir, "fruit-quality.db"),
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
			"https://fruit-quality-frontend.onrender.com",
		},
	}

	if override := strings.TrimSpace(os.Getenv("FRUIT_EVAL_DB_PATH")); override != "" {
		cfg.DBPath = override
	}
	if origins := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); origins != "" {
		var parsed []string
		for _, origin := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				parsed = append(parsed, trimmed)
			}
		}
		cfg.AllowedOrigins = parsed
	}
	if ttl := os.Getenv("SESSION_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			cfg.SessionTTL = d
		}
	}
	if ttl := os.Getenv("REMEMBER_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			cfg.RememberTTL = d
		}
	}
	if seed := strings.TrimSpace(os.Getenv("ANALYSIS_SEED")); seed != "" {
		if v, err := strconv.ParseInt(seed, 10, 64); err == nil {
			cfg.AnalysisSeed = v
		}
	}
	if limit := strings.TrimSpace(os.Getenv("MAX_IMAGE_BYTES")); limit != "" {
		if v, err := strconv.ParseInt(limit, 10, 64); err == nil && v > 0 {
			cfg.MaxImageBytes = v
		}
	}

	server, err := api.NewServer(cfg)
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "2000"
	}

	logrus.Infof("starting fruit-quality-eval backend on :%s", port)
	if err := router.Run(":" + port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}
