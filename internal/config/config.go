package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	GRPCAddr         string
	HTTPAddr         string
	StoreDriver      string
	DataFile         string
	DatabaseURL      string
	AuthToken        string
	EnableReflection bool
	TrainTool        string
	UsePTY           bool
	WorkRoot         string
	Orchestrators    []string
	QueueDepth       int
	RedactOutput     bool
}

func Load() Config {
	// Missing .env is fine; real environments set variables directly.
	_ = godotenv.Load()

	return Config{
		GRPCAddr:         envOrDefault("GRPC_ADDR", "127.0.0.1:50051"),
		HTTPAddr:         envOrDefault("HTTP_ADDR", "127.0.0.1:8080"),
		StoreDriver:      envOrDefault("STORE_DRIVER", "file"),
		DataFile:         envOrDefault("DATA_FILE", "./data/yolotuner.db.json"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		AuthToken:        os.Getenv("AUTH_TOKEN"),
		EnableReflection: envBoolOrDefault("ENABLE_REFLECTION", false),
		TrainTool:        envOrDefault("TRAIN_TOOL", "yolo"),
		UsePTY:           envBoolOrDefault("TRAIN_TOOL_PTY", false),
		WorkRoot:         envOrDefault("WORK_ROOT", "/tmp/yolo"),
		Orchestrators:    envList("ORCHESTRATORS"),
		QueueDepth:       envIntOrDefault("QUEUE_DEPTH", 32),
		RedactOutput:     envBoolOrDefault("REDACT_TOOL_OUTPUT", true),
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envBoolOrDefault(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envIntOrDefault(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if clean := strings.TrimSpace(part); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}
