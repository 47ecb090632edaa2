// Package config loads the panel-side configuration from
// ~/.config/yolotuner/tuner.yaml. The file uses a flat key: value subset of
// YAML so the binary carries no parser dependency for a handful of keys.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultConfigRelPath = ".config/yolotuner/tuner.yaml"
)

type Config struct {
	GRPCAddr       string        `yaml:"grpc_addr"`
	GRPCInsecure   bool          `yaml:"grpc_insecure"`
	TokenEnvVar    string        `yaml:"token_env_var"`
	Dataset        string        `yaml:"dataset"`
	DetField       string        `yaml:"det_field"`
	Classes        []string      `yaml:"classes"`
	RefreshSeconds int           `yaml:"refresh_seconds"`
	ConnectTimeout time.Duration `yaml:"-"`
	RequestTimeout time.Duration `yaml:"-"`
	RetryAttempts  int           `yaml:"-"`
}

func Default() Config {
	return Config{
		GRPCAddr:       "127.0.0.1:50051",
		GRPCInsecure:   false,
		TokenEnvVar:    "YOLOTUNER_TOKEN",
		Dataset:        "dataset",
		DetField:       "ground_truth",
		RefreshSeconds: 5,
		ConnectTimeout: 8 * time.Second,
		RequestTimeout: 10 * time.Second,
		RetryAttempts:  3,
	}
}

func Load() (Config, string, error) {
	cfg := Default()
	path, err := Path()
	if err != nil {
		return cfg, "", err
	}

	if raw, readErr := os.ReadFile(path); readErr == nil {
		if parseErr := parseConfig(string(raw), &cfg); parseErr != nil {
			return cfg, path, fmt.Errorf("parse tuner config %s: %w", path, parseErr)
		}
	} else if !errors.Is(readErr, os.ErrNotExist) {
		return cfg, path, fmt.Errorf("read tuner config %s: %w", path, readErr)
	}

	if strings.TrimSpace(cfg.GRPCAddr) == "" {
		cfg.GRPCAddr = Default().GRPCAddr
	}
	if strings.TrimSpace(cfg.TokenEnvVar) == "" {
		cfg.TokenEnvVar = Default().TokenEnvVar
	}
	if strings.TrimSpace(cfg.Dataset) == "" {
		cfg.Dataset = Default().Dataset
	}
	if strings.TrimSpace(cfg.DetField) == "" {
		cfg.DetField = Default().DetField
	}
	if cfg.RefreshSeconds <= 0 {
		cfg.RefreshSeconds = Default().RefreshSeconds
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = Default().RetryAttempts
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = Default().ConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = Default().RequestTimeout
	}

	return cfg, path, nil
}

func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, defaultConfigRelPath), nil
}

func ResolveToken(cfg Config) string {
	name := strings.TrimSpace(cfg.TokenEnvVar)
	if name != "" {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			return value
		}
	}
	return ""
}

func parseConfig(raw string, cfg *Config) error {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	currentListKey := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "- ") {
			value := trimQuotes(strings.TrimSpace(strings.TrimPrefix(line, "- ")))
			if currentListKey == "classes" && value != "" {
				cfg.Classes = append(cfg.Classes, value)
			}
			continue
		}

		currentListKey = ""
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if value == "" {
			currentListKey = key
			continue
		}
		value = trimQuotes(value)
		switch key {
		case "grpc_addr":
			cfg.GRPCAddr = value
		case "grpc_insecure":
			parsed, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("grpc_insecure: %w", err)
			}
			cfg.GRPCInsecure = parsed
		case "token_env_var":
			cfg.TokenEnvVar = value
		case "dataset":
			cfg.Dataset = value
		case "det_field":
			cfg.DetField = value
		case "refresh_seconds":
			parsed, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("refresh_seconds: %w", err)
			}
			cfg.RefreshSeconds = parsed
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return nil
}

func trimQuotes(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}
