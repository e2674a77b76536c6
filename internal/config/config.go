// Package config содержит логику чтения конфигурации сервиса отчётов.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mmeshcher/depannfroid-reports/internal/model"
)

const defaultRunAddress = "localhost:8080"

// Config содержит параметры конфигурации сервиса отчётов.
type Config struct {
	RunAddress         string        `env:"RUN_ADDRESS"`
	DatabaseURI        string        `env:"DATABASE_URI"`
	WorkflowEndpoint   string        `env:"WORKFLOW_ENDPOINT"`
	WorkflowTimeout    time.Duration `env:"WORKFLOW_TIMEOUT" envDefault:"0s"`
	DefaultTechnician  string        `env:"DEFAULT_TECHNICIAN"`
	SignatureSecret    string        `env:"SIGNATURE_SECRET"`
	ClientSyncInterval time.Duration `env:"CLIENT_SYNC_INTERVAL" envDefault:"5m"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	CompanyName        string        `env:"COMPANY_NAME"`
}

// Parse считывает конфигурацию из файла .env (если он есть), флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envWorkflowEndpoint := cfg.WorkflowEndpoint

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI for drafts storage")
	flag.StringVar(&cfg.WorkflowEndpoint, "w", "", "remote workflow endpoint")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envWorkflowEndpoint != "" {
		cfg.WorkflowEndpoint = envWorkflowEndpoint
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.WorkflowTimeout < 0 {
		return nil, fmt.Errorf("WORKFLOW_TIMEOUT must not be negative: %s", cfg.WorkflowTimeout)
	}

	return cfg, nil
}

// Settings возвращает параметры предприятия с учётом переопределений из конфигурации.
func (c *Config) Settings() model.Settings {
	s := model.DefaultSettings()
	if v := strings.TrimSpace(c.DefaultTechnician); v != "" {
		s.DefaultTechnician = v
	}
	if v := strings.TrimSpace(c.CompanyName); v != "" {
		s.CompanyName = v
	}
	return s
}
