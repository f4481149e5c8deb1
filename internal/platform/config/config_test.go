package config

import (
	"os"
	"testing"
	"time"
)

// clearEnv unsets all COURSE_ environment variables for a clean test.
func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"COURSE_SERVER_PORT",
		"COURSE_SERVER_HOST",
		"COURSE_DATABASE_DRIVER",
		"COURSE_DATABASE_URL",
		"COURSE_DATABASE_MAX_CONNS",
		"COURSE_DATABASE_MIN_CONNS",
		"COURSE_CACHE_ENABLED",
		"COURSE_CACHE_URL",
		"COURSE_CACHE_TTL_SECONDS",
		"COURSE_STORAGE_PATH",
		"COURSE_INGEST_MAX_UPLOAD_BYTES",
		"COURSE_INGEST_DOCX_ENABLED",
		"COURSE_INGEST_XLSX_ENABLED",
		"COURSE_LOG_LEVEL",
		"COURSE_LOG_FORMAT",
		"COURSE_CURRICULUM_PATH",
	}
	for _, v := range envVars {
		_ = os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Database.MaxConns != 25 {
		t.Errorf("Database.MaxConns = %d, want 25", cfg.Database.MaxConns)
	}
	if cfg.Database.MinConns != 5 {
		t.Errorf("Database.MinConns = %d, want 5", cfg.Database.MinConns)
	}
	if cfg.Cache.Enabled {
		t.Error("Cache.Enabled should default to false")
	}
	if cfg.Cache.URL != "redis://localhost:6379" {
		t.Errorf("Cache.URL = %q, want redis://localhost:6379", cfg.Cache.URL)
	}
	if cfg.Cache.TTL() != time.Minute {
		t.Errorf("Cache.TTL() = %v, want 1m", cfg.Cache.TTL())
	}
	if cfg.Storage.Path != "./data" {
		t.Errorf("Storage.Path = %q, want ./data", cfg.Storage.Path)
	}
	if cfg.Ingest.MaxUploadBytes != 5<<20 {
		t.Errorf("Ingest.MaxUploadBytes = %d, want 5 MiB", cfg.Ingest.MaxUploadBytes)
	}
	if !cfg.Ingest.DOCXEnabled || !cfg.Ingest.XLSXEnabled {
		t.Error("document extractors should be enabled by default")
	}
	if cfg.CurriculumPath != "" {
		t.Errorf("CurriculumPath = %q, want empty", cfg.CurriculumPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)

	t.Setenv("COURSE_SERVER_PORT", "9090")
	t.Setenv("COURSE_DATABASE_DRIVER", "memory")
	t.Setenv("COURSE_CACHE_ENABLED", "1")
	t.Setenv("COURSE_CACHE_TTL_SECONDS", "5")
	t.Setenv("COURSE_STORAGE_PATH", "/var/lib/course")
	t.Setenv("COURSE_INGEST_DOCX_ENABLED", "false")
	t.Setenv("COURSE_LOG_FORMAT", "text")
	t.Setenv("COURSE_CURRICULUM_PATH", "./curriculum.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("Database.Driver = %q, want memory", cfg.Database.Driver)
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTL() != 5*time.Second {
		t.Errorf("Cache = %+v, want enabled with 5s ttl", cfg.Cache)
	}
	if cfg.Storage.Path != "/var/lib/course" {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}
	if cfg.Ingest.DOCXEnabled {
		t.Error("Ingest.DOCXEnabled should be false")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want text", cfg.Log.Format)
	}
	if cfg.CurriculumPath != "./curriculum.yaml" {
		t.Errorf("CurriculumPath = %q", cfg.CurriculumPath)
	}
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("COURSE_SERVER_PORT", "eighty")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want fallback 8080", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{"memory driver", map[string]string{"COURSE_DATABASE_DRIVER": "memory"}, false},
		{"unknown driver", map[string]string{"COURSE_DATABASE_DRIVER": "sqlite"}, true},
		{"min above max", map[string]string{"COURSE_DATABASE_MIN_CONNS": "30"}, true},
		{"port out of range", map[string]string{"COURSE_SERVER_PORT": "70000"}, true},
		{"non-positive upload limit", map[string]string{"COURSE_INGEST_MAX_UPLOAD_BYTES": "0"}, true},
		{"bad log format", map[string]string{"COURSE_LOG_FORMAT": "xml"}, true},
		{"text log format", map[string]string{"COURSE_LOG_FORMAT": "text"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvBoolParsing(t *testing.T) {
	tests := []struct {
		name string
		val  string
		want bool
	}{
		{"true", "true", true},
		{"TRUE", "TRUE", true},
		{"false", "false", false},
		{"1", "1", true},
		{"0", "0", false},
		{"empty", "", false},
		{"invalid", "notabool", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if tt.val != "" {
				t.Setenv("COURSE_CACHE_ENABLED", tt.val)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Cache.Enabled != tt.want {
				t.Errorf("Cache.Enabled = %v, want %v", cfg.Cache.Enabled, tt.want)
			}
		})
	}
}
