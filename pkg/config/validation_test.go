package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidCatalogType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Archive.Catalog.Type = "postgres"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown catalog type")
	}
}

func TestValidate_Marker(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Gateway.Marker = "S1"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for marker without '~'")
	}
}

func TestValidate_Backends(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:    "TooFew",
			mutate:  func(cfg *Config) { cfg.Backends = cfg.Backends[:2] },
			wantErr: "exactly 3",
		},
		{
			name: "TooMany",
			mutate: func(cfg *Config) {
				cfg.Backends = append(cfg.Backends, BackendConfig{Extension: ".md", Host: "h", Port: 1, BundleName: "md.tar"})
			},
			wantErr: "exactly 3",
		},
		{
			name:    "Duplicate",
			mutate:  func(cfg *Config) { cfg.Backends[2].Extension = ".pdf" },
			wantErr: "duplicate extension",
		},
		{
			name:    "LocalClass",
			mutate:  func(cfg *Config) { cfg.Backends[0].Extension = ".c" },
			wantErr: "local class",
		},
		{
			name:    "CaseInsensitiveDuplicate",
			mutate:  func(cfg *Config) { cfg.Backends[1].Extension = ".PDF" },
			wantErr: "duplicate extension",
		},
		{
			name:    "BadPort",
			mutate:  func(cfg *Config) { cfg.Backends[1].Port = 70000 },
			wantErr: "max",
		},
		{
			name:    "MissingHost",
			mutate:  func(cfg *Config) { cfg.Backends[0].Host = "" },
			wantErr: "required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_NegativeTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Gateway.Timeouts.Idle = -1

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for negative timeout")
	}
}

func TestValidateNode(t *testing.T) {
	if err := ValidateNode(GetDefaultNodeConfig()); err != nil {
		t.Fatalf("Expected default node config to validate, got: %v", err)
	}

	cfg := GetDefaultNodeConfig()
	cfg.Content.Type = "ftp"
	if err := ValidateNode(cfg); err == nil {
		t.Error("Expected validation error for unknown content type")
	}

	cfg = GetDefaultNodeConfig()
	cfg.Node.Extension = "."
	if err := ValidateNode(cfg); err == nil {
		t.Error("Expected validation error for empty extension")
	}
}
