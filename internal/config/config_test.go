package config

import "testing"

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/labcore")
	t.Setenv("PORT", "")
	t.Setenv("LOG_PRETTY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.LogPretty {
		t.Error("expected LogPretty false by default")
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/labcore")
	t.Setenv("PORT", "nope")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid PORT")
	}

	t.Setenv("PORT", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative PORT")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/labcore")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if !cfg.LogPretty {
		t.Error("expected LogPretty true")
	}
}
