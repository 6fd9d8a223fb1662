package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ALLOWED_ORIGIN", "")
	t.Setenv("GEMINI_TIMEOUT_SECONDS", "")
	t.Setenv("APP_ENV", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.AllowedOrigin != "http://127.0.0.1:3000" {
		t.Fatalf("unexpected default origin %q", cfg.AllowedOrigin)
	}
	if cfg.GeminiTimeoutSeconds != 20 {
		t.Fatalf("expected default timeout 20, got %d", cfg.GeminiTimeoutSeconds)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GEMINI_TIMEOUT_SECONDS", "5")
	t.Setenv("REDIS_DB", "2")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Port)
	}
	if cfg.GeminiTimeoutSeconds != 5 {
		t.Fatalf("expected timeout 5, got %d", cfg.GeminiTimeoutSeconds)
	}
	if cfg.RedisDB != 2 {
		t.Fatalf("expected redis db 2, got %d", cfg.RedisDB)
	}
}

func TestInvalidTimeoutFallsBack(t *testing.T) {
	t.Setenv("GEMINI_TIMEOUT_SECONDS", "-3")

	cfg := Load()
	if cfg.GeminiTimeoutSeconds != 20 {
		t.Fatalf("expected fallback timeout 20, got %d", cfg.GeminiTimeoutSeconds)
	}
}
