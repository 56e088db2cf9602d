package config

import "testing"

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("ENV", "")

	c := FromEnv()
	if c.LogLevel != "info" {
		t.Fatalf("expected default info, got %q", c.LogLevel)
	}
	if c.LogFormat != "console" {
		t.Fatalf("expected default console, got %q", c.LogFormat)
	}
	if c.IsProduction() {
		t.Fatal("expected development by default")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SECURE", "true")
	t.Setenv("ENV", "production")

	c := FromEnv()
	if c.LogLevel != "debug" {
		t.Fatalf("expected debug, got %q", c.LogLevel)
	}
	if !c.Secure {
		t.Fatal("expected Secure=true")
	}
	if !c.IsProduction() {
		t.Fatal("expected production")
	}
}
