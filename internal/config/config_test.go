package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "database:\n  host: db\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Fetch.Timeout != 10*time.Second {
		t.Errorf("expected fetch timeout 10s, got %s", cfg.Fetch.Timeout)
	}
	if cfg.MinIO.PresignExpiry != 7*24*time.Hour {
		t.Errorf("expected presign expiry 168h, got %s", cfg.MinIO.PresignExpiry)
	}
	if cfg.Vision.Backend != "dlib" || cfg.Vision.FacePolicy != "first" {
		t.Errorf("unexpected vision defaults: %+v", cfg.Vision)
	}
	if cfg.Database.Host != "db" {
		t.Errorf("expected host from file, got %q", cfg.Database.Host)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\nvision:\n  backend: dlib\n")
	t.Setenv("ATT_SERVER_PORT", "9100")
	t.Setenv("ATT_VISION_BACKEND", "onnx")
	t.Setenv("ATT_VISION_EXPERIMENTAL_ONNX", "true")
	t.Setenv("ATT_FETCH_TIMEOUT", "3s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("expected env port 9100, got %d", cfg.Server.Port)
	}
	if cfg.Vision.Backend != "onnx" {
		t.Errorf("expected onnx backend, got %q", cfg.Vision.Backend)
	}
	if cfg.Fetch.Timeout != 3*time.Second {
		t.Errorf("expected 3s timeout, got %s", cfg.Fetch.Timeout)
	}
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("ATT_DB_NAME", "hr")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Name != "hr" {
		t.Errorf("expected db name from env, got %q", cfg.Database.Name)
	}
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	path := writeConfig(t, "vision:\n  face_policy: loudest\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown face policy")
	}
}

func TestLoadONNXRequiresExperimentalFlag(t *testing.T) {
	if _, err := Load(writeConfig(t, "vision:\n  backend: onnx\n")); err == nil {
		t.Fatal("expected error for onnx backend without experimental_onnx")
	}

	cfg, err := Load(writeConfig(t, "vision:\n  backend: onnx\n  experimental_onnx: true\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vision.Backend != "onnx" || !cfg.Vision.ExperimentalONNX {
		t.Errorf("unexpected vision config %+v", cfg.Vision)
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5433, Name: "n", User: "u", Password: "p"}
	want := "postgres://u:p@h:5433/n?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestLoadFetchRetries(t *testing.T) {
	cfg, err := Load(writeConfig(t, "fetch:\n  timeout: 5s\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fetch.Retries != 2 {
		t.Errorf("expected 2 retries by default, got %d", cfg.Fetch.Retries)
	}

	t.Setenv("ATT_FETCH_RETRIES", "-1")
	cfg, err = Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fetch.Retries != -1 {
		t.Errorf("expected retries disabled, got %d", cfg.Fetch.Retries)
	}
}

func TestLoadKeepsExplicitZeroRetries(t *testing.T) {
	cfg, err := Load(writeConfig(t, "fetch:\n  retries: 0\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fetch.Retries != 0 {
		t.Errorf("expected explicit 0 retries to be kept, got %d", cfg.Fetch.Retries)
	}

	t.Setenv("ATT_FETCH_RETRIES", "0")
	cfg, err = Load(writeConfig(t, "fetch:\n  retries: 3\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fetch.Retries != 0 {
		t.Errorf("expected env override to 0, got %d", cfg.Fetch.Retries)
	}
}

func TestLoadMaxPixels(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vision.MaxPixels != 40_000_000 {
		t.Errorf("expected 40MP default, got %d", cfg.Vision.MaxPixels)
	}

	if _, err := Load(writeConfig(t, "vision:\n  max_pixels: -1\n")); err == nil {
		t.Fatal("expected error for negative max_pixels")
	}
}

func TestLoadRejectsLongPresignExpiry(t *testing.T) {
	if _, err := Load(writeConfig(t, "minio:\n  presign_expiry: 200h\n")); err == nil {
		t.Fatal("expected error for presign expiry above 7 days")
	}
}
