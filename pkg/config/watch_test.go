package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	if err := os.WriteFile(path, []byte("models:\n  - model_id: a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	reloads := make(chan *Config, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		_ = w.Watch(ctx, func(cfg *Config) { reloads <- cfg })
	}()
	defer w.Stop()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)

	updated := "models:\n  - model_id: a\n  - model_id: b\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloads:
		if len(cfg.Models) != 2 {
			t.Errorf("reloaded models = %d, want 2", len(cfg.Models))
		}
	case <-ctx.Done():
		t.Fatal("no reload observed")
	}
}

func TestWatcher_SkipsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	if err := os.WriteFile(path, []byte("models:\n  - model_id: a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	reloads := make(chan *Config, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		_ = w.Watch(ctx, func(cfg *Config) { reloads <- cfg })
	}()
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)

	// Invalid config must not reach the callback.
	if err := os.WriteFile(path, []byte("models:\n  - limiters: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloads:
		t.Errorf("invalid configuration delivered: %+v", cfg)
	case <-time.After(500 * time.Millisecond):
	}
}
