package config_test

import (
	"testing"
	"time"

	"github.com/shopcast/social-publisher/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/posts")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreDriver != config.StorePostgres {
		t.Fatalf("expected postgres store, got %s", cfg.StoreDriver)
	}
	if cfg.QueueBackend != config.QueueMemory {
		t.Fatalf("expected memory queue, got %s", cfg.QueueBackend)
	}
	if cfg.WorkerSchedule != "@every 1m" {
		t.Fatalf("expected one minute cadence, got %s", cfg.WorkerSchedule)
	}
	if cfg.GraphAPIBaseURL != "https://graph.facebook.com/v18.0" {
		t.Fatalf("unexpected graph base url %s", cfg.GraphAPIBaseURL)
	}
	if cfg.PlatformTimeout != 15*time.Second {
		t.Fatalf("unexpected platform timeout %s", cfg.PlatformTimeout)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}, true},
		{"sqlite needs no url", map[string]string{"STORE_DRIVER": "sqlite"}, false},
		{"unknown store", map[string]string{"STORE_DRIVER": "mysql"}, true},
		{"unknown queue", map[string]string{"STORE_DRIVER": "sqlite", "QUEUE_BACKEND": "kafka"}, true},
		{"native delay on memory queue", map[string]string{"STORE_DRIVER": "sqlite", "QUEUE_NATIVE_DELAY": "true"}, true},
		{"native delay on redis queue", map[string]string{"STORE_DRIVER": "sqlite", "QUEUE_BACKEND": "redis", "QUEUE_NATIVE_DELAY": "true"}, false},
		{"zero workers", map[string]string{"STORE_DRIVER": "sqlite", "WORKERS": "0"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			if (err != nil) != tc.wantErr {
				t.Fatalf("wantErr=%v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoad_TrimsGraphBaseURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("GRAPH_API_BASE_URL", "http://127.0.0.1:9999/v18.0/")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GraphAPIBaseURL != "http://127.0.0.1:9999/v18.0" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.GraphAPIBaseURL)
	}
}
