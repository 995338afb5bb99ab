package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestFromViperDefaults(t *testing.T) {
	cfg, err := FromViper(viper.New())
	if err != nil {
		t.Fatalf("FromViper returned unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"DatabaseDriver", cfg.DatabaseDriver, "postgres"},
		{"MigrationsDir", cfg.MigrationsDir, "./db/migrations"},
		{"RedisURL", cfg.RedisURL, ""},
		{"EventsPrefix", cfg.EventsPrefix, "kanban:events"},
		{"OrderOffset", cfg.OrderOffset, int64(100)},
		{"LockTTL", cfg.LockTTL, 10 * time.Second},
		{"LockWait", cfg.LockWait, 5 * time.Second},
		{"TxRetries", cfg.TxRetries, 3},
		{"LogLevel", cfg.LogLevel, "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
	if !strings.HasPrefix(cfg.DSN(), "postgres://") {
		t.Errorf("expected postgres DSN, got %q", cfg.DSN())
	}
}

func TestFromViperEnvOverrides(t *testing.T) {
	t.Setenv("KANBAN_DB_DRIVER", "sqlite")
	t.Setenv("KANBAN_SQLITE_PATH", "/tmp/board.db")
	t.Setenv("REDIS_URL", "redis://cache:6379/2")
	t.Setenv("KANBAN_ORDER_OFFSET", "1000")
	t.Setenv("KANBAN_LOCK_WAIT", "250ms")
	t.Setenv("KANBAN_TX_RETRIES", "7")

	cfg, err := FromViper(viper.New())
	if err != nil {
		t.Fatalf("FromViper returned unexpected error: %v", err)
	}
	if cfg.DSN() != "/tmp/board.db" {
		t.Errorf("DSN = %q, want sqlite path", cfg.DSN())
	}
	if cfg.RedisURL != "redis://cache:6379/2" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.OrderOffset != 1000 || cfg.LockWait != 250*time.Millisecond || cfg.TxRetries != 7 {
		t.Errorf("unexpected overrides: %+v", cfg)
	}
}

func TestFromViperReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kanban.yaml")
	contents := "db_driver: sqlite\nsqlite_path: ./board.db\norder_offset: 50\nlog_format: json\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("read config: %v", err)
	}

	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper returned unexpected error: %v", err)
	}
	if cfg.DatabaseDriver != "sqlite" || cfg.SQLitePath != "./board.db" || cfg.OrderOffset != 50 || cfg.LogFormat != "json" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestFromViperRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"driver", "db_driver", "mysql"},
		{"offset", "order_offset", 0},
		{"retries", "tx_retries", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.val)
			if _, err := FromViper(v); err == nil {
				t.Fatalf("expected error for %s=%v", tt.key, tt.val)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Config{LogLevel: "warn", LogFormat: "json"}.NewLogger(&buf)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "scope", "todo")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"scope":"todo"`) {
		t.Fatalf("unexpected output: %s", out)
	}

	if _, err := (Config{LogLevel: "loud"}).NewLogger(&buf); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := (Config{LogLevel: "info", LogFormat: "xml"}).NewLogger(&buf); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
