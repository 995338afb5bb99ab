package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStoriesMigrationIndexesScopeOrder(t *testing.T) {
	migrationPath := filepath.Join("..", "..", "db", "migrations", "0002_stories.up.sql")
	sqlBytes, err := os.ReadFile(migrationPath)
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(sqlBytes)

	expectedSnippets := []string{
		"sort_order BIGINT NOT NULL",
		"version INTEGER NOT NULL DEFAULT 1",
		"UNIQUE (project_id, ref)",
		"ON stories (status_id, sort_order)",
	}
	for _, snippet := range expectedSnippets {
		if !strings.Contains(sqlText, snippet) {
			t.Fatalf("expected migration to contain %q", snippet)
		}
	}
	if strings.Contains(sqlText, "UNIQUE (status_id, sort_order)") {
		t.Fatalf("sort_order must not be unique within a status; renumbering writes pass through ties")
	}
}
