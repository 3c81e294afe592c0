package store

import (
	"database/sql"
	"io/fs"
	"strings"
	"testing"
)

func TestNullTenant(t *testing.T) {
	if v := nullTenant(nil); v != nil {
		t.Fatalf("nil tenant -> nil expected, got %v", v)
	}
	tid := "t1"
	if v := nullTenant(&tid); v != "t1" {
		t.Fatalf("want t1, got %v", v)
	}
}

func TestFromNullString(t *testing.T) {
	if v := fromNullString(sql.NullString{}); v != nil {
		t.Fatalf("invalid -> nil expected")
	}
	v := fromNullString(sql.NullString{String: "t1", Valid: true})
	if v == nil || *v != "t1" {
		t.Fatalf("want t1, got %v", v)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(names) < 2 {
		t.Fatalf("expected migrations, got %v", names)
	}
	body, err := migrationsFS.ReadFile("migrations/0001_webhooks.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(body), "webhook_deliveries") {
		t.Fatalf("delivery table missing from first migration")
	}
	// Stored payloads must round-trip byte for byte.
	if !strings.Contains(string(body), "payload         bytea NOT NULL") {
		t.Fatalf("delivery payload must be stored as raw bytes")
	}
}
