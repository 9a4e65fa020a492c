package testutil

import (
	"strings"
	"testing"
)

func TestNewSchemaNameIsValidIdentifier(t *testing.T) {
	name := newSchemaName("Approval Manager/Bulk-Submit!")
	if len(name) > 63 {
		t.Fatalf("schema name exceeds postgres identifier limit: %d", len(name))
	}
	if !strings.HasPrefix(name, "t_approval_manager_bulk_submit_") {
		t.Fatalf("unexpected schema name: %q", name)
	}
	if nonIdentChars.MatchString(name) {
		t.Fatalf("schema name contains invalid characters: %q", name)
	}
}

func TestNewSchemaNameEmptyPrefix(t *testing.T) {
	name := newSchemaName("!!!")
	if !strings.HasPrefix(name, "t_test_") {
		t.Fatalf("empty prefix must fall back to test: %q", name)
	}
}

func TestDSNWithSearchPath(t *testing.T) {
	out, err := dsnWithSearchPath("postgres://user:pw@localhost:5432/changegate?sslmode=disable", "t_abc")
	if err != nil {
		t.Fatalf("url DSN: %v", err)
	}
	if !strings.Contains(out, "search_path=t_abc") {
		t.Fatalf("search_path missing from %q", out)
	}

	out, err = dsnWithSearchPath("host=localhost dbname=changegate", "t_abc")
	if err != nil {
		t.Fatalf("keyword DSN: %v", err)
	}
	if !strings.HasSuffix(out, "search_path=t_abc") {
		t.Fatalf("search_path missing from %q", out)
	}

	out, err = dsnWithSearchPath("host=localhost search_path=old", "t_new")
	if err != nil {
		t.Fatalf("replace DSN: %v", err)
	}
	if !strings.Contains(out, "search_path=t_new") || strings.Contains(out, "old") {
		t.Fatalf("search_path not replaced in %q", out)
	}
}
