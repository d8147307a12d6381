package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"piifinder/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteSelectorStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "selectors.db")
	store, err := NewSQLiteSelectorStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteSelectorStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteSelectorStore_CRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, sel := range []string{".customer-email", "#billing > p", ".customer-email"} {
		if err := store.Add(ctx, "shop.example.com", domain.StoredSelector{Selector: sel}); err != nil {
			t.Fatalf("Add(%q): %v", sel, err)
		}
	}
	if err := store.Add(ctx, "other.example.com", domain.StoredSelector{Selector: "input[name=\"email\"]", Type: "block"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// List keeps insertion order and drops duplicates.
	got, err := store.List(ctx, "shop.example.com")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].Selector != ".customer-email" || got[1].Selector != "#billing > p" {
		t.Fatalf("List = %+v", got)
	}
	if got[0].Type != domain.SelectorTypeBlock {
		t.Errorf("Type = %q, want %q", got[0].Type, domain.SelectorTypeBlock)
	}

	hosts, err := store.Hostnames(ctx)
	if err != nil {
		t.Fatalf("Hostnames: %v", err)
	}
	if len(hosts) != 2 || hosts[0] != "other.example.com" {
		t.Errorf("Hostnames = %v", hosts)
	}

	// Remove
	if err := store.Remove(ctx, "shop.example.com", ".customer-email"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := store.Remove(ctx, "shop.example.com", ".customer-email"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second Remove error = %v, want ErrNotFound", err)
	}

	// Clear only touches one hostname.
	if err := store.Clear(ctx, "shop.example.com"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := store.List(ctx, "shop.example.com"); len(got) != 0 {
		t.Errorf("after Clear, List = %+v", got)
	}
	if got, _ := store.List(ctx, "other.example.com"); len(got) != 1 {
		t.Errorf("other hostname lost selectors: %+v", got)
	}
}

func TestSQLiteSelectorStore_AddRejectsEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, "", domain.StoredSelector{Selector: "p"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty hostname error = %v", err)
	}
	if err := store.Add(ctx, "a.com", domain.StoredSelector{Selector: "  "}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty selector error = %v", err)
	}
}

func TestSQLiteSelectorStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "selectors.db")
	ctx := context.Background()

	store, err := NewSQLiteSelectorStore(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Add(ctx, "a.com", domain.StoredSelector{Selector: ".ssn"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	store.Close()

	store, err = NewSQLiteSelectorStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	got, err := store.List(ctx, "a.com")
	if err != nil || len(got) != 1 {
		t.Fatalf("List after reopen = %+v, %v", got, err)
	}
}

func TestHostnameFromURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://Shop.Example.com/cart?id=1", "shop.example.com"},
		{"http://localhost:8080/", "localhost"},
		{"shop.example.com/account", "shop.example.com"},
		{"https://[::1]:443/x", "::1"},
	}
	for _, tt := range tests {
		got, err := HostnameFromURL(tt.raw)
		if err != nil {
			t.Errorf("HostnameFromURL(%q) error: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("HostnameFromURL(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}

	for _, raw := range []string{"", "   ", "file:///etc/passwd"} {
		if _, err := HostnameFromURL(raw); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("HostnameFromURL(%q) error = %v, want ErrInvalidInput", raw, err)
		}
	}
}
