package history

import (
	"errors"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreAppendList(t *testing.T) {
	store := openStore(t)
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	for i, digest := range []string{"d1", "d2", "d3"} {
		rec := &Record{
			Site:       "example.com",
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			RootDigest: digest,
			Changed:    i,
		}
		if err := store.Append(rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	// A site sharing the prefix must not leak into the listing.
	if err := store.Append(&Record{Site: "example.com.au", Timestamp: base.Add(5 * time.Hour), RootDigest: "other"}); err != nil {
		t.Fatal(err)
	}

	records, err := store.List("example.com", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for i, want := range []string{"d3", "d2", "d1"} {
		if records[i].RootDigest != want {
			t.Errorf("records[%d].RootDigest = %q, want %q", i, records[i].RootDigest, want)
		}
	}
	if !records[0].Timestamp.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("Timestamp = %v", records[0].Timestamp)
	}

	limited, err := store.List("example.com", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 || limited[0].RootDigest != "d3" {
		t.Errorf("List(limit=2) = %+v", limited)
	}
}

func TestStoreLatest(t *testing.T) {
	store := openStore(t)

	if _, err := store.Latest("example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Latest on empty store: err = %v, want ErrNotFound", err)
	}

	now := time.Now()
	_ = store.Append(&Record{Site: "example.com", Timestamp: now.Add(-time.Minute), RootDigest: "old"})
	_ = store.Append(&Record{Site: "example.com", Timestamp: now, RootDigest: "new", PreviousDigest: "old", ArchiveID: "a1"})

	latest, err := store.Latest("example.com")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.RootDigest != "new" || latest.PreviousDigest != "old" || latest.ArchiveID != "a1" {
		t.Errorf("Latest = %+v", latest)
	}
}

func TestStoreSitesAndClear(t *testing.T) {
	store := openStore(t)
	now := time.Now()
	for _, site := range []string{"b.example.com", "a.example.com", "b.example.com"} {
		now = now.Add(time.Second)
		if err := store.Append(&Record{Site: site, Timestamp: now}); err != nil {
			t.Fatal(err)
		}
	}

	sites, err := store.Sites()
	if err != nil {
		t.Fatal(err)
	}
	if len(sites) != 2 || sites[0] != "a.example.com" || sites[1] != "b.example.com" {
		t.Errorf("Sites = %v", sites)
	}

	if err := store.Clear("b.example.com"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if records, _ := store.List("b.example.com", 0); len(records) != 0 {
		t.Errorf("records left after Clear: %d", len(records))
	}
	if records, _ := store.List("a.example.com", 0); len(records) != 1 {
		t.Errorf("other site affected by Clear: %d", len(records))
	}

	if err := store.Clear(""); err != nil {
		t.Fatalf("Clear all failed: %v", err)
	}
	if sites, _ := store.Sites(); len(sites) != 0 {
		t.Errorf("Sites after Clear all = %v", sites)
	}
}

func TestStoreAppendRequiresSite(t *testing.T) {
	if err := openStore(t).Append(&Record{}); err == nil {
		t.Error("Append without site should fail")
	}
}
