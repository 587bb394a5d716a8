package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSaveAndGetEntry(t *testing.T) {
	s := openTestStore(t)

	id, err := s.SaveEntry(Entry{
		Date:    date("2024-03-01"),
		Content: "Went hiking with Ada. The trail was muddy but worth it.",
		Tags:    "hiking, ada",
	})
	if err != nil {
		t.Fatalf("SaveEntry: %v", err)
	}
	if id == 0 {
		t.Fatal("SaveEntry returned zero id")
	}

	got, err := s.GetEntry(id)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.Content != "Went hiking with Ada. The trail was muddy but worth it." {
		t.Errorf("Content = %q", got.Content)
	}
	if !got.Date.Equal(date("2024-03-01")) {
		t.Errorf("Date = %v, want 2024-03-01", got.Date)
	}
	if got.Tags != "hiking, ada" {
		t.Errorf("Tags = %q", got.Tags)
	}
}

func TestSaveEntry_DuplicateDateFails(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.SaveEntry(Entry{Date: date("2024-03-01"), Content: "first"}); err != nil {
		t.Fatalf("first SaveEntry: %v", err)
	}
	if _, err := s.SaveEntry(Entry{Date: date("2024-03-01"), Content: "second"}); err == nil {
		t.Fatal("second SaveEntry with same date should fail")
	}
}

func TestHasEntryForDate(t *testing.T) {
	s := openTestStore(t)

	exists, err := s.HasEntryForDate(date("2024-03-01"))
	if err != nil {
		t.Fatalf("HasEntryForDate: %v", err)
	}
	if exists {
		t.Error("expected no entry before insert")
	}

	if _, err := s.SaveEntry(Entry{Date: date("2024-03-01"), Content: "x"}); err != nil {
		t.Fatalf("SaveEntry: %v", err)
	}

	exists, err = s.HasEntryForDate(date("2024-03-01"))
	if err != nil {
		t.Fatalf("HasEntryForDate: %v", err)
	}
	if !exists {
		t.Error("expected entry after insert")
	}
}

func TestListEntries_NewestFirst(t *testing.T) {
	s := openTestStore(t)

	for _, d := range []string{"2024-03-01", "2024-03-03", "2024-03-02"} {
		if _, err := s.SaveEntry(Entry{Date: date(d), Content: "entry " + d}); err != nil {
			t.Fatalf("SaveEntry(%s): %v", d, err)
		}
	}

	entries, err := s.ListEntries()
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	want := []string{"2024-03-03", "2024-03-02", "2024-03-01"}
	for i, w := range want {
		if got := entries[i].Date.Format("2006-01-02"); got != w {
			t.Errorf("entries[%d].Date = %s, want %s", i, got, w)
		}
	}
}

func TestGetEntriesByIDs(t *testing.T) {
	s := openTestStore(t)

	id1, _ := s.SaveEntry(Entry{Date: date("2024-03-01"), Content: "one"})
	id2, _ := s.SaveEntry(Entry{Date: date("2024-03-02"), Content: "two"})
	if _, err := s.SaveEntry(Entry{Date: date("2024-03-03"), Content: "three"}); err != nil {
		t.Fatalf("SaveEntry: %v", err)
	}

	entries, err := s.GetEntriesByIDs(context.Background(), []int64{id1, id2})
	if err != nil {
		t.Fatalf("GetEntriesByIDs: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	entries, err = s.GetEntriesByIDs(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetEntriesByIDs(nil): %v", err)
	}
	if entries != nil {
		t.Errorf("GetEntriesByIDs(nil) = %v, want nil", entries)
	}
}

func TestDeleteEntry(t *testing.T) {
	s := openTestStore(t)

	id, _ := s.SaveEntry(Entry{Date: date("2024-03-01"), Content: "x"})
	if err := s.DeleteEntry(id); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if _, err := s.GetEntry(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEntry after delete: %v, want ErrNotFound", err)
	}
	if err := s.DeleteEntry(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteEntry: %v, want ErrNotFound", err)
	}
}

func TestSearchEntries(t *testing.T) {
	s := openTestStore(t)

	s.SaveEntry(Entry{Date: date("2024-03-01"), Content: "Coffee with Maria downtown"})
	s.SaveEntry(Entry{Date: date("2024-03-02"), Content: "Long run along the river"})
	s.SaveEntry(Entry{Date: date("2024-03-03"), Content: "More coffee, more code"})

	results, err := s.SearchEntries("coffee", 10)
	if err != nil {
		t.Fatalf("SearchEntries: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	// Newest first.
	if results[0].Date.Format("2006-01-02") != "2024-03-03" {
		t.Errorf("results[0].Date = %v, want 2024-03-03", results[0].Date)
	}
}

func TestCountEntries(t *testing.T) {
	s := openTestStore(t)

	count, err := s.CountEntries()
	if err != nil {
		t.Fatalf("CountEntries: %v", err)
	}
	if count != 0 {
		t.Errorf("empty store count = %d, want 0", count)
	}

	s.SaveEntry(Entry{Date: date("2024-03-01"), Content: "x"})
	count, _ = s.CountEntries()
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestMigrationsApplied(t *testing.T) {
	s := openTestStore(t)

	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&n); err != nil {
		t.Fatalf("querying schema_version: %v", err)
	}
	if n == 0 {
		t.Error("no migrations recorded")
	}
}
