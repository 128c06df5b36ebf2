package codes

import (
	"testing"
	"time"

	"linkbot/internal/link"
)

var (
	javaID    = link.MustParseGameID("0f8fad5b-d9cb-469f-a165-70867728950e")
	bedrockID = link.MustParseGameID("00000000-0000-0000-0009-01f4a2b3c4d5")
)

func newClockTable() (*Table, *time.Time) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	t := New()
	t.now = func() time.Time { return now }
	return t, &now
}

func TestPutLookupConsume(t *testing.T) {
	t.Parallel()
	tbl, _ := newClockTable()
	if got := tbl.Put("12-34", javaID, time.Minute); got != "1234" {
		t.Fatalf("Put = %q, want 1234", got)
	}
	if id, ok := tbl.Lookup("1234"); !ok || id != javaID {
		t.Fatalf("Lookup = %s, %v", id, ok)
	}
	if id, ok := tbl.Consume("1234"); !ok || id != javaID {
		t.Fatalf("Consume = %s, %v", id, ok)
	}
	if _, ok := tbl.Consume("1234"); ok {
		t.Fatal("second Consume should fail")
	}
	if tbl.Len() != 0 {
		t.Fatalf("Len = %d", tbl.Len())
	}
}

func TestPutReplacesOlderCodeForSameID(t *testing.T) {
	t.Parallel()
	tbl, _ := newClockTable()
	tbl.Put("1111", javaID, 0)
	tbl.Put("2222", javaID, 0)
	if _, ok := tbl.Lookup("1111"); ok {
		t.Fatal("old code should be dropped")
	}
	tbl.Put("2222", bedrockID, 0)
	if id, _ := tbl.Lookup("2222"); id != bedrockID {
		t.Fatalf("Lookup = %s, want reassigned id", id)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tbl.Len())
	}
}

func TestPutRejectsEmpty(t *testing.T) {
	t.Parallel()
	tbl, _ := newClockTable()
	if got := tbl.Put("abc", javaID, 0); got != "" {
		t.Fatalf("Put = %q", got)
	}
	if got := tbl.Put("1234", link.NilGameID, 0); got != "" {
		t.Fatalf("Put = %q", got)
	}
}

func TestExpiry(t *testing.T) {
	t.Parallel()
	tbl, now := newClockTable()
	tbl.Put("1234", javaID, time.Minute)
	tbl.Put("5678", bedrockID, time.Hour)

	*now = now.Add(2 * time.Minute)
	if _, ok := tbl.Lookup("1234"); ok {
		t.Fatal("expired code must not resolve")
	}
	if n := tbl.Prune(); n != 1 {
		t.Fatalf("Prune = %d, want 1", n)
	}
	if _, ok := tbl.Lookup("5678"); !ok {
		t.Fatal("live code was pruned")
	}
}
