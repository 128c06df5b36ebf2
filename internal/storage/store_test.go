package storage

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	logx "linkbot/pkg/logx"
)

func openTestStore(t *testing.T, driver string) Store {
	t.Helper()
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "store", "audit.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if st != nil || err != nil {
			t.Fatalf("Open(%q) = %v, %v", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
}

func TestRecentAuditNewestFirst(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			st := openTestStore(t, driver)
			ctx := context.Background()
			base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
			for i := 0; i < 5; i++ {
				err := st.AppendAudit(ctx, AuditEntry{
					At:     base.Add(time.Duration(i) * time.Minute),
					Action: ActionLink,
					ChatID: strconv.Itoa(100 + i),
					GameID: "0f8fad5b-d9cb-469f-a165-70867728950e",
					Kind:   "java",
				})
				if err != nil {
					t.Fatalf("AppendAudit: %v", err)
				}
			}

			got, err := st.RecentAudit(ctx, 3)
			if err != nil {
				t.Fatalf("RecentAudit: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("len = %d, want 3", len(got))
			}
			for i, want := range []string{"104", "103", "102"} {
				if got[i].ChatID != want {
					t.Fatalf("entry %d chat = %s, want %s", i, got[i].ChatID, want)
				}
			}
			if !got[0].At.Equal(base.Add(4 * time.Minute)) {
				t.Fatalf("At = %v", got[0].At)
			}

			all, err := st.RecentAudit(ctx, 50)
			if err != nil || len(all) != 5 {
				t.Fatalf("RecentAudit(50) = %d entries, %v", len(all), err)
			}
		})
	}
}

func TestFileStoreReopenKeepsHistory(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.json")
	cfg := Config{Driver: "file", Path: path}
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = st.AppendAudit(context.Background(), AuditEntry{Action: ActionUnlink, ChatID: "1", GameID: "g"})
	_ = st.Close()

	st, err = Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	got, err := st.RecentAudit(context.Background(), 10)
	if err != nil || len(got) != 1 || got[0].Action != ActionUnlink || got[0].At.IsZero() {
		t.Fatalf("got %+v, %v", got, err)
	}
}
