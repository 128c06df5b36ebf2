package link

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	logx "linkbot/pkg/logx"
)

var (
	java1    = MustParseGameID("0f8fad5b-d9cb-469f-a165-70867728950e")
	java2    = MustParseGameID("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	bedrock1 = MustParseGameID("00000000-0000-0000-0009-01f4a2b3c4d5")
	bedrock2 = MustParseGameID("00000000-0000-0000-0009-01f4a2b3c4d6")
)

type hookLog struct {
	mu     sync.Mutex
	events []string
}

func (h *hookLog) add(s string) {
	h.mu.Lock()
	h.events = append(h.events, s)
	h.mu.Unlock()
}

func (h *hookLog) BeforeUnlink(id GameID, chatID string) {
	h.add(fmt.Sprintf("before-unlink %s %s", chatID, id))
}

func (h *hookLog) AfterLink(chatID string, id GameID) {
	h.add(fmt.Sprintf("after-link %s %s", chatID, id))
}

func (h *hookLog) AfterUnlink(id GameID, chatID string) {
	h.add(fmt.Sprintf("after-unlink %s %s", chatID, id))
}

func (h *hookLog) take() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.events
	h.events = nil
	return out
}

func newTestRegistry(t *testing.T) (*Registry, *hookLog) {
	t.Helper()
	h := &hookLog{}
	return New(Config{Hooks: h}, logx.Nop()), h
}

func mustLink(t *testing.T, r *Registry, chatID string, id GameID) {
	t.Helper()
	if err := r.Link(chatID, id); err != nil {
		t.Fatalf("Link(%s, %s): %v", chatID, id, err)
	}
}

func equalEvents(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("hook events = %q, want %q", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("hook event %d = %q, want %q (all: %q)", i, got[i], want[i], got)
		}
	}
}

func TestGameIDKind(t *testing.T) {
	t.Parallel()
	if java1.Kind() != KindJava || java1.IsBedrock() {
		t.Fatalf("expected %s to be java", java1)
	}
	if bedrock1.Kind() != KindBedrock || !bedrock1.IsBedrock() {
		t.Fatalf("expected %s to be bedrock", bedrock1)
	}
	// A single set bit in the high half makes it Java.
	if MustParseGameID("00000000-0000-0001-0000-000000000000").IsBedrock() {
		t.Fatal("expected high bit set to classify as java")
	}
}

func TestLinkIndependentKeys(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)
	mustLink(t, r, "100", java1)
	mustLink(t, r, "200", java2)

	if got, ok := r.GameIDFor("100"); !ok || got != java1 {
		t.Fatalf("GameIDFor(100) = %s, %v", got, ok)
	}
	if got, ok := r.GameIDFor("200"); !ok || got != java2 {
		t.Fatalf("GameIDFor(200) = %s, %v", got, ok)
	}
	if got, ok := r.ChatIDFor(java2); !ok || got != "200" {
		t.Fatalf("ChatIDFor(java2) = %q, %v", got, ok)
	}
	if n := r.Count(); n != 2 {
		t.Fatalf("Count = %d, want 2", n)
	}
}

func TestLinkEvictsFromPreviousOwner(t *testing.T) {
	t.Parallel()
	r, h := newTestRegistry(t)
	mustLink(t, r, "100", java1)
	h.take()

	mustLink(t, r, "200", java1)

	if _, ok := r.GameIDFor("100"); ok {
		t.Fatal("expected 100 to lose its link")
	}
	if got, _ := r.GameIDFor("200"); got != java1 {
		t.Fatalf("GameIDFor(200) = %s, want %s", got, java1)
	}
	if r.Count() != 1 {
		t.Fatalf("Count = %d, want 1", r.Count())
	}
	equalEvents(t, h.take(), []string{
		"before-unlink 100 " + java1.String(),
		"after-unlink 100 " + java1.String(),
		"after-link 200 " + java1.String(),
	})
}

func TestLinkEvictsWholePair(t *testing.T) {
	t.Parallel()
	r, h := newTestRegistry(t)
	mustLink(t, r, "100", java1)
	mustLink(t, r, "100", bedrock1)
	h.take()

	mustLink(t, r, "200", java1)

	if _, ok := r.GameIDsFor("100"); ok {
		t.Fatal("expected the pair under 100 to be removed")
	}
	if _, ok := r.ChatIDFor(bedrock1); ok {
		t.Fatal("bedrock1 should no longer be linked")
	}
	if got, _ := r.ChatIDFor(java1); got != "200" {
		t.Fatalf("ChatIDFor(java1) = %q, want 200", got)
	}
	equalEvents(t, h.take(), []string{
		"before-unlink 100 " + java1.String(),
		"before-unlink 100 " + bedrock1.String(),
		"after-unlink 100 " + java1.String(),
		"after-unlink 100 " + bedrock1.String(),
		"after-link 200 " + java1.String(),
	})
}

func TestLinkMergesKinds(t *testing.T) {
	t.Parallel()
	for _, order := range [][2]GameID{{java1, bedrock1}, {bedrock1, java1}} {
		r, h := newTestRegistry(t)
		mustLink(t, r, "100", order[0])
		h.take()
		mustLink(t, r, "100", order[1])

		rec, ok := r.GameIDsFor("100")
		if !ok || !rec.IsDual() {
			t.Fatalf("expected dual record, got %v (ok=%v)", rec, ok)
		}
		j, _ := rec.Java()
		b, _ := rec.Bedrock()
		if j != java1 || b != bedrock1 {
			t.Fatalf("slots = (%s, %s), want (%s, %s)", j, b, java1, bedrock1)
		}
		if got, _ := r.GameIDFor("100"); got != java1 {
			t.Fatalf("GameIDFor = %s, want java slot", got)
		}
		if got, ok := r.ChatIDFor(bedrock1); !ok || got != "100" {
			t.Fatalf("ChatIDFor(bedrock1) = %q, %v", got, ok)
		}
		equalEvents(t, h.take(), []string{
			"after-link 100 " + java1.String(),
			"after-link 100 " + bedrock1.String(),
		})
		if r.Count() != 1 {
			t.Fatalf("Count = %d, want 1", r.Count())
		}
	}
}

func TestLinkSameKindOverwrites(t *testing.T) {
	t.Parallel()
	r, h := newTestRegistry(t)
	mustLink(t, r, "100", java1)
	h.take()
	mustLink(t, r, "100", java2)

	rec, _ := r.GameIDsFor("100")
	if rec.IsDual() || rec.Primary() != java2 {
		t.Fatalf("GameIDsFor = %v, want single %s", rec, java2)
	}
	if _, ok := r.ChatIDFor(java1); ok {
		t.Fatal("expected java1 to be unlinked")
	}
	equalEvents(t, h.take(), []string{
		"before-unlink 100 " + java1.String(),
		"after-unlink 100 " + java1.String(),
		"after-link 100 " + java2.String(),
	})
}

func TestLinkPairReplacesSlot(t *testing.T) {
	t.Parallel()
	r, h := newTestRegistry(t)
	mustLink(t, r, "100", java1)
	mustLink(t, r, "100", bedrock1)
	h.take()

	mustLink(t, r, "100", bedrock2)

	rec, _ := r.GameIDsFor("100")
	j, _ := rec.Java()
	b, _ := rec.Bedrock()
	if !rec.IsDual() || j != java1 || b != bedrock2 {
		t.Fatalf("GameIDsFor = %v, want [%s,%s]", rec, java1, bedrock2)
	}
	if _, ok := r.ChatIDFor(bedrock1); ok {
		t.Fatal("expected replaced bedrock id to be unlinked")
	}
	// Both slots are re-announced, including the untouched Java one.
	equalEvents(t, h.take(), []string{
		"before-unlink 100 " + bedrock1.String(),
		"after-unlink 100 " + bedrock1.String(),
		"after-link 100 " + java1.String(),
		"after-link 100 " + bedrock2.String(),
	})
}

func TestLinkRejectsBlankChatID(t *testing.T) {
	t.Parallel()
	r, h := newTestRegistry(t)
	for _, id := range []string{"", "   "} {
		if err := r.Link(id, java1); !errors.Is(err, ErrBlankChatID) {
			t.Fatalf("Link(%q) err = %v, want ErrBlankChatID", id, err)
		}
	}
	if err := r.Link("100", NilGameID); !errors.Is(err, ErrNilGameID) {
		t.Fatalf("Link(nil id) err = %v, want ErrNilGameID", err)
	}
	if r.Count() != 0 || len(h.take()) != 0 {
		t.Fatal("rejected links must not mutate or notify")
	}
}

func TestUnlinkChatPair(t *testing.T) {
	t.Parallel()
	r, h := newTestRegistry(t)
	mustLink(t, r, "100", java1)
	mustLink(t, r, "100", bedrock1)
	h.take()

	r.UnlinkChat("100")

	if r.Count() != 0 {
		t.Fatalf("Count = %d, want 0", r.Count())
	}
	for _, id := range []GameID{java1, bedrock1} {
		if _, ok := r.ChatIDFor(id); ok {
			t.Fatalf("reverse mapping for %s still present", id)
		}
	}
	equalEvents(t, h.take(), []string{
		"before-unlink 100 " + java1.String(),
		"before-unlink 100 " + bedrock1.String(),
		"after-unlink 100 " + java1.String(),
		"after-unlink 100 " + bedrock1.String(),
	})
}

func TestUnlinkGameRemovesPair(t *testing.T) {
	t.Parallel()
	r, h := newTestRegistry(t)
	mustLink(t, r, "100", java1)
	mustLink(t, r, "100", bedrock1)
	mustLink(t, r, "200", java2)
	h.take()

	r.UnlinkGame(bedrock1)

	if _, ok := r.GameIDsFor("100"); ok {
		t.Fatal("expected the pair under 100 to be removed")
	}
	if _, ok := r.ChatIDFor(java1); ok {
		t.Fatal("java1 should no longer be linked")
	}
	if r.Count() != 1 {
		t.Fatalf("Count = %d, want 1", r.Count())
	}
	equalEvents(t, h.take(), []string{
		"before-unlink 100 " + java1.String(),
		"before-unlink 100 " + bedrock1.String(),
		"after-unlink 100 " + java1.String(),
		"after-unlink 100 " + bedrock1.String(),
	})
}

func TestUnlinkUnknownIsNoop(t *testing.T) {
	t.Parallel()
	r, h := newTestRegistry(t)
	r.UnlinkChat("404")
	r.UnlinkGame(java1)
	if len(h.take()) != 0 {
		t.Fatal("expected no hook calls")
	}
}

func TestBatchQueriesOmitUnresolved(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)
	mustLink(t, r, "100", java1)
	mustLink(t, r, "200", bedrock1)

	chats := r.ChatIDsForMany([]GameID{java1, java2, bedrock1})
	if len(chats) != 2 || chats[java1] != "100" || chats[bedrock1] != "200" {
		t.Fatalf("ChatIDsForMany = %v", chats)
	}
	recs := r.GameIDsForMany([]string{"100", "300"})
	if len(recs) != 1 || recs["100"].Primary() != java1 {
		t.Fatalf("GameIDsForMany = %v", recs)
	}
	if !r.IsCachedChat("300") || !r.IsCachedGame(java2) {
		t.Fatal("IsCached must always report true")
	}
}

func TestHooksMayQueryRegistry(t *testing.T) {
	t.Parallel()
	var r *Registry
	var seen GameID
	r = New(Config{Hooks: HookFuncs{
		OnAfterLink: func(chatID string, id GameID) {
			seen, _ = r.GameIDFor(chatID)
		},
	}}, logx.Nop())

	mustLink(t, r, "100", java1)
	if seen != java1 {
		t.Fatalf("hook saw %s, want %s", seen, java1)
	}
}

func TestConcurrentLinksOnDisjointKeys(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)

	const workers, perWorker = 8, 100
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				n := w*perWorker + i
				id := MustParseGameID(fmt.Sprintf("%08x-0000-4000-8000-%012x", n+1, n))
				if err := r.Link(strconv.Itoa(n), id); err != nil {
					t.Errorf("Link: %v", err)
				}
				_ = r.Count()
			}
		}(w)
	}
	wg.Wait()

	if n := r.Count(); n != workers*perWorker {
		t.Fatalf("Count = %d, want %d", n, workers*perWorker)
	}
}
