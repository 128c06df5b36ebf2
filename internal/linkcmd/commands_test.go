package linkcmd

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"linkbot/internal/link"
	"linkbot/internal/link/codes"
	"linkbot/internal/storage"
	kit "linkbot/internal/transport"
	"linkbot/internal/transport/telegram/router"
	logx "linkbot/pkg/logx"
)

var (
	javaID    = link.MustParseGameID("0f8fad5b-d9cb-469f-a165-70867728950e")
	bedrockID = link.MustParseGameID("00000000-0000-0000-0009-01f4a2b3c4d5")
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type fakeUsers map[int64]kit.User

func (f fakeUsers) LookupUser(_ context.Context, id int64) (kit.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return kit.User{}, errors.New("no such user")
}

type fakeAudit struct{ entries []storage.AuditEntry }

func (f *fakeAudit) RecentAudit(_ context.Context, limit int) ([]storage.AuditEntry, error) {
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

type fixture struct {
	mod   *Module
	reg   *link.Registry
	codes *codes.Table
	out   *fakeAdapter
}

func newFixture(t *testing.T, audit AuditReader) *fixture {
	t.Helper()
	reg := link.New(link.Config{Path: filepath.Join(t.TempDir(), "links.json")}, logx.Nop())
	table := codes.New()
	dir := Directory{Users: fakeUsers{7: {ID: 7, Username: "alice"}}}
	red := link.NewRedeemer(link.RedeemerConfig{Links: reg, Codes: table, Users: dir}, logx.Nop())
	mod := New(Deps{
		Links:        reg,
		Redeemer:     red,
		Users:        dir,
		Audit:        audit,
		PendingCodes: table.Len,
	}, 3, logx.Nop())
	return &fixture{mod: mod, reg: reg, codes: table, out: &fakeAdapter{}}
}

func (f *fixture) run(t *testing.T, name string, from int64, args ...string) string {
	t.Helper()
	var h router.HandlerFunc
	if name == "" {
		h = f.mod.Fallback()
	} else {
		for _, c := range f.mod.Commands() {
			if c.Name == name {
				h = c.Handle
			}
		}
	}
	if h == nil {
		t.Fatalf("no command %q", name)
	}
	req := &router.Request{
		Message: &kit.Message{ID: 1, ChatID: from, FromID: from, IsPrivate: true},
		Chat:    kit.ChatTarget{ChatID: from},
		FromID:  from,
		Command: name,
		Args:    args,
		ArgText: strings.Join(args, " "),
		Adapter: f.out,
	}
	if err := h(context.Background(), req); err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return f.out.last()
}

func TestLinkRedeemsCode(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.codes.Put("4821", javaID, time.Minute)

	got := f.run(t, "link", 7, "4821")
	if !strings.Contains(got, "@alice") || !strings.Contains(got, javaID.String()) {
		t.Fatalf("reply = %q", got)
	}
	if id, ok := f.reg.GameIDFor("7"); !ok || id != javaID {
		t.Fatalf("GameIDFor = %v, %v", id, ok)
	}
	if got := f.run(t, "whoami", 7); !strings.Contains(got, "java") || !strings.Contains(got, javaID.String()) {
		t.Fatalf("whoami = %q", got)
	}
}

func TestLinkUsage(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	if got := f.run(t, "link", 7); !strings.HasPrefix(got, "usage:") {
		t.Fatalf("reply = %q", got)
	}
}

func TestLinkAttemptsAreThrottled(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	for i := 0; i < 3; i++ {
		if got := f.run(t, "link", 9, "0000"); strings.HasPrefix(got, "Too many") {
			t.Fatalf("attempt %d throttled early", i)
		}
	}
	if got := f.run(t, "link", 9, "0000"); !strings.HasPrefix(got, "Too many") {
		t.Fatalf("fourth attempt = %q", got)
	}
	// other users keep their own budget
	if got := f.run(t, "link", 10, "0000"); strings.HasPrefix(got, "Too many") {
		t.Fatal("unrelated user throttled")
	}
}

func TestFallbackRedeemsDigits(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.codes.Put("1234", bedrockID, time.Minute)

	if got := f.run(t, "", 7, "hello"); !strings.Contains(got, "/help") {
		t.Fatalf("no-digit reply = %q", got)
	}
	f.run(t, "", 7, "my", "code", "is", "12-34")
	if rec, ok := f.reg.GameIDsFor("7"); !ok || rec.Primary() != bedrockID {
		t.Fatalf("record = %v, %v", rec, ok)
	}
}

func TestUnlink(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	if got := f.run(t, "unlink", 7); !strings.Contains(got, "no linked") {
		t.Fatalf("reply = %q", got)
	}
	if err := f.reg.Link("7", javaID); err != nil {
		t.Fatal(err)
	}
	if got := f.run(t, "unlink", 7); !strings.HasPrefix(got, "Unlinked java") {
		t.Fatalf("reply = %q", got)
	}
	if _, ok := f.reg.GameIDFor("7"); ok {
		t.Fatal("still linked")
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	_ = f.reg.Link("7", javaID)
	_ = f.reg.Link("7", bedrockID)

	if got := f.run(t, "lookup", 1, bedrockID.String()); !strings.Contains(got, "@alice (7)") || !strings.Contains(got, "bedrock") {
		t.Fatalf("by game id = %q", got)
	}
	if got := f.run(t, "lookup", 1, "7"); !strings.Contains(got, "java") || !strings.Contains(got, " and bedrock") {
		t.Fatalf("by chat id = %q", got)
	}
	if got := f.run(t, "lookup", 1, "8"); !strings.Contains(got, "no linked") {
		t.Fatalf("unknown chat = %q", got)
	}
	if got := f.run(t, "lookup", 1, "bob"); !strings.HasPrefix(got, "not a game id") {
		t.Fatalf("garbage = %q", got)
	}
}

func TestLinksStatsAndSave(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	_ = f.reg.Link("7", javaID)
	f.codes.Put("5555", bedrockID, time.Minute)

	got := f.run(t, "links", 1)
	if !strings.Contains(got, "linked accounts: 1") || !strings.Contains(got, "pending codes: 1") {
		t.Fatalf("stats = %q", got)
	}
	if got := f.run(t, "links", 1, "save"); !strings.HasPrefix(got, "saved 1 links") {
		t.Fatalf("save = %q", got)
	}

	re := link.New(link.Config{Path: f.reg.Path()}, logx.Nop())
	if id, ok := re.GameIDFor("7"); !ok || id != javaID {
		t.Fatalf("reloaded = %v, %v", id, ok)
	}
}

func TestLinkLog(t *testing.T) {
	t.Parallel()
	if got := newFixture(t, nil).run(t, "linklog", 1); !strings.Contains(got, "disabled") {
		t.Fatalf("disabled reply = %q", got)
	}

	audit := &fakeAudit{entries: []storage.AuditEntry{
		{At: time.Now(), Action: storage.ActionUnlink, ChatID: "7", GameID: javaID.String(), Kind: "java"},
		{At: time.Now(), Action: storage.ActionLink, ChatID: "7", GameID: javaID.String(), Kind: "java"},
	}}
	f := newFixture(t, audit)
	got := f.run(t, "linklog", 1, "1")
	if strings.Count(got, "\n") != 0 || !strings.Contains(got, "unlink") {
		t.Fatalf("linklog 1 = %q", got)
	}
	if got := f.run(t, "linklog", 1); strings.Count(got, "\n") != 1 {
		t.Fatalf("linklog = %q", got)
	}
	if got := f.run(t, "linklog", 1, "x"); !strings.HasPrefix(got, "usage:") {
		t.Fatalf("bad arg = %q", got)
	}
}

func TestOwnerCommandsAreRestricted(t *testing.T) {
	t.Parallel()
	owner := map[string]bool{"links": true, "lookup": true, "linklog": true}
	for _, c := range newFixture(t, nil).mod.Commands() {
		if got := c.Access == router.AccessOwnerOnly; got != owner[c.Name] {
			t.Errorf("%s owner-only = %v", c.Name, got)
		}
	}
}

func TestAttemptLimiterSweepsIdle(t *testing.T) {
	t.Parallel()
	now := time.Unix(1_700_000_000, 0)
	l := newAttemptLimiter(2)
	l.now = func() time.Time { return now }
	l.sweepAt = 2
	l.allow(1)
	l.allow(2)
	now = now.Add(2 * time.Minute)
	l.allow(3)
	if len(l.users) != 1 {
		t.Fatalf("users after sweep = %d", len(l.users))
	}
	l.setRate(4)
	if len(l.users) != 0 || l.perMin != 4 {
		t.Fatalf("setRate kept %d limiters", len(l.users))
	}
}
