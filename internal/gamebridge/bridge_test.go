package gamebridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"linkbot/internal/link"
	"linkbot/internal/link/codes"
	logx "linkbot/pkg/logx"
)

var (
	javaID    = link.MustParseGameID("0f8fad5b-d9cb-469f-a165-70867728950e")
	bedrockID = link.MustParseGameID("00000000-0000-0000-0009-01f4a2b3c4d5")
)

type fakeLinks struct {
	mu     sync.Mutex
	byGame map[link.GameID]string
}

func (f *fakeLinks) ChatIDFor(id link.GameID) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byGame[id]
	return c, ok
}

func (f *fakeLinks) GameIDsFor(chatID string) (link.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.byGame {
		if c == chatID {
			return link.Single(id), true
		}
	}
	return link.Record{}, false
}

func (f *fakeLinks) UnlinkGame(id link.GameID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byGame, id)
}

func newTestBridge(t *testing.T, token string) (*Service, *codes.Table, *fakeLinks, *httptest.Server) {
	t.Helper()
	table := codes.New()
	links := &fakeLinks{byGame: map[link.GameID]string{javaID: "42"}}
	svc := New(Config{}, Deps{
		Links:    links,
		Codes:    table,
		Presence: NewPresence(2),
		CodeTTL:  func() time.Duration { return time.Minute },
	}, logx.Nop())
	ts := httptest.NewServer(svc.Handler(token))
	t.Cleanup(ts.Close)
	return svc, table, links, ts
}

func do(t *testing.T, method, url, body string, hdr ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestPresenceOutboxBounded(t *testing.T) {
	t.Parallel()
	p := NewPresence(2)
	if err := p.Notify(javaID, "x"); err != ErrNotConnected {
		t.Fatalf("Notify offline = %v", err)
	}
	p.Update(javaID, link.Profile{Name: "Steve"}, true)
	for _, m := range []string{"a", "b", "c"} {
		if err := p.Notify(javaID, m); err != nil {
			t.Fatal(err)
		}
	}
	if got := p.Drain(javaID); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("Drain = %v", got)
	}
	if p.Dropped() != 1 {
		t.Fatalf("Dropped = %d", p.Dropped())
	}
	if p.Drain(javaID) != nil {
		t.Fatal("second drain not empty")
	}

	p.Update(javaID, link.Profile{}, false)
	if p.IsConnected(javaID) || p.Online() != 0 {
		t.Fatal("still online")
	}
	prof, ok := p.Profile(javaID)
	if !ok || prof.Name != "Steve" {
		t.Fatalf("cached profile = %+v, %v", prof, ok)
	}
}

func TestPostCode(t *testing.T) {
	t.Parallel()
	_, table, _, ts := newTestBridge(t, "")

	resp := do(t, http.MethodPost, ts.URL+"/v1/codes", `{"code":"12-34","game_id":"`+bedrockID.String()+`"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body codeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Code != "1234" || body.ExpiresAt.IsZero() {
		t.Fatalf("body = %+v", body)
	}
	if id, ok := table.Lookup("1234"); !ok || id != bedrockID {
		t.Fatalf("Lookup = %v, %v", id, ok)
	}

	for _, bad := range []string{
		`{"code":"1234"}`,
		`{"code":"abc","game_id":"` + javaID.String() + `"}`,
		`{"code":"1234","game_id":"` + javaID.String() + `","ttl":"-1s"}`,
		`{"code":"1234","game_id":"` + javaID.String() + `","extra":1}`,
		`not json`,
	} {
		if resp := do(t, http.MethodPost, ts.URL+"/v1/codes", bad); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d", bad, resp.StatusCode)
		}
	}
}

func TestPresenceAndMessages(t *testing.T) {
	t.Parallel()
	svc, _, _, ts := newTestBridge(t, "")

	resp := do(t, http.MethodPost, ts.URL+"/v1/presence", `{"game_id":"`+javaID.String()+`","name":"Steve","display_name":"[VIP] Steve","online":true}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("presence status = %d", resp.StatusCode)
	}
	if !svc.Presence().IsConnected(javaID) {
		t.Fatal("player not connected")
	}
	_ = svc.Presence().Notify(javaID, "linked!")

	resp = do(t, http.MethodGet, ts.URL+"/v1/messages?game_id="+javaID.String(), "")
	var body messagesResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK || len(body.Messages) != 1 || body.Messages[0] != "linked!" {
		t.Fatalf("messages = %d %+v", resp.StatusCode, body)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/v1/messages?game_id=nope", ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", resp.StatusCode)
	}
}

func TestLinksEndpoints(t *testing.T) {
	t.Parallel()
	_, _, links, ts := newTestBridge(t, "")

	resp := do(t, http.MethodGet, ts.URL+"/v1/links/"+javaID.String(), "")
	var body linkResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK || body.ChatID != "42" || body.Kind != "java" || len(body.Linked) != 1 {
		t.Fatalf("get = %d %+v", resp.StatusCode, body)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/v1/links/"+bedrockID.String(), ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unlinked status = %d", resp.StatusCode)
	}

	if resp := do(t, http.MethodDelete, ts.URL+"/v1/links/"+javaID.String(), ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if _, ok := links.ChatIDFor(javaID); ok {
		t.Fatal("link survived delete")
	}
	if resp := do(t, http.MethodDelete, ts.URL+"/v1/links/"+javaID.String(), ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d", resp.StatusCode)
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()
	_, _, _, ts := newTestBridge(t, "s3cret")

	if resp := do(t, http.MethodGet, ts.URL+"/healthz", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/healthz", "", "Authorization", "Bearer wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/healthz", "", "Authorization", "Bearer s3cret"); resp.StatusCode != http.StatusOK {
		t.Fatalf("bearer status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/healthz?token=s3cret", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("query token status = %d", resp.StatusCode)
	}
}

func TestRunFollowsReconfigure(t *testing.T) {
	t.Parallel()
	svc := New(Config{}, Deps{Links: &fakeLinks{byGame: map[link.GameID]string{}}, Codes: codes.New()}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	waitAddr := func(want bool) string {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			if a := svc.Addr(); (a != "") == want {
				return a
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("addr presence never became %v", want)
		return ""
	}

	svc.Reconfigure(Config{Enabled: true, Addr: "127.0.0.1:0"})
	addr := waitAddr(true)
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}

	svc.Reconfigure(Config{Enabled: false, Addr: "127.0.0.1:0"})
	waitAddr(false)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
}
