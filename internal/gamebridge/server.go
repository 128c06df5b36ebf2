package gamebridge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"linkbot/internal/config"
	"linkbot/internal/link"
	logx "linkbot/pkg/logx"
)

// Config controls the bridge HTTP server.
//
// A non-loopback Addr needs Token or AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Links is the registry view the bridge needs.
type Links interface {
	ChatIDFor(id link.GameID) (string, bool)
	GameIDsFor(chatID string) (link.Record, bool)
	UnlinkGame(id link.GameID)
}

type Codes interface {
	Put(code string, id link.GameID, ttl time.Duration) string
}

type Deps struct {
	Links    Links
	Codes    Codes
	Presence *Presence
	// CodeTTL is the default lifetime of posted codes.
	CodeTTL func() time.Duration
}

type Service struct {
	deps Deps
	log  logx.Logger

	mu      sync.Mutex
	cfg     Config
	srv     *http.Server
	addr    string
	changed chan struct{}
}

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Presence == nil {
		deps.Presence = NewPresence(0)
	}
	return &Service{cfg: cfg, deps: deps, log: log, changed: make(chan struct{}, 1)}
}

func (s *Service) Presence() *Presence { return s.deps.Presence }

// Addr is the bound listen address, empty while not serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Reconfigure applies cfg; a running server restarts when the listener
// settings changed.
func (s *Service) Reconfigure(cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	srv := s.srv
	s.mu.Unlock()
	if prev == cfg {
		return
	}
	select {
	case s.changed <- struct{}{}:
	default:
	}
	if srv != nil {
		_ = srv.Close()
	}
}

// Run serves until ctx is cancelled, following Reconfigure. It returns an
// error only when the listener cannot be opened, so a restart loop can back
// off and retry.
func (s *Service) Run(ctx context.Context) error {
	for {
		s.mu.Lock()
		cur := s.cfg
		s.mu.Unlock()

		if !cur.Enabled {
			select {
			case <-ctx.Done():
				return nil
			case <-s.changed:
				continue
			}
		}
		if err := s.serve(ctx, cur); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *Service) serve(ctx context.Context, cur Config) error {
	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = config.DefaultBridgeAddr
	}
	if !config.IsLoopbackAddr(addr) && cur.Token == "" {
		if !cur.AllowInsecure {
			s.log.Error("bridge refused to start: non-loopback addr requires token or allow_insecure", logx.String("addr", addr))
			select {
			case <-ctx.Done():
			case <-s.changed:
			}
			return nil
		}
		s.log.Warn("bridge running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("bridge listen failed", logx.String("addr", addr), logx.Err(err))
		return err
	}
	srv := &http.Server{
		Handler:      s.Handler(cur.Token),
		ReadTimeout:  cur.ReadTimeout,
		WriteTimeout: cur.WriteTimeout,
		IdleTimeout:  cur.IdleTimeout,
	}

	s.mu.Lock()
	s.srv = srv
	s.addr = ln.Addr().String()
	stale := s.cfg != cur
	select {
	case <-s.changed:
	default:
	}
	s.mu.Unlock()
	if stale {
		_ = srv.Close()
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		case <-stop:
		}
	}()

	s.log.Info("bridge started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cur.Token != ""))
	err = srv.Serve(ln)
	close(stop)

	s.mu.Lock()
	s.srv = nil
	s.addr = ""
	s.mu.Unlock()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("bridge server stopped with error", logx.Err(err))
		return err
	}
	s.log.Info("bridge stopped")
	return nil
}

// Handler builds the bridge routes guarded by token.
func (s *Service) Handler(token string) http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(token, h) }

	mux.HandleFunc("GET /healthz", wrap(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	mux.HandleFunc("POST /v1/codes", wrap(s.handlePostCode))
	mux.HandleFunc("POST /v1/presence", wrap(s.handlePresence))
	mux.HandleFunc("GET /v1/messages", wrap(s.handleMessages))
	mux.HandleFunc("GET /v1/links/{game_id}", wrap(s.handleGetLink))
	mux.HandleFunc("DELETE /v1/links/{game_id}", wrap(s.handleDeleteLink))
	return mux
}

func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		// Authorization: Bearer <token> or ?token=<token>
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(ah[len(p):]) == tok {
			h(w, r)
			return
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
