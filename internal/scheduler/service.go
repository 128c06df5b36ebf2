package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "linkbot/pkg/logx"
)

// DefaultTimeout bounds a run when the job was added with timeout <= 0.
const DefaultTimeout = 30 * time.Second

type Config struct {
	Timezone string // IANA name; empty means local time
}

type Job func(ctx context.Context) error

type jobDef struct {
	name    string
	spec    string
	timeout time.Duration
	run     Job
	entryID cron.EntryID

	running atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64
	lastErr atomic.Pointer[string]
}

type JobInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	Runs    uint64
	Skipped uint64
	LastErr string
}

type Service struct {
	log    logx.Logger
	parser cron.Parser

	mu   sync.Mutex
	cfg  Config
	loc  *time.Location
	c    *cron.Cron
	ctx  context.Context
	jobs map[string]*jobDef
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log: log,
		cfg: cfg,
		// SecondOptional accepts both 5- and 6-field expressions.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:   map[string]*jobDef{},
	}
}

// Add registers job under name, replacing a job of the same name. Jobs added
// before Start are registered when it runs.
func (s *Service) Add(name, schedule string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	spec := ps.CronSpec()
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &jobDef{name: name, spec: spec, timeout: timeout, run: job}
	s.jobs[name] = d
	if s.c != nil {
		if err := s.registerLocked(d); err != nil {
			return err
		}
	}
	s.log.Debug("job registered", logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout))
	return nil
}

// Remove reports whether a job was registered under name.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	d, ok := s.jobs[name]
	if !ok {
		return false
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	delete(s.jobs, name)
	return true
}

func (s *Service) registerLocked(d *jobDef) error {
	id, err := s.c.AddFunc(d.spec, func() { s.fire(d) })
	if err != nil {
		s.log.Error("job register failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		return err
	}
	d.entryID = id
	return nil
}

// Apply restarts the cron loop when the timezone changed.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := strings.TrimSpace(s.cfg.Timezone) != strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if s.c == nil || !changed {
		return
	}
	old := s.c
	old.Stop()
	s.startLocked()
	s.log.Info("timezone changed, schedules re-registered", logx.String("tz", s.loc.String()))
}

// Start begins triggering. Runs get a context derived from ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx = ctx
	s.startLocked()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

func (s *Service) startLocked() {
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, d := range s.jobs {
		_ = s.registerLocked(d)
	}
	s.c.Start()
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Stop waits for running jobs until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	for _, d := range s.jobs {
		d.entryID = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; jobs still running")
	}
	s.log.Info("scheduler stopped")
}

// RunNow runs the named job synchronously, honouring the overlap rule.
// ran is false when the job is unknown or already running.
func (s *Service) RunNow(name string) (ran bool, err error) {
	s.mu.Lock()
	d := s.jobs[name]
	s.mu.Unlock()
	if d == nil {
		return false, nil
	}
	return s.execute(d)
}

func (s *Service) fire(d *jobDef) {
	if ran, _ := s.execute(d); !ran {
		s.log.Debug("job skipped, previous run active", logx.String("name", d.name))
	}
}

func (s *Service) execute(d *jobDef) (bool, error) {
	if !d.running.CompareAndSwap(false, true) {
		d.skipped.Add(1)
		return false, nil
	}
	defer d.running.Store(false)

	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("job panic", logx.String("name", d.name), logx.Any("panic", r), logx.Stack(logx.StackTrace(3, 16)))
			}
		}()
		return d.run(ctx)
	}()
	d.runs.Add(1)
	if err != nil {
		msg := err.Error()
		d.lastErr.Store(&msg)
		s.log.Warn("job failed", logx.String("name", d.name), logx.Duration("took", time.Since(start)), logx.Err(err))
		return true, err
	}
	d.lastErr.Store(nil)
	s.log.Debug("job done", logx.String("name", d.name), logx.Duration("took", time.Since(start)))
	return true, nil
}

// Snapshot lists jobs sorted by name.
func (s *Service) Snapshot() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, d := range s.jobs {
		it := JobInfo{
			Name:    d.name,
			Spec:    d.spec,
			Timeout: d.timeout,
			Runs:    d.runs.Load(),
			Skipped: d.skipped.Load(),
		}
		if p := d.lastErr.Load(); p != nil {
			it.LastErr = *p
		}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
