package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "linkbot/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
		bad  bool
	}{
		{in: "@every 5m", want: "@every 5m"},
		{in: "*/5 * * * *", want: "*/5 * * * *"},
		{in: "cron:@hourly", want: "@hourly"},
		{in: "5m", want: "@every 5m0s"},
		{in: "every: 90s", want: "@every 1m30s"},
		{in: "01:30", want: "@every 1h30m0s"},
		{in: "00:75", bad: true},
		{in: "0s", bad: true},
		{in: "", bad: true},
		{in: "soon", bad: true},
	}
	for _, tc := range cases {
		ps, err := ParseSchedule(tc.in)
		if tc.bad {
			if err == nil {
				t.Errorf("ParseSchedule(%q) = %+v, want error", tc.in, ps)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSchedule(%q): %v", tc.in, err)
			continue
		}
		if got := ps.CronSpec(); got != tc.want {
			t.Errorf("ParseSchedule(%q).CronSpec() = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAddRejects(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	noop := func(context.Context) error { return nil }
	if err := s.Add("", "@every 1m", 0, noop); err == nil {
		t.Fatal("blank name accepted")
	}
	if err := s.Add("x", "@every 1m", 0, nil); err == nil {
		t.Fatal("nil job accepted")
	}
	if err := s.Add("x", "61 * * * *", 0, noop); err == nil {
		t.Fatal("invalid cron accepted")
	}
}

func TestRunNowTimeoutAndErrors(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	boom := errors.New("boom")
	var calls atomic.Int32
	err := s.Add("save", "@every 1h", 50*time.Millisecond, func(ctx context.Context) error {
		calls.Add(1)
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return boom
	})
	if err != nil {
		t.Fatal(err)
	}
	ran, err := s.RunNow("save")
	if !ran || !errors.Is(err, boom) {
		t.Fatalf("RunNow = %v, %v", ran, err)
	}
	if ran, _ := s.RunNow("missing"); ran {
		t.Fatal("unknown job ran")
	}
	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Runs != 1 || snap[0].LastErr != "boom" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestRunNowRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	_ = s.Add("p", "@every 1h", 0, func(context.Context) error { panic("oops") })
	ran, err := s.RunNow("p")
	if !ran || err == nil {
		t.Fatalf("RunNow = %v, %v", ran, err)
	}
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	started := make(chan struct{})
	release := make(chan struct{})
	_ = s.Add("slow", "@every 1h", time.Second, func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	done := make(chan struct{})
	go func() {
		_, _ = s.RunNow("slow")
		close(done)
	}()
	<-started
	if ran, _ := s.RunNow("slow"); ran {
		t.Fatal("overlapping run executed")
	}
	close(release)
	<-done
	if snap := s.Snapshot(); snap[0].Skipped != 1 || snap[0].Runs != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestStartRegistersAndFires(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	fired := make(chan struct{}, 4)
	_ = s.Add("tick", "@every 1s", 0, func(context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	})
	_ = s.Add("b", "@every 1h", 0, func(context.Context) error { return nil })

	s.Start(context.Background())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	snap := s.Snapshot()
	if len(snap) != 2 || snap[0].Name != "b" || snap[1].Name != "tick" || snap[1].Next.IsZero() {
		t.Fatalf("snapshot = %+v", snap)
	}
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}
	if !s.Remove("tick") || s.Remove("tick") {
		t.Fatal("Remove should report presence once")
	}
}
