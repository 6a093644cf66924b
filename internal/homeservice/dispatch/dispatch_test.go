package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"fixitBack/internal/homeservice/broadcast"
	"fixitBack/internal/homeservice/matching"
)

type testLogger struct{}

func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Errorf(string, ...interface{}) {}

type stubMatcher struct {
	ids []int64
	err error
}

func (s stubMatcher) Match(ctx context.Context, bookingID int64) (matching.Result, error) {
	return matching.Result{TechnicianIDs: s.ids, Count: len(s.ids)}, s.err
}

type stubFanout struct {
	calls [][]int64
}

func (s *stubFanout) Broadcast(ctx context.Context, bookingID int64, ids []int64) (broadcast.Outcome, error) {
	s.calls = append(s.calls, ids)
	return broadcast.Outcome{Offered: ids, Broadcasted: true}, nil
}

func TestPipelineSkipsFanoutWithoutCandidates(t *testing.T) {
	fanout := &stubFanout{}
	p := NewPipeline(stubMatcher{}, fanout)

	out, err := p.Dispatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if len(out.Offered) != 0 || len(fanout.calls) != 0 {
		t.Fatalf("expected no fan-out, got %v", fanout.calls)
	}
}

func TestPipelineOffersCandidates(t *testing.T) {
	fanout := &stubFanout{}
	p := NewPipeline(stubMatcher{ids: []int64{4, 2}}, fanout)

	out, err := p.Dispatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if len(out.Offered) != 2 || len(fanout.calls) != 1 {
		t.Fatalf("expected one fan-out of two technicians, got %v", fanout.calls)
	}
}

func TestPipelineWrapsMatchError(t *testing.T) {
	boom := errors.New("redis down")
	p := NewPipeline(stubMatcher{err: boom}, &stubFanout{})

	if _, err := p.Dispatch(context.Background(), 1); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped match error, got %v", err)
	}
}

type stubLister struct {
	since, now time.Time
	ids        []int64
}

func (s *stubLister) ListForRedispatch(ctx context.Context, since, now time.Time, limit int) ([]int64, error) {
	s.since, s.now = since, now
	return s.ids, nil
}

type stubDispatcher struct {
	seen   []int64
	failOn int64
}

func (s *stubDispatcher) Dispatch(ctx context.Context, bookingID int64) (broadcast.Outcome, error) {
	s.seen = append(s.seen, bookingID)
	if bookingID == s.failOn {
		return broadcast.Outcome{}, errors.New("fan-out failed")
	}
	if bookingID%2 == 0 {
		return broadcast.Outcome{}, nil
	}
	return broadcast.Outcome{Offered: []int64{bookingID * 10}}, nil
}

func TestRedispatcherWindowAndErrors(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	lister := &stubLister{ids: []int64{1, 2, 3, 5}}
	pipeline := &stubDispatcher{failOn: 3}

	r := NewRedispatcher(lister, pipeline, testLogger{}, time.Second, 30*time.Minute)
	r.now = func() time.Time { return now }

	if got := r.runOnce(context.Background()); got != 2 {
		t.Fatalf("expected 2 bookings re-offered, got %d", got)
	}
	if !lister.since.Equal(now.Add(-30*time.Minute)) || !lister.now.Equal(now) {
		t.Fatalf("unexpected window %s..%s", lister.since, lister.now)
	}
	if len(pipeline.seen) != 4 {
		t.Fatalf("a failing booking must not stop the batch, saw %v", pipeline.seen)
	}
}

func TestRedispatcherRunStopsOnCancel(t *testing.T) {
	r := NewRedispatcher(&stubLister{}, &stubDispatcher{}, testLogger{}, time.Millisecond, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type stubExpirer struct {
	n   int64
	err error
	at  time.Time
}

func (s *stubExpirer) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	s.at = now
	return s.n, s.err
}

func TestSweeper(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	offers := &stubExpirer{n: 3}
	s := NewSweeper(offers, testLogger{}, time.Second)
	s.now = func() time.Time { return now }

	if got := s.sweep(context.Background()); got != 3 {
		t.Fatalf("expected 3 expired, got %d", got)
	}
	if !offers.at.Equal(now) {
		t.Fatalf("sweep used %s, want %s", offers.at, now)
	}

	offers.err = errors.New("db gone")
	if got := s.sweep(context.Background()); got != 0 {
		t.Fatalf("expected 0 on error, got %d", got)
	}
}
