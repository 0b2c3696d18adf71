package job_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	arcgis "github.com/crumplecup/arcgis-sub002"
	"github.com/crumplecup/arcgis-sub002/job"
	"github.com/crumplecup/arcgis-sub002/ratelimit"
)

// scriptedService replays a fixed sequence of status observations.
// Once the script is exhausted the final entry repeats.
type scriptedService struct {
	mu     sync.Mutex
	script []func() (job.StatusInfo, error)
	calls  int
}

func (s *scriptedService) GetStatus(_ context.Context, _ job.Handle) (job.StatusInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	s.calls++
	return s.script[idx]()
}

func (s *scriptedService) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func status(st job.Status) func() (job.StatusInfo, error) {
	return func() (job.StatusInfo, error) { return job.StatusInfo{Status: st}, nil }
}

func failure(kind arcgis.Kind) func() (job.StatusInfo, error) {
	return func() (job.StatusInfo, error) {
		return job.StatusInfo{}, &arcgis.Error{Kind: kind, Op: "job.status"}
	}
}

func TestPoller_ReturnsFirstTerminalStatus(t *testing.T) {
	// Backend reports executing on polls 1-2, succeeded on poll 3.
	svc := &scriptedService{script: []func() (job.StatusInfo, error){
		status(job.StatusExecuting),
		status(job.StatusExecuting),
		status(job.StatusSucceeded),
	}}
	p := job.NewPoller(job.Policy{
		BaseInterval: 100 * time.Millisecond,
		MaxInterval:  time.Second,
		Deadline:     10 * time.Second,
	}, job.WithPollerLogger(testLogger()))

	start := time.Now()
	got, err := p.PollUntilComplete(context.Background(), svc, job.Handle{ID: "j-1"})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("PollUntilComplete: %v", err)
	}
	if got != job.StatusSucceeded {
		t.Errorf("status = %s, want succeeded", got)
	}
	if svc.callCount() != 3 {
		t.Errorf("status calls = %d, want exactly 3", svc.callCount())
	}
	// Waits: 100ms after poll 1, 200ms after poll 2.
	if elapsed < 300*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 300ms", elapsed)
	}
}

func TestPoller_DeadlineYieldsTimeout(t *testing.T) {
	svc := &scriptedService{script: []func() (job.StatusInfo, error){
		status(job.StatusExecuting),
	}}
	deadline := 500 * time.Millisecond
	p := job.NewPoller(job.Policy{
		BaseInterval: 100 * time.Millisecond,
		MaxInterval:  time.Second,
		Deadline:     deadline,
	}, job.WithPollerLogger(testLogger()))

	start := time.Now()
	last, err := p.PollUntilComplete(context.Background(), svc, job.Handle{ID: "j-1"})
	elapsed := time.Since(start)

	if got := arcgis.KindOf(err); got != arcgis.KindTimeout {
		t.Fatalf("KindOf = %v, want KindTimeout (err %v)", got, err)
	}
	var te *job.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("error %v should carry *TimeoutError", err)
	}
	if te.LastStatus != job.StatusExecuting {
		t.Errorf("TimeoutError.LastStatus = %s, want executing", te.LastStatus)
	}
	if last != job.StatusExecuting {
		t.Errorf("returned last status = %s, want executing", last)
	}
	// Timeout lands in [deadline, deadline + one interval). The next
	// interval at that point was 400ms; allow scheduling slack.
	if elapsed < deadline {
		t.Errorf("elapsed = %v, want >= %v", elapsed, deadline)
	}
	if elapsed > deadline+700*time.Millisecond {
		t.Errorf("elapsed = %v, want < deadline + one interval", elapsed)
	}
	// The remote job was left alone: polling stopped, nothing else.
	calls := svc.callCount()
	if calls < 3 || calls > 4 {
		t.Errorf("status calls = %d, want 3 or 4", calls)
	}
}

func TestPoller_ContextCancelAbortsWaitLoopOnly(t *testing.T) {
	svc := &scriptedService{script: []func() (job.StatusInfo, error){
		status(job.StatusExecuting),
	}}
	p := job.NewPoller(job.Policy{
		BaseInterval: time.Second,
		MaxInterval:  time.Second,
		Deadline:     time.Minute,
	}, job.WithPollerLogger(testLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := p.PollUntilComplete(ctx, svc, job.Handle{ID: "j-1"})
	elapsed := time.Since(start)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	// The abort is local and immediate: no full backoff interval was
	// waited out, and no further status calls were made.
	if elapsed > 500*time.Millisecond {
		t.Errorf("elapsed = %v, cooperative cancel should not wait out the interval", elapsed)
	}
	if svc.callCount() != 1 {
		t.Errorf("status calls = %d, want 1", svc.callCount())
	}
}

func TestPoller_DiscardsStaleReads(t *testing.T) {
	// A stale response observing an earlier state-machine position
	// must not overwrite a later one.
	svc := &scriptedService{script: []func() (job.StatusInfo, error){
		status(job.StatusExecuting),
		status(job.StatusSubmitted), // stale
		status(job.StatusSucceeded),
	}}
	p := job.NewPoller(job.Policy{
		BaseInterval: time.Millisecond,
		MaxInterval:  10 * time.Millisecond,
		Deadline:     time.Minute,
	}, job.WithPollerLogger(testLogger()))

	got, err := p.PollUntilComplete(context.Background(), svc, job.Handle{ID: "j-1"})
	if err != nil {
		t.Fatalf("PollUntilComplete: %v", err)
	}
	if got != job.StatusSucceeded {
		t.Errorf("status = %s, want succeeded", got)
	}
	if svc.callCount() != 3 {
		t.Errorf("status calls = %d, want 3", svc.callCount())
	}
}

func TestPoller_AbsorbsRetryableStatusFailures(t *testing.T) {
	svc := &scriptedService{script: []func() (job.StatusInfo, error){
		failure(arcgis.KindNetwork),
		failure(arcgis.KindRateLimit),
		status(job.StatusSucceeded),
	}}
	p := job.NewPoller(job.Policy{
		BaseInterval: time.Millisecond,
		MaxInterval:  10 * time.Millisecond,
		Deadline:     time.Minute,
	}, job.WithPollerLogger(testLogger()))

	got, err := p.PollUntilComplete(context.Background(), svc, job.Handle{ID: "j-1"})
	if err != nil {
		t.Fatalf("PollUntilComplete: %v", err)
	}
	if got != job.StatusSucceeded {
		t.Errorf("status = %s, want succeeded", got)
	}
}

func TestPoller_SurfacesTerminalErrorImmediately(t *testing.T) {
	svc := &scriptedService{script: []func() (job.StatusInfo, error){
		failure(arcgis.KindNotFound),
	}}
	p := job.NewPoller(job.Policy{
		BaseInterval: time.Millisecond,
		MaxInterval:  10 * time.Millisecond,
		Deadline:     time.Minute,
	}, job.WithPollerLogger(testLogger()))

	_, err := p.PollUntilComplete(context.Background(), svc, job.Handle{ID: "j-1"})
	if got := arcgis.KindOf(err); got != arcgis.KindNotFound {
		t.Errorf("KindOf = %v, want KindNotFound", got)
	}
	if svc.callCount() != 1 {
		t.Errorf("status calls = %d, want 1", svc.callCount())
	}
}

func TestPoller_GivesUpPastFailureTolerance(t *testing.T) {
	svc := &scriptedService{script: []func() (job.StatusInfo, error){
		failure(arcgis.KindNetwork),
	}}
	p := job.NewPoller(job.Policy{
		BaseInterval: time.Millisecond,
		MaxInterval:  10 * time.Millisecond,
		Deadline:     time.Minute,
	},
		job.WithPollerLogger(testLogger()),
		job.WithFailureTolerance(1),
	)

	_, err := p.PollUntilComplete(context.Background(), svc, job.Handle{ID: "j-1"})
	if got := arcgis.KindOf(err); got != arcgis.KindNetwork {
		t.Errorf("KindOf = %v, want KindNetwork", got)
	}
	if svc.callCount() != 2 {
		t.Errorf("status calls = %d, want 2 (tolerance 1)", svc.callCount())
	}
}

// gatedService wraps a scripted service behind a shared rate-limit
// gate, mimicking two poll loops contending for one transport slot.
type gatedService struct {
	inner *scriptedService
	gate  *ratelimit.Gate
}

func (g *gatedService) GetStatus(ctx context.Context, h job.Handle) (job.StatusInfo, error) {
	release, err := g.gate.Acquire(ctx)
	if err != nil {
		return job.StatusInfo{}, &arcgis.Error{Kind: arcgis.KindNetwork, Op: "job.status", Err: err}
	}
	defer release()
	return g.inner.GetStatus(ctx, h)
}

func TestPoller_ConcurrentLoopsShareGateWithoutInterference(t *testing.T) {
	// Capacity 1 per 100ms shared by two independent poll loops.
	gate := ratelimit.New(10, 1, 1)

	svcA := &scriptedService{script: []func() (job.StatusInfo, error){
		status(job.StatusExecuting),
		status(job.StatusSucceeded),
	}}
	svcB := &scriptedService{script: []func() (job.StatusInfo, error){
		status(job.StatusExecuting),
		status(job.StatusExecuting),
		status(job.StatusFailed),
	}}

	policy := job.Policy{
		BaseInterval: 20 * time.Millisecond,
		MaxInterval:  100 * time.Millisecond,
		Deadline:     10 * time.Second,
	}
	p := job.NewPoller(policy, job.WithPollerLogger(testLogger()))

	var wg sync.WaitGroup
	results := make([]job.Status, 2)
	errs := make([]error, 2)

	start := time.Now()
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], errs[0] = p.PollUntilComplete(context.Background(), &gatedService{inner: svcA, gate: gate}, job.Handle{ID: "a"})
	}()
	go func() {
		defer wg.Done()
		results[1], errs[1] = p.PollUntilComplete(context.Background(), &gatedService{inner: svcB, gate: gate}, job.Handle{ID: "b"})
	}()
	wg.Wait()
	elapsed := time.Since(start)

	for i, err := range errs {
		if err != nil {
			t.Fatalf("loop %d: %v", i, err)
		}
	}
	if results[0] != job.StatusSucceeded {
		t.Errorf("loop A = %s, want succeeded", results[0])
	}
	if results[1] != job.StatusFailed {
		t.Errorf("loop B = %s, want failed", results[1])
	}
	// Backoff state is per loop: each made exactly its scripted calls.
	if svcA.callCount() != 2 {
		t.Errorf("loop A status calls = %d, want 2", svcA.callCount())
	}
	if svcB.callCount() != 3 {
		t.Errorf("loop B status calls = %d, want 3", svcB.callCount())
	}
	// Five total calls through a 1/100ms bucket (burst 1): at least
	// 400ms of rate spacing.
	if elapsed < 400*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 400ms of gate spacing", elapsed)
	}
}
