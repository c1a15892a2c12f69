package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/queue/ratelimit"
)

// echoProcessor completes immediately with the request's params.
func echoProcessor(ctx context.Context, req *Request[string]) (string, error) {
	return req.Params, nil
}

// sleepProcessor completes after d with the request's params.
func sleepProcessor(d time.Duration) Processor[string, string] {
	return func(ctx context.Context, req *Request[string]) (string, error) {
		select {
		case <-time.After(d):
			return req.Params, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func newTestQueue(t *testing.T, limiters []ratelimit.Config, proc Processor[string, string]) *Queue[string, string] {
	t.Helper()
	q, err := NewQueue(ModelConfig{ModelID: "test-model", Limiters: limiters}, proc, Options{})
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = q.Shutdown(ctx)
	})
	return q
}

// ============================================================================
// Basic Submission Tests
// ============================================================================

func TestQueue_CompletedResponse(t *testing.T) {
	q := newTestQueue(t, nil, echoProcessor)

	req := NewRequest("test-model", "hello")
	resp, err := q.Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if resp.Status != StatusCompleted {
		t.Errorf("Status = %s, want %s", resp.Status, StatusCompleted)
	}
	if resp.Result != "hello" {
		t.Errorf("Result = %q, want %q", resp.Result, "hello")
	}
	if resp.Error != "" {
		t.Errorf("Error = %q, want empty", resp.Error)
	}
	if resp.RequestID != req.ID {
		t.Errorf("RequestID = %q, want %q", resp.RequestID, req.ID)
	}
}

func TestQueue_FailedResponse(t *testing.T) {
	q := newTestQueue(t, nil, func(ctx context.Context, req *Request[string]) (string, error) {
		return "", errors.New("provider exploded")
	})

	resp, err := q.Enqueue(context.Background(), NewRequest("test-model", "x"))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if resp.Status != StatusFailed {
		t.Errorf("Status = %s, want %s", resp.Status, StatusFailed)
	}
	if !strings.Contains(resp.Error, "provider exploded") {
		t.Errorf("Error = %q, want it to contain the processor error", resp.Error)
	}
	if resp.Result != "" {
		t.Errorf("Result = %q, want zero value on failure", resp.Result)
	}
}

func TestQueue_ValidatesRequest(t *testing.T) {
	q := newTestQueue(t, nil, echoProcessor)

	tests := []struct {
		name string
		req  *Request[string]
	}{
		{"empty model", &Request[string]{ID: "id-1"}},
		{"wrong model", NewRequest("other-model", "x")},
		{"negative estimate", func() *Request[string] {
			r := NewRequest("test-model", "x")
			r.EstimatedInputTokens = -1
			return r
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := q.Enqueue(context.Background(), tt.req); !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("Enqueue() error = %v, want ErrInvalidConfiguration", err)
			}
		})
	}
}

// ============================================================================
// Rate Limiting Scenarios
// ============================================================================

func TestQueue_StrictRPM(t *testing.T) {
	// RPM=2 over a 1s window: of three simultaneous submissions, the
	// third must wait for the window to turn over.
	q := newTestQueue(t, []ratelimit.Config{
		{Type: ratelimit.RPM, Limit: 2, Window: time.Second},
	}, echoProcessor)

	start := time.Now()
	done := make([]time.Duration, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := q.Enqueue(context.Background(), NewRequest("test-model", fmt.Sprintf("r%d", i)))
			if err != nil {
				t.Errorf("Enqueue() error = %v", err)
				return
			}
			if resp.Status != StatusCompleted {
				t.Errorf("Status = %s, want completed", resp.Status)
			}
			done[i] = time.Since(start)
		}(i)
	}
	wg.Wait()

	fast, slow := 0, 0
	for _, d := range done {
		if d < 500*time.Millisecond {
			fast++
		}
		if d >= time.Second {
			slow++
		}
	}
	if fast != 2 {
		t.Errorf("%d requests completed inside the window, want 2 (durations %v)", fast, done)
	}
	if slow != 1 {
		t.Errorf("%d requests waited for the window, want 1 (durations %v)", slow, done)
	}
}

func TestQueue_CompositeLimits(t *testing.T) {
	// RPM, TPM, and Concurrent=1 together: both requests complete, second
	// after the first, and the TPM window holds both reservations. The TPM
	// limit leaves room for both so that Concurrent=1, not token capacity,
	// is what serializes them.
	q := newTestQueue(t, []ratelimit.Config{
		{Type: ratelimit.RPM, Limit: 100},
		{Type: ratelimit.TPM, Limit: 2000},
		{Type: ratelimit.Concurrent, Limit: 1},
	}, sleepProcessor(200*time.Millisecond))

	submit := func() (*Response[string], error) {
		req := NewRequest("test-model", "x")
		req.EstimatedInputTokens = 400
		req.EstimatedOutputTokens = 400
		return q.Enqueue(context.Background(), req)
	}

	var wg sync.WaitGroup
	var first, second time.Time
	wg.Add(2)
	go func() {
		defer wg.Done()
		if resp, err := submit(); err != nil || resp.Status != StatusCompleted {
			t.Errorf("first submit: resp=%v err=%v", resp, err)
		}
		first = time.Now()
	}()
	time.Sleep(20 * time.Millisecond) // Keep enqueue order deterministic.
	go func() {
		defer wg.Done()
		if resp, err := submit(); err != nil || resp.Status != StatusCompleted {
			t.Errorf("second submit: resp=%v err=%v", resp, err)
		}
		second = time.Now()
	}()
	wg.Wait()

	if !second.After(first) {
		t.Error("second request finished before the first despite Concurrent=1")
	}

	info := q.Info()
	for _, s := range info.Limiters {
		if s.Type == ratelimit.TPM && s.Usage != 1600 {
			t.Errorf("TPM usage = %d, want 1600", s.Usage)
		}
	}
}

func TestQueue_OverEstimateReconcile(t *testing.T) {
	// Reserve 1000 of 1000, reconcile down to 200, and a 800-token
	// request must then be admitted without waiting.
	q := newTestQueue(t, []ratelimit.Config{
		{Type: ratelimit.TPM, Limit: 1000},
	}, echoProcessor)

	first := NewRequest("test-model", "a")
	first.EstimatedInputTokens = 500
	first.EstimatedOutputTokens = 500
	if _, err := q.Enqueue(context.Background(), first); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if err := q.UpdateTokenUsage(first.ID, 100, 100); err != nil {
		t.Fatalf("UpdateTokenUsage() error = %v", err)
	}

	second := NewRequest("test-model", "b")
	second.EstimatedInputTokens = 700
	second.EstimatedOutputTokens = 100

	start := time.Now()
	resp, err := q.Enqueue(context.Background(), second)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if resp.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", resp.Status)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("second request took %v, expected immediate admission after reconcile", elapsed)
	}
}

func TestQueue_ProcessorReportedUsageReconciles(t *testing.T) {
	q := newTestQueue(t, []ratelimit.Config{
		{Type: ratelimit.TPM, Limit: 1000},
	}, func(ctx context.Context, req *Request[string]) (string, error) {
		req.ActualInputTokens = 50
		req.ActualOutputTokens = 25
		return "ok", nil
	})

	req := NewRequest("test-model", "x")
	req.EstimatedInputTokens = 400
	req.EstimatedOutputTokens = 400

	resp, err := q.Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if resp.InputTokens != 50 || resp.OutputTokens != 25 {
		t.Errorf("response tokens = (%d, %d), want (50, 25)", resp.InputTokens, resp.OutputTokens)
	}

	for _, s := range q.Info().Limiters {
		if s.Type == ratelimit.TPM && s.Usage != 75 {
			t.Errorf("TPM usage = %d, want 75 after reconcile", s.Usage)
		}
	}
}

func TestQueue_CostFaultSurfacesAsFailure(t *testing.T) {
	q := newTestQueue(t, []ratelimit.Config{
		{Type: ratelimit.TPM, Limit: 100},
	}, echoProcessor)

	req := NewRequest("test-model", "x")
	req.EstimatedInputTokens = 200

	start := time.Now()
	resp, err := q.Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if resp.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", resp.Status)
	}
	if !strings.Contains(resp.Error, "exceeds limit") {
		t.Errorf("Error = %q, want a cost fault", resp.Error)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cost fault surfaced after %v, expected bounded delay", elapsed)
	}
}

// ============================================================================
// FIFO Ordering
// ============================================================================

func TestQueue_FIFOUnderCapacityPressure(t *testing.T) {
	// The first request consumes the whole token window; a later cheap
	// request must not overtake the expensive one blocked behind it.
	var mu sync.Mutex
	var order []string

	q := newTestQueue(t, []ratelimit.Config{
		{Type: ratelimit.TPM, Limit: 100, Window: time.Second},
	}, func(ctx context.Context, req *Request[string]) (string, error) {
		mu.Lock()
		order = append(order, req.Params)
		mu.Unlock()
		return req.Params, nil
	})

	submit := func(name string, tokens int) {
		req := NewRequest("test-model", name)
		req.EstimatedInputTokens = tokens
		if _, err := q.Enqueue(context.Background(), req); err != nil {
			t.Errorf("Enqueue(%s) error = %v", name, err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); submit("full", 100) }()
	time.Sleep(30 * time.Millisecond)
	go func() { defer wg.Done(); submit("expensive", 90) }()
	time.Sleep(30 * time.Millisecond)
	go func() { defer wg.Done(); submit("cheap", 1) }()
	wg.Wait()

	want := []string{"full", "expensive", "cheap"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("completion order = %v, want %v", order, want)
		}
	}
}

// ============================================================================
// Fire-and-Forget
// ============================================================================

func TestQueue_FireAndForget(t *testing.T) {
	q := newTestQueue(t, nil, sleepProcessor(100*time.Millisecond))

	req := NewRequest("test-model", "payload")
	req.WaitForCompletion = false

	start := time.Now()
	resp, err := q.Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if resp.Status != StatusPending {
		t.Fatalf("Status = %s, want pending", resp.Status)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("fire-and-forget enqueue took %v, expected immediate return", elapsed)
	}

	// Poll until terminal.
	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err := q.GetStatus(req.ID)
		if err != nil {
			t.Fatalf("GetStatus() error = %v", err)
		}
		if st.Status.Terminal() {
			if st.Status != StatusCompleted || st.Result != "payload" {
				t.Errorf("terminal status = %s result = %q", st.Status, st.Result)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("request never reached a terminal status")
		}
		time.Sleep(50 * time.Millisecond)
	}

	// The terminal response stays retained for later polls.
	if st, err := q.GetStatus(req.ID); err != nil || st.Status != StatusCompleted {
		t.Errorf("retained status = %v, err = %v", st, err)
	}
}

func TestQueue_PurgeTerminal(t *testing.T) {
	q := newTestQueue(t, nil, echoProcessor)

	req := NewRequest("test-model", "x")
	req.WaitForCompletion = false
	if _, err := q.Enqueue(context.Background(), req); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// Wait for termination.
	deadline := time.Now().Add(time.Second)
	for {
		st, err := q.GetStatus(req.ID)
		if err == nil && st.Status.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("request never terminated")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if purged := q.PurgeTerminal(time.Now().Add(-time.Minute)); purged != 0 {
		t.Errorf("purged %d young records, want 0", purged)
	}
	if purged := q.PurgeTerminal(time.Now()); purged != 1 {
		t.Errorf("purged %d records, want 1", purged)
	}
	if _, err := q.GetStatus(req.ID); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("GetStatus() after purge error = %v, want ErrRequestNotFound", err)
	}
}

// ============================================================================
// Failure Isolation
// ============================================================================

func TestQueue_ProcessorFailureIsolation(t *testing.T) {
	n := 0
	q := newTestQueue(t, []ratelimit.Config{
		{Type: ratelimit.Concurrent, Limit: 1},
	}, func(ctx context.Context, req *Request[string]) (string, error) {
		n++
		if n%2 == 1 {
			return "", fmt.Errorf("boom %d", n)
		}
		return "ok", nil
	})

	completed, failed := 0, 0
	for i := 0; i < 10; i++ {
		resp, err := q.Enqueue(context.Background(), NewRequest("test-model", "x"))
		if err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
		switch resp.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
			if !strings.Contains(resp.Error, "boom") {
				t.Errorf("Error = %q, want processor error string", resp.Error)
			}
		}
	}

	if completed != 5 || failed != 5 {
		t.Errorf("completed=%d failed=%d, want 5/5", completed, failed)
	}

	// All concurrency slots returned; worker still alive.
	for _, s := range q.Info().Limiters {
		if s.Type == ratelimit.Concurrent && s.Usage != 0 {
			t.Errorf("concurrent usage = %d, want 0", s.Usage)
		}
	}
	if resp, err := q.Enqueue(context.Background(), NewRequest("test-model", "x")); err != nil || !resp.Status.Terminal() {
		t.Errorf("worker dead after failures: resp=%v err=%v", resp, err)
	}
}

func TestQueue_ProcessorPanicIsolated(t *testing.T) {
	first := true
	q := newTestQueue(t, nil, func(ctx context.Context, req *Request[string]) (string, error) {
		if first {
			first = false
			panic("unexpected state")
		}
		return "ok", nil
	})

	resp, err := q.Enqueue(context.Background(), NewRequest("test-model", "x"))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if resp.Status != StatusFailed || !strings.Contains(resp.Error, "panic") {
		t.Errorf("panic response = %+v, want failed with panic message", resp)
	}

	if resp, err := q.Enqueue(context.Background(), NewRequest("test-model", "y")); err != nil || resp.Status != StatusCompleted {
		t.Errorf("worker dead after panic: resp=%v err=%v", resp, err)
	}
}

// ============================================================================
// Cancellation
// ============================================================================

func TestQueue_WaiterCancellationDoesNotCancelWork(t *testing.T) {
	q := newTestQueue(t, nil, sleepProcessor(150*time.Millisecond))

	req := NewRequest("test-model", "slow")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := q.Enqueue(ctx, req)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Enqueue() error = %v, want context.DeadlineExceeded", err)
	}

	// The worker keeps going; the terminal record must appear.
	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err := q.GetStatus(req.ID)
		if err != nil {
			t.Fatalf("GetStatus() error = %v", err)
		}
		if st.Status.Terminal() {
			if st.Status != StatusCompleted || st.Result != "slow" {
				t.Errorf("terminal record = %+v, want completed result", st)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("abandoned request never terminated")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// ============================================================================
// Shutdown
// ============================================================================

func TestQueue_ShutdownDrains(t *testing.T) {
	q := newTestQueue(t, []ratelimit.Config{
		{Type: ratelimit.Concurrent, Limit: 1},
	}, sleepProcessor(30*time.Millisecond))

	reqs := make([]*Request[string], 5)
	for i := range reqs {
		reqs[i] = NewRequest("test-model", "x")
		reqs[i].WaitForCompletion = false
		if _, err := q.Enqueue(context.Background(), reqs[i]); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	for i, req := range reqs {
		st, err := q.GetStatus(req.ID)
		if err != nil {
			t.Fatalf("GetStatus(%d) error = %v", i, err)
		}
		if !st.Status.Terminal() {
			t.Errorf("request %d status = %s, want terminal", i, st.Status)
		}
	}

	if _, err := q.Enqueue(context.Background(), NewRequest("test-model", "late")); !errors.Is(err, ErrQueueShutdown) {
		t.Errorf("Enqueue() after shutdown error = %v, want ErrQueueShutdown", err)
	}
}

func TestQueue_ShutdownDeadlineFailsPending(t *testing.T) {
	q := newTestQueue(t, []ratelimit.Config{
		{Type: ratelimit.Concurrent, Limit: 1},
	}, sleepProcessor(5*time.Second))

	// One slow request processing, several queued behind it.
	reqs := make([]*Request[string], 4)
	for i := range reqs {
		reqs[i] = NewRequest("test-model", "x")
		reqs[i].WaitForCompletion = false
		if _, err := q.Enqueue(context.Background(), reqs[i]); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := q.Shutdown(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown() error = %v, want context.DeadlineExceeded", err)
	}

	// Every record must be terminal, the queued ones failed with the
	// shutdown cause.
	for i, req := range reqs {
		st, err := q.GetStatus(req.ID)
		if err != nil {
			t.Fatalf("GetStatus(%d) error = %v", i, err)
		}
		if !st.Status.Terminal() {
			t.Errorf("request %d status = %s, want terminal", i, st.Status)
		}
	}
	last, _ := q.GetStatus(reqs[3].ID)
	if last.Status != StatusFailed || !strings.Contains(last.Error, "shut down") {
		t.Errorf("queued request = %+v, want failed with shutdown cause", last)
	}
}

// ============================================================================
// Status and Info
// ============================================================================

func TestQueue_GetStatusLifecycle(t *testing.T) {
	release := make(chan struct{})
	q := newTestQueue(t, nil, func(ctx context.Context, req *Request[string]) (string, error) {
		<-release
		return "done", nil
	})

	req := NewRequest("test-model", "x")
	req.WaitForCompletion = false
	if _, err := q.Enqueue(context.Background(), req); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// Processing shortly after enqueue.
	deadline := time.Now().Add(time.Second)
	for {
		st, err := q.GetStatus(req.ID)
		if err != nil {
			t.Fatalf("GetStatus() error = %v", err)
		}
		if st.Status == StatusProcessing {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("status = %s, never reached processing", st.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(release)

	deadline = time.Now().Add(time.Second)
	for {
		st, _ := q.GetStatus(req.ID)
		if st != nil && st.Status == StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := q.GetStatus("nonexistent"); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("GetStatus(unknown) error = %v, want ErrRequestNotFound", err)
	}
}

func TestQueue_Info(t *testing.T) {
	q := newTestQueue(t, []ratelimit.Config{
		{Type: ratelimit.RPM, Limit: 10},
		{Type: ratelimit.Concurrent, Limit: 2},
	}, echoProcessor)

	info := q.Info()
	if info.ModelID != "test-model" {
		t.Errorf("ModelID = %q", info.ModelID)
	}
	if len(info.Limiters) != 2 {
		t.Fatalf("len(Limiters) = %d, want 2", len(info.Limiters))
	}
	if info.Limiters[0].Type != ratelimit.RPM || info.Limiters[0].Limit != 10 {
		t.Errorf("first limiter = %+v", info.Limiters[0])
	}
}
