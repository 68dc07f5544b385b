package fn

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func TestResult(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("expected ok")
	}
	if v, err := r.Unwrap(); v != 42 || err != nil {
		t.Fatalf("got %d, %v", v, err)
	}

	boom := errors.New("boom")
	e := Err[int](boom)
	if e.IsOk() || !e.IsErr() {
		t.Fatal("expected err")
	}
	if _, err := e.Unwrap(); !errors.Is(err, boom) || e.Err() != boom {
		t.Fatalf("got %v", err)
	}

	if !errors.Is(Err[int](nil).Err(), ErrNilError) {
		t.Fatal("Err(nil) must stay failed")
	}
	var zero Result[string]
	if !zero.IsOk() {
		t.Fatal("zero Result should be ok")
	}
}

func TestFromPair(t *testing.T) {
	if v, err := FromPair(strconv.Atoi("12")).Unwrap(); v != 12 || err != nil {
		t.Fatalf("got %d, %v", v, err)
	}
	if FromPair(strconv.Atoi("x")).IsOk() {
		t.Fatal("expected error result")
	}
}

func TestCollect(t *testing.T) {
	all, err := Collect([]Result[int]{Ok(1), Ok(2)}).Unwrap()
	if err != nil || len(all) != 2 || all[1] != 2 {
		t.Fatalf("got %v, %v", all, err)
	}
	boom := errors.New("boom")
	bang := errors.New("bang")
	_, err = Collect([]Result[int]{Ok(1), Err[int](boom), Ok(3), Err[int](bang)}).Unwrap()
	if !errors.Is(err, boom) || !errors.Is(err, bang) {
		t.Fatalf("expected both errors joined, got %v", err)
	}
}

func TestBatches(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	got := Batches(items, 2)
	if len(got) != 3 || len(got[0]) != 2 || len(got[2]) != 1 || got[2][0] != 5 {
		t.Fatalf("got %v", got)
	}
	// Appending to a batch must not clobber the next one.
	_ = append(got[0], 99)
	if got[1][0] != 3 {
		t.Fatal("batch capacity leaks into the next batch")
	}
	if got := Batches(items, 0); len(got) != 1 || len(got[0]) != 5 {
		t.Fatalf("size 0: %v", got)
	}
	if Batches([]int{}, 3) != nil {
		t.Fatal("expected nil for no items")
	}
}

func TestThen(t *testing.T) {
	double := Stage[int, int](func(_ context.Context, n int) Result[int] { return Ok(n * 2) })
	show := Stage[int, string](func(_ context.Context, n int) Result[string] { return Ok(strconv.Itoa(n)) })

	s, err := Then(double, show)(context.Background(), 21).Unwrap()
	if err != nil || s != "42" {
		t.Fatalf("got %q, %v", s, err)
	}

	called := false
	fail := Stage[int, int](func(context.Context, int) Result[int] { return Err[int](errors.New("nope")) })
	after := Stage[int, string](func(context.Context, int) Result[string] { called = true; return Ok("") })
	if Then(fail, after)(context.Background(), 1).IsOk() {
		t.Fatal("expected error")
	}
	if called {
		t.Fatal("second stage ran after failure")
	}
}

func TestThenStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := Stage[int, int](func(context.Context, int) Result[int] { cancel(); return Ok(1) })
	called := false
	second := Stage[int, int](func(context.Context, int) Result[int] { called = true; return Ok(2) })

	if _, err := Then(first, second)(ctx, 0).Unwrap(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatal("second stage ran after cancellation")
	}
}

func TestTapAndTraced(t *testing.T) {
	var seen int
	tap := TapStage(func(_ context.Context, n int) { seen = n })
	traced := TracedStage("test.tap", tap)
	if v, _ := traced(context.Background(), 7).Unwrap(); v != 7 || seen != 7 {
		t.Fatalf("got %d, seen %d", v, seen)
	}

	failing := TracedStage("test.fail", Stage[int, int](func(context.Context, int) Result[int] {
		return Err[int](errors.New("traced failure"))
	}))
	if failing(context.Background(), 1).IsOk() {
		t.Fatal("expected error to pass through")
	}
}

func TestParMapResultOrderAndBound(t *testing.T) {
	items := make([]int, 20)
	for i := range items {
		items[i] = i
	}
	var inFlight, peak atomic.Int32
	out := ParMapResult(items, 3, func(n int) Result[int] {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		if n == 5 {
			return Err[int](errors.New("five"))
		}
		return Ok(n * n)
	})

	if len(out) != 20 {
		t.Fatalf("got %d results", len(out))
	}
	for i, r := range out {
		v, err := r.Unwrap()
		if i == 5 {
			if err == nil {
				t.Fatal("expected error at 5")
			}
			continue
		}
		if err != nil || v != i*i {
			t.Fatalf("result %d = %d, %v", i, v, err)
		}
	}
	if peak.Load() > 3 {
		t.Fatalf("peak concurrency %d exceeds 3", peak.Load())
	}

	if got := ParMapResult([]int{}, 4, func(int) Result[int] { return Ok(0) }); len(got) != 0 {
		t.Fatal("expected empty output")
	}
	if got := ParMapResult([]int{1, 2}, 0, func(n int) Result[int] { return Ok(n) }); len(got) != 2 {
		t.Fatal("unbounded workers")
	}
}

func TestMapReduce(t *testing.T) {
	words := Map([]int{1, 2, 3}, strconv.Itoa)
	if len(words) != 3 || words[2] != "3" {
		t.Fatalf("got %v", words)
	}
	sum := Reduce([]int{1, 2, 3, 4}, 0, func(acc, n int) int { return acc + n })
	if sum != 10 {
		t.Fatalf("got %d", sum)
	}
}

func TestRetry(t *testing.T) {
	opts := RetryOpts{MaxAttempts: 4, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
	var calls int
	v, err := Retry(context.Background(), opts, func(context.Context) Result[string] {
		calls++
		if calls < 3 {
			return Err[string](errors.New("not yet"))
		}
		return Ok("up")
	}).Unwrap()
	if err != nil || v != "up" || calls != 3 {
		t.Fatalf("got %q, %v after %d calls", v, err, calls)
	}
}

func TestRetryGivesUp(t *testing.T) {
	opts := RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, Jitter: true}
	var calls int
	if Retry(context.Background(), opts, func(context.Context) Result[int] {
		calls++
		return Err[int](errors.New("down"))
	}).IsOk() {
		t.Fatal("expected failure")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryNonRetryable(t *testing.T) {
	fatal := errors.New("bad config")
	opts := RetryOpts{MaxAttempts: 5, InitialWait: time.Millisecond, Retryable: func(err error) bool { return !errors.Is(err, fatal) }}
	var calls int
	_, err := Retry(context.Background(), opts, func(context.Context) Result[int] {
		calls++
		return Err[int](fatal)
	}).Unwrap()
	if !errors.Is(err, fatal) || calls != 1 {
		t.Fatalf("got %v after %d calls", err, calls)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := RetryOpts{MaxAttempts: 10, InitialWait: time.Hour}
	_, err := Retry(ctx, opts, func(context.Context) Result[int] {
		cancel()
		return Err[int](errors.New("down"))
	}).Unwrap()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
