// Package testing provides test helpers for binwatch packages.
//
// Calling t.Fatal or t.FailNow from a goroutine other than the test goroutine
// only exits that goroutine. The helpers here collect errors over a channel
// and report them from the test goroutine instead.
package testing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// GoroutineTest runs functions concurrently and reports their errors.
//
//	gt := testutil.NewGoroutineTest(t)
//	for i := 0; i < 8; i++ {
//	    gt.Go(func() error {
//	        store.Record(entry)
//	        return nil
//	    })
//	}
//	gt.Wait()
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	errors chan error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a new GoroutineTest helper.
func NewGoroutineTest(t *testing.T) *GoroutineTest {
	ctx, cancel := context.WithCancel(context.Background())
	return &GoroutineTest{
		t:      t,
		errors: make(chan error, 100),
		ctx:    ctx,
		cancel: cancel,
	}
}

// NewGoroutineTestWithTimeout creates a GoroutineTest whose context expires
// after timeout.
func NewGoroutineTestWithTimeout(t *testing.T, timeout time.Duration) *GoroutineTest {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return &GoroutineTest{
		t:      t,
		errors: make(chan error, 100),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go runs fn in a goroutine and collects its error.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.GoWithContext(func(context.Context) error { return fn() })
}

// GoWithContext runs fn with the helper's context in a goroutine.
func (gt *GoroutineTest) GoWithContext(fn func(ctx context.Context) error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(gt.ctx); err != nil {
			select {
			case gt.errors <- err:
			default:
				gt.t.Logf("error channel full, dropping error: %v", err)
			}
		}
	}()
}

// Wait waits for all goroutines and fails the test if any returned an error.
func (gt *GoroutineTest) Wait() {
	gt.wg.Wait()
	gt.cancel()
	close(gt.errors)

	var errs []error
	for err := range gt.errors {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		gt.t.Errorf("goroutine test failed with %d error(s):", len(errs))
		for i, err := range errs {
			gt.t.Errorf("  [%d] %v", i+1, err)
		}
		gt.t.FailNow()
	}
}

// Cancel cancels the helper's context. Call it before Wait when the
// goroutines run until their context is done.
func (gt *GoroutineTest) Cancel() {
	gt.cancel()
}

// Context returns the context for this test.
func (gt *GoroutineTest) Context() context.Context {
	return gt.ctx
}

// AssertEqual returns an error if got != want.
func AssertEqual[T comparable](got, want T, msg string) error {
	if got != want {
		return fmt.Errorf("%s: got %v, want %v", msg, got, want)
	}
	return nil
}

// Eventually polls condition every interval until it holds or timeout passes.
func Eventually(timeout, interval time.Duration, condition func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("condition not met within %v", timeout)
}

// Receive waits up to timeout for a value on ch.
func Receive[T any](ch <-chan T, timeout time.Duration) (T, error) {
	select {
	case v, ok := <-ch:
		if !ok {
			var zero T
			return zero, fmt.Errorf("channel closed")
		}
		return v, nil
	case <-time.After(timeout):
		var zero T
		return zero, fmt.Errorf("nothing received within %v", timeout)
	}
}
