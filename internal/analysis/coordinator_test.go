package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tanmayd/vaidya/pkg/backend"
	backendmock "github.com/tanmayd/vaidya/pkg/backend/mock"
)

func TestGet_FetchesOnceThenMemoises(t *testing.T) {
	api := &backendmock.Client{}
	api.AnalyzeResult = backend.Analysis{Summary: "all values normal"}
	c := NewCoordinator(api)

	req := backend.AnalyzeRequest{SessionID: "s1", Language: "en"}
	first, err := c.Get(context.Background(), req)
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	second, err := c.Get(context.Background(), req)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}

	if first.Summary != "all values normal" || second.Summary != first.Summary {
		t.Errorf("unexpected results: %q / %q", first.Summary, second.Summary)
	}
	if got := api.CallCount("Analyze"); got != 1 {
		t.Errorf("expected exactly 1 backend call, got %d", got)
	}
}

func TestGet_CoalescesConcurrentCallers(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var startOnce sync.Once

	// Block the first Analyze mid-flight so the others pile up behind it.
	blockingClient := &blockedAnalyze{
		Client:  &backendmock.Client{},
		started: func() { startOnce.Do(func() { close(started) }) },
		release: release,
		result:  backend.Analysis{Summary: "done"},
	}
	c := NewCoordinator(blockingClient)

	req := backend.AnalyzeRequest{SessionID: "s1"}
	var wg sync.WaitGroup
	results := make([]backend.Analysis, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := c.Get(context.Background(), req)
			if err != nil {
				t.Errorf("Get %d: %v", i, err)
				return
			}
			results[i] = a
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	if got := blockingClient.count(); got != 1 {
		t.Errorf("expected 1 backend call for 5 concurrent gets, got %d", got)
	}
	for i, a := range results {
		if a.Summary != "done" {
			t.Errorf("caller %d got %q", i, a.Summary)
		}
	}
}

// blockedAnalyze delays Analyze until release is closed.
type blockedAnalyze struct {
	*backendmock.Client
	started func()
	release <-chan struct{}
	result  backend.Analysis

	mu sync.Mutex
	n  int
}

func (b *blockedAnalyze) Analyze(_ context.Context, _ backend.AnalyzeRequest) (backend.Analysis, error) {
	b.mu.Lock()
	b.n++
	b.mu.Unlock()
	b.started()
	<-b.release
	return b.result, nil
}

func (b *blockedAnalyze) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

func TestGet_FailureIsNotCached(t *testing.T) {
	api := &backendmock.Client{}
	api.AnalyzeErr = errors.New("model overloaded")
	c := NewCoordinator(api)

	req := backend.AnalyzeRequest{SessionID: "s1"}
	_, err := c.Get(context.Background(), req)

	var aerr *Error
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *analysis.Error, got %v", err)
	}
	if aerr.SessionID != "s1" {
		t.Errorf("expected session id in error, got %q", aerr.SessionID)
	}

	// A later attempt retries and succeeds.
	api.AnalyzeErr = nil
	api.AnalyzeResult = backend.Analysis{Summary: "recovered"}
	a, err := c.Get(context.Background(), req)
	if err != nil {
		t.Fatalf("retry Get: %v", err)
	}
	if a.Summary != "recovered" {
		t.Errorf("unexpected summary %q", a.Summary)
	}
	if got := api.CallCount("Analyze"); got != 2 {
		t.Errorf("expected 2 backend calls, got %d", got)
	}
}

func TestCached_DoesNotFetch(t *testing.T) {
	api := &backendmock.Client{}
	c := NewCoordinator(api)

	if _, ok := c.Cached("s1"); ok {
		t.Error("expected no cached analysis before Get")
	}
	if got := api.CallCount("Analyze"); got != 0 {
		t.Errorf("Cached must not call the backend, got %d calls", got)
	}

	api.AnalyzeResult = backend.Analysis{Summary: "x"}
	if _, err := c.Get(context.Background(), backend.AnalyzeRequest{SessionID: "s1"}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a, ok := c.Cached("s1"); !ok || a.Summary != "x" {
		t.Errorf("expected cached analysis after Get, got %v %v", a, ok)
	}
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	api := &backendmock.Client{}
	api.AnalyzeResult = backend.Analysis{Summary: "v1"}
	c := NewCoordinator(api)

	req := backend.AnalyzeRequest{SessionID: "s1"}
	if _, err := c.Get(context.Background(), req); err != nil {
		t.Fatalf("Get: %v", err)
	}

	c.Invalidate("s1")
	api.AnalyzeResult = backend.Analysis{Summary: "v2"}

	a, err := c.Get(context.Background(), req)
	if err != nil {
		t.Fatalf("Get after Invalidate: %v", err)
	}
	if a.Summary != "v2" {
		t.Errorf("expected refetched analysis, got %q", a.Summary)
	}
	if got := api.CallCount("Analyze"); got != 2 {
		t.Errorf("expected 2 backend calls, got %d", got)
	}
}
