package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vidqueue/vidqueue-go/internal/api"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway fails submissions whose name appears in failWith.
type fakeGateway struct {
	mu       sync.Mutex
	names    []string
	failWith map[string]error
}

func (f *fakeGateway) SubmitVideo(_ context.Context, name string, r io.Reader, _ int64) (string, error) {
	io.Copy(io.Discard, r) //nolint:errcheck // draining fake payload

	f.mu.Lock()
	f.names = append(f.names, name)
	f.mu.Unlock()

	if err, ok := f.failWith[name]; ok {
		return "", err
	}

	return "ok", nil
}

func (f *fakeGateway) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.names))
	copy(out, f.names)

	return out
}

// memoryOpen replaces the file-open seam with in-memory payloads.
func memoryOpen(path string) (io.ReadCloser, int64, error) {
	return io.NopCloser(strings.NewReader("data")), 4, nil
}

func newTestOrchestrator(gateway Submitter, invalidate func()) *Orchestrator {
	if invalidate == nil {
		invalidate = func() {}
	}

	o := New(gateway, invalidate, 0, testLogger())
	o.openFunc = memoryOpen

	return o
}

func TestSubmitEmptyBatch(t *testing.T) {
	o := newTestOrchestrator(&fakeGateway{}, nil)

	if _, err := o.Submit(context.Background(), nil); !errors.Is(err, ErrNoFilesSelected) {
		t.Fatalf("Submit(nil) = %v, want ErrNoFilesSelected", err)
	}

	if len(o.Queue()) != 0 {
		t.Error("empty batch must leave no queue behind")
	}
}

func TestSubmitTracksEveryFile(t *testing.T) {
	gw := &fakeGateway{}
	o := newTestOrchestrator(gw, nil)

	paths := []string{"/tmp/a.mp4", "/tmp/b.mp4", "/tmp/c.mp4"}

	outcome, err := o.Submit(context.Background(), paths)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if len(outcome.Items) != len(paths) {
		t.Fatalf("items = %d, want %d", len(outcome.Items), len(paths))
	}

	// Every item gets a distinct identity and ends terminal.
	seen := make(map[string]bool)

	for i := range outcome.Items {
		item := &outcome.Items[i]

		if item.ID == "" || seen[item.ID] {
			t.Errorf("item %d: id %q not unique", i, item.ID)
		}

		seen[item.ID] = true

		if !item.Phase.Terminal() {
			t.Errorf("item %s: phase %q is not terminal", item.Name, item.Phase)
		}
	}

	if got := gw.submitted(); len(got) != len(paths) {
		t.Errorf("gateway saw %d submissions, want %d", len(got), len(paths))
	}
}

func TestSubmitAllSucceeded(t *testing.T) {
	o := newTestOrchestrator(&fakeGateway{}, nil)

	outcome, err := o.Submit(context.Background(), []string{"/tmp/a.mp4", "/tmp/b.mp4"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if !outcome.AllSucceeded {
		t.Error("AllSucceeded = false, want true")
	}

	if outcome.Succeeded != 2 || outcome.Failed != 0 {
		t.Errorf("counts = %d/%d, want 2/0", outcome.Succeeded, outcome.Failed)
	}
}

func TestSubmitPartialFailure(t *testing.T) {
	gw := &fakeGateway{failWith: map[string]error{
		"b.mp4": &api.APIError{StatusCode: 500, Message: "disk full", Err: api.ErrServerError},
	}}
	o := newTestOrchestrator(gw, nil)

	outcome, err := o.Submit(context.Background(), []string{"/tmp/a.mp4", "/tmp/b.mp4", "/tmp/c.mp4"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// One failure never blocks the siblings or the aggregate.
	if outcome.AllSucceeded {
		t.Error("AllSucceeded = true despite a failure")
	}

	if outcome.Succeeded != 2 || outcome.Failed != 1 {
		t.Errorf("counts = %d/%d, want 2/1", outcome.Succeeded, outcome.Failed)
	}

	for i := range outcome.Items {
		item := &outcome.Items[i]

		switch item.Name {
		case "b.mp4":
			if item.Phase != PhaseFailed {
				t.Errorf("b.mp4 phase = %q, want failed", item.Phase)
			}

			if item.Detail != "disk full" {
				t.Errorf("b.mp4 detail = %q, want server message", item.Detail)
			}
		default:
			if item.Phase != PhaseSucceeded {
				t.Errorf("%s phase = %q, want succeeded", item.Name, item.Phase)
			}
		}
	}
}

func TestSubmitAllFailed(t *testing.T) {
	failure := &api.APIError{StatusCode: 500, Err: api.ErrServerError}
	gw := &fakeGateway{failWith: map[string]error{
		"a.mp4": failure,
		"b.mp4": failure,
	}}
	o := newTestOrchestrator(gw, nil)

	outcome, err := o.Submit(context.Background(), []string{"/tmp/a.mp4", "/tmp/b.mp4"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if outcome.AllSucceeded || outcome.Failed != 2 {
		t.Errorf("outcome = %+v, want 2 failures", outcome)
	}
}

func TestSubmitUnreadableFile(t *testing.T) {
	o := New(&fakeGateway{}, func() {}, 0, testLogger())
	o.openFunc = func(path string) (io.ReadCloser, int64, error) {
		return nil, 0, fmt.Errorf("opening %s: permission denied", path)
	}

	outcome, err := o.Submit(context.Background(), []string{"/tmp/locked.mp4"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if outcome.AllSucceeded {
		t.Error("AllSucceeded = true for unreadable file")
	}

	if outcome.Items[0].Phase != PhaseFailed {
		t.Errorf("phase = %q, want failed", outcome.Items[0].Phase)
	}
}

func TestSubmitUnauthorizedInvalidatesSession(t *testing.T) {
	authFail := &api.APIError{StatusCode: 401, Err: api.ErrUnauthorized}
	gw := &fakeGateway{failWith: map[string]error{
		"a.mp4": authFail,
		"b.mp4": authFail,
	}}

	var mu sync.Mutex
	invalidations := 0

	o := newTestOrchestrator(gw, func() {
		mu.Lock()
		invalidations++
		mu.Unlock()
	})

	outcome, err := o.Submit(context.Background(), []string{"/tmp/a.mp4", "/tmp/b.mp4", "/tmp/c.mp4"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Invalidation fires per occurrence; the guard dedupes the notice.
	if invalidations != 2 {
		t.Errorf("invalidations = %d, want 2", invalidations)
	}

	// The item without the auth failure still went through.
	if outcome.Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", outcome.Succeeded)
	}
}

func TestSubmitServerErrorDoesNotInvalidate(t *testing.T) {
	gw := &fakeGateway{failWith: map[string]error{
		"a.mp4": &api.APIError{StatusCode: 500, Err: api.ErrServerError},
	}}

	invalidations := 0
	o := newTestOrchestrator(gw, func() { invalidations++ })

	if _, err := o.Submit(context.Background(), []string{"/tmp/a.mp4"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if invalidations != 0 {
		t.Errorf("invalidations = %d, want 0", invalidations)
	}
}

func TestOnQueuePublishesWholeBatch(t *testing.T) {
	o := newTestOrchestrator(&fakeGateway{}, nil)

	var published []Item
	o.OnQueue = func(items []Item) { published = items }

	if _, err := o.Submit(context.Background(), []string{"/tmp/a.mp4", "/tmp/b.mp4"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if len(published) != 2 {
		t.Fatalf("published = %d items, want 2", len(published))
	}

	// The batch appears all at once, before any dispatch.
	for i := range published {
		if published[i].Phase != PhaseQueued {
			t.Errorf("published[%d].Phase = %q, want queued", i, published[i].Phase)
		}
	}
}

func TestOnItemObservesMonotonicPhases(t *testing.T) {
	o := newTestOrchestrator(&fakeGateway{}, nil)

	var mu sync.Mutex
	transitions := make(map[string][]Phase)

	o.OnItem = func(item Item) {
		mu.Lock()
		transitions[item.ID] = append(transitions[item.ID], item.Phase)
		mu.Unlock()
	}

	if _, err := o.Submit(context.Background(), []string{"/tmp/a.mp4", "/tmp/b.mp4"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	for id, phases := range transitions {
		if len(phases) != 2 || phases[0] != PhaseInFlight || !phases[1].Terminal() {
			t.Errorf("item %s transitions = %v, want in-flight then terminal", id, phases)
		}
	}
}

func TestSubmitRespectsParallelLimit(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0

	gw := &gateFunc{fn: func() {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		// Hold the slot long enough for overlap to show up.
		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
	}}

	o := New(gw, func() {}, 2, testLogger())
	o.openFunc = memoryOpen

	paths := make([]string, 8)
	for i := range paths {
		paths[i] = fmt.Sprintf("/tmp/f%d.mp4", i)
	}

	if _, err := o.Submit(context.Background(), paths); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

// gateFunc runs fn inside each submission.
type gateFunc struct {
	fn func()
}

func (g *gateFunc) SubmitVideo(_ context.Context, _ string, r io.Reader, _ int64) (string, error) {
	io.Copy(io.Discard, r) //nolint:errcheck // draining fake payload
	g.fn()

	return "", nil
}

func TestTransitionDropsStaleUpdate(t *testing.T) {
	o := newTestOrchestrator(&fakeGateway{}, nil)

	o.queue = []Item{{ID: "x", Name: "a.mp4", Phase: PhaseSucceeded}}

	// A terminal item never regresses.
	if _, ok := o.transition("x", PhaseInFlight, ""); ok {
		t.Error("transition on terminal item reported ok")
	}

	if o.queue[0].Phase != PhaseSucceeded {
		t.Errorf("phase = %q, want unchanged succeeded", o.queue[0].Phase)
	}
}
