package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"photobooth/internal/core"
	"photobooth/internal/delivery"
	errs "photobooth/internal/errors"
	"photobooth/internal/metrics"
	"photobooth/internal/variants"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from State
		ev   EventKind
		want State
	}{
		{StateCapture, EventTrigger, StateCapture},
		{StateCapture, EventCountdownElapsed, StateCapture},
		{StateCapture, EventCaptureDone, StateCapture},
		{StateCapture, EventDeliveryReady, StateResultPreview},
		{StateCapture, EventSessionFailed, StateCapture},
		{StateResultPreview, EventTrigger, StateQrCode},
		{StateResultPreview, EventDeliveryReady, StateResultPreview},
		{StateResultPreview, EventSessionFailed, StateCapture},
		{StateQrCode, EventTrigger, StateCapture},
		{StateQrCode, EventCaptureDone, StateQrCode},
		{StateQrCode, EventSessionFailed, StateCapture},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.ev.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Next(tt.from, tt.ev))
		})
	}
}

// fakeCapturer answers each request with CaptureDone and then waits for
// release before posting the outcome
type fakeCapturer struct {
	requests atomic.Int32
	release  chan struct{}
	fail     error
}

func newFakeCapturer() *fakeCapturer {
	return &fakeCapturer{release: make(chan struct{}, 4)}
}

func (f *fakeCapturer) Run(ctx context.Context, requests <-chan struct{}, post func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-requests:
			f.requests.Add(1)
			post(Event{Kind: EventCaptureDone})
			select {
			case <-f.release:
			case <-ctx.Done():
				return
			}
			if f.fail != nil {
				post(Event{Kind: EventSessionFailed, Err: f.fail})
				continue
			}
			post(Event{
				Kind:    EventDeliveryReady,
				Batch:   &variants.Batch{Paths: []string{"1.jpg", "2.jpg", "3.jpg", "4.jpg"}},
				Package: &delivery.Package{ArchiveName: "a.zip", URL: "http://booth/img/a.zip"},
			})
		}
	}
}

type fakePresenter struct {
	mu         sync.Mutex
	captures   []string
	countdowns []int
	processing int
	previews   [][]string
	tokens     []*delivery.Package
}

func (p *fakePresenter) ShowCapture(hint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captures = append(p.captures, hint)
}

func (p *fakePresenter) ShowCountdown(remaining int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.countdowns = append(p.countdowns, remaining)
}

func (p *fakePresenter) ShowProcessing(string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processing++
}

func (p *fakePresenter) ShowPreview(paths []string, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.previews = append(p.previews, paths)
}

func (p *fakePresenter) ShowAccessToken(pkg *delivery.Package, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = append(p.tokens, pkg)
}

func (p *fakePresenter) snapshot() fakePresenter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fakePresenter{
		captures:   append([]string(nil), p.captures...),
		countdowns: append([]int(nil), p.countdowns...),
		processing: p.processing,
		previews:   append([][]string(nil), p.previews...),
		tokens:     append([]*delivery.Package(nil), p.tokens...),
	}
}

type harness struct {
	triggers  chan struct{}
	capturer  *fakeCapturer
	presenter *fakePresenter
	orch      *Orchestrator
	registry  *prometheus.Registry

	mu          sync.Mutex
	transitions []Transition
}

func (h *harness) follow(tr Transition) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitions = append(h.transitions, tr)
}

func (h *harness) accepted() []Transition {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Transition(nil), h.transitions...)
}

// waitAccepted waits for the hook to catch up with the published state
func (h *harness) waitAccepted(t *testing.T, want []Transition) {
	t.Helper()
	require.Eventually(t, func() bool { return assert.ObjectsAreEqual(want, h.accepted()) }, time.Second, 2*time.Millisecond)
}

func startHarness(t *testing.T) *harness {
	t.Helper()
	logger, _ := test.NewNullLogger()
	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(registry)
	require.NoError(t, err)

	h := &harness{
		triggers:  make(chan struct{}),
		capturer:  newFakeCapturer(),
		presenter: &fakePresenter{},
		registry:  registry,
	}
	h.orch = NewOrchestrator(h.triggers, h.capturer, h.presenter, logger,
		WithCountdown(3, 5*time.Millisecond),
		WithRecorder(recorder),
		WithTransitionHook(h.follow),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("orchestrator did not stop")
		}
	})
	return h
}

func (h *harness) trigger() {
	h.triggers <- struct{}{}
}

func (h *harness) waitFor(t *testing.T, state State, description string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.orch.State() == state && h.orch.Description() == description
	}, time.Second, 2*time.Millisecond)
}

// sessions reads photobooth_session_completed_total{outcome}
func (h *harness) sessions(t *testing.T, outcome string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "photobooth_session_completed_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestOrchestrator_FullCycle(t *testing.T) {
	h := startHarness(t)
	assert.Equal(t, StateCapture, h.orch.State())
	assert.Equal(t, HintIdle, h.orch.Description())

	h.trigger()
	require.Eventually(t, func() bool { return h.capturer.requests.Load() == 1 }, time.Second, 2*time.Millisecond)
	h.waitFor(t, StateCapture, HintProcessing)
	assert.Equal(t, []int{3, 2, 1}, h.presenter.snapshot().countdowns)

	h.capturer.release <- struct{}{}
	h.waitFor(t, StateResultPreview, HintPreview)
	shown := h.presenter.snapshot()
	require.Len(t, shown.previews, 1)
	assert.Len(t, shown.previews[0], 4)
	assert.Equal(t, 1, shown.processing)

	h.trigger()
	h.waitFor(t, StateQrCode, HintQrCode)
	shown = h.presenter.snapshot()
	require.Len(t, shown.tokens, 1)
	assert.Equal(t, "a.zip", shown.tokens[0].ArchiveName)

	h.trigger()
	h.waitFor(t, StateCapture, HintIdle)
	assert.Equal(t, []string{HintIdle, HintIdle}, h.presenter.snapshot().captures)
	assert.Equal(t, int32(1), h.capturer.requests.Load())
	assert.Equal(t, float64(1), h.sessions(t, "delivered"))

	h.waitAccepted(t, []Transition{
		{From: StateCapture, To: StateCapture, Event: EventTrigger},
		{From: StateCapture, To: StateResultPreview, Event: EventDeliveryReady},
		{From: StateResultPreview, To: StateQrCode, Event: EventTrigger},
		{From: StateQrCode, To: StateCapture, Event: EventTrigger},
	})
}

func TestOrchestrator_IgnoresTriggersWhileInFlight(t *testing.T) {
	h := startHarness(t)

	h.trigger()
	// during the countdown and while the worker is busy
	h.trigger()
	require.Eventually(t, func() bool { return h.capturer.requests.Load() == 1 }, time.Second, 2*time.Millisecond)
	h.trigger()
	h.trigger()

	assert.Equal(t, StateCapture, h.orch.State())
	assert.Equal(t, int32(1), h.capturer.requests.Load())

	h.capturer.release <- struct{}{}
	h.waitFor(t, StateResultPreview, HintPreview)
	assert.Equal(t, int32(1), h.capturer.requests.Load())
	assert.Equal(t, []int{3, 2, 1}, h.presenter.snapshot().countdowns)

	// ignored triggers are not reported to followers
	h.waitAccepted(t, []Transition{
		{From: StateCapture, To: StateCapture, Event: EventTrigger},
		{From: StateCapture, To: StateResultPreview, Event: EventDeliveryReady},
	})
}

func TestOrchestrator_FailureReturnsToCapture(t *testing.T) {
	h := startHarness(t)
	h.capturer.fail = errs.WrapTransform(errors.New("boom"), "Producer", "Produce", "render")

	h.trigger()
	require.Eventually(t, func() bool { return h.capturer.requests.Load() == 1 }, time.Second, 2*time.Millisecond)
	h.capturer.release <- struct{}{}

	h.waitFor(t, StateCapture, HintFailed)
	h.waitAccepted(t, []Transition{
		{From: StateCapture, To: StateCapture, Event: EventTrigger},
		{From: StateCapture, To: StateCapture, Event: EventSessionFailed},
	})
	assert.Empty(t, h.presenter.snapshot().previews)
	assert.Equal(t, float64(1), h.sessions(t, "failed"))

	// the booth accepts a new session right away
	h.capturer.fail = nil
	h.trigger()
	require.Eventually(t, func() bool { return h.capturer.requests.Load() == 2 }, time.Second, 2*time.Millisecond)
	h.capturer.release <- struct{}{}
	h.waitFor(t, StateResultPreview, HintPreview)
}

// worker fakes

type stubCamera struct {
	err  error
	body []byte
}

func (c stubCamera) Capture(_ context.Context, path string) error {
	if c.err != nil {
		return c.err
	}
	return os.WriteFile(path, c.body, 0o644)
}

type stubLoader struct{}

func (stubLoader) LoadSource(path string) (*core.SourceImage, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 2, 3, 0), 8, 8, gocv.MatTypeCV8UC3)
	defer mat.Close()
	return core.NewSourceImage(mat, path)
}

type stubProducer struct{ err error }

func (p stubProducer) Produce(_ context.Context, _ *core.SourceImage, dir string) (*variants.Batch, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &variants.Batch{Dir: dir, Paths: []string{variants.SlotPath(dir, 1)}}, nil
}

type stubPackager struct{ err error }

func (p stubPackager) Package(string) (*delivery.Package, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &delivery.Package{ArchiveName: "x.zip"}, nil
}

func runWorkerOnce(t *testing.T, w *Worker) []Event {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		events []Event
	)
	requests := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx, requests, func(ev Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, ev)
		})
	}()

	requests <- struct{}{}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 0 && events[len(events)-1].Kind != EventCaptureDone
	}, time.Second, 2*time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	return append([]Event(nil), events...)
}

func TestWorker_Session(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dir := t.TempDir()
	capture := filepath.Join(dir, "capture.jpg")

	t.Run("delivers", func(t *testing.T) {
		w := NewWorker(stubCamera{body: []byte("jpg")}, stubLoader{}, stubProducer{}, stubPackager{}, capture, dir, logger)
		events := runWorkerOnce(t, w)
		require.Len(t, events, 2)
		assert.Equal(t, EventCaptureDone, events[0].Kind)
		assert.Equal(t, EventDeliveryReady, events[1].Kind)
		assert.Equal(t, "x.zip", events[1].Package.ArchiveName)
		assert.Len(t, events[1].Batch.Paths, 1)
	})

	t.Run("capture failure is a hardware failure", func(t *testing.T) {
		w := NewWorker(stubCamera{err: errs.ErrCaptureFailed}, stubLoader{}, stubProducer{}, stubPackager{}, capture, dir, logger)
		events := runWorkerOnce(t, w)
		require.Len(t, events, 1)
		assert.Equal(t, EventSessionFailed, events[0].Kind)
		assert.True(t, errs.IsHardware(events[0].Err))
		assert.ErrorIs(t, events[0].Err, errs.ErrCaptureFailed)
	})

	t.Run("transform failure skips packaging", func(t *testing.T) {
		fail := errs.WrapTransform(errs.ErrIncompleteBatch, "Producer", "Produce", "verify")
		w := NewWorker(stubCamera{body: []byte("jpg")}, stubLoader{}, stubProducer{err: fail}, stubPackager{err: errors.New("must not run")}, capture, dir, logger)
		events := runWorkerOnce(t, w)
		require.Len(t, events, 2)
		assert.Equal(t, EventSessionFailed, events[1].Kind)
		assert.True(t, errs.IsTransform(events[1].Err))
	})

	t.Run("packaging failure", func(t *testing.T) {
		fail := errs.WrapPackaging(errs.ErrNothingToPack, "Packager", "Package", "list variants")
		w := NewWorker(stubCamera{body: []byte("jpg")}, stubLoader{}, stubProducer{}, stubPackager{err: fail}, capture, dir, logger)
		events := runWorkerOnce(t, w)
		require.Len(t, events, 2)
		assert.True(t, errs.IsPackaging(events[1].Err))
	})
}
