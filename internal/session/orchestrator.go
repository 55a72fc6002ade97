// Coordinator goroutine that owns the session state
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"photobooth/internal/delivery"
	"photobooth/internal/metrics"
)

// User-facing hints
const (
	HintIdle       = "Wirf 1€ ein, drücke den Knopf und gehe einen Schritt zurück."
	HintProcessing = "Einen Moment, die Bilder werden geschnappt ..."
	HintPreview    = "Drücke den Knopf, um zum Download der Bilder zu kommen."
	HintQrCode     = "Drücke den Knopf, um wieder zum Anfang zu kommen."
	HintFailed     = "Da ist etwas schiefgegangen. Drücke den Knopf für einen neuen Versuch."
)

// Presenter renders the booth's screens. Calls arrive from the
// coordinator goroutine only.
type Presenter interface {
	ShowCapture(hint string)
	ShowCountdown(remaining int)
	ShowProcessing(hint string)
	ShowPreview(paths []string, hint string)
	ShowAccessToken(pkg *delivery.Package, hint string)
}

// Capturer serves capture requests and reports through post
type Capturer interface {
	Run(ctx context.Context, requests <-chan struct{}, post func(Event))
}

// Orchestrator owns the session state. Run is the only goroutine that
// changes it; everything else talks to it through channels.
type Orchestrator struct {
	triggers  <-chan struct{}
	events    chan Event
	requests  chan struct{}
	worker    Capturer
	presenter Presenter
	recorder  *metrics.Recorder
	logger    logrus.FieldLogger

	countdown int
	step      time.Duration
	onChange  func(Transition)

	mu          sync.RWMutex
	state       State
	description string

	// coordinator-only
	inFlight bool
	started  time.Time
	pkg      *delivery.Package
}

// Transition is a state change the coordinator accepted. A session start
// is reported as Capture to Capture on a trigger.
type Transition struct {
	From  State
	To    State
	Event EventKind
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithCountdown sets the number of countdown units and their length
func WithCountdown(units int, step time.Duration) Option {
	return func(o *Orchestrator) {
		o.countdown = units
		o.step = step
	}
}

// WithRecorder records session outcomes
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithTransitionHook is called on the coordinator goroutine after every
// accepted transition. Ignored triggers and countdown ticks are not reported.
func WithTransitionHook(fn func(Transition)) Option {
	return func(o *Orchestrator) { o.onChange = fn }
}

func NewOrchestrator(triggers <-chan struct{}, worker Capturer, presenter Presenter, logger logrus.FieldLogger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		triggers:    triggers,
		events:      make(chan Event, 16),
		requests:    make(chan struct{}, 1),
		worker:      worker,
		presenter:   presenter,
		logger:      logger,
		countdown:   3,
		step:        time.Second,
		state:       StateCapture,
		description: HintIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Description returns the text currently shown to the user
func (o *Orchestrator) Description() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.description
}

// Run processes triggers and worker events one at a time until ctx ends
func (o *Orchestrator) Run(ctx context.Context) error {
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		o.worker.Run(ctx, o.requests, func(ev Event) { o.post(ctx, ev) })
	}()

	o.presenter.ShowCapture(HintIdle)
	o.logger.Info("Session orchestrator started")

	for {
		select {
		case <-ctx.Done():
			<-workerDone
			o.logger.Info("Session orchestrator stopped")
			return ctx.Err()
		case _, ok := <-o.triggers:
			if !ok {
				// trigger source gone; keep serving worker events
				o.triggers = nil
				continue
			}
			o.handle(ctx, Event{Kind: EventTrigger})
		case ev := <-o.events:
			o.handle(ctx, ev)
		}
	}
}

// post delivers an event to the coordinator without touching its state
func (o *Orchestrator) post(ctx context.Context, ev Event) {
	select {
	case o.events <- ev:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) handle(ctx context.Context, ev Event) {
	from := o.State()
	to := Next(from, ev.Kind)

	log := o.logger.WithFields(logrus.Fields{
		"event": ev.Kind.String(),
		"from":  from.String(),
		"to":    to.String(),
	})

	switch ev.Kind {
	case EventTrigger:
		switch from {
		case StateCapture:
			if o.inFlight {
				log.Debug("Trigger ignored, session in flight")
				return
			}
			o.inFlight = true
			o.started = time.Now()
			log.Info("Session started")
			o.notify(from, to, ev.Kind)
			o.countdownUnit(ctx, o.countdown)
		case StateResultPreview:
			o.set(to, HintQrCode)
			o.presenter.ShowAccessToken(o.pkg, HintQrCode)
			log.Info("Showing access token")
			o.notify(from, to, ev.Kind)
		case StateQrCode:
			o.pkg = nil
			o.set(to, HintIdle)
			o.presenter.ShowCapture(HintIdle)
			log.Info("Session reset")
			o.notify(from, to, ev.Kind)
		}

	case EventCountdownElapsed:
		if !o.inFlight {
			return
		}
		o.countdownUnit(ctx, ev.Remaining)

	case EventCaptureDone:
		o.set(to, HintProcessing)
		o.presenter.ShowProcessing(HintProcessing)
		log.Debug("Capture done, producing variants")

	case EventDeliveryReady:
		if from != StateCapture {
			log.Warn("Delivery arrived outside capture state")
			return
		}
		o.inFlight = false
		o.pkg = ev.Package
		o.recorder.RecordSession(true, time.Since(o.started))
		o.set(to, HintPreview)
		o.presenter.ShowPreview(ev.Batch.Paths, HintPreview)
		log.WithField("archive", ev.Package.ArchiveName).Info("Session delivered")
		o.notify(from, to, ev.Kind)

	case EventSessionFailed:
		o.inFlight = false
		o.pkg = nil
		o.recorder.RecordSession(false, time.Since(o.started))
		o.set(to, HintFailed)
		o.presenter.ShowCapture(HintFailed)
		log.WithError(ev.Err).Error("Session failed")
		o.notify(from, to, ev.Kind)
	}
}

// countdownUnit shows remaining units or, at zero, requests the capture
func (o *Orchestrator) countdownUnit(ctx context.Context, remaining int) {
	if remaining <= 0 {
		o.set(StateCapture, HintProcessing)
		select {
		case o.requests <- struct{}{}:
		default:
			o.logger.Warn("Capture request dropped, worker busy")
		}
		return
	}

	o.set(StateCapture, fmt.Sprintf("%d...", remaining))
	o.presenter.ShowCountdown(remaining)
	time.AfterFunc(o.step, func() {
		o.post(ctx, Event{Kind: EventCountdownElapsed, Remaining: remaining - 1})
	})
}

func (o *Orchestrator) notify(from, to State, kind EventKind) {
	if o.onChange != nil {
		o.onChange(Transition{From: from, To: to, Event: kind})
	}
}

func (o *Orchestrator) set(state State, description string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = state
	o.description = description
}
