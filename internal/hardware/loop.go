// Coin, button and LED handling of the booth cabinet
package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"photobooth/internal/metrics"
	"photobooth/internal/session"
)

// Input blocks until the next press (or coin pulse)
type Input interface {
	WaitForPress(ctx context.Context) error
}

// LED is the light inside the button
type LED interface {
	Set(on bool) error
}

type stage int

const (
	awaitingCoin stage = iota
	awaitingCapture
	inSession
)

func (s stage) String() string {
	switch s {
	case awaitingCoin:
		return "awaiting_coin"
	case awaitingCapture:
		return "awaiting_capture"
	case inSession:
		return "in_session"
	default:
		return "unknown"
	}
}

// Loop turns raw inputs into session triggers. Presses only count once a
// coin was inserted; the stage after that follows the transitions the
// coordinator accepted, reported through Follow.
type Loop struct {
	coin     Input
	button   Input
	led      LED
	debounce time.Duration
	recorder *metrics.Recorder
	logger   logrus.FieldLogger

	triggers chan struct{}
	wake     chan struct{}

	mu        sync.Mutex
	stage     stage
	lastPress time.Time
}

func NewLoop(coin, button Input, led LED, debounce time.Duration, recorder *metrics.Recorder, logger logrus.FieldLogger) *Loop {
	return &Loop{
		coin:     coin,
		button:   button,
		led:      led,
		debounce: debounce,
		recorder: recorder,
		logger:   logger.WithField("component", "hardware"),
		triggers: make(chan struct{}, 1),
		wake:     make(chan struct{}, 1),
	}
}

// Triggers delivers gated button presses
func (l *Loop) Triggers() <-chan struct{} {
	return l.triggers
}

// Follow mirrors an accepted session transition. A started session turns
// the LED off, a failed one keeps the coin so the customer can try again,
// and leaving the access token screen asks for the next coin.
func (l *Loop) Follow(t session.Transition) {
	switch {
	case t.Event == session.EventTrigger && t.From == session.StateCapture:
		l.setLED(false)
		l.advance(inSession)
	case t.Event == session.EventSessionFailed:
		l.logger.Info("Cycle rearmed after failed session")
		l.setLED(true)
		l.advance(awaitingCapture)
	case t.Event == session.EventTrigger && t.From == session.StateQrCode:
		l.advance(awaitingCoin)
		l.logger.Info("Waiting for coin")
	default:
		return
	}

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run drives the cabinet until ctx ends
func (l *Loop) Run(ctx context.Context) error {
	coins := forward(ctx, l.coin, l.logger.WithField("input", "coin"))
	presses := forward(ctx, l.button, l.logger.WithField("input", "button"))

	l.setLED(false)
	defer l.setLED(false)
	l.logger.Info("Waiting for coin")

	for {
		// a coin inserted mid-cycle waits for the next one
		var coinCh <-chan time.Time
		if l.current() == awaitingCoin {
			coinCh = coins
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-coinCh:
			l.recorder.RecordInput("coin")
			l.setLED(true)
			l.advance(awaitingCapture)

		case at := <-presses:
			l.press(at)

		case <-l.wake:
			// stage changed under us; recompute the coin gate
		}
	}
}

func (l *Loop) press(at time.Time) {
	l.mu.Lock()
	if l.stage == awaitingCoin {
		l.mu.Unlock()
		l.logger.Debug("Press ignored, no coin")
		return
	}
	if !l.lastPress.IsZero() && at.Sub(l.lastPress) < l.debounce {
		l.mu.Unlock()
		l.logger.Debug("Press ignored, bouncing")
		return
	}
	l.lastPress = at
	l.mu.Unlock()

	l.recorder.RecordInput("button")
	l.emit()
}

// emit hands a trigger to the coordinator without ever blocking the loop
func (l *Loop) emit() {
	select {
	case l.triggers <- struct{}{}:
	default:
		l.logger.Warn("Trigger dropped, coordinator busy")
	}
}

func (l *Loop) advance(next stage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.WithFields(logrus.Fields{"from": l.stage.String(), "to": next.String()}).Debug("Stage changed")
	l.stage = next
}

func (l *Loop) current() stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stage
}

func (l *Loop) setLED(on bool) {
	if err := l.led.Set(on); err != nil {
		l.logger.WithError(err).WithField("on", on).Warn("Failed to switch LED")
	}
}

// forward runs in for the lifetime of ctx and timestamps every press
func forward(ctx context.Context, in Input, logger logrus.FieldLogger) <-chan time.Time {
	out := make(chan time.Time)
	go func() {
		for {
			if err := in.WaitForPress(ctx); err != nil {
				if ctx.Err() == nil {
					logger.WithError(err).Error("Input stopped")
				}
				return
			}
			select {
			case out <- time.Now():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
