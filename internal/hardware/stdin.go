// Keyboard trigger for machines without a cabinet
package hardware

import (
	"bufio"
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// LineInput treats every line read from r as one press. Used with stdin
// on machines without a cabinet.
type LineInput struct {
	presses chan struct{}
	done    chan struct{}
	err     error
}

func NewLineInput(r io.Reader) *LineInput {
	in := &LineInput{
		presses: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(in.done)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			in.presses <- struct{}{}
		}
		in.err = scanner.Err()
		if in.err == nil {
			in.err = io.EOF
		}
	}()
	return in
}

func (in *LineInput) WaitForPress(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-in.presses:
		return nil
	case <-in.done:
		return in.err
	}
}

// FreePlay is a coin slot that is always paid
type FreePlay struct{}

func (FreePlay) WaitForPress(ctx context.Context) error {
	return ctx.Err()
}

// LogLED reports LED changes in the log
type LogLED struct {
	Logger logrus.FieldLogger
}

func (l LogLED) Set(on bool) error {
	l.Logger.WithField("on", on).Debug("LED")
	return nil
}
