// GPIO inputs and LED via periph
package hardware

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	errs "photobooth/internal/errors"
)

// edgePoll bounds how long a wait ignores context cancellation
const edgePoll = 100 * time.Millisecond

// Init loads the host GPIO drivers
func Init() error {
	if _, err := host.Init(); err != nil {
		return errs.WrapHardware(err, "hardware", "Init", "load gpio drivers")
	}
	return nil
}

// GPIOInput is an active-low contact with the internal pull-up enabled
type GPIOInput struct {
	pin gpio.PinIO
}

// OpenGPIOInput looks up the pin by name, e.g. "GPIO17"
func OpenGPIOInput(name string) (*GPIOInput, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrPinNotFound, name)
	}
	return NewGPIOInput(pin)
}

func NewGPIOInput(pin gpio.PinIO) (*GPIOInput, error) {
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, errs.WrapHardware(err, "GPIOInput", "New", "configure "+pin.Name())
	}
	return &GPIOInput{pin: pin}, nil
}

func (in *GPIOInput) WaitForPress(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if in.pin.WaitForEdge(edgePoll) {
			return nil
		}
	}
}

// GPIOLED drives an LED on an output pin
type GPIOLED struct {
	pin gpio.PinIO
}

func OpenGPIOLED(name string) (*GPIOLED, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrPinNotFound, name)
	}
	return NewGPIOLED(pin)
}

func NewGPIOLED(pin gpio.PinIO) (*GPIOLED, error) {
	if err := pin.Out(gpio.Low); err != nil {
		return nil, errs.WrapHardware(err, "GPIOLED", "New", "configure "+pin.Name())
	}
	return &GPIOLED{pin: pin}, nil
}

func (l *GPIOLED) Set(on bool) error {
	return l.pin.Out(gpio.Level(on))
}
