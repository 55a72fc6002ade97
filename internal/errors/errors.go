// Package errors classifies photobooth failures so the session can decide
// between returning to idle and keeping the current cycle alive.
//
// Every component wraps its failures with Wrap (or one of the classified
// variants) so that messages follow the "component.method: action failed"
// pattern and errors.Is/errors.As keep working through the chain.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the failure taxonomy of a photobooth session
type ErrorClass int

const (
	// ClassUnknown is used for errors that were never classified
	ClassUnknown ErrorClass = iota
	// ClassHardware covers camera and trigger device failures
	ClassHardware
	// ClassTransform covers filter steps rejecting or breaking on their input
	ClassTransform
	// ClassPackaging covers archive and access token creation
	ClassPackaging
	// ClassLiveness covers a composition tier that could not satisfy its minimum
	ClassLiveness
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ClassHardware:
		return "hardware"
	case ClassTransform:
		return "transform"
	case ClassPackaging:
		return "packaging"
	case ClassLiveness:
		return "liveness"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Image errors
	ErrEmptyImage        = errors.New("image is empty")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrImageTooSmall     = errors.New("image too small for transform")
	ErrUnknownFilter     = errors.New("unknown filter")

	// Hardware errors
	ErrCaptureFailed   = errors.New("capture failed")
	ErrDeviceNotOpened = errors.New("capture device not opened")
	ErrPinNotFound     = errors.New("gpio pin not found")

	// Batch errors
	ErrIncompleteBatch = errors.New("variant batch incomplete")

	// Packaging errors
	ErrArchiveExists = errors.New("archive already exists")
	ErrNothingToPack = errors.New("no artifacts to package")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapClassified(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{
		Class:     class,
		Err:       Wrap(err, component, method, action),
		Component: component,
		Operation: method,
	}
}

// WrapHardware wraps an error as a hardware failure with context
func WrapHardware(err error, component, method, action string) error {
	return wrapClassified(ClassHardware, err, component, method, action)
}

// WrapTransform wraps an error as a transform failure with context
func WrapTransform(err error, component, method, action string) error {
	return wrapClassified(ClassTransform, err, component, method, action)
}

// WrapPackaging wraps an error as a packaging failure with context
func WrapPackaging(err error, component, method, action string) error {
	return wrapClassified(ClassPackaging, err, component, method, action)
}

// WrapLiveness wraps an error as a liveness failure with context
func WrapLiveness(err error, component, method, action string) error {
	return wrapClassified(ClassLiveness, err, component, method, action)
}

// Classify returns the outermost classification found in the error chain
func Classify(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassUnknown
}

// IsHardware checks if an error is a hardware failure
func IsHardware(err error) bool {
	return err != nil && Classify(err) == ClassHardware
}

// IsTransform checks if an error is a transform failure
func IsTransform(err error) bool {
	return err != nil && Classify(err) == ClassTransform
}

// IsPackaging checks if an error is a packaging failure
func IsPackaging(err error) bool {
	return err != nil && Classify(err) == ClassPackaging
}

// Is reports whether any error in err's chain matches target.
// Re-exported so callers need a single errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
