package transport

import (
	"errors"

	"github.com/jmylchreest/audiofocus/internal/wav"
)

// Mode is the direction a transport is opened in.
type Mode int

const (
	// ModeClosed means the transport is not open.
	ModeClosed Mode = iota
	// ModeOutput writes PCM to a DAC or speaker.
	ModeOutput
	// ModeInput reads PCM from a microphone or ADC.
	ModeInput
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeOutput:
		return "output"
	case ModeInput:
		return "input"
	default:
		return "closed"
	}
}

var (
	// ErrUnsupportedMode is returned when a driver cannot open in a mode.
	ErrUnsupportedMode = errors.New("transport mode not supported")
	// ErrAlreadyOpen is returned when a driver is opened twice.
	ErrAlreadyOpen = errors.New("transport already open")
	// ErrNotOpen is returned for I/O on a closed driver or wrong mode.
	ErrNotOpen = errors.New("transport not open")
	// ErrReleased is returned for I/O on a released lease.
	ErrReleased = errors.New("transport lease released")
)

// Driver is a physical (or simulated) digital audio interface. It is open in
// at most one mode at a time. Implementations need not be safe for
// concurrent use; the Adapter serialises access.
type Driver interface {
	// Name identifies the driver in logs.
	Name() string
	// Supports reports whether the driver can be opened in mode.
	Supports(mode Mode) bool
	// Open prepares the interface for 16-bit PCM in the given format.
	Open(mode Mode, format wav.Format) error
	// Write blocks until p has been handed to the output.
	Write(p []byte) (int, error)
	// Read blocks until p is filled with captured samples.
	Read(p []byte) (int, error)
	// Close tears the interface down. Closing a closed driver is a no-op.
	Close() error
}
