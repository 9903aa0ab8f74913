package audio

import "errors"

var (
	// ErrCapabilityUnavailable means the required transport is not configured.
	ErrCapabilityUnavailable = errors.New("audio capability unavailable")
	// ErrBusy means focus was refused or the recording slot is occupied.
	ErrBusy = errors.New("audio busy")
	// ErrInvalidArgument means the request itself was malformed.
	ErrInvalidArgument = errors.New("invalid audio argument")
	// ErrTransport reports a hardware I/O failure inside a running stream.
	ErrTransport = errors.New("audio transport error")
	// ErrStorage reports a file create, read, write or seek failure.
	ErrStorage = errors.New("audio storage error")
	// ErrClosed is returned by requests made after Close.
	ErrClosed = errors.New("audio manager closed")

	// errStopped is returned by stream bodies that observed a stop request.
	errStopped = errors.New("stream stopped")
)
