package audio

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Priority orders playback requests for focus arbitration. Only a strictly
// higher priority may interrupt an active stream.
type Priority int

const (
	PriorityBackground Priority = iota
	PriorityNotification
	PriorityAlarm
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityBackground:
		return "background"
	case PriorityNotification:
		return "notification"
	case PriorityAlarm:
		return "alarm"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority parses a priority name. "music" is accepted as an alias for
// background.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "background", "music":
		return PriorityBackground, nil
	case "notification":
		return PriorityNotification, nil
	case "alarm":
		return PriorityAlarm, nil
	default:
		return 0, fmt.Errorf("%w: unknown priority %q", ErrInvalidArgument, s)
	}
}

// Kind is the type of work a stream performs.
type Kind int

const (
	KindFilePlayback Kind = iota
	KindTonePlayback
	KindFileRecording
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFilePlayback:
		return "file-playback"
	case KindTonePlayback:
		return "tone-playback"
	case KindFileRecording:
		return "file-recording"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is a stream's lifecycle state.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateFinished
	StateStopped
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s >= StateFinished
}

// Result is the outcome of a stream, delivered once to its callback.
type Result struct {
	StreamID string
	Kind     Kind
	Priority Priority
	State    State
	// Target is the file path, or a description of the tone sequence.
	Target  string
	Message string
	// Bytes is the number of PCM bytes written to the transport or file.
	Bytes int64
	// Elapsed is the audio duration Bytes represents.
	Elapsed time.Duration
	Started time.Time
	Ended   time.Time
	Err     error
}

// OK reports whether the stream ended without error.
func (r Result) OK() bool {
	return r.Err == nil
}

// Callback receives a stream's Result. It runs after the stream's slot has
// been cleared and without any manager lock held, so it may start another
// stream. It must not call Manager.Close.
type Callback func(Result)

// body is the work a stream variant performs. It must poll s.stopping at
// every buffer boundary and return errStopped once it observes a stop.
type body interface {
	run(s *Stream) (string, error)
}

// Stream is one playback or recording session.
type Stream struct {
	id       string
	kind     Kind
	priority Priority
	target   string
	body     body
	logger   *slog.Logger

	onComplete Callback

	ctx    context.Context
	cancel context.CancelFunc

	volume      atomic.Int32
	state       atomic.Int32
	stopRequest atomic.Bool
	bytes       atomic.Int64
	// byteRate is set by bodies once the PCM format is known.
	byteRate atomic.Int64

	done chan struct{}
}

func newStreamID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate stream id: %w", err)
	}
	return id.String(), nil
}

func newStream(parent context.Context, kind Kind, priority Priority, target string, volume int, b body, cb Callback, logger *slog.Logger) (*Stream, error) {
	id, err := newStreamID()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Stream{
		id:         id,
		kind:       kind,
		priority:   priority,
		target:     target,
		body:       b,
		logger:     logger.With("stream", id, "kind", kind.String()),
		onComplete: cb,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.volume.Store(int32(clampVolume(volume)))
	return s, nil
}

// ID returns the stream's unique identity token.
func (s *Stream) ID() string { return s.id }

// Kind returns the stream variant.
func (s *Stream) Kind() Kind { return s.kind }

// Priority returns the stream's focus priority.
func (s *Stream) Priority() Priority { return s.priority }

// Target returns the file path or tone description.
func (s *Stream) Target() string { return s.target }

// State returns the current lifecycle state.
func (s *Stream) State() State { return State(s.state.Load()) }

// IsActive reports whether the stream has not yet reached a terminal state.
func (s *Stream) IsActive() bool { return !s.State().Terminal() }

// Volume returns the stream's volume (0-100).
func (s *Stream) Volume() int { return int(s.volume.Load()) }

// SetVolume updates the volume; it applies from the next buffer.
func (s *Stream) SetVolume(v int) { s.volume.Store(int32(clampVolume(v))) }

// Bytes returns the PCM bytes moved so far.
func (s *Stream) Bytes() int64 { return s.bytes.Load() }

// Elapsed returns the audio duration moved so far.
func (s *Stream) Elapsed() time.Duration {
	rate := s.byteRate.Load()
	if rate <= 0 {
		return 0
	}
	return time.Duration(s.bytes.Load()) * time.Second / time.Duration(rate)
}

// Done is closed after the stream's callback has returned.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Stop asks the stream to finish at its next buffer boundary. It does not
// wait. Stopping a finished stream is a no-op.
func (s *Stream) Stop() {
	if s.stopRequest.CompareAndSwap(false, true) {
		s.logger.Debug("stop requested")
	}
	s.cancel()
}

// stopping reports whether a stop has been requested.
func (s *Stream) stopping() bool {
	return s.stopRequest.Load()
}

// execute runs the body and converts its outcome into a Result. Panics in
// the body are reported as transport failures.
func (s *Stream) execute() (res Result) {
	defer s.cancel()

	s.state.CompareAndSwap(int32(StateCreated), int32(StateRunning))
	s.logger.Debug("stream running", "target", s.target)

	res = Result{
		StreamID: s.id,
		Kind:     s.kind,
		Priority: s.priority,
		Target:   s.target,
		Started:  time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%w: panic in stream: %v", ErrTransport, r)
			res.Message = "Error: " + res.Err.Error()
			res.State = StateFailed
			s.state.Store(int32(StateFailed))
		}
		res.Bytes = s.bytes.Load()
		res.Elapsed = s.Elapsed()
		res.Ended = time.Now()
	}()

	msg, err := s.body.run(s)
	res.Message = msg

	switch {
	case err == nil:
		res.State = StateFinished
	case errors.Is(err, errStopped):
		res.State = StateStopped
	default:
		res.State = StateFailed
		res.Err = err
		if res.Message == "" {
			res.Message = "Error: " + err.Error()
		}
	}

	s.state.Store(int32(res.State))
	return res
}

// acquireFailed maps a failed transport acquisition to the stream outcome.
// stoppedMsg is only reported when the failure was caused by a stop request.
func (s *Stream) acquireFailed(stoppedMsg string, err error) (string, error) {
	if s.stopping() {
		return stoppedMsg, errStopped
	}
	return "", fmt.Errorf("%w: %v", ErrTransport, err)
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
