package transport

import (
	"sync"
	"time"

	"github.com/jmylchreest/audiofocus/internal/tone"
	"github.com/jmylchreest/audiofocus/internal/wav"
)

// SimulatedOptions configures a Simulated driver.
type SimulatedOptions struct {
	// Realtime paces reads and writes at the audio's real duration.
	Realtime bool
	// WriteDelay is added to every write when Realtime is off.
	WriteDelay time.Duration
	// Frequency of the synthetic capture signal. Defaults to 440 Hz.
	Frequency float64
	// Amplitude of the synthetic capture signal. Defaults to 16000.
	Amplitude int
	// Output and Input select the supported modes. Both default to true
	// when neither is set.
	Output bool
	Input  bool
}

// Simulated is a software transport for desktops and tests. Output is
// discarded (its chunk sizes are recorded); input is a phase-continuous
// sine test tone rather than real microphone data.
type Simulated struct {
	opts SimulatedOptions

	mu     sync.Mutex
	mode   Mode
	format wav.Format
	osc    *tone.Oscillator

	writes  []int
	opens   []Mode
	written int64

	writeErr error
	readErr  error
}

// NewSimulated returns a simulated driver.
func NewSimulated(opts SimulatedOptions) *Simulated {
	if opts.Frequency <= 0 {
		opts.Frequency = 440
	}
	if opts.Amplitude == 0 {
		opts.Amplitude = tone.DefaultAmplitude
	}
	if !opts.Output && !opts.Input {
		opts.Output = true
		opts.Input = true
	}
	return &Simulated{opts: opts}
}

// Name implements Driver.
func (s *Simulated) Name() string { return "simulated" }

// Supports implements Driver.
func (s *Simulated) Supports(mode Mode) bool {
	switch mode {
	case ModeOutput:
		return s.opts.Output
	case ModeInput:
		return s.opts.Input
	default:
		return false
	}
}

// Open implements Driver.
func (s *Simulated) Open(mode Mode, format wav.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeClosed {
		return ErrAlreadyOpen
	}
	if !s.Supports(mode) {
		return ErrUnsupportedMode
	}

	s.mode = mode
	s.format = format
	s.opens = append(s.opens, mode)
	if mode == ModeInput {
		s.osc = &tone.Oscillator{
			Frequency:  s.opts.Frequency,
			SampleRate: format.SampleRate,
			Amplitude:  s.opts.Amplitude,
		}
	}
	return nil
}

// Write implements Driver.
func (s *Simulated) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.mode != ModeOutput {
		s.mu.Unlock()
		return 0, ErrNotOpen
	}
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return 0, err
	}
	s.writes = append(s.writes, len(p))
	s.written += int64(len(p))
	delay := s.pace(len(p))
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return len(p), nil
}

// Read implements Driver.
func (s *Simulated) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.mode != ModeInput {
		s.mu.Unlock()
		return 0, ErrNotOpen
	}
	if s.readErr != nil {
		err := s.readErr
		s.mu.Unlock()
		return 0, err
	}
	n := len(p) &^ 1
	s.osc.Fill(p[:n])
	var delay time.Duration
	if s.opts.Realtime {
		delay = s.pace(n)
	}
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return n, nil
}

// pace returns how long handling n bytes should take. Caller holds s.mu.
func (s *Simulated) pace(n int) time.Duration {
	if !s.opts.Realtime {
		return s.opts.WriteDelay
	}
	rate := s.format.ByteRate()
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// Close implements Driver.
func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ModeClosed
	s.osc = nil
	return nil
}

// Mode returns the mode the driver is open in.
func (s *Simulated) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Writes returns the size of every chunk written so far.
func (s *Simulated) Writes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.writes))
	copy(out, s.writes)
	return out
}

// BytesWritten returns the total number of bytes written.
func (s *Simulated) BytesWritten() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Opens returns the modes of every Open call, in order.
func (s *Simulated) Opens() []Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Mode, len(s.opens))
	copy(out, s.opens)
	return out
}

// Reset clears recorded writes and opens.
func (s *Simulated) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = nil
	s.opens = nil
	s.written = 0
}

// FailWrites makes subsequent writes return err. Pass nil to recover.
func (s *Simulated) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// FailReads makes subsequent reads return err. Pass nil to recover.
func (s *Simulated) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}
