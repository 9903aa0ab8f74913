package transport

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/jmylchreest/audiofocus/internal/wav"
)

// DefaultSpeakerRate is the rate the desktop speaker is initialised at.
const DefaultSpeakerRate = 44100

// Speaker plays PCM through the desktop's default output device. It is
// output only. The underlying device is initialised once on first Open and
// kept for the life of the process; Close only drops queued audio.
type Speaker struct {
	logger     *slog.Logger
	sampleRate beep.SampleRate
	bufferSize time.Duration

	mu          sync.Mutex
	initialized bool
	open        bool
	format      wav.Format
}

// NewSpeaker returns a speaker driver.
func NewSpeaker(logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{
		logger:     logger,
		sampleRate: beep.SampleRate(DefaultSpeakerRate),
		bufferSize: 100 * time.Millisecond,
	}
}

// Name implements Driver.
func (s *Speaker) Name() string { return "speaker" }

// Supports implements Driver.
func (s *Speaker) Supports(mode Mode) bool { return mode == ModeOutput }

// Open implements Driver.
func (s *Speaker) Open(mode Mode, format wav.Format) error {
	if mode != ModeOutput {
		return ErrUnsupportedMode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return ErrAlreadyOpen
	}
	if !s.initialized {
		if err := speaker.Init(s.sampleRate, s.sampleRate.N(s.bufferSize)); err != nil {
			return fmt.Errorf("failed to initialize speaker: %w", err)
		}
		s.initialized = true
		s.logger.Debug("speaker initialized", "sample_rate", s.sampleRate)
	}

	s.open = true
	s.format = format
	return nil
}

// Write implements Driver. It blocks until the chunk has been played.
func (s *Speaker) Write(p []byte) (int, error) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return 0, ErrNotOpen
	}
	format := s.format
	rate := s.sampleRate
	s.mu.Unlock()

	var streamer beep.Streamer = newPCMStreamer(p, format.Channels)
	if src := beep.SampleRate(format.SampleRate); src != rate {
		streamer = beep.Resample(4, src, rate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(streamer, beep.Callback(func() { close(done) })))
	<-done

	return len(p), nil
}

// Read implements Driver.
func (s *Speaker) Read(p []byte) (int, error) {
	return 0, ErrUnsupportedMode
}

// Close implements Driver.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open && s.initialized {
		speaker.Clear()
	}
	s.open = false
	return nil
}

// Shutdown releases the audio device. The speaker cannot be reopened.
func (s *Speaker) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		speaker.Close()
		s.initialized = false
	}
	s.open = false
}

// pcmStreamer adapts little-endian signed 16-bit PCM to a beep.Streamer.
type pcmStreamer struct {
	data     []byte
	channels int
	pos      int
}

func newPCMStreamer(data []byte, channels int) *pcmStreamer {
	if channels < 1 {
		channels = 1
	}
	return &pcmStreamer{data: data, channels: channels}
}

func (p *pcmStreamer) frameSize() int {
	return 2 * p.channels
}

// Stream implements beep.Streamer.
func (p *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	fs := p.frameSize()
	for n < len(samples) && p.pos+fs <= len(p.data) {
		left := float64(int16(binary.LittleEndian.Uint16(p.data[p.pos:]))) / 32768
		right := left
		if p.channels > 1 {
			right = float64(int16(binary.LittleEndian.Uint16(p.data[p.pos+2:]))) / 32768
		}
		samples[n][0] = left
		samples[n][1] = right
		p.pos += fs
		n++
	}
	return n, n > 0
}

// Err implements beep.Streamer.
func (p *pcmStreamer) Err() error {
	return nil
}
