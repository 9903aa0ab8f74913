package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmylchreest/audiofocus/internal/tone"
	"github.com/jmylchreest/audiofocus/internal/transport"
)

// Default manager settings.
const (
	DefaultVolume             = 50
	DefaultChunkSize          = 4096
	DefaultRecordChunkSamples = 4096
	DefaultRecordSampleRate   = 16000
	DefaultMaxRecordDuration  = 60 * time.Second
)

// Capabilities are the transports present on this machine. A nil adapter
// means the capability is absent. Tone and Output may be the same adapter,
// as may Input and Output when one interface serves both directions.
type Capabilities struct {
	Output *transport.Adapter
	Tone   *transport.Adapter
	Input  *transport.Adapter
}

// Options tunes a Manager.
type Options struct {
	// Volume is the initial system volume (0-100).
	Volume int
	// ChunkSize is the number of bytes per file playback write.
	ChunkSize int
	// ToneSampleRate is the rate tones are synthesized at.
	ToneSampleRate int
	// RecordSampleRate is used when a record request gives none.
	RecordSampleRate int
	// RecordChunkSamples is the number of samples per capture read.
	RecordChunkSamples int
	// MaxRecordDuration bounds recordings that give no duration.
	MaxRecordDuration time.Duration
	Logger            *slog.Logger
	// Registerer receives the manager's metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

// DefaultOptions returns the default manager options.
func DefaultOptions() Options {
	return Options{
		Volume:             DefaultVolume,
		ChunkSize:          DefaultChunkSize,
		ToneSampleRate:     tone.DefaultSampleRate,
		RecordSampleRate:   DefaultRecordSampleRate,
		RecordChunkSamples: DefaultRecordChunkSamples,
		MaxRecordDuration:  DefaultMaxRecordDuration,
	}
}

// Manager owns the audio transports and the system volume, and tracks the
// single active playback stream and the single active recording stream.
// One Manager is created at startup and passed to whatever needs audio.
// Control methods never block on stream completion.
type Manager struct {
	caps    Capabilities
	opts    Options
	logger  *slog.Logger
	metrics *metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	volume    int
	playback  *Stream
	recording *Stream
	closed    bool

	workers      sync.WaitGroup
	completions  chan completion
	dispatchDone chan struct{}
}

// completion carries a finished stream's result back to the manager.
type completion struct {
	stream *Stream
	result Result
}

// NewManager creates a manager for the given capabilities.
func NewManager(caps Capabilities, opts Options) *Manager {
	defaults := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaults.ChunkSize
	}
	if opts.ToneSampleRate <= 0 {
		opts.ToneSampleRate = defaults.ToneSampleRate
	}
	if opts.RecordSampleRate <= 0 {
		opts.RecordSampleRate = defaults.RecordSampleRate
	}
	if opts.RecordChunkSamples <= 0 {
		opts.RecordChunkSamples = defaults.RecordChunkSamples
	}
	if opts.MaxRecordDuration <= 0 {
		opts.MaxRecordDuration = defaults.MaxRecordDuration
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		caps:         caps,
		opts:         opts,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		volume:       clampVolume(opts.Volume),
		completions:  make(chan completion),
		dispatchDone: make(chan struct{}),
	}
	m.metrics = newMetrics(opts.Registerer, logger)
	m.metrics.volume.Set(float64(m.volume))

	go m.dispatch()

	var capabilities []string
	if caps.Output != nil {
		capabilities = append(capabilities, "output="+caps.Output.Name())
	}
	if caps.Tone != nil {
		capabilities = append(capabilities, "tone="+caps.Tone.Name())
	}
	if caps.Input != nil {
		capabilities = append(capabilities, "input="+caps.Input.Name())
	}
	if len(capabilities) == 0 {
		logger.Info("audio manager initialized without audio hardware")
	} else {
		logger.Info("audio manager initialized", "capabilities", strings.Join(capabilities, ","))
	}

	return m
}

// HasOutput reports whether file playback is available.
func (m *Manager) HasOutput() bool { return m.caps.Output != nil }

// HasTone reports whether tone playback is available.
func (m *Manager) HasTone() bool { return m.caps.Tone != nil }

// HasMicrophone reports whether recording is available.
func (m *Manager) HasMicrophone() bool { return m.caps.Input != nil }

// request collects per-call options.
type request struct {
	priority    Priority
	hasPriority bool
	volume      int
	hasVolume   bool
	duration    time.Duration
	sampleRate  int
	onComplete  Callback
}

// Option customises a single play or record request.
type Option func(*request)

// WithPriority sets the focus priority of a playback request.
func WithPriority(p Priority) Option {
	return func(r *request) {
		r.priority = p
		r.hasPriority = true
	}
}

// WithVolume overrides the system volume for one playback stream.
func WithVolume(v int) Option {
	return func(r *request) {
		r.volume = v
		r.hasVolume = true
	}
}

// WithDuration limits a recording. Zero uses the configured maximum.
func WithDuration(d time.Duration) Option {
	return func(r *request) { r.duration = d }
}

// WithSampleRate sets the recording sample rate.
func WithSampleRate(hz int) Option {
	return func(r *request) { r.sampleRate = hz }
}

// OnComplete registers the stream's completion callback.
func OnComplete(cb Callback) Option {
	return func(r *request) { r.onComplete = cb }
}

func buildRequest(defaultPriority Priority, opts []Option) request {
	r := request{priority: defaultPriority}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// PlayFile plays a 16-bit PCM WAV file on the output transport. The default
// priority is PriorityBackground. It returns the new stream's ID, or an error
// wrapping ErrCapabilityUnavailable, ErrBusy or ErrInvalidArgument without
// starting anything. File and transport errors are reported to the callback.
func (m *Manager) PlayFile(path string, opts ...Option) (string, error) {
	if m.caps.Output == nil {
		m.logger.Warn("play file rejected: output not configured", "path", path)
		return "", m.metrics.reject(KindFilePlayback, fmt.Errorf("%w: no output transport", ErrCapabilityUnavailable))
	}
	if path == "" {
		return "", m.metrics.reject(KindFilePlayback, fmt.Errorf("%w: empty path", ErrInvalidArgument))
	}

	req := buildRequest(PriorityBackground, opts)
	b := &filePlayback{
		path:      path,
		adapter:   m.caps.Output,
		chunkSize: m.opts.ChunkSize,
	}
	return m.startPlayback(KindFilePlayback, path, b, req)
}

// PlayTones plays a tone sequence on the tone transport. The default
// priority is PriorityNotification.
func (m *Manager) PlayTones(notes tone.Sequence, opts ...Option) (string, error) {
	return m.playTones("tones", notes, opts)
}

// PlayTune parses "NOTE:ms" tune text and plays it like PlayTones.
func (m *Manager) PlayTune(text string, opts ...Option) (string, error) {
	notes, err := tone.ParseSequence(text)
	if err != nil {
		return "", m.metrics.reject(KindTonePlayback, fmt.Errorf("%w: %v", ErrInvalidArgument, err))
	}
	return m.playTones("tune", notes, opts)
}

// PlayRTTTL parses an RTTTL ringtone and plays it like PlayTones.
func (m *Manager) PlayRTTTL(text string, opts ...Option) (string, error) {
	rt, err := tone.ParseRTTTL(text)
	if err != nil {
		return "", m.metrics.reject(KindTonePlayback, fmt.Errorf("%w: %v", ErrInvalidArgument, err))
	}
	name := rt.Name
	if name == "" {
		name = "rtttl"
	}
	return m.playTones(name, rt.Notes, opts)
}

// PlayMelody plays one of the built-in melodies.
func (m *Manager) PlayMelody(name string, opts ...Option) (string, error) {
	notes, ok := tone.Melody(name)
	if !ok {
		return "", m.metrics.reject(KindTonePlayback, fmt.Errorf("%w: unknown melody %q", ErrInvalidArgument, name))
	}
	return m.playTones(name, notes, opts)
}

func (m *Manager) playTones(target string, notes tone.Sequence, opts []Option) (string, error) {
	if m.caps.Tone == nil {
		m.logger.Warn("play tones rejected: tone transport not configured")
		return "", m.metrics.reject(KindTonePlayback, fmt.Errorf("%w: no tone transport", ErrCapabilityUnavailable))
	}
	if len(notes) == 0 {
		return "", m.metrics.reject(KindTonePlayback, fmt.Errorf("%w: empty tone sequence", ErrInvalidArgument))
	}

	req := buildRequest(PriorityNotification, opts)
	b := &tonePlayback{
		notes:      notes,
		adapter:    m.caps.Tone,
		sampleRate: m.opts.ToneSampleRate,
	}
	return m.startPlayback(KindTonePlayback, target, b, req)
}

func (m *Manager) startPlayback(kind Kind, target string, b body, req request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", m.metrics.reject(kind, ErrClosed)
	}

	volume := m.volume
	if req.hasVolume {
		volume = req.volume
	}

	s, err := newStream(m.ctx, kind, req.priority, target, volume, b, req.onComplete, m.logger)
	if err != nil {
		return "", err
	}

	if err := m.checkFocus(req.priority); err != nil {
		s.cancel()
		return "", m.metrics.reject(kind, err)
	}

	m.playback = s
	m.launch(s)
	m.metrics.admitted.WithLabelValues(kind.String(), req.priority.String()).Inc()
	m.metrics.active.WithLabelValues(slotName(kind)).Set(1)

	m.logger.Info("playback admitted",
		"stream", s.id,
		"kind", kind.String(),
		"priority", req.priority.String(),
		"volume", s.Volume(),
		"target", target,
	)
	return s.id, nil
}

// checkFocus decides whether a playback request at priority may start,
// stopping the current stream when it is outranked. Caller holds m.mu.
func (m *Manager) checkFocus(priority Priority) error {
	if m.recording != nil && m.recording.IsActive() {
		m.logger.Info("playback rejected: recording in progress", "recording", m.recording.id)
		return fmt.Errorf("%w: recording in progress", ErrBusy)
	}

	cur := m.playback
	if cur == nil || !cur.IsActive() {
		return nil
	}

	if priority <= cur.priority {
		m.logger.Info("playback rejected",
			"priority", priority.String(),
			"current_priority", cur.priority.String(),
			"current", cur.id,
		)
		return fmt.Errorf("%w: priority %s does not outrank %s", ErrBusy, priority, cur.priority)
	}

	m.logger.Info("interrupting playback",
		"priority", priority.String(),
		"current_priority", cur.priority.String(),
		"current", cur.id,
	)
	cur.Stop()
	m.metrics.preempted.WithLabelValues(cur.priority.String()).Inc()
	return nil
}

// RecordFile records 16-bit mono PCM from the input into a WAV file.
// Recording has no priority: it is refused with ErrBusy whenever a playback
// or another recording is active.
func (m *Manager) RecordFile(path string, opts ...Option) (string, error) {
	if m.caps.Input == nil {
		m.logger.Warn("record rejected: microphone not configured", "path", path)
		return "", m.metrics.reject(KindFileRecording, fmt.Errorf("%w: no input transport", ErrCapabilityUnavailable))
	}
	if path == "" {
		return "", m.metrics.reject(KindFileRecording, fmt.Errorf("%w: empty path", ErrInvalidArgument))
	}

	req := buildRequest(PriorityBackground, opts)
	if req.sampleRate == 0 {
		req.sampleRate = m.opts.RecordSampleRate
	}
	if req.sampleRate < 0 {
		return "", m.metrics.reject(KindFileRecording, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidArgument, req.sampleRate))
	}
	if req.duration < 0 {
		return "", m.metrics.reject(KindFileRecording, fmt.Errorf("%w: duration must not be negative", ErrInvalidArgument))
	}
	if req.duration == 0 {
		req.duration = m.opts.MaxRecordDuration
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", m.metrics.reject(KindFileRecording, ErrClosed)
	}
	if m.playback != nil && m.playback.IsActive() {
		m.logger.Info("record rejected: playback in progress", "path", path)
		return "", m.metrics.reject(KindFileRecording, fmt.Errorf("%w: cannot record while playing", ErrBusy))
	}
	if m.recording != nil && m.recording.IsActive() {
		m.logger.Info("record rejected: already recording", "path", path)
		return "", m.metrics.reject(KindFileRecording, fmt.Errorf("%w: already recording", ErrBusy))
	}

	b := &fileRecording{
		path:         path,
		adapter:      m.caps.Input,
		sampleRate:   req.sampleRate,
		duration:     req.duration,
		chunkSamples: m.opts.RecordChunkSamples,
		idle:         10 * time.Millisecond,
	}
	s, err := newStream(m.ctx, KindFileRecording, req.priority, path, m.volume, b, req.onComplete, m.logger)
	if err != nil {
		return "", err
	}

	m.recording = s
	m.launch(s)
	m.metrics.admitted.WithLabelValues(KindFileRecording.String(), "none").Inc()
	m.metrics.active.WithLabelValues(slotName(KindFileRecording)).Set(1)

	m.logger.Info("recording admitted",
		"stream", s.id,
		"path", path,
		"sample_rate", req.sampleRate,
		"duration", req.duration,
	)
	return s.id, nil
}

// Stop stops the active playback and recording, if any. It does not wait
// for them to finish. It reports whether anything was stopped.
func (m *Manager) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	stopped := false
	if m.playback != nil && m.playback.IsActive() {
		m.playback.Stop()
		m.logger.Info("playback stopped", "stream", m.playback.id)
		stopped = true
	}
	if m.recording != nil && m.recording.IsActive() {
		m.recording.Stop()
		m.logger.Info("recording stopped", "stream", m.recording.id)
		stopped = true
	}
	if !stopped {
		m.logger.Info("no playback or recording to stop")
	}
	return stopped
}

// SetVolume sets the system volume, clamped to 0-100. The active playback
// stream picks it up from its next buffer; new streams start with it.
func (m *Manager) SetVolume(v int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.volume = clampVolume(v)
	m.metrics.volume.Set(float64(m.volume))
	if m.playback != nil && m.playback.IsActive() {
		m.playback.SetVolume(m.volume)
	}
	m.logger.Debug("volume set", "volume", m.volume)
}

// GetVolume returns the system volume.
func (m *Manager) GetVolume() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// IsPlaying reports whether a playback stream is active.
func (m *Manager) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playback != nil && m.playback.IsActive()
}

// IsRecording reports whether a recording stream is active.
func (m *Manager) IsRecording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording != nil && m.recording.IsActive()
}

// Playback returns the active playback stream, or nil.
func (m *Manager) Playback() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playback != nil && m.playback.IsActive() {
		return m.playback
	}
	return nil
}

// Recording returns the active recording stream, or nil.
func (m *Manager) Recording() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recording != nil && m.recording.IsActive() {
		return m.recording
	}
	return nil
}

// launch starts s on its own goroutine. Caller holds m.mu.
func (m *Manager) launch(s *Stream) {
	m.workers.Add(1)
	go func() {
		defer m.workers.Done()
		res := s.execute()
		m.completions <- completion{stream: s, result: res}
	}()
}

// dispatch receives finished streams, clears their slot and runs their
// callback, in that order.
func (m *Manager) dispatch() {
	defer close(m.dispatchDone)

	for c := range m.completions {
		m.release(c.stream)

		res := c.result
		switch res.State {
		case StateFailed:
			m.logger.Warn("stream failed", "stream", res.StreamID, "kind", res.Kind.String(), "target", res.Target, "error", res.Err)
		default:
			m.logger.Info("stream ended", "stream", res.StreamID, "kind", res.Kind.String(), "state", res.State.String(), "bytes", res.Bytes)
		}

		m.metrics.completed.WithLabelValues(res.Kind.String(), res.State.String()).Inc()
		m.metrics.bytes.WithLabelValues(res.Kind.String()).Add(float64(res.Bytes))

		m.notify(c.stream, res)
		close(c.stream.done)
	}
}

// release clears the slot held by s. A slot already taken over by a newer
// stream is left alone.
func (m *Manager) release(s *Stream) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.playback != nil && m.playback.id == s.id {
		m.playback = nil
		m.metrics.active.WithLabelValues(slotName(KindFilePlayback)).Set(0)
	}
	if m.recording != nil && m.recording.id == s.id {
		m.recording = nil
		m.metrics.active.WithLabelValues(slotName(KindFileRecording)).Set(0)
	}
}

func (m *Manager) notify(s *Stream, res Result) {
	if s.onComplete == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("completion callback panicked", "stream", s.id, "panic", r)
		}
	}()
	s.onComplete(res)
}

// Close stops all streams and waits for them to finish or ctx to expire.
// Requests made after Close fail with ErrClosed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.playback != nil {
		m.playback.Stop()
	}
	if m.recording != nil {
		m.recording.Stop()
	}
	m.mu.Unlock()

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for audio streams: %w", ctx.Err())
	}

	close(m.completions)
	<-m.dispatchDone

	m.logger.Debug("audio manager closed")
	return nil
}
