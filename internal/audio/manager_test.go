package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/audiofocus/internal/tone"
	"github.com/jmylchreest/audiofocus/internal/transport"
	"github.com/jmylchreest/audiofocus/internal/wav"
)

// results collects completion callbacks.
type results struct {
	mu  sync.Mutex
	got map[string]Result
	ch  chan Result
}

func newResults() *results {
	return &results{got: make(map[string]Result), ch: make(chan Result, 16)}
}

func (r *results) callback(res Result) {
	r.mu.Lock()
	r.got[res.StreamID] = res
	r.mu.Unlock()
	r.ch <- res
}

func (r *results) wait(t *testing.T) Result {
	t.Helper()
	select {
	case res := <-r.ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stream completion")
		return Result{}
	}
}

func newTestManager(t *testing.T, opts transport.SimulatedOptions) (*Manager, *transport.Simulated) {
	t.Helper()
	sim := transport.NewSimulated(opts)
	adapter := transport.NewAdapter(sim, nil)

	m := NewManager(Capabilities{Output: adapter, Tone: adapter, Input: adapter}, DefaultOptions())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})
	return m, sim
}

// longTune is a tone sequence that takes a while with a write delay.
func longTune(n int) tone.Sequence {
	seq := make(tone.Sequence, n)
	for i := range seq {
		seq[i] = tone.Note{Frequency: 440, DurationMs: 10}
	}
	return seq
}

func writeWAV(t *testing.T, path string, format wav.Format, samples int) {
	t.Helper()
	data := make([]byte, samples*format.BlockAlign())
	for i := 0; i+1 < len(data); i += 2 {
		binary.LittleEndian.PutUint16(data[i:], uint16(1000))
	}
	content := append(wav.BuildHeader(format, uint32(len(data))), data...)
	require.NoError(t, os.WriteFile(path, content, 0644))
}

func waitDone(t *testing.T, s *Stream) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("stream %s did not finish", s.ID())
	}
}

func TestManager_Capabilities(t *testing.T) {
	m := NewManager(Capabilities{}, DefaultOptions())
	defer m.Close(context.Background())

	assert.False(t, m.HasOutput())
	assert.False(t, m.HasTone())
	assert.False(t, m.HasMicrophone())

	_, err := m.PlayFile("x.wav")
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)
	_, err = m.PlayTones(longTune(1))
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)
	_, err = m.RecordFile("x.wav")
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)

	assert.False(t, m.IsPlaying())
	assert.False(t, m.IsRecording())
}

func TestManager_InvalidArguments(t *testing.T) {
	m, _ := newTestManager(t, transport.SimulatedOptions{})

	_, err := m.PlayFile("")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = m.PlayTones(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = m.PlayTune("A4")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = m.PlayRTTTL("broken")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = m.PlayMelody("nope")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = m.RecordFile(filepath.Join(t.TempDir(), "r.wav"), WithSampleRate(-1))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = m.RecordFile(filepath.Join(t.TempDir(), "r.wav"), WithDuration(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.False(t, m.IsPlaying(), "rejected requests must not start streams")
}

func TestManager_MelodyChunks(t *testing.T) {
	m, sim := newTestManager(t, transport.SimulatedOptions{})
	res := newResults()

	a4, _ := tone.Frequency("A4")
	_, err := m.PlayTones(tone.Sequence{
		{Frequency: a4, DurationMs: 100},
		{Frequency: 0, DurationMs: 50},
		{Frequency: a4, DurationMs: 100},
	}, OnComplete(res.callback))
	require.NoError(t, err)

	r := res.wait(t)
	assert.Equal(t, StateFinished, r.State)
	assert.NoError(t, r.Err)
	assert.Equal(t, []int{2 * 2205, 2 * 1102, 2 * 2205}, sim.Writes())
	assert.Equal(t, int64(2*2205+2*1102+2*2205), r.Bytes)
}

func TestManager_PreemptsLowerPriority(t *testing.T) {
	priorities := []Priority{PriorityBackground, PriorityNotification, PriorityAlarm}

	for i, low := range priorities {
		for _, high := range priorities[i+1:] {
			t.Run(low.String()+"->"+high.String(), func(t *testing.T) {
				m, _ := newTestManager(t, transport.SimulatedOptions{WriteDelay: 5 * time.Millisecond})
				res := newResults()

				oldID, err := m.PlayTones(longTune(200), WithPriority(low), OnComplete(res.callback))
				require.NoError(t, err)
				require.True(t, m.IsPlaying())

				newID, err := m.PlayTones(longTune(2), WithPriority(high), OnComplete(res.callback))
				require.NoError(t, err)
				assert.NotEqual(t, oldID, newID)

				byID := map[string]Result{}
				for range 2 {
					r := res.wait(t)
					byID[r.StreamID] = r
				}

				assert.Equal(t, StateStopped, byID[oldID].State)
				assert.Equal(t, StateFinished, byID[newID].State)
			})
		}
	}
}

func TestManager_RejectsEqualOrLowerPriority(t *testing.T) {
	for _, tc := range []struct {
		current   Priority
		requested Priority
	}{
		{PriorityNotification, PriorityBackground},
		{PriorityAlarm, PriorityNotification},
		{PriorityAlarm, PriorityBackground},
		{PriorityBackground, PriorityBackground},
		{PriorityAlarm, PriorityAlarm},
	} {
		t.Run(tc.current.String()+"<-"+tc.requested.String(), func(t *testing.T) {
			m, _ := newTestManager(t, transport.SimulatedOptions{WriteDelay: 2 * time.Millisecond})
			res := newResults()

			id, err := m.PlayTones(longTune(30), WithPriority(tc.current), OnComplete(res.callback))
			require.NoError(t, err)

			_, err = m.PlayTones(longTune(1), WithPriority(tc.requested), OnComplete(res.callback))
			assert.ErrorIs(t, err, ErrBusy)

			r := res.wait(t)
			assert.Equal(t, id, r.StreamID)
			assert.Equal(t, StateFinished, r.State, "current stream must be unaffected")

			select {
			case extra := <-res.ch:
				t.Fatalf("rejected request produced a stream: %+v", extra)
			case <-time.After(20 * time.Millisecond):
			}
		})
	}
}

func TestManager_SequentialEqualPriorityAfterFinish(t *testing.T) {
	m, sim := newTestManager(t, transport.SimulatedOptions{})
	res := newResults()

	path := filepath.Join(t.TempDir(), "clip.wav")
	writeWAV(t, path, wav.Mono16(8000), 800)

	_, err := m.PlayFile(path, OnComplete(res.callback))
	require.NoError(t, err)
	r := res.wait(t)
	require.Equal(t, StateFinished, r.State)

	_, err = m.PlayFile(path, OnComplete(res.callback))
	require.NoError(t, err, "a finished stream must not hold focus")
	r = res.wait(t)
	assert.Equal(t, StateFinished, r.State)
	assert.Equal(t, int64(2*1600), sim.BytesWritten())
}

func TestManager_PlayFile_Chunks(t *testing.T) {
	m, sim := newTestManager(t, transport.SimulatedOptions{})
	res := newResults()

	path := filepath.Join(t.TempDir(), "stereo.wav")
	format := wav.Format{SampleRate: 44100, Channels: 2, BitsPerSample: 16}
	writeWAV(t, path, format, 3000) // 12000 bytes

	_, err := m.PlayFile(path, WithVolume(100), OnComplete(res.callback))
	require.NoError(t, err)

	r := res.wait(t)
	require.Equal(t, StateFinished, r.State, "err: %v", r.Err)
	assert.Equal(t, int64(12000), r.Bytes)
	assert.Equal(t, []int{4096, 4096, 3808}, sim.Writes())
	assert.Equal(t, "Finished: "+path, r.Message)
}

func TestManager_PlayFile_Errors(t *testing.T) {
	m, _ := newTestManager(t, transport.SimulatedOptions{})
	res := newResults()

	_, err := m.PlayFile(filepath.Join(t.TempDir(), "missing.wav"), OnComplete(res.callback))
	require.NoError(t, err, "missing files are reported asynchronously")
	r := res.wait(t)
	assert.Equal(t, StateFailed, r.State)
	assert.ErrorIs(t, r.Err, ErrStorage)

	bad := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(bad, []byte("not a wav file at all, clearly"), 0644))
	_, err = m.PlayFile(bad, OnComplete(res.callback))
	require.NoError(t, err)
	r = res.wait(t)
	assert.Equal(t, StateFailed, r.State)
	assert.ErrorIs(t, r.Err, ErrInvalidArgument)

	assert.False(t, m.IsPlaying())
}

func TestManager_TransportFailureKeepsManagerUsable(t *testing.T) {
	m, sim := newTestManager(t, transport.SimulatedOptions{})
	res := newResults()

	sim.FailWrites(errors.New("i2s write failed"))
	_, err := m.PlayTones(longTune(3), OnComplete(res.callback))
	require.NoError(t, err)

	r := res.wait(t)
	assert.Equal(t, StateFailed, r.State)
	assert.ErrorIs(t, r.Err, ErrTransport)

	sim.FailWrites(nil)
	_, err = m.PlayTones(longTune(3), OnComplete(res.callback))
	require.NoError(t, err)
	r = res.wait(t)
	assert.Equal(t, StateFinished, r.State)
}

func TestManager_AcquireFailureReportsError(t *testing.T) {
	inputOnly := transport.NewAdapter(transport.NewSimulated(transport.SimulatedOptions{Input: true}), nil)
	m := NewManager(Capabilities{Tone: inputOnly, Output: inputOnly, Input: inputOnly}, DefaultOptions())
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	res := newResults()

	_, err := m.PlayTones(longTune(1), OnComplete(res.callback))
	require.NoError(t, err)
	r := res.wait(t)
	assert.Equal(t, StateFailed, r.State)
	assert.ErrorIs(t, r.Err, ErrTransport)
	assert.NotContains(t, r.Message, "Stopped")
	assert.Contains(t, r.Message, "Error: ")

	path := filepath.Join(t.TempDir(), "a.wav")
	writeWAV(t, path, wav.Mono16(8000), 100)
	_, err = m.PlayFile(path, OnComplete(res.callback))
	require.NoError(t, err)
	r = res.wait(t)
	assert.Equal(t, StateFailed, r.State)
	assert.NotContains(t, r.Message, "Stopped")
}

func TestManager_RecordRefusedWhileBusy(t *testing.T) {
	m, _ := newTestManager(t, transport.SimulatedOptions{WriteDelay: 5 * time.Millisecond})
	dir := t.TempDir()

	_, err := m.PlayTones(longTune(100), WithPriority(PriorityBackground))
	require.NoError(t, err)
	require.True(t, m.IsPlaying())

	_, err = m.RecordFile(filepath.Join(dir, "a.wav"))
	assert.ErrorIs(t, err, ErrBusy)

	s := m.Playback()
	require.NotNil(t, s)
	require.True(t, m.Stop())
	waitDone(t, s)

	sim := transport.NewSimulated(transport.SimulatedOptions{Realtime: true})
	m2 := NewManager(Capabilities{Input: transport.NewAdapter(sim, nil)}, DefaultOptions())
	defer m2.Close(context.Background())

	_, err = m2.RecordFile(filepath.Join(dir, "b.wav"), WithDuration(time.Second))
	require.NoError(t, err)
	require.True(t, m2.IsRecording())

	_, err = m2.RecordFile(filepath.Join(dir, "c.wav"))
	assert.ErrorIs(t, err, ErrBusy)
	require.True(t, m2.Stop())
}

func TestManager_PlaybackRefusedWhileRecording(t *testing.T) {
	m, _ := newTestManager(t, transport.SimulatedOptions{Realtime: true})

	_, err := m.RecordFile(filepath.Join(t.TempDir(), "r.wav"), WithDuration(2*time.Second))
	require.NoError(t, err)

	_, err = m.PlayTones(longTune(1), WithPriority(PriorityAlarm))
	assert.ErrorIs(t, err, ErrBusy)
	assert.True(t, m.IsRecording())
}

func TestManager_RecordSimulated(t *testing.T) {
	m, _ := newTestManager(t, transport.SimulatedOptions{})
	res := newResults()

	path := filepath.Join(t.TempDir(), "sub", "rec.wav")
	_, err := m.RecordFile(path, WithDuration(time.Second), WithSampleRate(16000), OnComplete(res.callback))
	require.NoError(t, err)

	r := res.wait(t)
	require.Equal(t, StateFinished, r.State, "err: %v", r.Err)
	assert.Equal(t, int64(32000), r.Bytes)
	assert.Equal(t, "Recorded: "+path, r.Message)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, wav.HeaderSize+32000)

	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(data[40:44]))
	assert.Equal(t, uint32(32036), binary.LittleEndian.Uint32(data[4:8]))
	assert.Equal(t, wav.BuildHeader(wav.Mono16(16000), 32000), data[:wav.HeaderSize])

	// Simulated input is a 440 Hz test tone starting at zero phase.
	assert.Equal(t, tone.Generate(440, 100, 16000, tone.DefaultAmplitude), data[wav.HeaderSize:wav.HeaderSize+3200])
}

func TestManager_RecordStoppedIsPatched(t *testing.T) {
	m, _ := newTestManager(t, transport.SimulatedOptions{Realtime: true})
	res := newResults()

	path := filepath.Join(t.TempDir(), "rec.wav")
	_, err := m.RecordFile(path, WithDuration(10*time.Second), OnComplete(res.callback))
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	require.True(t, m.Stop())

	r := res.wait(t)
	assert.Equal(t, StateStopped, r.State)
	require.Greater(t, r.Bytes, int64(0))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(r.Bytes), binary.LittleEndian.Uint32(data[40:44]))
	assert.Equal(t, int(r.Bytes)+wav.HeaderSize, len(data))
}

func TestManager_RecordReadFailure(t *testing.T) {
	m, sim := newTestManager(t, transport.SimulatedOptions{})
	res := newResults()

	sim.FailReads(errors.New("adc read failed"))
	path := filepath.Join(t.TempDir(), "rec.wav")
	_, err := m.RecordFile(path, OnComplete(res.callback))
	require.NoError(t, err)

	r := res.wait(t)
	assert.Equal(t, StateFailed, r.State)
	assert.ErrorIs(t, r.Err, ErrTransport)
	assert.Equal(t, int64(0), r.Bytes)

	// Nothing was captured, so the placeholder header is kept.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(placeholderDataSize), binary.LittleEndian.Uint32(data[40:44]))
	assert.False(t, m.IsRecording())
}

func TestManager_RecordStorageFailure(t *testing.T) {
	m, _ := newTestManager(t, transport.SimulatedOptions{})
	res := newResults()

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	_, err := m.RecordFile(filepath.Join(blocker, "rec.wav"), OnComplete(res.callback))
	require.NoError(t, err)

	r := res.wait(t)
	assert.Equal(t, StateFailed, r.State)
	assert.ErrorIs(t, r.Err, ErrStorage)
}

func TestManager_StopIdempotent(t *testing.T) {
	m, _ := newTestManager(t, transport.SimulatedOptions{WriteDelay: 5 * time.Millisecond})
	res := newResults()

	assert.False(t, m.Stop(), "nothing to stop")

	_, err := m.PlayTones(longTune(100), OnComplete(res.callback))
	require.NoError(t, err)

	assert.True(t, m.Stop())
	m.Stop()

	r := res.wait(t)
	assert.Equal(t, StateStopped, r.State)
	assert.False(t, m.IsPlaying())
	assert.False(t, m.Stop())
}

func TestManager_Volume(t *testing.T) {
	m, _ := newTestManager(t, transport.SimulatedOptions{WriteDelay: 5 * time.Millisecond})

	assert.Equal(t, DefaultVolume, m.GetVolume())

	m.SetVolume(150)
	assert.Equal(t, 100, m.GetVolume())
	m.SetVolume(-3)
	assert.Equal(t, 0, m.GetVolume())
	m.SetVolume(70)

	_, err := m.PlayTones(longTune(100))
	require.NoError(t, err)
	s := m.Playback()
	require.NotNil(t, s)
	assert.Equal(t, 70, s.Volume())

	m.SetVolume(20)
	assert.Equal(t, 20, s.Volume(), "volume propagates to the active stream")
	m.Stop()
}

func TestManager_VolumeOverride(t *testing.T) {
	m, _ := newTestManager(t, transport.SimulatedOptions{WriteDelay: 5 * time.Millisecond})

	_, err := m.PlayTones(longTune(100), WithVolume(15))
	require.NoError(t, err)
	s := m.Playback()
	require.NotNil(t, s)
	assert.Equal(t, 15, s.Volume())
	assert.Equal(t, DefaultVolume, m.GetVolume())
	m.Stop()
}

func TestManager_CallbackCanStartNewStream(t *testing.T) {
	m, _ := newTestManager(t, transport.SimulatedOptions{})
	res := newResults()

	var chainErr error
	_, err := m.PlayTones(longTune(2), OnComplete(func(r Result) {
		assert.False(t, m.IsPlaying(), "slot is cleared before the callback")
		_, chainErr = m.PlayTones(longTune(2), OnComplete(res.callback))
	}))
	require.NoError(t, err)

	r := res.wait(t)
	require.NoError(t, chainErr)
	assert.Equal(t, StateFinished, r.State)
}

func TestManager_StaleStreamDoesNotClearNewSlot(t *testing.T) {
	m, _ := newTestManager(t, transport.SimulatedOptions{WriteDelay: 5 * time.Millisecond})
	res := newResults()

	oldID, err := m.PlayTones(longTune(100), WithPriority(PriorityBackground), OnComplete(res.callback))
	require.NoError(t, err)
	newID, err := m.PlayTones(longTune(100), WithPriority(PriorityAlarm), OnComplete(res.callback))
	require.NoError(t, err)

	r := res.wait(t)
	require.Equal(t, oldID, r.StreamID)

	// The preempted stream finished, but the alarm still owns the slot.
	require.True(t, m.IsPlaying())
	assert.Equal(t, newID, m.Playback().ID())
	m.Stop()
}

func TestManager_PreemptionSerializesTransport(t *testing.T) {
	m, sim := newTestManager(t, transport.SimulatedOptions{WriteDelay: 5 * time.Millisecond})
	res := newResults()

	_, err := m.PlayTones(longTune(100), WithPriority(PriorityBackground), OnComplete(res.callback))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	newID, err := m.PlayTones(longTune(2), WithPriority(PriorityAlarm), OnComplete(res.callback))
	require.NoError(t, err)

	for range 2 {
		r := res.wait(t)
		if r.StreamID == newID {
			require.Equal(t, StateFinished, r.State, "new stream failed: %v", r.Err)
		}
	}

	// The simulated driver rejects a second Open while open, so two output
	// opens mean the old stream closed before the new one opened.
	assert.Equal(t, []transport.Mode{transport.ModeOutput, transport.ModeOutput}, sim.Opens())
}

func TestManager_Close(t *testing.T) {
	sim := transport.NewSimulated(transport.SimulatedOptions{WriteDelay: 5 * time.Millisecond})
	adapter := transport.NewAdapter(sim, nil)
	m := NewManager(Capabilities{Output: adapter, Tone: adapter}, DefaultOptions())
	res := newResults()

	_, err := m.PlayTones(longTune(500), OnComplete(res.callback))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Close(ctx))

	r := res.wait(t)
	assert.Equal(t, StateStopped, r.State)

	_, err = m.PlayTones(longTune(1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, m.Close(ctx))
}
