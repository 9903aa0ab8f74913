package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcBody func(s *Stream) (string, error)

func (f funcBody) run(s *Stream) (string, error) { return f(s) }

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"background", PriorityBackground, false},
		{"music", PriorityBackground, false},
		{" Notification ", PriorityNotification, false},
		{"ALARM", PriorityAlarm, false},
		{"urgent", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPriorityOrdering(t *testing.T) {
	assert.Less(t, PriorityBackground, PriorityNotification)
	assert.Less(t, PriorityNotification, PriorityAlarm)
	assert.Equal(t, "alarm", PriorityAlarm.String())
}

func TestStateTerminal(t *testing.T) {
	assert.False(t, StateCreated.Terminal())
	assert.False(t, StateRunning.Terminal())
	assert.True(t, StateFinished.Terminal())
	assert.True(t, StateStopped.Terminal())
	assert.True(t, StateFailed.Terminal())
}

func runBody(t *testing.T, b body) (*Stream, Result) {
	t.Helper()
	s, err := newStream(context.Background(), KindTonePlayback, PriorityNotification, "test", 50, b, nil, slog.Default())
	require.NoError(t, err)
	return s, s.execute()
}

func TestStreamExecute(t *testing.T) {
	t.Run("finished", func(t *testing.T) {
		s, res := runBody(t, funcBody(func(s *Stream) (string, error) {
			assert.Equal(t, StateRunning, s.State())
			s.bytes.Add(10)
			return "Finished: test", nil
		}))
		assert.Equal(t, StateFinished, res.State)
		assert.True(t, res.OK())
		assert.Equal(t, int64(10), res.Bytes)
		assert.False(t, s.IsActive())
	})

	t.Run("stopped", func(t *testing.T) {
		_, res := runBody(t, funcBody(func(s *Stream) (string, error) {
			s.Stop()
			assert.Error(t, s.ctx.Err(), "stop cancels the stream context")
			return "Stopped: test", errStopped
		}))
		assert.Equal(t, StateStopped, res.State)
		assert.NoError(t, res.Err)
	})

	t.Run("failed", func(t *testing.T) {
		_, res := runBody(t, funcBody(func(s *Stream) (string, error) {
			return "", errors.Join(ErrTransport, errors.New("bus fault"))
		}))
		assert.Equal(t, StateFailed, res.State)
		assert.ErrorIs(t, res.Err, ErrTransport)
		assert.Contains(t, res.Message, "bus fault")
		assert.False(t, res.OK())
	})

	t.Run("panic", func(t *testing.T) {
		s, res := runBody(t, funcBody(func(s *Stream) (string, error) {
			panic("driver exploded")
		}))
		assert.Equal(t, StateFailed, res.State)
		assert.ErrorIs(t, res.Err, ErrTransport)
		assert.Equal(t, StateFailed, s.State())
	})
}

func TestStreamIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id, err := newStreamID()
		require.NoError(t, err)
		require.Len(t, id, 26)
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestStreamElapsed(t *testing.T) {
	s, err := newStream(context.Background(), KindFileRecording, PriorityBackground, "x", 50, nil, nil, slog.Default())
	require.NoError(t, err)
	defer s.cancel()

	assert.Equal(t, time.Duration(0), s.Elapsed())

	s.byteRate.Store(32000)
	s.bytes.Store(16000)
	assert.Equal(t, 500*time.Millisecond, s.Elapsed())
}

func TestStreamVolumeClamp(t *testing.T) {
	s, err := newStream(context.Background(), KindTonePlayback, PriorityBackground, "x", 250, nil, nil, slog.Default())
	require.NoError(t, err)
	defer s.cancel()

	assert.Equal(t, 100, s.Volume())
	s.SetVolume(-1)
	assert.Equal(t, 0, s.Volume())
}

func TestApplyVolume(t *testing.T) {
	samples := []int16{1000, -1000, 32767, -32768}
	buf := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}

	full := append([]byte(nil), buf...)
	applyVolume(full, 100)
	assert.Equal(t, buf, full)

	applyVolume(buf, 50)
	want := []int16{500, -500, 16383, -16384}
	for i, v := range want {
		assert.Equal(t, v, int16(binary.LittleEndian.Uint16(buf[i*2:])))
	}

	applyVolume(buf, 0)
	assert.Equal(t, make([]byte, len(buf)), buf)
}
