package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmylchreest/audiofocus/internal/transport"
	"github.com/jmylchreest/audiofocus/internal/wav"
)

// placeholderDataSize is written into the header of a new recording and
// replaced with the real size when recording ends.
const placeholderDataSize = 1 << 30

// fileRecording captures 16-bit mono PCM from the input into a WAV file.
type fileRecording struct {
	path         string
	adapter      *transport.Adapter
	sampleRate   int
	duration     time.Duration
	chunkSamples int
	// idle is the pause taken when the input returns no data.
	idle time.Duration
}

// maxBytes returns the payload size that covers the configured duration.
func (b *fileRecording) maxBytes() int64 {
	n := b.duration.Milliseconds() * int64(b.sampleRate) * 2 / 1000
	return n &^ 1
}

func (b *fileRecording) run(s *Stream) (msg string, err error) {
	if s.stopping() {
		return "Stopped: " + b.path, errStopped
	}

	format := wav.Mono16(b.sampleRate)
	s.byteRate.Store(int64(format.ByteRate()))

	if dir := filepath.Dir(b.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrStorage, dir, err)
		}
	}

	f, err := os.Create(b.path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrStorage, b.path, err)
	}

	if _, err := f.Write(wav.BuildHeader(format, placeholderDataSize)); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("%w: %s: %v", ErrStorage, b.path, err)
	}

	var recorded int64
	defer func() {
		if recorded > 0 {
			if perr := wav.PatchHeader(f, uint32(recorded)); perr != nil && (err == nil || errors.Is(err, errStopped)) {
				msg, err = "", fmt.Errorf("%w: %s: %v", ErrStorage, b.path, perr)
			}
		} else {
			s.logger.Warn("recording is empty, header left unpatched", "path", b.path)
		}
		if cerr := f.Close(); cerr != nil && (err == nil || errors.Is(err, errStopped)) {
			msg, err = "", fmt.Errorf("%w: %s: %v", ErrStorage, b.path, cerr)
		}
	}()

	lease, err := b.adapter.Acquire(s.ctx, transport.ModeInput, format)
	if err != nil {
		return s.acquireFailed("Stopped: "+b.path, err)
	}
	defer func() {
		if rerr := lease.Release(); rerr != nil {
			s.logger.Warn("failed to release transport", "error", rerr)
		}
	}()

	limit := b.maxBytes()
	buf := make([]byte, b.chunkSamples*2)
	start := time.Now()

	s.logger.Info("recording",
		"path", b.path,
		"sample_rate", b.sampleRate,
		"duration", b.duration,
		"max_bytes", limit,
	)

	for {
		if s.stopping() {
			s.logger.Debug("recording stopped", "bytes", recorded)
			return fmt.Sprintf("Recorded: %s", b.path), errStopped
		}
		if time.Since(start) >= b.duration {
			s.logger.Debug("duration limit reached", "bytes", recorded)
			break
		}
		if recorded >= limit {
			s.logger.Debug("byte limit reached", "bytes", recorded)
			break
		}

		want := int64(len(buf))
		if left := limit - recorded; left < want {
			want = left
		}

		n, rerr := lease.Read(buf[:want])
		if rerr != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrTransport, b.path, rerr)
		}
		if n == 0 {
			time.Sleep(b.idle)
			continue
		}

		if _, werr := f.Write(buf[:n]); werr != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrStorage, b.path, werr)
		}
		recorded += int64(n)
		s.bytes.Store(recorded)
	}

	s.logger.Info("recording finished", "path", b.path, "bytes", recorded, "elapsed", time.Since(start))
	return fmt.Sprintf("Recorded: %s", b.path), nil
}
