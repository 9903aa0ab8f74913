package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jmylchreest/audiofocus/internal/tone"
	"github.com/jmylchreest/audiofocus/internal/transport"
	"github.com/jmylchreest/audiofocus/internal/wav"
)

// filePlayback streams the PCM payload of a WAV file to the output.
type filePlayback struct {
	path      string
	adapter   *transport.Adapter
	chunkSize int
}

func (b *filePlayback) run(s *Stream) (string, error) {
	if s.stopping() {
		return "Stopped: " + b.path, errStopped
	}

	f, err := os.Open(b.path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrStorage, b.path, err)
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, b.chunkSize)
	hdr, err := wav.ReadHeader(r)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidArgument, b.path, err)
	}
	s.byteRate.Store(int64(hdr.ByteRate()))

	lease, err := b.adapter.Acquire(s.ctx, transport.ModeOutput, hdr.Format)
	if err != nil {
		return s.acquireFailed("Stopped: "+b.path, err)
	}
	defer func() {
		if err := lease.Release(); err != nil {
			s.logger.Warn("failed to release transport", "error", err)
		}
	}()

	s.logger.Info("playing file",
		"path", b.path,
		"sample_rate", hdr.SampleRate,
		"channels", hdr.Channels,
		"data_size", hdr.DataSize,
	)

	align := hdr.BlockAlign()
	size := b.chunkSize - b.chunkSize%align
	if size <= 0 {
		size = align
	}
	buf := make([]byte, size)
	remaining := int64(hdr.DataSize)

	for remaining > 0 {
		if s.stopping() {
			return "Stopped: " + b.path, errStopped
		}

		want := int64(len(buf))
		if remaining < want {
			want = remaining
		}

		n, rerr := io.ReadFull(r, buf[:want])
		n -= n % align
		if n > 0 {
			applyVolume(buf[:n], s.Volume())
			if _, err := lease.Write(buf[:n]); err != nil {
				return "", fmt.Errorf("%w: %s: %v", ErrTransport, b.path, err)
			}
			s.bytes.Add(int64(n))
			remaining -= int64(n)
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
				// Recordings that were never patched declare a larger data
				// chunk than the file holds.
				break
			}
			return "", fmt.Errorf("%w: %s: %v", ErrStorage, b.path, rerr)
		}
	}

	return "Finished: " + b.path, nil
}

// tonePlayback synthesizes a tone sequence note by note.
type tonePlayback struct {
	notes      tone.Sequence
	adapter    *transport.Adapter
	sampleRate int
}

func (b *tonePlayback) run(s *Stream) (string, error) {
	if s.stopping() {
		return "Stopped: " + s.target, errStopped
	}

	format := wav.Mono16(b.sampleRate)
	s.byteRate.Store(int64(format.ByteRate()))

	lease, err := b.adapter.Acquire(s.ctx, transport.ModeOutput, format)
	if err != nil {
		return s.acquireFailed("Stopped: "+s.target, err)
	}
	defer func() {
		if err := lease.Release(); err != nil {
			s.logger.Warn("failed to release transport", "error", err)
		}
	}()

	s.logger.Info("playing tones", "notes", len(b.notes), "duration_ms", b.notes.Duration())

	for i, note := range b.notes {
		if s.stopping() {
			return "Stopped: " + s.target, errStopped
		}

		var buf []byte
		if note.IsRest() {
			buf = tone.Silence(note.DurationMs, b.sampleRate)
		} else {
			amplitude := tone.DefaultAmplitude * s.Volume() / 100
			buf = tone.Generate(note.Frequency, note.DurationMs, b.sampleRate, amplitude)
		}
		if len(buf) == 0 {
			continue
		}

		if _, err := lease.Write(buf); err != nil {
			return "", fmt.Errorf("%w: note %d: %v", ErrTransport, i, err)
		}
		s.bytes.Add(int64(len(buf)))
	}

	return "Finished: " + s.target, nil
}

// applyVolume scales little-endian 16-bit samples in place by volume/100.
func applyVolume(buf []byte, volume int) {
	if volume >= 100 {
		return
	}
	for i := 0; i+1 < len(buf); i += 2 {
		v := int32(int16(binary.LittleEndian.Uint16(buf[i:])))
		v = v * int32(volume) / 100
		binary.LittleEndian.PutUint16(buf[i:], uint16(int16(v)))
	}
}
