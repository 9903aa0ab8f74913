package wav

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// referenceHeader lays the header out field by field, independently of BuildHeader.
func referenceHeader(sampleRate, channels, bits int, dataSize uint32) []byte {
	var buf bytes.Buffer
	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	w(dataSize + 36)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	w(uint32(16))
	w(uint16(1))
	w(uint16(channels))
	w(uint32(sampleRate))
	w(uint32(sampleRate * channels * bits / 8))
	w(uint16(channels * bits / 8))
	w(uint16(bits))
	buf.WriteString("data")
	w(dataSize)

	return buf.Bytes()
}

func TestBuildHeader_MatchesReference(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		size   uint32
	}{
		{"mono 16k", Mono16(16000), 32000},
		{"mono 22k empty", Mono16(22050), 0},
		{"stereo 44k", Format{SampleRate: 44100, Channels: 2, BitsPerSample: 16}, 176400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildHeader(tt.format, tt.size)
			want := referenceHeader(tt.format.SampleRate, tt.format.Channels, tt.format.BitsPerSample, tt.size)
			require.Len(t, got, HeaderSize)
			assert.Equal(t, want, got)
		})
	}
}

func TestPatchHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.wav")
	format := Mono16(16000)

	payload := bytes.Repeat([]byte{0x01, 0x02}, 500)
	content := append(BuildHeader(format, 1<<30), payload...)
	require.NoError(t, os.WriteFile(path, content, 0644))

	require.NoError(t, PatchFile(path, uint32(len(payload))))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, HeaderSize+len(payload))

	assert.Equal(t, uint32(len(payload)+36), binary.LittleEndian.Uint32(data[4:8]))
	assert.Equal(t, uint32(len(payload)), binary.LittleEndian.Uint32(data[40:44]))
	assert.Equal(t, referenceHeader(16000, 1, 16, uint32(len(payload))), data[:HeaderSize])
	assert.Equal(t, payload, data[HeaderSize:], "payload must be untouched")
}

func TestPatchFile_Missing(t *testing.T) {
	err := PatchFile(filepath.Join(t.TempDir(), "missing.wav"), 10)
	assert.Error(t, err)
}

func TestReadHeader(t *testing.T) {
	format := Format{SampleRate: 44100, Channels: 2, BitsPerSample: 16}
	data := append(BuildHeader(format, 8), make([]byte, 8)...)

	r := bytes.NewReader(data)
	hdr, err := ReadHeader(r)
	require.NoError(t, err)

	assert.Equal(t, format, hdr.Format)
	assert.Equal(t, uint32(8), hdr.DataSize)
	assert.Equal(t, int64(HeaderSize), hdr.DataOffset)
	assert.Equal(t, 8, r.Len(), "reader should be positioned at the payload")
}

func TestReadHeader_SkipsExtraChunks(t *testing.T) {
	h := BuildHeader(Mono16(8000), 4)

	var buf bytes.Buffer
	buf.Write(h[:36])
	buf.WriteString("LIST")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{'a', 'b', 'c', 0}) // odd size plus pad byte
	buf.Write(h[36:])
	buf.Write([]byte{1, 2, 3, 4})

	hdr, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, 8000, hdr.SampleRate)
	assert.Equal(t, uint32(4), hdr.DataSize)
	assert.Equal(t, int64(HeaderSize+12), hdr.DataOffset)
}

func TestReadHeader_ExtendedFmtChunk(t *testing.T) {
	h := BuildHeader(Mono16(22050), 2)

	var buf bytes.Buffer
	buf.Write(h[:16])
	_ = binary.Write(&buf, binary.LittleEndian, uint32(18))
	buf.Write(h[20:36])
	buf.Write([]byte{0, 0}) // cbSize
	buf.Write(h[36:])
	buf.Write([]byte{1, 2})

	hdr, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, 22050, hdr.SampleRate)
	assert.Equal(t, uint32(2), hdr.DataSize)
	assert.Equal(t, int64(HeaderSize+2), hdr.DataOffset)
}

func TestReadHeader_Invalid(t *testing.T) {
	t.Run("short", func(t *testing.T) {
		_, err := ReadHeader(bytes.NewReader([]byte("RIFF")))
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})

	t.Run("not wave", func(t *testing.T) {
		data := BuildHeader(Mono16(8000), 0)
		copy(data[8:12], "AVI ")
		_, err := ReadHeader(bytes.NewReader(data))
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})

	t.Run("not pcm", func(t *testing.T) {
		data := BuildHeader(Mono16(8000), 0)
		binary.LittleEndian.PutUint16(data[20:22], 3)
		_, err := ReadHeader(bytes.NewReader(data))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("8-bit", func(t *testing.T) {
		data := BuildHeader(Format{SampleRate: 8000, Channels: 1, BitsPerSample: 8}, 0)
		_, err := ReadHeader(bytes.NewReader(data))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("oversized fmt chunk", func(t *testing.T) {
		data := BuildHeader(Mono16(8000), 0)
		binary.LittleEndian.PutUint32(data[16:20], 0xF0000000)

		var before, after runtime.MemStats
		runtime.ReadMemStats(&before)
		_, err := ReadHeader(bytes.NewReader(data))
		runtime.ReadMemStats(&after)

		assert.ErrorIs(t, err, ErrInvalidHeader)
		assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(1<<20), "fmt size must not drive allocation")
	})
}
