package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// HeaderSize is the size of the canonical PCM WAV header.
const HeaderSize = 44

// FormatPCM is the WAVE format tag for uncompressed PCM.
const FormatPCM = 1

// Byte offsets of the size fields rewritten by PatchHeader.
const (
	riffSizeOffset = 4
	dataSizeOffset = 40
)

var (
	// ErrInvalidHeader is returned when a file is not a RIFF/WAVE container.
	ErrInvalidHeader = errors.New("invalid wav header")
	// ErrUnsupportedFormat is returned for non-PCM or malformed fmt chunks.
	ErrUnsupportedFormat = errors.New("unsupported wav format")
)

// Format describes the PCM layout of a WAV payload.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Mono16 returns a 16-bit mono format at the given sample rate.
func Mono16(sampleRate int) Format {
	return Format{SampleRate: sampleRate, Channels: 1, BitsPerSample: 16}
}

// BlockAlign returns the number of bytes per frame.
func (f Format) BlockAlign() int {
	return f.Channels * (f.BitsPerSample / 8)
}

// ByteRate returns the number of payload bytes per second.
func (f Format) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

// Validate reports whether the format can be framed.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrUnsupportedFormat, f.SampleRate)
	}
	if f.Channels < 1 || f.Channels > 2 {
		return fmt.Errorf("%w: channels must be 1 or 2, got %d", ErrUnsupportedFormat, f.Channels)
	}
	if f.BitsPerSample != 16 {
		return fmt.Errorf("%w: only 16-bit samples are supported, got %d", ErrUnsupportedFormat, f.BitsPerSample)
	}
	return nil
}

// BuildHeader returns the 44-byte header for a payload of dataSize bytes.
func BuildHeader(f Format, dataSize uint32) []byte {
	h := make([]byte, HeaderSize)
	le := binary.LittleEndian

	copy(h[0:4], "RIFF")
	le.PutUint32(h[4:8], dataSize+36)
	copy(h[8:12], "WAVE")

	copy(h[12:16], "fmt ")
	le.PutUint32(h[16:20], 16)
	le.PutUint16(h[20:22], FormatPCM)
	le.PutUint16(h[22:24], uint16(f.Channels))
	le.PutUint32(h[24:28], uint32(f.SampleRate))
	le.PutUint32(h[28:32], uint32(f.ByteRate()))
	le.PutUint16(h[32:34], uint16(f.BlockAlign()))
	le.PutUint16(h[34:36], uint16(f.BitsPerSample))

	copy(h[36:40], "data")
	le.PutUint32(h[40:44], dataSize)

	return h
}

// PatchHeader rewrites the RIFF size (offset 4) and data size (offset 40)
// fields of a header previously written by BuildHeader. Nothing else in the
// stream is touched. The write position is left at the end of the data size
// field.
func PatchHeader(ws io.WriteSeeker, dataSize uint32) error {
	var buf [4]byte

	binary.LittleEndian.PutUint32(buf[:], dataSize+36)
	if _, err := ws.Seek(riffSizeOffset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to riff size: %w", err)
	}
	if _, err := ws.Write(buf[:]); err != nil {
		return fmt.Errorf("failed to write riff size: %w", err)
	}

	binary.LittleEndian.PutUint32(buf[:], dataSize)
	if _, err := ws.Seek(dataSizeOffset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to data size: %w", err)
	}
	if _, err := ws.Write(buf[:]); err != nil {
		return fmt.Errorf("failed to write data size: %w", err)
	}

	return nil
}

// PatchFile opens path read-write and patches its header with dataSize.
func PatchFile(path string, dataSize uint32) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open wav file: %w", err)
	}

	if err := PatchHeader(f, dataSize); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// Header is the parsed description of a WAV file.
type Header struct {
	Format
	// DataSize is the declared length of the data chunk.
	DataSize uint32
	// DataOffset is the byte offset of the first sample.
	DataOffset int64
}

// ReadHeader parses a RIFF/WAVE stream up to the start of the data chunk.
// Chunks other than "fmt " and "data" are skipped, so files written by tools
// that add LIST or fact chunks are accepted. On success r is positioned at
// the first payload byte.
func ReadHeader(r io.Reader) (Header, error) {
	var hdr Header

	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return hdr, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return hdr, fmt.Errorf("%w: missing RIFF/WAVE signature", ErrInvalidHeader)
	}

	offset := int64(len(riff))
	haveFmt := false

	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return hdr, fmt.Errorf("%w: data chunk not found: %v", ErrInvalidHeader, err)
		}
		offset += int64(len(chunk))

		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return hdr, fmt.Errorf("%w: fmt chunk too short (%d bytes)", ErrUnsupportedFormat, size)
			}
			// Only the 16-byte PCM prefix is kept; extension bytes and the
			// pad byte are skipped without buffering them.
			var body [16]byte
			if _, err := io.ReadFull(r, body[:]); err != nil {
				return hdr, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
			}
			skip := int64(size-16) + int64(size&1)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return hdr, fmt.Errorf("%w: truncated fmt chunk: %v", ErrInvalidHeader, err)
			}
			offset += int64(len(body)) + skip

			if tag := binary.LittleEndian.Uint16(body[0:2]); tag != FormatPCM {
				return hdr, fmt.Errorf("%w: format tag %d is not PCM", ErrUnsupportedFormat, tag)
			}
			hdr.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			hdr.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			hdr.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			if err := hdr.Format.Validate(); err != nil {
				return hdr, err
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return hdr, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidHeader)
			}
			hdr.DataSize = size
			hdr.DataOffset = offset
			return hdr, nil

		default:
			// Chunks are word aligned.
			skip := int64(size) + int64(size&1)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return hdr, fmt.Errorf("%w: truncated %q chunk: %v", ErrInvalidHeader, id, err)
			}
			offset += skip
		}
	}
}
