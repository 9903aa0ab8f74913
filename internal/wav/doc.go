// Package wav frames 16-bit PCM audio in the canonical 44-byte RIFF/WAVE
// container. Headers can be written with a placeholder size and patched once
// the final data length is known, which suits recordings of unknown length.
package wav
