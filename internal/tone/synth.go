package tone

import (
	"encoding/binary"
	"math"
)

// Synthesis defaults.
const (
	DefaultSampleRate = 22050
	DefaultAmplitude  = 16000 // ~50% of int16 full scale
)

// SampleCount returns the number of samples covering durationMs at
// sampleRate. The result is floored, so very short notes may be slightly
// shorter than requested.
func SampleCount(durationMs, sampleRate int) int {
	if durationMs <= 0 || sampleRate <= 0 {
		return 0
	}
	return sampleRate * durationMs / 1000
}

// Silence returns a zeroed buffer of durationMs at sampleRate.
func Silence(durationMs, sampleRate int) []byte {
	return make([]byte, 2*SampleCount(durationMs, sampleRate))
}

// Generate returns a little-endian signed 16-bit mono sine wave. Sample i is
// amplitude*sin(2*pi*freq*i/sampleRate), truncated toward zero. A zero
// frequency or amplitude yields silence of the same length.
func Generate(freq float64, durationMs, sampleRate, amplitude int) []byte {
	n := SampleCount(durationMs, sampleRate)
	buf := make([]byte, 2*n)
	if freq <= 0 || amplitude == 0 {
		return buf
	}

	step := 2 * math.Pi * freq / float64(sampleRate)
	for i := 0; i < n; i++ {
		s := int(float64(amplitude) * math.Sin(step*float64(i)))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(clamp16(s)))
	}
	return buf
}

// Oscillator produces a phase-continuous sine wave across successive calls.
type Oscillator struct {
	Frequency  float64
	SampleRate int
	Amplitude  int

	offset int64
}

// Fill writes len(buf)/2 samples into buf and advances the phase.
func (o *Oscillator) Fill(buf []byte) {
	n := len(buf) / 2
	step := 2 * math.Pi * o.Frequency / float64(o.SampleRate)
	for i := 0; i < n; i++ {
		s := int(float64(o.Amplitude) * math.Sin(step*float64(o.offset+int64(i))))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(clamp16(s)))
	}
	o.offset += int64(n)
}

func clamp16(s int) int16 {
	if s > math.MaxInt16 {
		return math.MaxInt16
	}
	if s < math.MinInt16 {
		return math.MinInt16
	}
	return int16(s)
}
