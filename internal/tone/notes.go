package tone

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidTune is returned when tune text cannot be parsed.
var ErrInvalidTune = errors.New("invalid tune")

// Rest is the note name that produces silence.
const Rest = "R"

// Note is one entry of a tone sequence. A zero Frequency is a rest.
type Note struct {
	Frequency  float64 `json:"frequency" yaml:"frequency"`
	DurationMs int     `json:"duration_ms" yaml:"duration_ms"`
}

// IsRest reports whether the note is silent.
func (n Note) IsRest() bool {
	return n.Frequency <= 0
}

// Sequence is an ordered list of notes, played strictly in order.
type Sequence []Note

// Duration returns the total length of the sequence in milliseconds.
func (s Sequence) Duration() int {
	total := 0
	for _, n := range s {
		total += n.DurationMs
	}
	return total
}

// semitones maps a note letter to its offset from C within an octave.
var semitones = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11, 'h': 11,
}

// pitch returns the equal-tempered frequency (A4 = 440 Hz) of a note given
// its semitone offset from C and its octave.
func pitch(semitone, octave int) float64 {
	n := (octave-4)*12 + semitone - 9
	return 440 * math.Pow(2, float64(n)/12)
}

// Frequency returns the frequency of a scientific-pitch note name such as
// "A4", "C#5" or "Bb3". Rest markers return 0.
func Frequency(name string) (float64, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch lower {
	case "r", "rest", "p", "-":
		return 0, nil
	case "":
		return 0, fmt.Errorf("%w: empty note name", ErrInvalidTune)
	}

	semi, ok := semitones[lower[0]]
	if !ok {
		return 0, fmt.Errorf("%w: unknown note %q", ErrInvalidTune, name)
	}
	rest := lower[1:]
	switch {
	case strings.HasPrefix(rest, "#"):
		semi++
		rest = rest[1:]
	case strings.HasPrefix(rest, "b") && len(rest) > 1:
		semi--
		rest = rest[1:]
	}

	octave, err := strconv.Atoi(rest)
	if err != nil || octave < 0 || octave > 8 {
		return 0, fmt.Errorf("%w: bad octave in note %q", ErrInvalidTune, name)
	}
	return pitch(semi, octave), nil
}

// ParseSequence parses whitespace or comma separated "NOTE:ms" pairs, e.g.
// "C4:200 R:100 A4:300".
func ParseSequence(text string) (Sequence, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == ';'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no notes", ErrInvalidTune)
	}

	seq := make(Sequence, 0, len(fields))
	for _, field := range fields {
		name, dur, ok := strings.Cut(field, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not NOTE:ms", ErrInvalidTune, field)
		}
		freq, err := Frequency(name)
		if err != nil {
			return nil, err
		}
		ms, err := strconv.Atoi(dur)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("%w: bad duration in %q", ErrInvalidTune, field)
		}
		seq = append(seq, Note{Frequency: freq, DurationMs: ms})
	}
	return seq, nil
}

type melodyStep struct {
	note string
	ms   int
}

var melodies = map[string][]melodyStep{
	"Scale": {
		{"C4", 200}, {"D4", 200}, {"E4", 200}, {"F4", 200},
		{"G4", 200}, {"A4", 200}, {"B4", 200}, {"C5", 400},
	},
	"Twinkle": {
		{"C4", 300}, {"C4", 300}, {"G4", 300}, {"G4", 300},
		{"A4", 300}, {"A4", 300}, {"G4", 600}, {Rest, 100},
		{"F4", 300}, {"F4", 300}, {"E4", 300}, {"E4", 300},
		{"D4", 300}, {"D4", 300}, {"C4", 600},
	},
	"Ode to Joy": {
		{"E4", 300}, {"E4", 300}, {"F4", 300}, {"G4", 300},
		{"G4", 300}, {"F4", 300}, {"E4", 300}, {"D4", 300},
		{"C4", 300}, {"C4", 300}, {"D4", 300}, {"E4", 300},
		{"E4", 450}, {"D4", 150}, {"D4", 600},
	},
	"Beep Test": {
		{"A4", 500}, {Rest, 200}, {"A5", 500}, {Rest, 200},
		{"C5", 300}, {"E5", 300}, {"G5", 300}, {"C6", 500},
	},
}

// Melody returns the built-in melody with the given name.
func Melody(name string) (Sequence, bool) {
	steps, ok := melodies[name]
	if !ok {
		return nil, false
	}
	seq := make(Sequence, len(steps))
	for i, s := range steps {
		// Built-in tables only use valid names.
		freq, _ := Frequency(s.note)
		seq[i] = Note{Frequency: freq, DurationMs: s.ms}
	}
	return seq, true
}

// MelodyNames returns the built-in melody names in sorted order.
func MelodyNames() []string {
	names := make([]string, 0, len(melodies))
	for name := range melodies {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
