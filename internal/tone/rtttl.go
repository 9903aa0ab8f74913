package tone

import (
	"fmt"
	"strconv"
	"strings"
)

// RTTTL defaults used when the control section omits a value.
const (
	rtttlDefaultDuration = 4
	rtttlDefaultOctave   = 6
	rtttlDefaultBPM      = 63
)

// Ringtone is a parsed RTTTL ringtone.
type Ringtone struct {
	Name  string
	Notes Sequence
}

// ParseRTTTL parses a Ring Tone Text Transfer Language string of the form
// "name:d=4,o=5,b=120:8e6,8d6,p,4c#.6".
func ParseRTTTL(text string) (Ringtone, error) {
	parts := strings.SplitN(strings.TrimSpace(text), ":", 3)
	if len(parts) != 3 {
		return Ringtone{}, fmt.Errorf("%w: rtttl needs name:settings:notes", ErrInvalidTune)
	}

	rt := Ringtone{Name: strings.TrimSpace(parts[0])}
	defDur, defOct, bpm := rtttlDefaultDuration, rtttlDefaultOctave, rtttlDefaultBPM

	for _, setting := range strings.Split(parts[1], ",") {
		setting = strings.TrimSpace(setting)
		if setting == "" {
			continue
		}
		key, val, ok := strings.Cut(setting, "=")
		if !ok {
			return Ringtone{}, fmt.Errorf("%w: bad rtttl setting %q", ErrInvalidTune, setting)
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || n <= 0 {
			return Ringtone{}, fmt.Errorf("%w: bad rtttl setting %q", ErrInvalidTune, setting)
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "d":
			defDur = n
		case "o":
			defOct = n
		case "b":
			bpm = n
		default:
			return Ringtone{}, fmt.Errorf("%w: unknown rtttl setting %q", ErrInvalidTune, key)
		}
	}

	// A whole note lasts four beats.
	wholeMs := 4 * 60000 / bpm

	for _, tok := range strings.Split(parts[2], ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		note, err := parseRTTTLNote(tok, defDur, defOct, wholeMs)
		if err != nil {
			return Ringtone{}, err
		}
		rt.Notes = append(rt.Notes, note)
	}

	if len(rt.Notes) == 0 {
		return Ringtone{}, fmt.Errorf("%w: rtttl has no notes", ErrInvalidTune)
	}
	return rt, nil
}

// parseRTTTLNote parses one note token: [duration]letter[#][.][octave][.]
func parseRTTTLNote(tok string, defDur, defOct, wholeMs int) (Note, error) {
	i := 0
	for i < len(tok) && tok[i] >= '0' && tok[i] <= '9' {
		i++
	}
	dur := defDur
	if i > 0 {
		var err error
		dur, err = strconv.Atoi(tok[:i])
		if err != nil || dur <= 0 {
			return Note{}, fmt.Errorf("%w: bad duration in rtttl note %q", ErrInvalidTune, tok)
		}
	}

	if i >= len(tok) {
		return Note{}, fmt.Errorf("%w: missing note letter in %q", ErrInvalidTune, tok)
	}
	letter := tok[i]
	i++

	rest := letter == 'p'
	semi, ok := semitones[letter]
	if !rest && !ok {
		return Note{}, fmt.Errorf("%w: unknown rtttl note %q", ErrInvalidTune, tok)
	}

	if i < len(tok) && tok[i] == '#' {
		semi++
		i++
	}

	dotted := false
	if i < len(tok) && tok[i] == '.' {
		dotted = true
		i++
	}

	octave := defOct
	if i < len(tok) && tok[i] >= '0' && tok[i] <= '9' {
		octave = int(tok[i] - '0')
		i++
	}

	if i < len(tok) && tok[i] == '.' {
		dotted = true
		i++
	}
	if i != len(tok) {
		return Note{}, fmt.Errorf("%w: trailing characters in rtttl note %q", ErrInvalidTune, tok)
	}

	ms := wholeMs / dur
	if dotted {
		ms += ms / 2
	}

	if rest {
		return Note{DurationMs: ms}, nil
	}
	return Note{Frequency: pitch(semi, octave), DurationMs: ms}, nil
}
