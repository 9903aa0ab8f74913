// Package history keeps a JSONL log of finished audio streams.
package history

import (
	"time"

	"github.com/jmylchreest/audiofocus/internal/audio"
)

// Entry is one finished stream.
type Entry struct {
	StreamID   string `json:"stream_id" yaml:"stream_id"`
	Kind       string `json:"kind" yaml:"kind"`
	Priority   string `json:"priority,omitempty" yaml:"priority,omitempty"`
	State      string `json:"state" yaml:"state"`
	Target     string `json:"target" yaml:"target"`
	Bytes      int64  `json:"bytes" yaml:"bytes"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  int64  `json:"started_at" yaml:"started_at"` // Unix milliseconds
	EndedAt    int64  `json:"ended_at" yaml:"ended_at"`     // Unix milliseconds
}

// FromResult converts a stream result into a history entry.
func FromResult(res audio.Result) Entry {
	e := Entry{
		StreamID:   res.StreamID,
		Kind:       res.Kind.String(),
		State:      res.State.String(),
		Target:     res.Target,
		Bytes:      res.Bytes,
		DurationMs: res.Elapsed.Milliseconds(),
		StartedAt:  res.Started.UnixMilli(),
		EndedAt:    res.Ended.UnixMilli(),
	}
	// Recordings have no focus priority.
	if res.Kind != audio.KindFileRecording {
		e.Priority = res.Priority.String()
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	return e
}

// Started returns the start time.
func (e Entry) Started() time.Time {
	return time.UnixMilli(e.StartedAt)
}

// Ended returns the end time.
func (e Entry) Ended() time.Time {
	return time.UnixMilli(e.EndedAt)
}

// Duration returns the audio duration moved by the stream.
func (e Entry) Duration() time.Duration {
	return time.Duration(e.DurationMs) * time.Millisecond
}
