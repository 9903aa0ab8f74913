// Package audio arbitrates access to a single audio transport between
// playback and recording streams. A Manager admits play and record requests
// using priority-based focus, runs each admitted Stream on its own goroutine,
// and reports every stream's outcome exactly once through a completion
// callback.
package audio
