// Package tone synthesizes 16-bit mono PCM for sine tones and silence, and
// parses note sequences (plain "NOTE:ms" text and RTTTL ringtones) into
// ordered lists of notes.
package tone
