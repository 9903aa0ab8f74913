package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"

	"github.com/jmylchreest/audiofocus/internal/wav"
)

// Default ALSA helper binaries.
const (
	DefaultPlayCommand   = "aplay"
	DefaultRecordCommand = "arecord"
)

// ALSA drives a sound card through the alsa-utils aplay and arecord tools,
// streaming raw S16_LE PCM over their stdin/stdout. The same card is used
// for output and input, but never both at once.
type ALSA struct {
	// Device is the ALSA PCM name, e.g. "default" or "hw:0,0".
	Device string
	// PlayCommand and RecordCommand override the helper binaries.
	PlayCommand   string
	RecordCommand string

	logger *slog.Logger

	mu     sync.Mutex
	mode   Mode
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

// NewALSA returns a driver for the given ALSA device.
func NewALSA(device string, logger *slog.Logger) *ALSA {
	if logger == nil {
		logger = slog.Default()
	}
	if device == "" {
		device = "default"
	}
	return &ALSA{
		Device:        device,
		PlayCommand:   DefaultPlayCommand,
		RecordCommand: DefaultRecordCommand,
		logger:        logger,
	}
}

// Name implements Driver.
func (a *ALSA) Name() string { return "alsa:" + a.Device }

// Supports implements Driver.
func (a *ALSA) Supports(mode Mode) bool {
	return mode == ModeOutput || mode == ModeInput
}

// commandArgs returns the helper binary and its arguments for mode.
func (a *ALSA) commandArgs(mode Mode, format wav.Format) (string, []string) {
	bin := a.PlayCommand
	if mode == ModeInput {
		bin = a.RecordCommand
	}
	return bin, []string{
		"-q",
		"-D", a.Device,
		"-t", "raw",
		"-f", "S16_LE",
		"-c", strconv.Itoa(format.Channels),
		"-r", strconv.Itoa(format.SampleRate),
	}
}

// Open implements Driver.
func (a *ALSA) Open(mode Mode, format wav.Format) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mode != ModeClosed {
		return ErrAlreadyOpen
	}
	if !a.Supports(mode) {
		return ErrUnsupportedMode
	}

	bin, args := a.commandArgs(mode, format)
	cmd := exec.Command(bin, args...)

	var err error
	switch mode {
	case ModeOutput:
		a.stdin, err = cmd.StdinPipe()
	case ModeInput:
		a.stdout, err = cmd.StdoutPipe()
	}
	if err != nil {
		return fmt.Errorf("failed to create %s pipe: %w", bin, err)
	}

	if err := cmd.Start(); err != nil {
		a.stdin, a.stdout = nil, nil
		return fmt.Errorf("failed to start %s: %w", bin, err)
	}

	a.cmd = cmd
	a.mode = mode
	a.logger.Debug("alsa helper started", "command", bin, "device", a.Device, "pid", cmd.Process.Pid)
	return nil
}

// Write implements Driver.
func (a *ALSA) Write(p []byte) (int, error) {
	a.mu.Lock()
	w := a.stdin
	a.mu.Unlock()

	if w == nil {
		return 0, ErrNotOpen
	}
	return w.Write(p)
}

// Read implements Driver.
func (a *ALSA) Read(p []byte) (int, error) {
	a.mu.Lock()
	r := a.stdout
	a.mu.Unlock()

	if r == nil {
		return 0, ErrNotOpen
	}
	return io.ReadFull(r, p)
}

// Close implements Driver. Output drains before the helper exits; capture is
// interrupted.
func (a *ALSA) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cmd == nil {
		return nil
	}

	var err error
	switch a.mode {
	case ModeOutput:
		if cerr := a.stdin.Close(); cerr != nil {
			err = cerr
		}
		if werr := a.cmd.Wait(); werr != nil && err == nil {
			err = werr
		}
	case ModeInput:
		_ = a.cmd.Process.Kill()
		// Killed helpers always exit non-zero.
		var exitErr *exec.ExitError
		if werr := a.cmd.Wait(); werr != nil && !errors.As(werr, &exitErr) {
			err = werr
		}
	}

	a.cmd = nil
	a.stdin = nil
	a.stdout = nil
	a.mode = ModeClosed
	return err
}
