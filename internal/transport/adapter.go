package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/jmylchreest/audiofocus/internal/wav"
)

// Adapter grants exclusive access to a Driver. Holders acquire a Lease,
// which opens the driver lazily on first I/O and closes it on Release.
// Acquire blocks until the previous holder has released, so a new session
// never opens the hardware before the old one has torn it down.
type Adapter struct {
	driver Driver
	logger *slog.Logger
	sem    *semaphore.Weighted

	mu    sync.Mutex
	owner *Lease
}

// NewAdapter creates an adapter around driver.
func NewAdapter(driver Driver, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		driver: driver,
		logger: logger.With("transport", driver.Name()),
		sem:    semaphore.NewWeighted(1),
	}
}

// Name returns the underlying driver name.
func (a *Adapter) Name() string {
	return a.driver.Name()
}

// Supports reports whether the underlying driver can open in mode.
func (a *Adapter) Supports(mode Mode) bool {
	return a.driver.Supports(mode)
}

// Mode returns the mode the driver is currently open in.
func (a *Adapter) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.owner == nil || !a.owner.opened {
		return ModeClosed
	}
	return a.owner.mode
}

// InUse reports whether a lease is currently held.
func (a *Adapter) InUse() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owner != nil
}

// Acquire waits for exclusive ownership of the transport. The driver is not
// opened until the first Read or Write on the returned lease.
func (a *Adapter) Acquire(ctx context.Context, mode Mode, format wav.Format) (*Lease, error) {
	if !a.driver.Supports(mode) {
		return nil, fmt.Errorf("%w: %s cannot open for %s", ErrUnsupportedMode, a.driver.Name(), mode)
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire transport: %w", err)
	}

	l := &Lease{adapter: a, mode: mode, format: format}

	a.mu.Lock()
	a.owner = l
	a.mu.Unlock()

	a.logger.Debug("transport acquired", "mode", mode, "sample_rate", format.SampleRate)
	return l, nil
}

// Lease is exclusive ownership of an Adapter's driver. A lease is used by a
// single goroutine.
type Lease struct {
	adapter *Adapter
	mode    Mode
	format  wav.Format

	opened   bool
	released bool
}

// Mode returns the direction the lease was acquired for.
func (l *Lease) Mode() Mode {
	return l.mode
}

// Format returns the PCM format the lease opens the driver with.
func (l *Lease) Format() wav.Format {
	return l.format
}

func (l *Lease) ensureOpen() error {
	if l.released {
		return ErrReleased
	}
	if l.opened {
		return nil
	}

	if err := l.adapter.driver.Open(l.mode, l.format); err != nil {
		return fmt.Errorf("failed to open %s for %s: %w", l.adapter.driver.Name(), l.mode, err)
	}

	l.adapter.mu.Lock()
	l.opened = true
	l.adapter.mu.Unlock()

	l.adapter.logger.Debug("transport opened", "mode", l.mode)
	return nil
}

// Write sends p to the output, opening the driver on first use.
func (l *Lease) Write(p []byte) (int, error) {
	if l.mode != ModeOutput {
		return 0, fmt.Errorf("%w: lease is for %s", ErrNotOpen, l.mode)
	}
	if err := l.ensureOpen(); err != nil {
		return 0, err
	}
	return l.adapter.driver.Write(p)
}

// Read captures into p, opening the driver on first use.
func (l *Lease) Read(p []byte) (int, error) {
	if l.mode != ModeInput {
		return 0, fmt.Errorf("%w: lease is for %s", ErrNotOpen, l.mode)
	}
	if err := l.ensureOpen(); err != nil {
		return 0, err
	}
	return l.adapter.driver.Read(p)
}

// Release closes the driver if this lease opened it and hands ownership to
// the next waiter. Releasing twice is a no-op.
func (l *Lease) Release() error {
	if l.released {
		return nil
	}
	l.released = true

	a := l.adapter

	var err error
	if l.opened {
		if cerr := a.driver.Close(); cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", a.driver.Name(), cerr)
		}
		a.logger.Debug("transport closed", "mode", l.mode)
	}

	a.mu.Lock()
	if a.owner == l {
		a.owner = nil
	}
	l.opened = false
	a.mu.Unlock()

	a.sem.Release(1)
	return err
}
