package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmylchreest/audiofocus/internal/audio"
	"github.com/jmylchreest/audiofocus/internal/config"
	"github.com/jmylchreest/audiofocus/internal/history"
)

// shutdownTimeout bounds how long a session waits for streams on exit.
const shutdownTimeout = 5 * time.Second

// session is one CLI invocation's audio manager and its supporting pieces.
type session struct {
	manager  *audio.Manager
	hardware *config.Hardware
	watcher  *config.Watcher
	history  *history.Log
	keep     int
	metrics  *http.Server
	logger   *slog.Logger
	results  chan audio.Result
}

// openSession builds the hardware described by the config and starts a
// manager on it. Config changes to the volume are applied while it runs.
func openSession(c *config.Config, log *slog.Logger) (*session, error) {
	if log == nil {
		log = slog.Default()
	}

	hw, err := c.BuildHardware(log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up audio hardware: %w", err)
	}

	opts := c.ManagerOptions(log)
	var reg *prometheus.Registry
	if globalOpts.metricsAddr != "" {
		reg = prometheus.NewRegistry()
		opts.Registerer = reg
	}

	s := &session{
		manager:  audio.NewManager(hw.Capabilities, opts),
		hardware: hw,
		logger:   log,
		keep:     c.History.Keep,
		results:  make(chan audio.Result, 4),
	}

	if reg != nil {
		if err := s.serveMetrics(globalOpts.metricsAddr, reg); err != nil {
			log.Warn("metrics endpoint unavailable", "addr", globalOpts.metricsAddr, "error", err)
		}
	}

	if c.History.Enabled {
		l, err := history.Open(c.HistoryPath())
		if err != nil {
			log.Warn("stream history unavailable", "error", err)
		} else {
			s.history = l
		}
	}

	path := globalOpts.configPath
	if path == "" {
		path = config.ConfigPath()
	}
	if _, statErr := os.Stat(path); statErr == nil {
		w, err := config.NewWatcher(path, s.applyConfig, log)
		if err != nil {
			log.Warn("config hot reload unavailable", "error", err)
		} else if err := w.Start(); err != nil {
			log.Warn("config hot reload unavailable", "error", err)
			_ = w.Stop()
		} else {
			s.watcher = w
		}
	}

	return s, nil
}

// serveMetrics exposes the manager's metrics on addr at /metrics.
func (s *session) serveMetrics(addr string, reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.metrics = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("metrics server stopped", "error", err)
		}
	}()
	s.logger.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}

// applyConfig forwards reloaded settings to the running manager.
func (s *session) applyConfig(c *config.Config) {
	if c.Audio.Volume != s.manager.GetVolume() {
		s.logger.Info("volume changed by config reload", "volume", c.Audio.Volume)
		s.manager.SetVolume(c.Audio.Volume)
	}
}

// complete is the completion callback for streams started by this session.
func (s *session) complete(res audio.Result) {
	if s.history != nil {
		if err := s.history.Append(history.FromResult(res)); err != nil {
			s.logger.Warn("failed to record stream history", "stream", res.StreamID, "error", err)
		}
	}
	s.results <- res
}

// options appends the session's completion callback to opts.
func (s *session) options(opts ...audio.Option) []audio.Option {
	return append(opts, audio.OnComplete(s.complete))
}

// wait blocks until the stream with the given ID completes. An interrupt
// signal stops the stream, and wait still returns its final result.
func (s *session) wait(ctx context.Context, id string) (audio.Result, error) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	interrupted := sigCtx.Done()
	for {
		select {
		case res := <-s.results:
			if res.StreamID == id {
				return res, nil
			}
			s.logger.Debug("ignoring result for another stream", "stream", res.StreamID)
		case <-interrupted:
			s.logger.Info("interrupted, stopping stream", "stream", id)
			s.manager.Stop()
			interrupted = nil
		}
	}
}

// close stops everything and releases the hardware.
func (s *session) close() {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Debug("failed to stop config watcher", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.manager.Close(ctx); err != nil {
		s.logger.Warn("audio manager did not shut down cleanly", "error", err)
	}
	s.hardware.Close()

	if s.metrics != nil {
		if err := s.metrics.Shutdown(ctx); err != nil {
			s.logger.Debug("failed to stop metrics server", "error", err)
		}
	}

	if s.history != nil {
		if s.keep > 0 {
			if n, err := s.history.Prune(s.keep); err != nil {
				s.logger.Warn("failed to prune stream history", "error", err)
			} else if n > 0 {
				s.logger.Debug("pruned stream history", "removed", n)
			}
		}
		if err := s.history.Close(); err != nil {
			s.logger.Debug("failed to close stream history", "error", err)
		}
	}
}

// run admits a stream with start, waits for it and reports the outcome.
func (s *session) run(ctx context.Context, out io.Writer, start func() (string, error)) error {
	id, err := start()
	if err != nil {
		return err
	}

	res, err := s.wait(ctx, id)
	if err != nil {
		return err
	}
	printResult(out, res)

	if res.Err != nil {
		return res.Err
	}
	return nil
}

// printResult writes a one-line summary of a finished stream.
func printResult(out io.Writer, res audio.Result) {
	switch res.State {
	case audio.StateFailed:
		_, _ = fmt.Fprintf(out, "%s\n", res.Message)
	default:
		_, _ = fmt.Fprintf(out, "%s (%s, %s)\n", res.Message, res.State, humanize.Bytes(uint64(res.Bytes)))
	}
}

// exitError maps admission failures to friendlier messages.
func exitError(err error) error {
	switch {
	case errors.Is(err, audio.ErrCapabilityUnavailable):
		return fmt.Errorf("%w (check the driver settings in %s)", err, config.ConfigPath())
	case errors.Is(err, audio.ErrBusy):
		return fmt.Errorf("%w: another stream holds the audio interface", err)
	default:
		return err
	}
}
