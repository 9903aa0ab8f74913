package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/audiofocus/internal/audio"
	"github.com/jmylchreest/audiofocus/internal/config"
)

var recordOpts struct {
	duration time.Duration
	rate     int
	progress bool
}

var recordCmd = &cobra.Command{
	Use:   "record [file.wav]",
	Short: "Record from the input into a WAV file",
	Long: `Record 16-bit mono PCM from the input transport into a WAV file.

Without a file argument the recording is written to the data directory
(~/.local/share/audiofocus) with a timestamped name. Recording stops after
--duration (default: the configured max_record) or on Ctrl-C; either way the
WAV header is completed.

Examples:
  audiofocus record memo.wav --duration 5s
  audiofocus record --rate 8000 --progress`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().DurationVarP(&recordOpts.duration, "duration", "d", 0,
		"Recording length (default: configured max_record)")
	recordCmd.Flags().IntVarP(&recordOpts.rate, "rate", "r", 0,
		"Sample rate in Hz (default: configured sample_rate)")
	recordCmd.Flags().BoolVar(&recordOpts.progress, "progress", false,
		"Print progress while recording")
}

func runRecord(cmd *cobra.Command, args []string) error {
	path := defaultRecordingPath(time.Now())
	if len(args) > 0 {
		path = config.ExpandPath(args[0])
	}

	s, err := openSession(getConfig(), logger)
	if err != nil {
		return err
	}
	defer s.close()

	if recordOpts.progress {
		w := audio.NewWatcher(s.manager, logger)
		w.SetProgressCallback(func(p audio.Progress) {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "\r%s: %s recorded, %s", p.Target,
				humanize.Bytes(uint64(p.Bytes)), p.Elapsed.Truncate(100*time.Millisecond))
		})
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer func() {
			w.Stop()
			_, _ = fmt.Fprintln(cmd.ErrOrStderr())
		}()
	}

	return s.run(cmd.Context(), cmd.OutOrStdout(), func() (string, error) {
		id, err := s.manager.RecordFile(path, s.options(
			audio.WithDuration(recordOpts.duration),
			audio.WithSampleRate(recordOpts.rate),
		)...)
		return id, exitError(err)
	})
}

// defaultRecordingPath names a recording after its start time.
func defaultRecordingPath(now time.Time) string {
	return filepath.Join(config.DataPath(), "recordings", now.Format("20060102-150405")+".wav")
}
