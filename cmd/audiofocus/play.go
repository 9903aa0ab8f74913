package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/audiofocus/internal/audio"
	"github.com/jmylchreest/audiofocus/internal/config"
)

var playOpts struct {
	priority   string
	volume     int
	alarm      string
	alarmAfter time.Duration
}

var playCmd = &cobra.Command{
	Use:   "play <file.wav>",
	Short: "Play a 16-bit PCM WAV file",
	Long: `Play a 16-bit PCM WAV file on the output transport.

File playback defaults to background priority. Use --alarm to start a named
melody at alarm priority part way through; it interrupts the file.

Examples:
  audiofocus play ~/sounds/door.wav
  audiofocus play music.wav --volume 30
  audiofocus play music.wav --alarm "Beep Test" --alarm-after 2s`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().StringVarP(&playOpts.priority, "priority", "p", "background",
		"Focus priority (background, notification, alarm)")
	playCmd.Flags().IntVar(&playOpts.volume, "volume", -1,
		"Volume for this stream (0-100, default: configured volume)")
	playCmd.Flags().StringVar(&playOpts.alarm, "alarm", "",
		"Melody to play at alarm priority while the file plays")
	playCmd.Flags().DurationVar(&playOpts.alarmAfter, "alarm-after", time.Second,
		"Delay before the --alarm melody starts")
}

func runPlay(cmd *cobra.Command, args []string) error {
	priority, err := audio.ParsePriority(playOpts.priority)
	if err != nil {
		return err
	}

	opts := []audio.Option{audio.WithPriority(priority)}
	if playOpts.volume >= 0 {
		opts = append(opts, audio.WithVolume(playOpts.volume))
	}

	s, err := openSession(getConfig(), logger)
	if err != nil {
		return err
	}
	defer s.close()

	path := config.ExpandPath(args[0])
	if playOpts.alarm == "" {
		return s.run(cmd.Context(), cmd.OutOrStdout(), func() (string, error) {
			id, err := s.manager.PlayFile(path, s.options(opts...)...)
			return id, exitError(err)
		})
	}

	fileID, err := s.manager.PlayFile(path, s.options(opts...)...)
	if err != nil {
		return exitError(err)
	}

	timer := time.NewTimer(playOpts.alarmAfter)
	defer timer.Stop()

	select {
	case res := <-s.results:
		// The file ended before the alarm was due.
		printResult(cmd.OutOrStdout(), res)
		return res.Err
	case <-timer.C:
	}

	alarmID, err := s.manager.PlayMelody(playOpts.alarm, s.options(audio.WithPriority(audio.PriorityAlarm))...)
	if err != nil {
		return exitError(err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Alarm %q started (stream %s)\n", playOpts.alarm, alarmID)

	// Both streams report: the file as stopped, the alarm when it ends.
	for _, id := range []string{fileID, alarmID} {
		res, err := s.wait(cmd.Context(), id)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), res)
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}
