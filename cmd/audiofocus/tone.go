package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/audiofocus/internal/audio"
)

var toneOpts struct {
	priority string
	volume   int
	melody   string
}

var toneCmd = &cobra.Command{
	Use:   "tone [NOTE:ms ...]",
	Short: "Play synthesized tones",
	Long: `Play a sequence of synthesized tones on the tone transport.

Notes are written as NAME:milliseconds, where NAME is a note such as A4, C#5
or Bb3, or R for a rest. Tones default to notification priority.

Examples:
  audiofocus tone A4:100 R:50 A4:100
  audiofocus tone --melody "Ode to Joy"
  audiofocus tone --melody Twinkle --priority alarm`,
	RunE: runTone,
}

var rtttlCmd = &cobra.Command{
	Use:   "rtttl <ringtone|->",
	Short: "Play an RTTTL ringtone",
	Long: `Play a ringtone in RTTTL (Nokia ring tone) format. Pass - to read the
ringtone from stdin.

Example:
  audiofocus rtttl 'Beep:d=8,o=5,b=120:a,p,a'`,
	Args: cobra.ExactArgs(1),
	RunE: runRTTTL,
}

func init() {
	rootCmd.AddCommand(toneCmd)
	rootCmd.AddCommand(rtttlCmd)

	for _, c := range []*cobra.Command{toneCmd, rtttlCmd} {
		c.Flags().StringVarP(&toneOpts.priority, "priority", "p", "notification",
			"Focus priority (background, notification, alarm)")
		c.Flags().IntVar(&toneOpts.volume, "volume", -1,
			"Volume for this stream (0-100, default: configured volume)")
	}
	toneCmd.Flags().StringVarP(&toneOpts.melody, "melody", "m", "",
		"Play a built-in melody (see 'audiofocus melodies')")
}

func toneOptions() ([]audio.Option, error) {
	priority, err := audio.ParsePriority(toneOpts.priority)
	if err != nil {
		return nil, err
	}
	opts := []audio.Option{audio.WithPriority(priority)}
	if toneOpts.volume >= 0 {
		opts = append(opts, audio.WithVolume(toneOpts.volume))
	}
	return opts, nil
}

func runTone(cmd *cobra.Command, args []string) error {
	if toneOpts.melody == "" && len(args) == 0 {
		return fmt.Errorf("give notes or --melody")
	}
	if toneOpts.melody != "" && len(args) > 0 {
		return fmt.Errorf("give either notes or --melody, not both")
	}

	opts, err := toneOptions()
	if err != nil {
		return err
	}

	s, err := openSession(getConfig(), logger)
	if err != nil {
		return err
	}
	defer s.close()

	return s.run(cmd.Context(), cmd.OutOrStdout(), func() (string, error) {
		var (
			id  string
			err error
		)
		if toneOpts.melody != "" {
			id, err = s.manager.PlayMelody(toneOpts.melody, s.options(opts...)...)
		} else {
			id, err = s.manager.PlayTune(strings.Join(args, " "), s.options(opts...)...)
		}
		return id, exitError(err)
	})
}

func runRTTTL(cmd *cobra.Command, args []string) error {
	text := args[0]
	if text == "-" {
		data, err := readAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read ringtone: %w", err)
		}
		text = data
	}

	opts, err := toneOptions()
	if err != nil {
		return err
	}

	s, err := openSession(getConfig(), logger)
	if err != nil {
		return err
	}
	defer s.close()

	return s.run(cmd.Context(), cmd.OutOrStdout(), func() (string, error) {
		id, err := s.manager.PlayRTTTL(text, s.options(opts...)...)
		return id, exitError(err)
	})
}

// readAll reads a whole ringtone from r.
func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
