package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/audiofocus/internal/tone"
)

var melodiesOpts struct {
	format string
}

var melodiesCmd = &cobra.Command{
	Use:   "melodies",
	Short: "List the built-in melodies",
	Long: `List the built-in melodies that can be played with 'audiofocus tone --melody'.

The json and yaml formats include every note's frequency and duration.`,
	Args: cobra.NoArgs,
	RunE: runMelodies,
}

func init() {
	rootCmd.AddCommand(melodiesCmd)

	melodiesCmd.Flags().StringVarP(&melodiesOpts.format, "format", "f", "plain",
		"Output format (plain, json, yaml)")
}

// melodyInfo is the exported form of a built-in melody.
type melodyInfo struct {
	Name       string        `json:"name" yaml:"name"`
	DurationMs int           `json:"duration_ms" yaml:"duration_ms"`
	Notes      tone.Sequence `json:"notes" yaml:"notes"`
}

func runMelodies(cmd *cobra.Command, args []string) error {
	var melodies []melodyInfo
	for _, name := range tone.MelodyNames() {
		seq, _ := tone.Melody(name)
		melodies = append(melodies, melodyInfo{Name: name, DurationMs: seq.Duration(), Notes: seq})
	}
	return writeFormatted(cmd.OutOrStdout(), melodiesOpts.format, melodies, func(w io.Writer) error {
		for _, m := range melodies {
			if _, err := fmt.Fprintf(w, "%-12s %3d notes  %5.1fs\n", m.Name, len(m.Notes), float64(m.DurationMs)/1000); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeFormatted writes v as json or yaml, or calls plain for any other
// recognised format.
func writeFormatted(w io.Writer, format string, v any, plain func(io.Writer) error) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "plain", "", "toml":
		return plain(w)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
