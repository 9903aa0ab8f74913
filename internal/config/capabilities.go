package config

import (
	"fmt"
	"log/slog"

	"github.com/jmylchreest/audiofocus/internal/audio"
	"github.com/jmylchreest/audiofocus/internal/transport"
)

// Hardware is the set of transports built from a Config.
type Hardware struct {
	Capabilities audio.Capabilities

	speaker *transport.Speaker
}

// Close releases process-wide audio devices.
func (h *Hardware) Close() {
	if h.speaker != nil {
		h.speaker.Shutdown()
	}
}

// BuildHardware creates the drivers and adapters named in the config.
// Drivers shared between capabilities are wrapped in one adapter so their
// ownership is arbitrated together.
func (c *Config) BuildHardware(logger *slog.Logger) (*Hardware, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	h := &Hardware{}

	simulated := func(output, input bool) transport.Driver {
		return transport.NewSimulated(transport.SimulatedOptions{
			Realtime:  c.Simulation.Realtime,
			Frequency: c.Simulation.Frequency,
			Output:    output,
			Input:     input,
		})
	}
	speaker := func() *transport.Speaker {
		if h.speaker == nil {
			h.speaker = transport.NewSpeaker(logger)
		}
		return h.speaker
	}

	var outputDriver transport.Driver
	switch c.Output.Driver {
	case DriverNone:
	case DriverSimulated:
		outputDriver = simulated(true, c.Input.Driver == DriverShared)
	case DriverALSA:
		outputDriver = transport.NewALSA(c.Output.Device, logger)
	case DriverSpeaker:
		outputDriver = speaker()
	default:
		return nil, fmt.Errorf("invalid output driver %q", c.Output.Driver)
	}
	if outputDriver != nil {
		h.Capabilities.Output = transport.NewAdapter(outputDriver, logger)
	}

	switch c.Tone.Driver {
	case DriverNone:
	case DriverOutput:
		h.Capabilities.Tone = h.Capabilities.Output
	case DriverSimulated:
		h.Capabilities.Tone = transport.NewAdapter(simulated(true, false), logger)
	case DriverSpeaker:
		if c.Output.Driver == DriverSpeaker {
			h.Capabilities.Tone = h.Capabilities.Output
		} else {
			h.Capabilities.Tone = transport.NewAdapter(speaker(), logger)
		}
	default:
		return nil, fmt.Errorf("invalid tone driver %q", c.Tone.Driver)
	}

	switch c.Input.Driver {
	case DriverNone:
	case DriverShared:
		h.Capabilities.Input = h.Capabilities.Output
	case DriverSimulated:
		h.Capabilities.Input = transport.NewAdapter(simulated(false, true), logger)
	case DriverALSA:
		h.Capabilities.Input = transport.NewAdapter(transport.NewALSA(c.Input.Device, logger), logger)
	default:
		return nil, fmt.Errorf("invalid input driver %q", c.Input.Driver)
	}

	return h, nil
}

// ManagerOptions converts the [audio] section into manager options.
func (c *Config) ManagerOptions(logger *slog.Logger) audio.Options {
	opts := audio.DefaultOptions()
	opts.Volume = c.Audio.Volume
	opts.ToneSampleRate = c.Audio.ToneSampleRate
	opts.RecordSampleRate = c.Audio.SampleRate
	if c.Audio.MaxRecord > 0 {
		opts.MaxRecordDuration = c.Audio.MaxRecord.Duration()
	}
	if c.Audio.ChunkSize > 0 {
		opts.ChunkSize = c.Audio.ChunkSize
	}
	opts.Logger = logger
	return opts
}
