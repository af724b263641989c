package main

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/timecursor/internal/midi"
)

// deps holds the process-level collaborators the commands reach for, so
// tests can run the commands without a MIDI driver or the real filesystem.
type deps struct {
	fs        afero.Fs
	listPorts func() []string
	openPort  func(name string) (*midi.Output, error)
}

func defaultDeps() deps {
	return deps{
		fs:        afero.NewOsFs(),
		listPorts: midi.Ports,
		openPort:  midi.Open,
	}
}

type rootOptions struct {
	configPath string
}

func newRootCommand(d deps) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "timecursor",
		Short: "Live-coding scheduler for timed JavaScript scores",
		Long: `timecursor evaluates a JavaScript score that places actions on a
virtual timeline with at(), wait(), repeat() and note(), then plays the
timeline in real time. Saving the score reloads it without stopping the
clock; values created with define() survive the reload.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")

	cmd.AddCommand(newRunCommand(opts, d))
	cmd.AddCommand(newPortsCommand(d))
	return cmd
}
