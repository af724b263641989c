package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPortsCommand(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List MIDI output ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names := d.listPorts()
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, "no MIDI output ports found")
				return nil
			}
			for i, name := range names {
				fmt.Fprintf(out, "%d: %s\n", i, name)
			}
			return nil
		},
	}
}
