// Command timecursor plays a live-coded JavaScript score against a
// time-cursor scheduler and reloads it whenever the file changes.
package main

import (
	"fmt"
	"os"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

func main() {
	err := newRootCommand(defaultDeps()).Execute()
	gomidi.CloseDriver()
	if err != nil {
		fmt.Fprintln(os.Stderr, "timecursor:", err)
		os.Exit(1)
	}
}
