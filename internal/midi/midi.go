// Package midi sends timed notes to a MIDI output port.
package midi

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

var (
	// ErrNoPort is returned when no output port matches the requested name.
	ErrNoPort = errors.New("no matching MIDI output port")
	// ErrAmbiguousPort is returned when several output ports match equally well.
	ErrAmbiguousPort = errors.New("ambiguous MIDI output port")
	// ErrClosed is returned by sends on a closed Output.
	ErrClosed = errors.New("MIDI output closed")
)

// NoteOutput receives note messages. Channel is 0-based.
type NoteOutput interface {
	NoteOn(channel, key, velocity uint8) error
	NoteOff(channel, key uint8) error
}

// Output is a NoteOutput writing gomidi messages through a send function,
// usually one bound to a driver port.
type Output struct {
	name string
	port drivers.Out

	mu     sync.Mutex
	send   func(gomidi.Message) error
	closed bool
}

// NewOutput wraps an arbitrary send function.
func NewOutput(send func(gomidi.Message) error) *Output {
	return &Output{name: "custom", send: send}
}

// Open resolves portName against the available output ports and opens the
// best match. A MIDI driver must be registered by the binary.
func Open(portName string) (*Output, error) {
	ports := gomidi.GetOutPorts()
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.String()
	}

	match, err := BestMatch(portName, names)
	if err != nil {
		return nil, err
	}

	for _, p := range ports {
		if p.String() != match {
			continue
		}
		send, err := gomidi.SendTo(p)
		if err != nil {
			return nil, fmt.Errorf("open MIDI port %q: %w", match, err)
		}
		return &Output{name: match, port: p, send: send}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoPort, portName)
}

// Ports lists the names of the available output ports.
func Ports() []string {
	ports := gomidi.GetOutPorts()
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.String()
	}
	return names
}

// BestMatch picks the port for query: an exact name wins, otherwise the only
// port whose name contains query case-insensitively.
func BestMatch(query string, names []string) (string, error) {
	for _, n := range names {
		if n == query {
			return n, nil
		}
	}

	q := strings.ToLower(strings.TrimSpace(query))
	var matches []string
	if q != "" {
		for _, n := range names {
			if strings.Contains(strings.ToLower(n), q) {
				matches = append(matches, n)
			}
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %q", ErrNoPort, query)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %q matches %s", ErrAmbiguousPort, query, strings.Join(matches, ", "))
	}
}

// Name returns the port name.
func (o *Output) Name() string { return o.name }

// NoteOn implements NoteOutput.
func (o *Output) NoteOn(channel, key, velocity uint8) error {
	return o.write(gomidi.NoteOn(channel, key, velocity))
}

// NoteOff implements NoteOutput.
func (o *Output) NoteOff(channel, key uint8) error {
	return o.write(gomidi.NoteOff(channel, key))
}

func (o *Output) write(msg gomidi.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.send == nil {
		return nil
	}
	return o.send(msg)
}

// Close releases the underlying port. Later sends fail with ErrClosed.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	if o.port != nil {
		return o.port.Close()
	}
	return nil
}
