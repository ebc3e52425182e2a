package machine

import "github.com/mastercactapus/grblwheel/machine/grbl"

// A Controller is the minimal controller connection a job needs.
type Controller interface {
	// SendLine sends one command and waits for the terminal reply.
	// On failure the returned text describes the reply or error.
	SendLine(line string) (string, error)

	Connected() bool
}

var _ Controller = &grbl.Link{}

// A Source resolves a job name into its lines.
type Source interface {
	Lines(name string) ([]string, error)
}
