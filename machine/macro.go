package machine

import (
	"errors"

	log "github.com/sirupsen/logrus"
)

// ErrNotConnected is returned when a macro is run without a connection.
var ErrNotConnected = errors.New(MsgNotConnected)

// RunMacro sends each command line of a macro, waiting for the reply to
// each one. Blank and comment lines are skipped. It stops at the first
// failed line and returns its reply text with the error.
func RunMacro(ctrl Controller, lines []string) (string, error) {
	if !ctrl.Connected() {
		return MsgNotConnected, ErrNotConnected
	}
	for _, line := range lines {
		cmd, ok := commandText(line)
		if !ok {
			continue
		}
		resp, err := ctrl.SendLine(cmd)
		if err != nil {
			log.WithError(err).WithField("cmd", cmd).Warn("macro line failed")
			return resp, err
		}
	}
	return "OK", nil
}
