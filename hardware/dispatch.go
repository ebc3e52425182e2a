package hardware

import (
	log "github.com/sirupsen/logrus"

	"github.com/mastercactapus/grblwheel/machine"
)

// Job actions a button can be bound to instead of a macro name.
const (
	ActionStart  = "start"
	ActionPause  = "pause"
	ActionResume = "resume"
	ActionStop   = "stop"
)

// Dispatcher turns hardware events into controller commands.
type Dispatcher struct {
	Link     machine.Controller
	Jobs     *machine.Runner
	Macros   map[string][]string
	JogSteps map[string]float64
}

// Attach registers the dispatcher as the event handler of c.
func (d *Dispatcher) Attach(c Controller) {
	c.OnJog(d.Jog)
	c.OnButton(d.Button)
}

// Jog sends a relative move for the encoder ticks. It does nothing while
// disconnected or for modes that do not map to an axis.
func (d *Dispatcher) Jog(delta int, mode string) {
	if !d.Link.Connected() {
		return
	}
	line, ok := machine.JogLine(mode, delta, d.JogSteps)
	if !ok {
		return
	}
	resp, err := d.Link.SendLine(line)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"line": line, "reply": resp}).Warn("jog")
	}
}

// Button runs the named macro, or one of the job actions.
func (d *Dispatcher) Button(action string) {
	if action == "" {
		return
	}
	l := log.WithField("action", action)
	if lines, ok := d.Macros[action]; ok {
		resp, err := machine.RunMacro(d.Link, lines)
		if err != nil {
			l.WithError(err).WithField("reply", resp).Warn("button macro")
		}
		return
	}
	if d.Jobs == nil {
		l.Debug("no job runner for button")
		return
	}

	switch action {
	case ActionPause:
		d.Jobs.Pause()
	case ActionResume:
		d.Jobs.Resume()
	case ActionStop:
		d.Jobs.Stop()
	case ActionStart:
		p := d.Jobs.Progress()
		if p.State == machine.StatePaused {
			d.Jobs.Resume()
			return
		}
		if p.Filename == "" {
			l.Info("no previous job to start")
			return
		}
		_, err := d.Jobs.Start(p.Filename, 1)
		if err != nil {
			l.WithError(err).Warn("start job")
		}
	default:
		l.Warn("unknown button action")
	}
}
