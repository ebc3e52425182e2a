// Package hardware connects a physical jog wheel and buttons to the
// controller link.
package hardware

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/mastercactapus/grblwheel/config"
)

// JogFunc receives encoder ticks (+/-) and the selected jog mode
// ("x", "y", "z", "feedrate", "spindle").
type JogFunc func(delta int, mode string)

// ButtonFunc receives the action configured for a pressed button.
type ButtonFunc func(action string)

// A Controller reads the jog wheel, mode switch and buttons.
type Controller interface {
	Start() error
	Stop() error
	OnJog(fn JogFunc)
	OnButton(fn ButtonFunc)
}

// New returns the hardware controller for cfg. GPIO input is not
// supported on this platform, so a Mock is always returned.
func New(cfg *config.Config) Controller {
	if cfg.GPIOEnabled {
		log.Warn("gpio_enabled is set but no GPIO driver is available; hardware input disabled")
	}
	return &Mock{}
}

// Mock is a Controller without hardware. Events can be injected with Jog
// and Press while it is started.
type Mock struct {
	mx       sync.Mutex
	started  bool
	onJog    JogFunc
	onButton ButtonFunc
}

func (m *Mock) Start() error {
	m.mx.Lock()
	m.started = true
	m.mx.Unlock()
	return nil
}

func (m *Mock) Stop() error {
	m.mx.Lock()
	m.started = false
	m.mx.Unlock()
	return nil
}

func (m *Mock) OnJog(fn JogFunc) {
	m.mx.Lock()
	m.onJog = fn
	m.mx.Unlock()
}

func (m *Mock) OnButton(fn ButtonFunc) {
	m.mx.Lock()
	m.onButton = fn
	m.mx.Unlock()
}

// Jog simulates encoder movement.
func (m *Mock) Jog(delta int, mode string) {
	m.mx.Lock()
	fn := m.onJog
	if !m.started {
		fn = nil
	}
	m.mx.Unlock()
	if fn != nil {
		fn(delta, mode)
	}
}

// Press simulates a button press.
func (m *Mock) Press(action string) {
	m.mx.Lock()
	fn := m.onButton
	if !m.started {
		fn = nil
	}
	m.mx.Unlock()
	if fn != nil {
		fn(action)
	}
}
