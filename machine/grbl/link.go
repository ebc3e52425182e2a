package grbl

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// NotConnected is the reply text reported when no port is open.
const NotConnected = "Not connected"

// ErrNotConnected is returned from Link methods that need an open port.
var ErrNotConnected = errors.New("not connected")

// State is a snapshot of the Link connection.
type State struct {
	Connected    bool   `json:"connected"`
	Port         string `json:"port"`
	Baud         int    `json:"baud"`
	LastResponse string `json:"last_response"`
	LastError    string `json:"last_error"`
	Status       Status `json:"status"`
}

// Options configure a Link.
type Options struct {
	// Open is used by Connect. Defaults to SerialOpener(DefaultReadTimeout).
	Open Opener

	// Ports is used by ListPorts. Defaults to ListPorts.
	Ports func() []PortInfo

	// ReplyTimeout bounds the wait for a terminal reply in SendLine.
	// Zero waits as long as the port stays open.
	ReplyTimeout time.Duration
}

// Link owns at most one open connection to a Grbl controller.
//
// All methods are safe for concurrent use. SendLine calls are
// serialized so only one command is ever in flight.
type Link struct {
	opt Options

	mx    sync.Mutex
	state State
	conn  *Conn

	wMx sync.Mutex
}

// NewLink creates a disconnected Link.
func NewLink(opt Options) *Link {
	if opt.Open == nil {
		opt.Open = SerialOpener(DefaultReadTimeout)
	}
	if opt.Ports == nil {
		opt.Ports = ListPorts
	}
	return &Link{
		opt:   opt,
		state: State{Baud: DefaultBaud},
	}
}

// ListPorts returns the available serial ports.
func (l *Link) ListPorts() []PortInfo {
	ports := l.opt.Ports()
	if ports == nil {
		return []PortInfo{}
	}
	return ports
}

// State returns a snapshot of the connection state.
func (l *Link) State() State {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.state
}

// Connected reports whether a port is open.
func (l *Link) Connected() bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.state.Connected
}

// Connect opens port, closing any previous connection first.
// A baud of zero or less uses DefaultBaud.
func (l *Link) Connect(port string, baud int) error {
	if baud <= 0 {
		baud = DefaultBaud
	}
	l.Disconnect()

	rwc, err := l.opt.Open(port, baud)
	if err != nil {
		err = fmt.Errorf("open %s: %w", port, err)
		l.mx.Lock()
		l.state.LastError = err.Error()
		l.mx.Unlock()
		return err
	}
	if f, ok := rwc.(interface{ Flush() error }); ok {
		// discard anything queued in either direction
		if err := f.Flush(); err != nil {
			log.WithError(err).WithField("port", port).Warn("flush serial buffers")
		}
	}

	conn := NewConn(rwc)
	conn.OnInfo = l.recordResponse

	l.mx.Lock()
	l.conn = conn
	l.state.Connected = true
	l.state.Port = port
	l.state.Baud = baud
	l.state.LastError = ""
	l.mx.Unlock()

	log.WithFields(log.Fields{"port": port, "baud": baud}).Info("connected")
	return nil
}

// Disconnect closes the port if open. It is safe to call at any time.
func (l *Link) Disconnect() {
	l.mx.Lock()
	conn := l.conn
	wasConnected := l.state.Connected
	l.conn = nil
	l.state.Connected = false
	l.state.Port = ""
	l.mx.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			log.WithError(err).Debug("close port")
		}
	}
	if wasConnected {
		log.Info("disconnected")
	}
}

func (l *Link) current() *Conn {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.conn
}

func (l *Link) recordResponse(line string) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.state.LastResponse = line
	if !IsStatusReport(line) {
		return
	}
	stat, err := parseStatus(l.state.Status, line)
	if err != nil {
		log.WithError(err).WithField("line", line).Warn("parse status")
		return
	}
	l.state.Status = *stat
}

func (l *Link) recordError(text string) {
	l.mx.Lock()
	l.state.LastError = text
	l.mx.Unlock()
}

// SendLine writes one command and blocks until the controller answers
// with `ok` or `error`.
//
// The returned text is the terminal reply, or a description of the
// failure. An `error` reply is returned as a *ReplyError; transport
// failures leave the port open so the caller can decide to Disconnect.
func (l *Link) SendLine(line string) (string, error) {
	l.wMx.Lock()
	defer l.wMx.Unlock()

	conn := l.current()
	if conn == nil {
		return NotConnected, ErrNotConnected
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}

	alive := func() bool { return l.current() == conn }
	reply, err := conn.Exchange(line, l.opt.ReplyTimeout, alive)
	if reply != "" {
		l.recordResponse(reply)
	}

	var rErr *ReplyError
	switch {
	case err == nil:
		return reply, nil
	case errors.As(err, &rErr):
		l.recordError(reply)
		return reply, err
	default:
		log.WithError(err).WithField("line", line).Error("send line")
		l.recordError(err.Error())
		return err.Error(), err
	}
}

// WriteRealtime sends a single realtime command byte (`?`, `!`, `~`,
// 0x18) without waiting for a reply. It may be used while a SendLine
// is in flight.
func (l *Link) WriteRealtime(b byte) error {
	conn := l.current()
	if conn == nil {
		return ErrNotConnected
	}
	err := conn.WriteByte(b)
	if err != nil {
		l.recordError(err.Error())
	}
	return err
}

// ReadAvailableLines drains reply lines that arrived outside of a
// SendLine exchange, such as status reports. It never waits for more
// than one serial read and yields nothing while a command is in flight.
func (l *Link) ReadAvailableLines() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !l.wMx.TryLock() {
			return
		}
		defer l.wMx.Unlock()

		conn := l.current()
		if conn == nil {
			return
		}
		lines, err := conn.Drain()
		if err != nil && l.current() == conn {
			log.WithError(err).Warn("drain port")
			l.recordError(err.Error())
		}
		for _, line := range lines {
			l.recordResponse(line)
		}
		for _, line := range lines {
			if !yield(line) {
				return
			}
		}
	}
}
