package grbl

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// fakePort simulates a Grbl controller: every CR-terminated command is
// answered with the lines returned by respond.
type fakePort struct {
	mx      sync.Mutex
	in      bytes.Buffer
	cmd     bytes.Buffer
	raw     []string
	writes  []string
	closed  bool
	flushed int

	respond  func(line string) []string
	writeErr error
}

func newFakePort(respond func(line string) []string) *fakePort {
	if respond == nil {
		respond = func(string) []string { return []string{"ok"} }
	}
	return &fakePort{respond: respond}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.closed {
		return 0, os.ErrClosed
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.raw = append(p.raw, string(b))
	if len(b) == 1 && b[0] != '\r' {
		// realtime byte
		return 1, nil
	}
	p.cmd.Write(b)
	for {
		data := p.cmd.String()
		i := strings.IndexByte(data, '\r')
		if i < 0 {
			break
		}
		line := data[:i]
		p.cmd.Next(i + 1)
		p.writes = append(p.writes, line)
		for _, reply := range p.respond(line) {
			p.in.WriteString(reply + "\n")
		}
	}
	return len(b), nil
}

// Read behaves like a serial port with a short read timeout.
func (p *fakePort) Read(b []byte) (int, error) {
	p.mx.Lock()
	if p.closed {
		p.mx.Unlock()
		return 0, os.ErrClosed
	}
	if p.in.Len() == 0 {
		p.mx.Unlock()
		time.Sleep(time.Millisecond)
		return 0, io.EOF
	}
	defer p.mx.Unlock()
	return p.in.Read(b)
}

func (p *fakePort) Close() error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.closed {
		return os.ErrClosed
	}
	p.closed = true
	return nil
}

func (p *fakePort) Flush() error {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.flushed++
	p.in.Reset()
	return nil
}

func (p *fakePort) push(data string) {
	p.mx.Lock()
	p.in.WriteString(data)
	p.mx.Unlock()
}

func (p *fakePort) Writes() []string {
	p.mx.Lock()
	defer p.mx.Unlock()
	return append([]string(nil), p.writes...)
}

func (p *fakePort) Raw() []string {
	p.mx.Lock()
	defer p.mx.Unlock()
	return append([]string(nil), p.raw...)
}

var errNoDevice = errors.New("no such device")

// fakeOpener hands out port for any name except "/dev/missing".
func fakeOpener(port *fakePort) Opener {
	return func(name string, baud int) (io.ReadWriteCloser, error) {
		if name == "/dev/missing" {
			return nil, errNoDevice
		}
		return port, nil
	}
}
