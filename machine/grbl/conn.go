package grbl

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// LineEnding terminates every command written to the controller.
const LineEnding = "\r"

const readChunk = 256

// ErrReplyTimeout is returned when no terminal reply arrives in time.
var ErrReplyTimeout = errors.New("timed out waiting for reply")

// ErrGrblReset is returned from Exchange if the controller resets before
// the command is acknowledged. The command is discarded by Grbl.
var ErrGrblReset = errors.New("grbl reset")

// ReplyError is a terminal `error` reply from the controller.
type ReplyError struct {
	Reply string
}

func (e *ReplyError) Error() string { return e.Reply }

// Conn speaks the line-at-a-time Grbl protocol over a ReadWriter.
//
// A single command is written and the reply stream is read until a
// terminal `ok` or `error` line. There is no pipelining.
type Conn struct {
	rw io.ReadWriter

	mx      sync.Mutex
	pending []byte
	buf     []byte

	// OnInfo is called for every non-terminal reply line.
	OnInfo func(line string)
}

// NewConn creates a new Conn using the provided ReadWriter for data.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		rw:  rw,
		buf: make([]byte, readChunk),
	}
}

// Close closes the underlying ReadWriter, if it implements io.Closer.
func (c *Conn) Close() error {
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func isOK(line string) bool {
	return len(line) >= 2 && strings.EqualFold(line[:2], "ok")
}

func isError(line string) bool {
	return strings.Contains(strings.ToLower(line), "error")
}

// Terminal reports whether a reply line ends the wait for a command.
func Terminal(line string) bool { return isOK(line) || isError(line) }

// IsBanner reports whether line is the welcome message Grbl prints after
// power-up or a reset.
func IsBanner(line string) bool { return strings.HasPrefix(line, "Grbl ") }

// WriteLine writes line followed by LineEnding in a single Write.
//
// Serial writes are unbuffered, so the line is on the wire once
// WriteLine returns.
func (c *Conn) WriteLine(line string) error {
	c.mx.Lock()
	_, err := c.rw.Write([]byte(line + LineEnding))
	c.mx.Unlock()
	return err
}

// WriteByte will write directly to the device without waiting for a reply.
//
// Use for realtime commands like `?`.
func (c *Conn) WriteByte(p byte) error {
	c.mx.Lock()
	_, err := c.rw.Write([]byte{p})
	c.mx.Unlock()
	return err
}

// Exchange writes line and blocks until a terminal reply is read.
//
// The reply text is returned in both cases; an `error` reply is
// returned as a *ReplyError. If timeout is non-zero and expires before
// a terminal reply, ErrReplyTimeout is returned. A reset banner ends the
// wait with ErrGrblReset. alive is polled between empty reads; when it
// reports false the wait ends with io.ErrClosedPipe.
func (c *Conn) Exchange(line string, timeout time.Duration, alive func() bool) (string, error) {
	err := c.WriteLine(line)
	if err != nil {
		return "", err
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		reply, ok, err := c.readLine()
		if err != nil {
			return "", err
		}
		if !ok {
			if alive != nil && !alive() {
				return "", io.ErrClosedPipe
			}
			if !deadline.IsZero() && time.Now().After(deadline) {
				return "", ErrReplyTimeout
			}
			continue
		}
		if reply == "" {
			continue
		}
		if isOK(reply) {
			return reply, nil
		}
		if isError(reply) {
			return reply, &ReplyError{Reply: reply}
		}
		if c.OnInfo != nil {
			c.OnInfo(reply)
		}
		if IsBanner(reply) {
			return reply, ErrGrblReset
		}
	}
}

// nextPending pops one complete line from the pending buffer.
func (c *Conn) nextPending() (string, bool) {
	i := bytes.IndexByte(c.pending, '\n')
	if i < 0 {
		return "", false
	}
	line := strings.TrimSpace(string(c.pending[:i]))
	c.pending = c.pending[i+1:]
	return line, true
}

// readLine performs at most one Read. ok is false if no complete line
// is available yet; a serial read timeout surfaces as an empty read.
func (c *Conn) readLine() (line string, ok bool, err error) {
	if line, ok = c.nextPending(); ok {
		return line, true, nil
	}

	n, err := c.rw.Read(c.buf)
	c.pending = append(c.pending, c.buf[:n]...)
	if err != nil && err != io.EOF {
		return "", false, err
	}

	line, ok = c.nextPending()
	return line, ok, nil
}

// Drain returns the complete lines that have already arrived,
// performing a single Read to pick up new data.
func (c *Conn) Drain() ([]string, error) {
	var lines []string
	for {
		line, ok := c.nextPending()
		if !ok {
			break
		}
		if line != "" {
			lines = append(lines, line)
		}
	}

	line, ok, err := c.readLine()
	for ok {
		if line != "" {
			lines = append(lines, line)
		}
		line, ok = c.nextPending()
	}
	return lines, err
}
