package machine

import (
	"errors"
	"sync"
)

var errMissing = errors.New("missing")

type mapSource map[string][]string

func (s mapSource) Lines(name string) ([]string, error) {
	lines, ok := s[name]
	if !ok {
		return nil, errMissing
	}
	return lines, nil
}

// fakeController answers each command with the next scripted reply,
// defaulting to "ok". Replies containing "error" fail.
type fakeController struct {
	mx        sync.Mutex
	connected bool
	replies   []string
	sent      []string

	// block, if set, is received from before every reply.
	block chan struct{}
	// sending, if set, is signaled when a command is received.
	sending chan string
}

func newFakeController(replies ...string) *fakeController {
	return &fakeController{connected: true, replies: replies}
}

func (c *fakeController) Connected() bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.connected
}

func (c *fakeController) SendLine(line string) (string, error) {
	c.mx.Lock()
	if !c.connected {
		c.mx.Unlock()
		return MsgNotConnected, ErrNotConnected
	}
	c.sent = append(c.sent, line)
	reply := "ok"
	if len(c.replies) > 0 {
		reply = c.replies[0]
		c.replies = c.replies[1:]
	}
	block, sending := c.block, c.sending
	c.mx.Unlock()

	if sending != nil {
		sending <- line
	}
	if block != nil {
		<-block
	}
	if reply != "ok" {
		return reply, errors.New(reply)
	}
	return reply, nil
}

func (c *fakeController) Sent() []string {
	c.mx.Lock()
	defer c.mx.Unlock()
	return append([]string(nil), c.sent...)
}

// recorder collects every progress update.
type recorder struct {
	mx      sync.Mutex
	updates []Progress
}

func (r *recorder) record(p Progress) {
	r.mx.Lock()
	r.updates = append(r.updates, p)
	r.mx.Unlock()
}

func (r *recorder) Updates() []Progress {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]Progress(nil), r.updates...)
}

func (r *recorder) States() []JobState {
	var states []JobState
	for _, p := range r.Updates() {
		if len(states) == 0 || states[len(states)-1] != p.State {
			states = append(states, p.State)
		}
	}
	return states
}
