package machine

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ErrJobActive is returned by Start while another job is running.
var ErrJobActive = errors.New("Job already running")

// Runner streams the lines of a Source to a Controller, one command at a
// time, and can be paused, resumed or stopped between lines.
//
// Run is not guarded against re-entry: callers must not start a job while
// Progress().State.Active() is true. Start does the check.
type Runner struct {
	ctrl Controller
	src  Source

	mx       sync.Mutex
	gate     *sync.Cond
	progress Progress
	busy     bool
	paused   bool
	stop     bool
	onUpdate ProgressFunc
}

// NewRunner creates an idle Runner.
func NewRunner(ctrl Controller, src Source) *Runner {
	r := &Runner{
		ctrl:     ctrl,
		src:      src,
		progress: Progress{State: StateIdle},
	}
	r.gate = sync.NewCond(&r.mx)
	return r
}

// Progress returns the current snapshot.
func (r *Runner) Progress() Progress {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.progress
}

// SetProgressCallback registers fn to receive every progress change.
// A nil fn removes the callback.
//
// fn is called on the Run goroutine and Run does not continue until it
// returns, so updates are observed in order.
func (r *Runner) SetProgressCallback(fn ProgressFunc) {
	r.mx.Lock()
	r.onUpdate = fn
	r.mx.Unlock()
}

// Pause holds the job at the next line boundary.
func (r *Runner) Pause() {
	r.mx.Lock()
	r.paused = true
	r.mx.Unlock()
}

// Resume releases a paused job.
func (r *Runner) Resume() {
	r.mx.Lock()
	r.paused = false
	r.mx.Unlock()
	r.gate.Broadcast()
}

// Stop ends the job at the next line boundary. The line in flight is
// always completed. A paused job is woken so it can finish.
func (r *Runner) Stop() {
	r.mx.Lock()
	r.stop = true
	r.mx.Unlock()
	r.gate.Broadcast()
}

// update applies fn to the progress and notifies the callback with the
// resulting snapshot.
func (r *Runner) update(fn func(p *Progress)) {
	r.mx.Lock()
	fn(&r.progress)
	p := r.progress
	cb := r.onUpdate
	r.mx.Unlock()

	if cb != nil {
		cb(p)
	}
}

// finish publishes a terminal state. The runner is released in the same
// critical section, so Start succeeds as soon as the state is visible.
func (r *Runner) finish(fn func(p *Progress)) {
	r.update(func(p *Progress) {
		fn(p)
		r.busy = false
	})
}

func (r *Runner) fail(msg string) {
	r.finish(func(p *Progress) {
		p.State = StateError
		p.ErrorMessage = msg
	})
}

func (r *Runner) done() {
	r.finish(func(p *Progress) { p.State = StateDone })
}

// Start runs the job on a new goroutine. The returned channel is closed
// when Run returns.
func (r *Runner) Start(name string, startLine int) (<-chan struct{}, error) {
	r.mx.Lock()
	if r.busy || r.progress.State.Active() {
		r.mx.Unlock()
		return nil, ErrJobActive
	}
	r.busy = true
	r.mx.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(name, startLine)
	}()
	return done, nil
}

// commandText returns the part of line to send to the controller, or
// false if the line is blank or only a comment.
func commandText(line string) (string, bool) {
	s := strings.TrimSpace(line)
	if s == "" || strings.HasPrefix(s, ";") {
		return "", false
	}
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s, s != ""
}

// Run executes the named source starting at startLine (1-based) and
// returns once the job is done, stopped or failed. The outcome is
// reported through Progress only.
func (r *Runner) Run(name string, startLine int) {
	l := log.WithFields(log.Fields{"run": uuid.NewString(), "file": name})

	lines, err := r.src.Lines(name)
	if err != nil {
		l.WithError(err).Warn("resolve job")
		r.fail(MsgFileNotFound)
		return
	}
	if !r.ctrl.Connected() {
		l.Warn("job started while not connected")
		r.fail(MsgNotConnected)
		return
	}

	if startLine < 1 {
		startLine = 1
	}
	idx := startLine - 1
	if idx > len(lines) {
		idx = len(lines)
	}

	r.mx.Lock()
	r.stop = false
	r.paused = false
	r.mx.Unlock()
	r.update(func(p *Progress) {
		*p = Progress{
			State:       StateRunning,
			CurrentLine: idx,
			TotalLines:  len(lines),
			Filename:    name,
		}
	})
	l.WithFields(log.Fields{"start": idx + 1, "total": len(lines)}).Info("job started")

	advance := func() {
		idx++
		r.update(func(p *Progress) { p.CurrentLine = idx })
	}

	for idx < len(lines) {
		if !r.waitRunnable() {
			l.WithField("line", idx).Info("job stopped")
			r.done()
			return
		}

		cmd, ok := commandText(lines[idx])
		if !ok {
			advance()
			continue
		}

		resp, err := r.ctrl.SendLine(cmd)
		if err != nil {
			l.WithError(err).WithFields(log.Fields{"line": idx + 1, "cmd": cmd}).Error("job failed")
			r.fail(resp)
			return
		}
		advance()
	}

	l.Info("job done")
	r.done()
}

// waitRunnable blocks while the job is paused. It returns false if a
// stop was requested.
func (r *Runner) waitRunnable() bool {
	r.mx.Lock()
	if r.stop {
		r.mx.Unlock()
		return false
	}
	if !r.paused {
		r.mx.Unlock()
		return true
	}
	r.mx.Unlock()

	r.update(func(p *Progress) { p.State = StatePaused })

	r.mx.Lock()
	for r.paused && !r.stop {
		r.gate.Wait()
	}
	resumed := !r.paused
	r.mx.Unlock()

	if resumed {
		r.update(func(p *Progress) { p.State = StateRunning })
	}

	r.mx.Lock()
	defer r.mx.Unlock()
	return !r.stop
}
