package monitor

import (
	"os/exec"
	"sync"
)

// Worker is a Task backed by a goroutine. It counts as alive until the
// function it runs has returned.
type Worker struct {
	name string
	done chan struct{}
	once sync.Once
}

// Go spawns fn on its own goroutine and returns the handle to poll it with.
func Go(name string, fn func()) *Worker {
	w := &Worker{name: name, done: make(chan struct{})}
	go func() {
		defer w.once.Do(func() { close(w.done) })
		fn()
	}()
	return w
}

// Name implements Task.
func (w *Worker) Name() string { return w.name }

// Alive implements Task.
func (w *Worker) Alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Done is closed when the worker's function has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Process is a Task backed by an external process. Once the process exits
// it reports the exit code alongside its death.
type Process struct {
	name string
	cmd  *exec.Cmd
	done chan struct{}

	mu   sync.Mutex
	code int
}

// StartProcess starts cmd and returns the handle to poll it with. The
// process is waited on internally; callers must not call cmd.Wait themselves.
func StartProcess(name string, cmd *exec.Cmd) (*Process, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &Process{name: name, cmd: cmd, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		err := cmd.Wait()
		p.mu.Lock()
		defer p.mu.Unlock()
		if cmd.ProcessState != nil {
			p.code = cmd.ProcessState.ExitCode()
		} else if err != nil {
			p.code = -1
		}
	}()
	return p, nil
}

// Name implements Task.
func (p *Process) Name() string { return p.name }

// Alive implements Task.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitCode implements ExitCoder. The second return is false while the
// process is still running.
func (p *Process) ExitCode() (int, bool) {
	select {
	case <-p.done:
	default:
		return 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code, true
}

// Kill terminates the underlying process.
func (p *Process) Kill() error {
	return p.cmd.Process.Kill()
}
