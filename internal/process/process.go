package process

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"time"
)

// drainGrace bounds how long output is still read after the child exited.
// Grandchildren that inherited the pipe would otherwise keep it open forever.
const drainGrace = 2 * time.Second

// Process is one spawned child. The waiter goroutine started by Start is the
// only caller of cmd.Wait.
type Process struct {
	spec      Spec
	cmd       *exec.Cmd
	startedAt time.Time
	out       *os.File

	done     chan struct{}
	exitCode int
	waitErr  error
}

// Start launches spec with stdout and stderr merged into the returned reader.
// The reader reaches io.EOF once the child and everything sharing its output
// have exited, or drainGrace after the child exited, whichever comes first.
func Start(spec Spec) (*Process, io.ReadCloser, error) {
	if err := spec.Validate(); err != nil {
		return nil, nil, err
	}
	for _, d := range spec.Dirs {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create dir %s: %w", d, err)
		}
	}
	path, err := resolve(spec.Path)
	if err != nil {
		if errors.Is(err, ErrExecutableNotFound) {
			return nil, nil, err
		}
		return nil, nil, &SpawnError{Name: spec.Name, Path: spec.Path, Err: err}
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, &SpawnError{Name: spec.Name, Path: path, Err: err}
	}
	// #nosec G204 -- executable and args come from daemon configuration
	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.WorkDir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	cmd.Stdin = nil
	cmd.Stdout = w
	cmd.Stderr = w
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, nil, &SpawnError{Name: spec.Name, Path: path, Err: err}
	}
	// the child holds its own copy of the write end
	_ = w.Close()

	p := &Process{
		spec:      spec,
		cmd:       cmd,
		startedAt: time.Now(),
		out:       r,
		done:      make(chan struct{}),
	}
	go p.wait()
	return p, &output{f: r}, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.exitCode, p.waitErr = exitCode(p.cmd, err)
	close(p.done)
	_ = p.out.SetReadDeadline(time.Now().Add(drainGrace))
}

// PID returns the child's process id.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// StartedAt returns when the child was spawned.
func (p *Process) StartedAt() time.Time { return p.startedAt }

// Spec returns the spec the child was launched from.
func (p *Process) Spec() Spec { return p.spec }

// Done is closed once the child has been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Wait blocks until the child has exited and returns its exit code. A child
// killed by a signal reports the negated signal number on Unix.
func (p *Process) Wait() (int, error) {
	<-p.done
	return p.exitCode, p.waitErr
}

// Exited reports whether the child has been reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Terminate asks the child (and on Unix its whole process group) to exit.
// It does not wait. Repeated calls re-deliver the request; calling it on an
// exited child is a no-op.
func (p *Process) Terminate() error {
	if p.Exited() {
		return nil
	}
	return terminate(p.cmd)
}

// Kill forcibly ends the child.
func (p *Process) Kill() error {
	if p.Exited() {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func resolve(path string) (string, error) {
	resolved, err := exec.LookPath(path)
	if err == nil {
		return resolved, nil
	}
	if errors.Is(err, exec.ErrDot) {
		return resolved, nil
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, path)
	}
	return "", err
}

// output turns the post-exit read deadline into a plain end of stream.
type output struct {
	f *os.File
}

func (o *output) Read(b []byte) (int, error) {
	n, err := o.f.Read(b)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, io.EOF
	}
	return n, err
}

func (o *output) Close() error { return o.f.Close() }
