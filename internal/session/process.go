package session

import (
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/mcp-probe/internal/command"
)

// process owns the target child process and its three pipes. Exactly one
// session owns a process; the streams are never shared.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// launch spawns `executable scriptPath extraArgs...` with all three streams
// piped, in the harness's own working directory.
func launch(spec *command.CommandSpec) (*process, error) {
	argv := spec.CommandLine()
	cmd := exec.Command(argv[0], argv[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

func (p *process) pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// shutdown waits briefly for the child to exit after its stdin was closed,
// then kills it. The process must be gone when shutdown returns.
func (p *process) shutdown(grace time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- p.cmd.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		return <-done
	}
}
