package backend

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// gitLineStream hands out the stdout of a running git command one line at a
// time, so callers can stop reading without waiting for the command to finish.
type gitLineStream struct {
	label  string
	cancel context.CancelFunc
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	r      *bufio.Reader

	done   bool
	closed bool

	waitOnce sync.Once
	waitErr  error
}

func (g *gitCLI) startLineStream(ctx context.Context, args []string, label string) (*gitLineStream, error) {
	if g == nil || g.path == "" {
		return nil, fmt.Errorf("repository root not set")
	}
	ctx, cancel := context.WithCancel(ctx)
	cmd := g.command(ctx, args)
	stream := &gitLineStream{label: label, cancel: cancel, cmd: cmd}
	cmd.Stderr = &stream.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s stdout: %w", label, err)
	}
	stream.stdout = stdout
	stream.r = bufio.NewReader(stdout)
	if err := cmd.Start(); err != nil {
		cancel()
		_ = stdout.Close()
		if stream.stderr.Len() > 0 {
			return nil, fmt.Errorf("%s start: %v: %s", label, err, strings.TrimSpace(stream.stderr.String()))
		}
		return nil, fmt.Errorf("%s start: %w", label, err)
	}
	return stream, nil
}

func (s *gitLineStream) Next() (string, error) {
	if s.done || s.closed {
		return "", io.EOF
	}
	line, err := s.r.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			return "", err
		}
		if line != "" {
			// Last line without a trailing newline; EOF is reported next time.
			return strings.TrimSuffix(line, "\r"), nil
		}
		s.done = true
		if waitErr := s.wait(); waitErr != nil {
			return "", waitErr
		}
		return "", io.EOF
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// Close stops the command. A command killed before its output was fully read
// is not reported as a failure.
func (s *gitLineStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	finished := s.done
	s.cancel()
	_ = s.stdout.Close()
	err := s.wait()
	if !finished {
		return nil
	}
	return err
}

func (s *gitLineStream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	if s.waitErr == nil {
		return nil
	}
	return commandError(s.label, s.waitErr, s.stderr.String())
}
