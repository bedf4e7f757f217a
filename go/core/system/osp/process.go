/*
	Copyright 2021 SANGFOR TECHNOLOGIES

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

		http://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/
package osp

import (
	"bytes"
	"context"
	"fmt"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"github.com/go-cmd/cmd"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// stderrTailLines is how many stderr lines are kept in error message
const stderrTailLines = 10

// ExecCmd exec command, wait until it stops and return its stdout lines. Command is stopped if ctx is done.
// Stderr alone does not fail the command since tools like xtrabackup report progress on it.
func ExecCmd(ctx context.Context, command string, args ...string) ([]string, error) {
	log.Debug("exec command: %s %s", command, strings.Join(redact(args), " "))
	c := cmd.NewCmd(command, args...)
	statusChan := c.Start()

	// stop command when context is done
	select {
	case <-statusChan:
	case <-ctx.Done():
		_ = c.Stop()
		<-statusChan
		return nil, log.Errorf("exec:%s canceled, error:%s", command, ctx.Err())
	}

	// get go error
	status := c.Status()
	if status.Error != nil {
		return nil, log.Errore(status.Error)
	}

	// get command error
	if status.Exit != 0 {
		return nil, log.Errorf("exec:%s failed, exit status:%d, error:%s", command, status.Exit, strings.Join(tail(status.Stderr, stderrTailLines), "\n"))
	}
	return status.Stdout, nil
}

// Pipe runs command with stdin and stdout wired to given reader and writer, either may be nil.
// Process output is binary so it is copied through os pipes rather than buffered line by line.
func Pipe(ctx context.Context, stdin io.Reader, stdout io.Writer, command string, args ...string) error {
	log.Debug("pipe command: %s %s", command, strings.Join(redact(args), " "))
	c := exec.CommandContext(ctx, command, args...)
	stderr := &tailBuffer{}
	c.Stdin = stdin
	c.Stdout = stdout
	c.Stderr = stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", command, err, stderr.String())
	}
	return nil
}

// Output starts command and returns its stdout as stream, closing the stream waits for the command
// and returns its failure.
func Output(ctx context.Context, command string, args ...string) (io.ReadCloser, error) {
	log.Debug("output command: %s %s", command, strings.Join(redact(args), " "))
	c := exec.CommandContext(ctx, command, args...)
	stderr := &tailBuffer{}
	c.Stderr = stderr
	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err = c.Start(); err != nil {
		return nil, fmt.Errorf("%s start failed: %w", command, err)
	}
	return &processReader{ReadCloser: stdout, cmd: c, stderr: stderr, name: command}, nil
}

// processReader reads stdout of a running process
type processReader struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *tailBuffer
	name   string
	once   sync.Once
	err    error
}

// Close stops reading and waits for process, a process killed because reader stopped early is reported as failure
func (p *processReader) Close() error {
	p.once.Do(func() {
		_ = p.ReadCloser.Close()
		if err := p.cmd.Wait(); err != nil {
			p.err = fmt.Errorf("%s failed: %w: %s", p.name, err, p.stderr.String())
		}
	})
	return p.err
}

// tailBuffer keeps the last bytes written to it
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

const tailBufferSize = 4096

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if t.buf.Len() > tailBufferSize {
		t.buf.Next(t.buf.Len() - tailBufferSize)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}

func tail(lines []string, n int) []string {
	if len(lines) > n {
		return lines[len(lines)-n:]
	}
	return lines
}

// redact hide password argument in log
func redact(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if strings.HasPrefix(arg, "--password=") {
			arg = "--password=****"
		}
		out[i] = arg
	}
	return out
}
