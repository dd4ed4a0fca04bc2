// Package transcoder runs ffmpeg. It serializes commands per working
// directory, streams progress from stderr and keeps the full diagnostic
// output for failed runs.
package transcoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ExecutionError is returned when ffmpeg exits with an error. Output is the
// verbatim stderr of the run.
type ExecutionError struct {
	Args   []string
	Err    error
	Output string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v, output: %s", e.Err, e.Output)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Transcoder manages ffmpeg processes.
type Transcoder struct {
	binary string
	logger zerolog.Logger

	mu        sync.Mutex
	dirs      map[string]*sync.Mutex
	processes map[*exec.Cmd]string
}

// New creates a Transcoder for the given ffmpeg binary ("ffmpeg" when
// empty).
func New(binary string, logger zerolog.Logger) *Transcoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Transcoder{
		binary:    binary,
		logger:    logger.With().Str("component", "transcoder").Logger(),
		dirs:      make(map[string]*sync.Mutex),
		processes: make(map[*exec.Cmd]string),
	}
}

// Available reports whether the ffmpeg binary can be found.
func (t *Transcoder) Available() bool {
	_, err := exec.LookPath(t.binary)
	return err == nil
}

// Options configure a single run.
type Options struct {
	// Dir is the working directory. Runs sharing a Dir never overlap.
	Dir string
	// Stdout receives the muxed output when writing to pipe:1.
	Stdout io.Writer
	// Duration of the output in seconds, used for progress fractions.
	Duration   float64
	OnProgress ProgressFunc
}

// Process is a started ffmpeg run.
type Process struct {
	// Stdin accepts raw input when the command reads from pipe:0. It is nil
	// otherwise.
	Stdin io.WriteCloser

	t      *Transcoder
	ctx    context.Context
	cmd    *exec.Cmd
	args   []string
	unlock func()
	output strings.Builder
	done   chan struct{}
}

// Run executes ffmpeg with args and waits for it to finish.
func (t *Transcoder) Run(ctx context.Context, args []string, opts Options) error {
	p, err := t.start(ctx, args, opts, false)
	if err != nil {
		return err
	}
	return p.Wait()
}

// Start launches ffmpeg with a writable stdin. The caller must call Wait.
func (t *Transcoder) Start(ctx context.Context, args []string, opts Options) (*Process, error) {
	return t.start(ctx, args, opts, true)
}

func (t *Transcoder) start(ctx context.Context, args []string, opts Options, withStdin bool) (*Process, error) {
	unlock := t.lockDir(opts.Dir)

	cmd := exec.CommandContext(ctx, t.binary, args...)
	cmd.Dir = opts.Dir
	cmd.Stdout = opts.Stdout

	p := &Process{t: t, ctx: ctx, cmd: cmd, args: args, unlock: unlock, done: make(chan struct{})}

	if withStdin {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			unlock()
			return nil, fmt.Errorf("stdin pipe error: %w", err)
		}
		p.Stdin = stdin
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		unlock()
		return nil, fmt.Errorf("stderr pipe error: %w", err)
	}

	t.logger.Debug().Strs("args", args).Msg("[*] starting ffmpeg")
	if err := cmd.Start(); err != nil {
		unlock()
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	t.track(cmd, opts.Dir)

	go p.readStderr(stderr, opts)
	return p, nil
}

func (p *Process) readStderr(r io.Reader, opts Options) {
	defer close(p.done)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLines)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		p.output.WriteString(line)
		p.output.WriteByte('\n')
		if progress, ok := ParseProgress(line, opts.Duration); ok {
			if opts.OnProgress != nil {
				opts.OnProgress(progress)
			}
			continue
		}
		p.t.logger.Trace().Msg(line)
	}
}

// Wait closes stdin, waits for ffmpeg to exit and releases the working
// directory.
func (p *Process) Wait() error {
	defer p.unlock()
	defer p.t.untrack(p.cmd)

	if p.Stdin != nil {
		p.Stdin.Close()
	}
	<-p.done
	err := p.cmd.Wait()
	if err == nil {
		return nil
	}
	if p.ctx.Err() != nil {
		return p.ctx.Err()
	}
	return &ExecutionError{Args: p.args, Err: err, Output: p.output.String()}
}

// Kill stops the process without waiting. Wait must still be called.
func (p *Process) Kill() {
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
}

func (t *Transcoder) lockDir(dir string) func() {
	t.mu.Lock()
	m, ok := t.dirs[dir]
	if !ok {
		m = &sync.Mutex{}
		t.dirs[dir] = m
	}
	t.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (t *Transcoder) track(cmd *exec.Cmd, dir string) {
	t.mu.Lock()
	t.processes[cmd] = dir
	t.mu.Unlock()
}

func (t *Transcoder) untrack(cmd *exec.Cmd) {
	t.mu.Lock()
	delete(t.processes, cmd)
	t.mu.Unlock()
}

// Cleanup stops all active ffmpeg processes.
func (t *Transcoder) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for cmd, dir := range t.processes {
		if cmd.Process != nil {
			t.logger.Info().Str("dir", dir).Msg("[!] killing ffmpeg process")
			if err := cmd.Process.Kill(); err != nil {
				t.logger.Warn().Err(err).Str("dir", dir).Msg("failed to kill ffmpeg process")
			}
		}
	}
}

// RemoveFiles deletes temporary files one at a time. Failures are logged
// and never returned.
func (t *Transcoder) RemoveFiles(paths ...string) int {
	removed := 0
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				t.logger.Warn().Err(err).Str("path", path).Msg("failed to remove temp file")
			}
			continue
		}
		removed++
	}
	return removed
}
