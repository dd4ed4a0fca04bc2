package transcoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseProgress(t *testing.T) {
	tests := []struct {
		line  string
		ok    bool
		frame int
		time  float64
		speed float64
	}{
		{"frame=  120 fps= 60 q=28.0 size=     512kB time=00:00:04.00 bitrate=1048.6kbits/s speed=2.01x    ", true, 120, 4, 2.01},
		{"frame=1 fps=0.0 q=0.0 size=0kB time=00:01:02.50 bitrate=N/A speed=N/A", true, 1, 62.5, 0},
		{"frame=  3 fps=0.0 q=-0.0 Lsize=N/A time=N/A bitrate=N/A speed=0.5x", true, 3, 0, 0.5},
		{"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'a.mp4':", false, 0, 0, 0},
		{"[Parsed_overlay_3 @ 0x1] something odd frame=", false, 0, 0, 0},
		{"", false, 0, 0, 0},
	}
	for _, tt := range tests {
		p, ok := ParseProgress(tt.line, 8)
		if ok != tt.ok {
			t.Errorf("%q: ok = %v, want %v", tt.line, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if p.Frame != tt.frame || math.Abs(p.Time-tt.time) > 1e-9 || math.Abs(p.Speed-tt.speed) > 1e-9 {
			t.Errorf("%q: got %+v", tt.line, p)
		}
		if p.Fraction < 0 || p.Fraction > 1 {
			t.Errorf("%q: fraction %g out of range", tt.line, p.Fraction)
		}
	}
}

func TestParseProgressFraction(t *testing.T) {
	p, ok := ParseProgress("frame=10 time=00:00:02.00 speed=1x", 8)
	if !ok || p.Fraction != 0.25 {
		t.Errorf("fraction = %g, want 0.25", p.Fraction)
	}
	p, _ = ParseProgress("frame=10 time=00:00:20.00 speed=1x", 8)
	if p.Fraction != 1 {
		t.Errorf("fraction = %g, want clamp to 1", p.Fraction)
	}
	p, _ = ParseProgress("frame=10 time=00:00:20.00 speed=1x", 0)
	if p.Fraction != 0 {
		t.Errorf("fraction without duration = %g", p.Fraction)
	}
}

func TestScanLines(t *testing.T) {
	in := "first\nframe=1 speed=1x\rframe=2 speed=1x\r\nlast"
	s := bufio.NewScanner(strings.NewReader(in))
	s.Split(scanLines)
	var got []string
	for s.Scan() {
		if s.Text() != "" {
			got = append(got, s.Text())
		}
	}
	want := []string{"first", "frame=1 speed=1x", "frame=2 speed=1x", "last"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", got, want)
	}
}

func shell(t *testing.T) *Transcoder {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	return New("sh", zerolog.Nop())
}

func TestExecutionErrorKeepsOutput(t *testing.T) {
	tr := shell(t)
	err := tr.Run(context.Background(), []string{"-c", "echo 'Error parsing filtergraph' >&2; exit 3"}, Options{Dir: t.TempDir()})

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if !strings.Contains(execErr.Output, "Error parsing filtergraph") {
		t.Errorf("output = %q", execErr.Output)
	}
	if execErr.Args[0] != "-c" {
		t.Errorf("args = %v", execErr.Args)
	}
}

func TestRunReportsProgress(t *testing.T) {
	tr := shell(t)
	var updates []Progress
	var stdout bytes.Buffer
	script := `printf 'noise\n'; printf 'frame=  5 time=00:00:01.00 speed=2x\r' >&2; printf 'frame= 10 time=00:00:02.00 speed=2x\r' >&2; printf payload`
	err := tr.Run(context.Background(), []string{"-c", script}, Options{
		Dir:        t.TempDir(),
		Stdout:     &stdout,
		Duration:   4,
		OnProgress: func(p Progress) { updates = append(updates, p) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 2 || updates[1].Frame != 10 || updates[1].Fraction != 0.5 {
		t.Errorf("updates = %+v", updates)
	}
	if !strings.HasSuffix(stdout.String(), "payload") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestStartWritesStdin(t *testing.T) {
	tr := shell(t)
	var stdout bytes.Buffer
	p, err := tr.Start(context.Background(), []string{"-c", "cat"}, Options{Dir: t.TempDir(), Stdout: &stdout})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Stdin.Write([]byte("frame-bytes")); err != nil {
		t.Fatal(err)
	}
	if err := p.Wait(); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "frame-bytes" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestCanceledRunReturnsContextError(t *testing.T) {
	tr := shell(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tr.Run(ctx, []string{"-c", "sleep 5"}, Options{Dir: t.TempDir()})
	if err == nil {
		t.Fatal("expected error")
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		t.Errorf("cancellation reported as execution error: %v", err)
	}
}

func TestKillStopsProcess(t *testing.T) {
	tr := shell(t)
	p, err := tr.Start(context.Background(), []string{"-c", "exec sleep 30"}, Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	p.Kill()
	if err := p.Wait(); err == nil {
		t.Error("killed process reported success")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Wait took %s after Kill", elapsed)
	}
}

func TestRemoveFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	tr := New("", zerolog.Nop())
	if n := tr.RemoveFiles(a, filepath.Join(dir, "missing.png"), b); n != 2 {
		t.Errorf("removed %d, want 2", n)
	}
	if _, err := os.Stat(a); !os.IsNotExist(err) {
		t.Error("a.png still exists")
	}
}

func TestLockDirSerializes(t *testing.T) {
	tr := New("", zerolog.Nop())
	unlock := tr.lockDir("/work")
	acquired := make(chan struct{})
	go func() {
		u := tr.lockDir("/work")
		close(acquired)
		u()
	}()
	select {
	case <-acquired:
		t.Fatal("second run acquired a busy directory")
	default:
	}
	unlock()
	<-acquired
}
