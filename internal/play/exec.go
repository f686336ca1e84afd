package play

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// execPlayer shells out to whichever command-line player is installed.
// Clips are written to a temp file and removed right after playback.
type execPlayer struct {
	bin  string
	args func(path string) []string

	mu  sync.Mutex
	cmd *exec.Cmd
}

func newExecPlayer() (*execPlayer, error) {
	candidates := []struct {
		bin  string
		args func(path string) []string
	}{
		{"ffplay", func(p string) []string { return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", p} }},
		{"mpv", func(p string) []string { return []string{"--no-video", "--really-quiet", p} }},
		{"paplay", func(p string) []string { return []string{p} }},
		{"afplay", func(p string) []string { return []string{p} }},
		{"aplay", func(p string) []string { return []string{"-q", p} }},
	}
	for _, c := range candidates {
		if _, err := exec.LookPath(c.bin); err == nil {
			return &execPlayer{bin: c.bin, args: c.args}, nil
		}
	}
	return nil, errors.New("no command-line audio player found")
}

func (p *execPlayer) Name() string { return p.bin }

func (p *execPlayer) Play(ctx context.Context, data []byte, format string) error {
	if format == "" {
		format = "wav"
	}
	tmp, err := os.CreateTemp("", "aide-*."+format)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	cmd := exec.CommandContext(ctx, p.bin, p.args(path)...)

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.cmd = nil
		p.mu.Unlock()
	}()

	if err := cmd.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("%s: %w", p.bin, err)
	}
	return ctx.Err()
}

// Cue is a no-op: external players are too slow for a chime.
func (p *execPlayer) Cue() {}

func (p *execPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

func (p *execPlayer) Close() { p.Stop() }
