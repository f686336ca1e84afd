// Package play gets synthesized audio out of the speakers. The preferred
// backend drives the audio device directly through beep; when that fails
// at init (no audio backend, headless box) a command-line player takes
// over. Exhausting both leaves the assistant text-only.
package play

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNoPlayback means no playback backend could be initialized.
var ErrNoPlayback = errors.New("no audio playback available")

// Player plays one in-memory audio clip at a time.
type Player interface {
	Name() string
	// Play blocks until the clip finishes or ctx is canceled.
	// format is "wav" or "mp3".
	Play(ctx context.Context, data []byte, format string) error
	// Cue emits the short listening chime. Best effort.
	Cue()
	// Stop interrupts the current clip, if any.
	Stop()
	Close()
}

// New picks the first playback backend that initializes.
func New(log *slog.Logger) (Player, error) {
	if p, err := newBeepPlayer(); err == nil {
		log.Debug("playback backend ready", "backend", p.Name())
		return p, nil
	} else {
		log.Warn("speaker backend unavailable, trying external player", "err", err)
	}
	if p, err := newExecPlayer(); err == nil {
		log.Debug("playback backend ready", "backend", p.Name())
		return p, nil
	}
	return nil, ErrNoPlayback
}
