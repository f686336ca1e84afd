package play

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/generators"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// beepPlayer drives the audio device through the beep speaker. The speaker
// is re-initialized per clip so each one plays at its native sample rate.
type beepPlayer struct{}

func newBeepPlayer() (*beepPlayer, error) {
	// Probe the device once; per-clip Init calls reconfigure it.
	if err := speaker.Init(beep.SampleRate(44100), 4410); err != nil {
		return nil, fmt.Errorf("speaker init: %w", err)
	}
	return &beepPlayer{}, nil
}

func (p *beepPlayer) Name() string { return "speaker" }

func (p *beepPlayer) Play(ctx context.Context, data []byte, format string) error {
	var (
		streamer beep.StreamSeekCloser
		f        beep.Format
		err      error
	)
	rc := io.NopCloser(bytes.NewReader(data))
	switch format {
	case "mp3":
		streamer, f, err = mp3.Decode(rc)
	case "wav", "":
		streamer, f, err = wav.Decode(rc)
	default:
		return fmt.Errorf("unsupported playback format: %q", format)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", format, err)
	}
	defer streamer.Close()

	if err := speaker.Init(f.SampleRate, f.SampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// Cue plays a short 880 Hz tone before listening starts.
func (p *beepPlayer) Cue() {
	const sr = beep.SampleRate(44100)
	tone, err := generators.SinTone(sr, 880)
	if err != nil {
		return
	}
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		return
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(beep.Take(sr.N(120*time.Millisecond), tone), beep.Callback(func() {
		close(done)
	})))
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
	}
}

func (p *beepPlayer) Stop() { speaker.Clear() }

func (p *beepPlayer) Close() { speaker.Clear() }
