// Package speak voices assistant responses through an ordered chain of
// synthesis engines. Each tier is tried in order until one plays audio;
// when every tier fails the response stays on screen only. Failure here
// is reported, never raised: a broken TTS stack must not take down the
// session.
package speak

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"aide/internal/audio"
	"aide/internal/play"
)

// Options carries per-request synthesis parameters. Engines ignore what
// they do not support.
type Options struct {
	// Language is a BCP-47-ish tag ("en", "fr", "ru").
	Language string
	// Exaggeration is the emotion intensity, 0.5 (flat) to 2.0.
	Exaggeration float64
	// CFGWeight steers generation pacing, 0.0 to 1.0.
	CFGWeight float64
	// RefAudio is a path to a reference clip for voice cloning.
	RefAudio string
}

// Engine is one synthesis tier: it synthesizes and plays in one call.
type Engine interface {
	Name() string
	Speak(ctx context.Context, text string, opts Options) error
}

// TextOnly is the Active value after every tier failed.
const TextOnly = "text"

var (
	// ErrBusy reports a full request queue for non-blocking calls.
	ErrBusy = errors.New("speech queue full")
	// ErrClosed reports a request after Close.
	ErrClosed = errors.New("speaker closed")
)

const (
	queueCap     = 8
	speakTimeout = 60 * time.Second
)

type request struct {
	text string
	opts Options
	done chan struct{}
}

// Speaker serializes speech requests through a single worker, so at most
// one synthesis/playback is in flight per instance.
type Speaker struct {
	engines []Engine
	player  play.Player
	ducker  *audio.Ducker
	log     *slog.Logger

	queue  chan request
	quit   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once

	mu     sync.Mutex
	active string
}

// New starts the worker. player and ducker may be nil (text-only box).
func New(engines []Engine, player play.Player, ducker *audio.Ducker, log *slog.Logger) *Speaker {
	s := &Speaker{
		engines: engines,
		player:  player,
		ducker:  ducker,
		log:     log,
		queue:   make(chan request, queueCap),
		quit:    make(chan struct{}),
		active:  TextOnly,
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

// Say queues text without waiting for playback. A full queue returns
// ErrBusy so the request is refused loudly rather than dropped silently.
func (s *Speaker) Say(text string, opts Options) error {
	select {
	case <-s.quit:
		return ErrClosed
	default:
	}
	select {
	case s.queue <- request{text: text, opts: opts, done: make(chan struct{})}:
		return nil
	default:
		return ErrBusy
	}
}

// SayWait queues text and blocks until playback finishes or ctx ends.
// Tier exhaustion is not an error; the caller checks Active for state.
func (s *Speaker) SayWait(ctx context.Context, text string, opts Options) error {
	req := request{text: text, opts: opts, done: make(chan struct{})}
	select {
	case s.queue <- req:
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active names the tier that served the last request, or TextOnly when
// synthesis is degraded.
func (s *Speaker) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Interrupt drops queued requests and cuts the current clip short.
func (s *Speaker) Interrupt() {
	for {
		select {
		case req := <-s.queue:
			close(req.done)
		default:
			if s.player != nil {
				s.player.Stop()
			}
			return
		}
	}
}

// Close stops the worker and waits for the in-flight request.
func (s *Speaker) Close() {
	s.closed.Do(func() { close(s.quit) })
	s.wg.Wait()
}

func (s *Speaker) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case req := <-s.queue:
			s.speakOne(req)
			close(req.done)
		}
	}
}

func (s *Speaker) speakOne(req request) {
	if req.text == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), speakTimeout)
	defer cancel()

	if s.ducker != nil {
		if err := s.ducker.Duck(ctx, 0.3, 200*time.Millisecond); err != nil {
			s.log.Debug("duck failed", "err", err)
		}
		defer func() {
			if err := s.ducker.Unduck(context.Background(), 200*time.Millisecond); err != nil {
				s.log.Debug("unduck failed", "err", err)
			}
		}()
	}

	for _, eng := range s.engines {
		if err := eng.Speak(ctx, req.text, req.opts); err != nil {
			s.log.Warn("synthesis tier failed", "tier", eng.Name(), "err", err)
			continue
		}
		s.setActive(eng.Name())
		return
	}

	s.setActive(TextOnly)
	s.log.Warn("all synthesis tiers failed, response shown as text only")
}

func (s *Speaker) setActive(name string) {
	s.mu.Lock()
	s.active = name
	s.mu.Unlock()
}
