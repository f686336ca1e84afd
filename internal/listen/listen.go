// Package listen runs the continuous listening loop: capture one
// utterance, transcribe it, emit an event, repeat. Events cross to the
// UI over a bounded channel; the loop itself never touches UI state.
package listen

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"aide/internal/audio"
	"aide/pkg/stt"
)

// ErrNoMicrophone reports a Start on a listener whose capture device was
// unavailable at init. The rest of the app keeps running text-only.
var ErrNoMicrophone = errors.New("microphone unavailable")

// EventKind tags the messages the loop sends to the session.
type EventKind int

const (
	// EventResult carries recognized text.
	EventResult EventKind = iota
	// EventError carries a transient recognition failure.
	EventError
	// EventStarted marks the loop entering the listening state.
	EventStarted
	// EventStopped marks the loop leaving it.
	EventStopped
)

// Event is the single message type crossing the listener/UI boundary.
// Produced here, consumed exactly once by the session's drain tick.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// Microphone captures one utterance, returning early when stop closes.
type Microphone interface {
	Record(stop <-chan struct{}) ([]float32, error)
}

const (
	// queueCap bounds the event channel. The producer is paced by capture
	// and recognition latency, so this is generous; overflow drops the
	// oldest event and logs it.
	queueCap = 64
	// recognizeTimeout caps one transcription call.
	recognizeTimeout = 60 * time.Second
	// errorBackoff keeps a failing device from spinning the loop hot.
	errorBackoff = 250 * time.Millisecond
)

// Listener owns the background listening goroutine.
type Listener struct {
	mic Microphone
	rec stt.Transcriber
	cue func()
	log *slog.Logger

	events  chan Event
	running atomic.Bool
	dropped atomic.Int64

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a listener. mic or rec may be nil, leaving the listener
// permanently disabled; cue (the pre-listen chime) may be nil.
func New(mic Microphone, rec stt.Transcriber, cue func(), log *slog.Logger) *Listener {
	return &Listener{
		mic:    mic,
		rec:    rec,
		cue:    cue,
		log:    log,
		events: make(chan Event, queueCap),
	}
}

// Enabled reports whether voice input is possible at all.
func (l *Listener) Enabled() bool { return l.mic != nil && l.rec != nil }

// Running reports whether the loop is live.
func (l *Listener) Running() bool { return l.running.Load() }

// Events is the single consumer channel for the session's drain tick.
func (l *Listener) Events() <-chan Event { return l.events }

// Start launches the listening loop. Fails fast when the microphone was
// never available; starting an already-running listener is a no-op.
func (l *Listener) Start() error {
	if !l.Enabled() {
		return ErrNoMicrophone
	}
	if !l.running.CompareAndSwap(false, true) {
		return nil
	}

	stop := make(chan struct{})
	l.mu.Lock()
	l.stop = stop
	l.mu.Unlock()

	if l.cue != nil {
		l.cue()
	}

	l.wg.Add(1)
	go l.loop(stop)
	return nil
}

// Stop asks the loop to exit after its current iteration. Stopping a
// stopped listener is a no-op. Cooperative only: an in-flight capture or
// recognition call is never interrupted.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.stop != nil {
		select {
		case <-l.stop:
		default:
			close(l.stop)
		}
	}
	l.mu.Unlock()
}

// Close stops the loop and waits for it to finish.
func (l *Listener) Close() {
	l.Stop()
	l.wg.Wait()
}

func (l *Listener) loop(stop chan struct{}) {
	defer l.wg.Done()
	l.emit(Event{Kind: EventStarted})
	defer func() {
		l.running.Store(false)
		l.emit(Event{Kind: EventStopped})
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		pcm, err := l.mic.Record(stop)
		if errors.Is(err, audio.ErrNoSpeech) {
			continue
		}
		if err != nil {
			l.emit(Event{Kind: EventError, Err: err})
			time.Sleep(errorBackoff)
			continue
		}

		select {
		case <-stop:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), recognizeTimeout)
		text, err := l.rec.Transcribe(ctx, pcm)
		cancel()
		if errors.Is(err, stt.ErrNoSpeech) {
			continue
		}
		if err != nil {
			l.emit(Event{Kind: EventError, Err: err})
			continue
		}

		l.emit(Event{Kind: EventResult, Text: text})
	}
}

// emit delivers an event without ever blocking the loop: when the queue
// is full the oldest event is discarded to make room.
func (l *Listener) emit(ev Event) {
	select {
	case l.events <- ev:
		return
	default:
	}

	select {
	case <-l.events:
		n := l.dropped.Add(1)
		l.log.Warn("event queue full, dropped oldest", "total_dropped", n)
	default:
	}
	select {
	case l.events <- ev:
	default:
	}
}
