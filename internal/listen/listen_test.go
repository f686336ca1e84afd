package listen

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aide/internal/audio"
	"aide/pkg/stt"
)

// scriptMic plays back a fixed sequence of capture outcomes, then blocks
// until stopped.
type scriptMic struct {
	script []error // audio.ErrNoSpeech, nil (=speech), or a device error
	idx    atomic.Int32
}

func (m *scriptMic) Record(stop <-chan struct{}) ([]float32, error) {
	i := int(m.idx.Add(1)) - 1
	if i >= len(m.script) {
		<-stop
		return nil, audio.ErrNoSpeech
	}
	if err := m.script[i]; err != nil {
		return nil, err
	}
	return make([]float32, 1600), nil
}

type fakeRecognizer struct {
	texts []string
	errs  []error
	calls atomic.Int32
}

func (r *fakeRecognizer) Name() string { return "fake" }

func (r *fakeRecognizer) Transcribe(_ context.Context, _ []float32) (string, error) {
	i := int(r.calls.Add(1)) - 1
	if i < len(r.errs) && r.errs[i] != nil {
		return "", r.errs[i]
	}
	if i < len(r.texts) {
		return r.texts[i], nil
	}
	return "", stt.ErrNoSpeech
}

func collect(t *testing.T, l *Listener, n int, timeout time.Duration) []Event {
	t.Helper()
	var out []Event
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case ev := <-l.Events():
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %d: %+v", n, len(out), out)
		}
	}
	return out
}

func TestStartWithoutMicrophoneFailsFast(t *testing.T) {
	l := New(nil, &fakeRecognizer{}, nil, slog.Default())
	assert.False(t, l.Enabled())
	assert.ErrorIs(t, l.Start(), ErrNoMicrophone)
	assert.False(t, l.Running())
}

func TestStartWithoutRecognizerFailsFast(t *testing.T) {
	l := New(&scriptMic{}, nil, nil, slog.Default())
	assert.ErrorIs(t, l.Start(), ErrNoMicrophone)
}

func TestResultEventFlow(t *testing.T) {
	mic := &scriptMic{script: []error{audio.ErrNoSpeech, nil}}
	rec := &fakeRecognizer{texts: []string{"turn on the lights"}}
	l := New(mic, rec, nil, slog.Default())
	defer l.Close()

	require.NoError(t, l.Start())
	evs := collect(t, l, 2, 2*time.Second)
	assert.Equal(t, EventStarted, evs[0].Kind)
	assert.Equal(t, EventResult, evs[1].Kind)
	assert.Equal(t, "turn on the lights", evs[1].Text)
}

func TestRecognizerErrorContinuesLoop(t *testing.T) {
	mic := &scriptMic{script: []error{nil, nil}}
	rec := &fakeRecognizer{
		errs:  []error{errors.New("service unreachable"), nil},
		texts: []string{"", "hello"},
	}
	l := New(mic, rec, nil, slog.Default())
	defer l.Close()

	require.NoError(t, l.Start())
	evs := collect(t, l, 3, 2*time.Second)
	assert.Equal(t, EventStarted, evs[0].Kind)
	assert.Equal(t, EventError, evs[1].Kind)
	require.Equal(t, EventResult, evs[2].Kind, "loop must survive a transient error")
	assert.Equal(t, "hello", evs[2].Text)
}

func TestDeviceErrorEmitsErrorEvent(t *testing.T) {
	mic := &scriptMic{script: []error{errors.New("stream read failed")}}
	l := New(mic, &fakeRecognizer{}, nil, slog.Default())
	defer l.Close()

	require.NoError(t, l.Start())
	evs := collect(t, l, 2, 2*time.Second)
	assert.Equal(t, EventError, evs[1].Kind)
	assert.Error(t, evs[1].Err)
}

func TestStartIsIdempotent(t *testing.T) {
	mic := &scriptMic{}
	l := New(mic, &fakeRecognizer{}, nil, slog.Default())
	defer l.Close()

	require.NoError(t, l.Start())
	require.NoError(t, l.Start(), "second start is a no-op")
	assert.True(t, l.Running())

	// Only one Started event: a single loop is live.
	evs := collect(t, l, 1, time.Second)
	assert.Equal(t, EventStarted, evs[0].Kind)
	select {
	case ev := <-l.Events():
		t.Fatalf("unexpected extra event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStopIsIdempotentAndEmitsStopped(t *testing.T) {
	mic := &scriptMic{}
	l := New(mic, &fakeRecognizer{}, nil, slog.Default())

	require.NoError(t, l.Start())
	collect(t, l, 1, time.Second) // Started

	l.Stop()
	l.Stop() // no-op
	evs := collect(t, l, 1, 2*time.Second)
	assert.Equal(t, EventStopped, evs[0].Kind)
	l.Close()
	assert.False(t, l.Running())

	l.Stop() // stop when stopped: still a no-op
}

func TestRestartAfterStop(t *testing.T) {
	mic := &scriptMic{}
	l := New(mic, &fakeRecognizer{}, nil, slog.Default())

	require.NoError(t, l.Start())
	collect(t, l, 1, time.Second)
	l.Stop()
	collect(t, l, 1, 2*time.Second)
	l.wg.Wait()

	mic.idx.Store(int32(len(mic.script))) // keep the mic blocking
	require.NoError(t, l.Start())
	evs := collect(t, l, 1, time.Second)
	assert.Equal(t, EventStarted, evs[0].Kind)
	l.Close()
}

func TestCueRunsOnStart(t *testing.T) {
	cued := false
	l := New(&scriptMic{}, &fakeRecognizer{}, func() { cued = true }, slog.Default())
	defer l.Close()

	require.NoError(t, l.Start())
	assert.True(t, cued)
}

func TestEmitDropsOldestWhenFull(t *testing.T) {
	l := New(&scriptMic{}, &fakeRecognizer{}, nil, slog.Default())

	for i := 0; i < queueCap; i++ {
		l.emit(Event{Kind: EventResult, Text: "old"})
	}
	l.emit(Event{Kind: EventResult, Text: "new"})

	// Channel still holds queueCap events; the newest survived.
	var last Event
	for i := 0; i < queueCap; i++ {
		last = <-l.Events()
	}
	assert.Equal(t, "new", last.Text)
	assert.Equal(t, int64(1), l.dropped.Load())
}
