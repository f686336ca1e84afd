package speak

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	name string
	err  error

	mu      sync.Mutex
	spoken  []string
	block   chan struct{} // when set, Speak waits on it
	entered chan struct{} // when set, receives one value per Speak call
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Speak(ctx context.Context, text string, opts Options) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) got() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

func newTestSpeaker(engines ...Engine) *Speaker {
	return New(engines, nil, nil, slog.Default())
}

func TestFirstTierWins(t *testing.T) {
	primary := &fakeEngine{name: "neural"}
	secondary := &fakeEngine{name: "system"}
	s := newTestSpeaker(primary, secondary)
	defer s.Close()

	require.NoError(t, s.SayWait(context.Background(), "hello", Options{}))
	assert.Equal(t, []string{"hello"}, primary.got())
	assert.Empty(t, secondary.got())
	assert.Equal(t, "neural", s.Active())
}

func TestFallbackToSecondTier(t *testing.T) {
	primary := &fakeEngine{name: "neural", err: errors.New("model load failed")}
	secondary := &fakeEngine{name: "system"}
	s := newTestSpeaker(primary, secondary)
	defer s.Close()

	require.NoError(t, s.SayWait(context.Background(), "hello", Options{}))
	assert.Equal(t, []string{"hello"}, secondary.got())
	assert.Equal(t, "system", s.Active())
}

func TestAllTiersFailDegradesToTextOnly(t *testing.T) {
	a := &fakeEngine{name: "neural", err: errors.New("synthesis error")}
	b := &fakeEngine{name: "system", err: errors.New("playback device error")}
	s := newTestSpeaker(a, b)
	defer s.Close()

	// Must not return an error even with every tier down.
	require.NoError(t, s.SayWait(context.Background(), "hello", Options{}))
	assert.Equal(t, TextOnly, s.Active())
}

func TestNoEnginesIsTextOnly(t *testing.T) {
	s := newTestSpeaker()
	defer s.Close()

	require.NoError(t, s.SayWait(context.Background(), "hello", Options{}))
	assert.Equal(t, TextOnly, s.Active())
}

func TestRequestsAreSerializedInOrder(t *testing.T) {
	eng := &fakeEngine{name: "neural"}
	s := newTestSpeaker(eng)
	defer s.Close()

	require.NoError(t, s.Say("one", Options{}))
	require.NoError(t, s.Say("two", Options{}))
	require.NoError(t, s.SayWait(context.Background(), "three", Options{}))

	assert.Equal(t, []string{"one", "two", "three"}, eng.got())
}

func TestSayRefusesWhenQueueFull(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	eng := &fakeEngine{name: "neural", block: gate, entered: entered}
	s := newTestSpeaker(eng)
	defer s.Close()
	defer close(gate)

	// One request in flight plus a full queue.
	require.NoError(t, s.Say("in-flight", Options{}))
	<-entered
	filled := 0
	for i := 0; i < queueCap+2; i++ {
		if err := s.Say("queued", Options{}); err == nil {
			filled++
		} else {
			assert.ErrorIs(t, err, ErrBusy)
		}
	}
	assert.LessOrEqual(t, filled, queueCap)
}

func TestInterruptDropsQueued(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	eng := &fakeEngine{name: "neural", block: gate, entered: entered}
	s := newTestSpeaker(eng)
	defer s.Close()

	require.NoError(t, s.Say("in-flight", Options{}))
	<-entered // worker is busy with the first request
	require.NoError(t, s.Say("queued", Options{}))
	s.Interrupt()
	close(gate)

	// Give the worker time to drain the in-flight request.
	deadline := time.After(time.Second)
	for {
		if len(eng.got()) >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("in-flight request never completed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	assert.NotContains(t, eng.got(), "queued")
}

func TestSayAfterCloseFails(t *testing.T) {
	s := newTestSpeaker(&fakeEngine{name: "neural"})
	s.Close()
	assert.ErrorIs(t, s.Say("late", Options{}), ErrClosed)
}

func TestEmptyTextIsIgnored(t *testing.T) {
	eng := &fakeEngine{name: "neural"}
	s := newTestSpeaker(eng)
	defer s.Close()

	require.NoError(t, s.SayWait(context.Background(), "", Options{}))
	assert.Empty(t, eng.got())
}
