package session

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aide/internal/command"
	"aide/internal/listen"
	"aide/internal/speak"
)

type fakeListener struct {
	enabled  bool
	running  bool
	startErr error
	events   chan listen.Event
	stops    int
	starts   int
}

func newFakeListener(enabled bool) *fakeListener {
	return &fakeListener{enabled: enabled, events: make(chan listen.Event, 16)}
}

func (f *fakeListener) Start() error {
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}
func (f *fakeListener) Stop()                       { f.stops++; f.running = false }
func (f *fakeListener) Running() bool               { return f.running }
func (f *fakeListener) Enabled() bool               { return f.enabled }
func (f *fakeListener) Events() <-chan listen.Event { return f.events }

type fakeVoice struct {
	said       []string
	sayErr     error
	interrupts int
}

func (f *fakeVoice) Say(text string, _ speak.Options) error {
	if f.sayErr != nil {
		return f.sayErr
	}
	f.said = append(f.said, text)
	return nil
}
func (f *fakeVoice) Active() string { return "fake" }
func (f *fakeVoice) Interrupt()     { f.interrupts++ }

type fakeBrain struct {
	answer string
	err    error
	asked  []string
}

func (f *fakeBrain) Ask(_ context.Context, text string) (string, error) {
	f.asked = append(f.asked, text)
	return f.answer, f.err
}

func newTestModel(t *testing.T, l Listening, v Voice, brain Answerer) Model {
	t.Helper()
	tbl := command.NewTable(slog.Default())
	fixed := time.Date(2026, 8, 25, 14, 5, 0, 0, time.UTC)
	require.NoError(t, command.RegisterBuiltins(tbl, command.Deps{
		Clock: func() time.Time { return fixed },
	}))
	m := New(l, v, tbl, brain, "en", speak.Options{}, slog.Default())
	model, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return model.(Model)
}

func typeAndEnter(m Model, text string) Model {
	m.input.SetValue(text)
	model, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return model.(Model)
}

func TestTypedCommandDispatchesAndSpeaks(t *testing.T) {
	voice := &fakeVoice{}
	m := newTestModel(t, newFakeListener(true), voice, nil)

	m = typeAndEnter(m, "what time is it?")

	require.Len(t, m.Utterances(), 1)
	u := m.Utterances()[0]
	assert.Equal(t, "text", u.Source)
	assert.Equal(t, "time", u.Command)
	require.Len(t, voice.said, 1)
	assert.Equal(t, "14:05", voice.said[0])
}

func TestVoiceEventDrainedOnTick(t *testing.T) {
	l := newFakeListener(true)
	voice := &fakeVoice{}
	m := newTestModel(t, l, voice, nil)

	l.events <- listen.Event{Kind: listen.EventResult, Text: "hello"}
	model, _ := m.Update(tickMsg(time.Now()))
	m = model.(Model)

	require.Len(t, m.Utterances(), 1)
	assert.Equal(t, "voice", m.Utterances()[0].Source)
	assert.Equal(t, "greeting", m.Utterances()[0].Command)
	assert.Len(t, voice.said, 1)
}

func TestUnmatchedInputGoesToBrain(t *testing.T) {
	voice := &fakeVoice{}
	brain := &fakeBrain{answer: "It is quite nice out."}
	m := newTestModel(t, newFakeListener(true), voice, brain)

	m.input.SetValue("how is the weather")
	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = model.(Model)
	require.NotNil(t, cmd, "unmatched input should produce a brain lookup")
	assert.Empty(t, voice.said, "nothing spoken until the brain answers")

	msg := cmd()
	model, _ = m.Update(msg)
	m = model.(Model)

	assert.Equal(t, []string{"how is the weather"}, brain.asked)
	require.Len(t, voice.said, 1)
	assert.Equal(t, "It is quite nice out.", voice.said[0])
	require.Len(t, m.Utterances(), 1)
	assert.Empty(t, m.Utterances()[0].Command)
}

func TestBrainFailureFallsBackToEcho(t *testing.T) {
	voice := &fakeVoice{}
	brain := &fakeBrain{err: errors.New("offline")}
	m := newTestModel(t, newFakeListener(true), voice, brain)

	m.input.SetValue("gibberish input")
	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = model.(Model)
	require.NotNil(t, cmd)

	model, _ = m.Update(cmd())
	_ = model

	require.Len(t, voice.said, 1)
	assert.Contains(t, voice.said[0], "gibberish input")
}

func TestUnmatchedWithoutBrainEchoes(t *testing.T) {
	voice := &fakeVoice{}
	m := newTestModel(t, newFakeListener(true), voice, nil)

	m = typeAndEnter(m, "xyzzy nonsense")

	require.Len(t, voice.said, 1)
	assert.Contains(t, voice.said[0], "xyzzy nonsense")
	assert.Empty(t, m.Utterances()[0].Command)
}

func TestToggleListening(t *testing.T) {
	l := newFakeListener(true)
	m := newTestModel(t, l, &fakeVoice{}, nil)

	model, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	m = model.(Model)
	assert.True(t, l.running)

	model, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	_ = model
	assert.False(t, l.running)
	assert.Equal(t, 1, l.starts)
	assert.Equal(t, 1, l.stops)
}

func TestStartFailureShowsTextOnlyStatus(t *testing.T) {
	l := newFakeListener(false)
	l.startErr = listen.ErrNoMicrophone
	m := newTestModel(t, l, &fakeVoice{}, nil)

	model, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	m = model.(Model)
	assert.Contains(t, m.status, "No microphone")
}

func TestEscStopsListeningAndInterruptsSpeech(t *testing.T) {
	l := newFakeListener(true)
	voice := &fakeVoice{}
	m := newTestModel(t, l, voice, nil)
	require.NoError(t, l.Start())

	model, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	_ = model
	assert.False(t, l.running)
	assert.Equal(t, 1, voice.interrupts)
}

func TestRefusedSpeechSurfacesInStatus(t *testing.T) {
	voice := &fakeVoice{sayErr: speak.ErrBusy}
	m := newTestModel(t, newFakeListener(true), voice, nil)

	m = typeAndEnter(m, "what time is it?")

	assert.Contains(t, m.status, "queue is full")
	// The response still landed in the transcript.
	assert.NotEmpty(t, m.lines)
}

func TestSpeechTestCyclesPhrases(t *testing.T) {
	voice := &fakeVoice{}
	m := newTestModel(t, newFakeListener(true), voice, nil)

	model, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	m = model.(Model)
	model, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	m = model.(Model)

	require.Len(t, voice.said, 2)
	assert.NotEqual(t, voice.said[0], voice.said[1])
}

func TestListenerStateEventsUpdateStatus(t *testing.T) {
	l := newFakeListener(true)
	m := newTestModel(t, l, &fakeVoice{}, nil)

	l.events <- listen.Event{Kind: listen.EventStarted}
	model, _ := m.Update(tickMsg(time.Now()))
	m = model.(Model)
	assert.Equal(t, "Listening...", m.status)

	l.events <- listen.Event{Kind: listen.EventError, Err: errors.New("blip")}
	l.events <- listen.Event{Kind: listen.EventStopped}
	model, _ = m.Update(tickMsg(time.Now()))
	m = model.(Model)
	assert.Equal(t, "Ready.", m.status, "both pending events drained in one tick")
}

func TestQuitKeys(t *testing.T) {
	m := newTestModel(t, newFakeListener(true), &fakeVoice{}, nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
