// Package session is the terminal UI and the glue between voice input,
// command dispatch and speech output. Recognition results cross in from
// the listener goroutine over its event channel; the model drains that
// channel on a fixed tick so all state mutation happens on the bubbletea
// update loop.
package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"aide/internal/command"
	"aide/internal/listen"
	"aide/internal/speak"
)

// drainEvery paces the event-channel drain. Recognition results arrive
// at human speech cadence, so 100ms is imperceptible latency.
const drainEvery = 100 * time.Millisecond

const brainTimeout = 30 * time.Second

// Utterance is one transcript record. Append-only, in-memory.
type Utterance struct {
	At      time.Time
	Source  string // "voice" or "text"
	Text    string
	Command string // matched command name, empty when none
}

// Listening is the subset of the listener the model drives.
type Listening interface {
	Start() error
	Stop()
	Running() bool
	Enabled() bool
	Events() <-chan listen.Event
}

// Voice is the subset of the speaker the model drives.
type Voice interface {
	Say(text string, opts speak.Options) error
	Active() string
	Interrupt()
}

// Answerer handles utterances no command pattern claimed.
type Answerer interface {
	Ask(ctx context.Context, text string) (string, error)
}

// Phrases spoken by the synthesis test, cycled per trigger.
var testPhrases = map[string][]string{
	"en": {
		"Hello, I am your voice assistant.",
		"The quick brown fox jumps over the lazy dog.",
		"Testing one, two, three.",
	},
	"ru": {
		"Привет, я голосовой помощник.",
		"Проверка синтеза речи.",
	},
	"fr": {
		"Bonjour, je suis votre assistant vocal.",
		"Test de synthèse vocale.",
	},
}

type (
	tickMsg time.Time

	brainMsg struct {
		text   string
		answer string
		err    error
	}
)

// Model is the bubbletea model for the whole session.
type Model struct {
	listener Listening
	speaker  Voice
	table    *command.Table
	brain    Answerer
	log      *slog.Logger

	language string
	opts     speak.Options

	input      textinput.Model
	transcript viewport.Model
	history    viewport.Model

	utterances []Utterance
	lines      []string
	status     string
	thinking   int
	testPhrase int
	width      int
	height     int
	ready      bool
}

// New wires the model. brain may be nil; speaker and listener must not
// be (use disabled implementations for text-only boxes).
func New(l Listening, v Voice, tbl *command.Table, brain Answerer, language string, opts speak.Options, log *slog.Logger) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a command, or ctrl+l to talk"
	ti.Prompt = "> "
	ti.CharLimit = 512
	ti.Focus()

	return Model{
		listener:   l,
		speaker:    v,
		table:      tbl,
		brain:      brain,
		log:        log,
		language:   language,
		opts:       opts,
		input:      ti,
		transcript: viewport.New(80, 16),
		history:    viewport.New(24, 16),
		status:     "Ready.",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func tick() tea.Cmd {
	return tea.Tick(drainEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)

	case tickMsg:
		cmds := m.drainEvents()
		return m, tea.Batch(append(cmds, tick())...)

	case brainMsg:
		m.thinking--
		if msg.err != nil {
			m.log.Warn("brain failed, falling back to echo", "err", msg.err)
			m.respond(m.table.Echo(msg.text))
			return m, nil
		}
		m.respond(msg.answer)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyCtrlQ:
		return m, tea.Quit

	case tea.KeyCtrlL:
		m.toggleListening()
		return m, nil

	case tea.KeyEsc:
		// Force everything quiet: stop listening and cut speech short.
		m.listener.Stop()
		m.speaker.Interrupt()
		m.status = "Stopped."
		return m, nil

	case tea.KeyCtrlT:
		m.speechTest()
		return m, nil

	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if text == "" {
			return m, nil
		}
		return m, m.handleUtterance("text", text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) toggleListening() {
	if m.listener.Running() {
		m.listener.Stop()
		return
	}
	if err := m.listener.Start(); err != nil {
		m.status = "No microphone available, text input only."
		m.log.Warn("cannot start listening", "err", err)
	}
}

// drainEvents empties the listener queue. Each tick takes everything
// pending so a burst of results never lags behind the UI. Brain lookups
// for unmatched voice input come back as commands for the caller to run.
func (m *Model) drainEvents() []tea.Cmd {
	var cmds []tea.Cmd
	for {
		select {
		case ev := <-m.listener.Events():
			if cmd := m.handleEvent(ev); cmd != nil {
				cmds = append(cmds, cmd)
			}
		default:
			return cmds
		}
	}
}

func (m *Model) handleEvent(ev listen.Event) tea.Cmd {
	switch ev.Kind {
	case listen.EventStarted:
		m.status = "Listening..."
	case listen.EventStopped:
		m.status = "Ready."
	case listen.EventError:
		m.status = "Recognition error, still listening."
		m.log.Warn("recognition error", "err", ev.Err)
	case listen.EventResult:
		return m.handleUtterance("voice", ev.Text)
	}
	return nil
}

// handleUtterance records the utterance and dispatches it. Both input
// paths, typed and spoken, converge here.
func (m *Model) handleUtterance(source, text string) tea.Cmd {
	match := m.table.Process(text)

	m.utterances = append(m.utterances, Utterance{
		At:      time.Now(),
		Source:  source,
		Text:    text,
		Command: match.Command,
	})
	m.appendLine(source, text)
	m.refreshHistory()

	if !match.Matched && m.brain != nil {
		m.thinking++
		m.status = "Thinking..."
		brain := m.brain
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), brainTimeout)
			defer cancel()
			answer, err := brain.Ask(ctx, text)
			return brainMsg{text: text, answer: answer, err: err}
		}
	}

	m.respond(match.Response)
	return nil
}

// respond shows the answer and speaks it fire-and-forget. A refused
// speech request is surfaced in the status line, not lost silently.
func (m *Model) respond(text string) {
	m.appendLine("aide", text)
	if m.thinking <= 0 {
		m.status = "Ready."
	}

	opts := m.opts
	opts.Language = m.language
	if err := m.speaker.Say(text, opts); err != nil {
		m.status = "Speech queue is full, response shown only."
		m.log.Warn("speech refused", "err", err)
	}
}

func (m *Model) speechTest() {
	phrases, ok := testPhrases[m.language]
	if !ok {
		phrases = testPhrases["en"]
	}
	phrase := phrases[m.testPhrase%len(phrases)]
	m.testPhrase++

	m.appendLine("test", phrase)
	opts := m.opts
	opts.Language = m.language
	if err := m.speaker.Say(phrase, opts); err != nil {
		m.status = "Speech queue is full."
	}
}

// Utterances exposes the transcript records.
func (m Model) Utterances() []Utterance { return m.utterances }
