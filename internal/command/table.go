// Package command maps free-form utterances to assistant actions. The
// table is an ordered list of named entries, each with one or more
// patterns; the first entry whose pattern is found in the input wins.
// No scoring, no longest-match preference: registration order decides.
package command

import (
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
)

// Action produces a response for the matched input. It receives the raw
// utterance so entries can pull arguments back out of it.
type Action func(input string) (string, error)

// Entry is one registered command: a name, its patterns, and exactly one
// of an action or a canned response set.
type entry struct {
	name      string
	patterns  []*regexp.Regexp
	action    Action
	responses []string
}

// Match is the outcome of Process.
type Match struct {
	Matched bool
	// Command is the winning entry's name, empty when nothing matched.
	Command  string
	Response string
}

const apology = "Sorry, I couldn't do that."

// Table holds the registered commands. Entries are only ever appended;
// all mutation happens at startup on a single goroutine.
type Table struct {
	entries []entry
	names   map[string]struct{}
	log     *slog.Logger
}

func NewTable(log *slog.Logger) *Table {
	if log == nil {
		log = slog.Default()
	}
	return &Table{names: make(map[string]struct{}), log: log}
}

// Register appends a command. Exactly one of action and responses must be
// supplied; duplicate names and malformed patterns are configuration
// errors surfaced to the registering caller.
func (t *Table) Register(name string, patterns []string, action Action, responses []string) error {
	if name == "" {
		return fmt.Errorf("command name is empty")
	}
	if _, dup := t.names[name]; dup {
		return fmt.Errorf("command %q already registered", name)
	}
	if len(patterns) == 0 {
		return fmt.Errorf("command %q has no patterns", name)
	}
	if (action == nil) == (len(responses) == 0) {
		return fmt.Errorf("command %q needs exactly one of action or responses", name)
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return fmt.Errorf("command %q pattern %q: %w", name, p, err)
		}
		compiled = append(compiled, re)
	}

	t.entries = append(t.entries, entry{
		name:      name,
		patterns:  compiled,
		action:    action,
		responses: responses,
	})
	t.names[name] = struct{}{}
	return nil
}

// Process matches text against the table. Unmatched input gets an echo
// response; a failing action gets a generic apology. Neither case is an
// error to the caller.
func (t *Table) Process(text string) Match {
	for _, e := range t.entries {
		for _, re := range e.patterns {
			if !re.MatchString(text) {
				continue
			}
			return Match{
				Matched:  true,
				Command:  e.name,
				Response: t.respond(e, text),
			}
		}
	}
	return Match{Response: t.Echo(text)}
}

// Echo is the response for input no entry claimed. Exposed so callers
// with their own fallback path (an LLM, say) can degrade to it.
func (t *Table) Echo(text string) string {
	return fmt.Sprintf("I heard: %q. I don't know that command yet.", text)
}

func (t *Table) respond(e entry, text string) (response string) {
	if e.action == nil {
		return e.responses[rand.Intn(len(e.responses))]
	}

	defer func() {
		if r := recover(); r != nil {
			t.log.Error("command action panicked", "command", e.name, "panic", r)
			response = apology
		}
	}()

	out, err := e.action(text)
	if err != nil {
		t.log.Warn("command action failed", "command", e.name, "err", err)
		return apology
	}
	return out
}

// Names returns the registered command names in registration order.
func (t *Table) Names() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.name
	}
	return out
}
