package command

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"aide/internal/audio"
)

// Deps are the host capabilities the builtin commands reach for. Zero
// values disable the corresponding commands gracefully.
type Deps struct {
	// Clock defaults to time.Now. Injectable for tests.
	Clock func() time.Time
	// Quiet interrupts the speech currently playing.
	Quiet func()
	// Mixer enables the volume commands when the pactl mixer is usable.
	Mixer bool
}

// Apps the open command is willing to launch. Names come in from speech
// recognition, so only fixed binaries, never raw user input.
var launchable = map[string]string{
	"firefox":    "firefox",
	"chrome":     "google-chrome",
	"chromium":   "chromium",
	"browser":    "xdg-open",
	"terminal":   "x-terminal-emulator",
	"editor":     "code",
	"calculator": "gnome-calculator",
	"files":      "xdg-open",
}

var mathRe = regexp.MustCompile(`(\d+)\s*([-+*/])\s*(\d+)`)

// RegisterBuiltins fills the table with the stock command set.
// Registration order is match priority.
func RegisterBuiltins(t *Table, deps Deps) error {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	type def struct {
		name      string
		patterns  []string
		action    Action
		responses []string
	}

	defs := []def{
		{
			name:     "quiet",
			patterns: []string{`\b(be\s+quiet|stop\s+talking|shut\s+up|silence)\b`},
			action: func(string) (string, error) {
				if deps.Quiet != nil {
					deps.Quiet()
				}
				return "Okay.", nil
			},
		},
		{
			name:     "volume-set",
			patterns: []string{`\b(?:set\s+)?volume\s+(?:to\s+)?(\d+)\b`},
			action: func(input string) (string, error) {
				return setVolume(deps, input)
			},
		},
		{
			name:     "volume-up",
			patterns: []string{`\bvolume\s+up\b`, `\bincrease\s+(?:the\s+)?volume\b`, `\blouder\b`},
			action: func(string) (string, error) {
				return nudgeVolume(deps, 10)
			},
		},
		{
			name:     "volume-down",
			patterns: []string{`\bvolume\s+down\b`, `\bdecrease\s+(?:the\s+)?volume\b`, `\bquieter\b`},
			action: func(string) (string, error) {
				return nudgeVolume(deps, -10)
			},
		},
		{
			name:     "open",
			patterns: []string{`\bopen\s+(\w+)`, `\blaunch\s+(\w+)`},
			action:   openApp,
		},
		{
			name:     "time",
			patterns: []string{`\b(time|clock)\b`},
			action: func(string) (string, error) {
				return clock().Format("15:04"), nil
			},
		},
		{
			name:     "date",
			patterns: []string{`\b(date|today)\b`},
			action: func(string) (string, error) {
				return "Today is " + clock().Format("Monday, January 2, 2006") + ".", nil
			},
		},
		{
			name:     "math",
			patterns: []string{`\d+\s*[-+*/]\s*\d+`},
			action:   simpleMath,
		},
		{
			name:     "system",
			patterns: []string{`\b(system|computer|pc)\s+(info|information|stats)\b`},
			action: func(string) (string, error) {
				return fmt.Sprintf("Running %s on %s with %d CPUs.",
					runtime.GOOS, runtime.GOARCH, runtime.NumCPU()), nil
			},
		},
		{
			name:     "greeting",
			patterns: []string{`^\s*(hello|hi|hey)\b`},
			responses: []string{
				"Hello! How can I help you today?",
				"Hi there! What can I do for you?",
				"Hey! I'm listening.",
			},
		},
		{
			name:     "farewell",
			patterns: []string{`^\s*(goodbye|bye|see\s+you)\b`},
			responses: []string{
				"Goodbye! Have a great day!",
				"See you later!",
				"Take care!",
			},
		},
	}

	for _, d := range defs {
		if err := t.Register(d.name, d.patterns, d.action, d.responses); err != nil {
			return err
		}
	}
	return nil
}

func setVolume(deps Deps, input string) (string, error) {
	if !deps.Mixer {
		return "", fmt.Errorf("no mixer available")
	}
	m := regexp.MustCompile(`(\d+)`).FindString(input)
	level, err := strconv.Atoi(m)
	if err != nil {
		return "", fmt.Errorf("no volume level in %q", input)
	}
	if level > 100 {
		level = 100
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := audio.SetVolume(ctx, level); err != nil {
		return "", fmt.Errorf("set volume: %w", err)
	}
	return fmt.Sprintf("Volume set to %d percent.", level), nil
}

func nudgeVolume(deps Deps, delta int) (string, error) {
	if !deps.Mixer {
		return "", fmt.Errorf("no mixer available")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := audio.AdjustVolume(ctx, delta); err != nil {
		return "", fmt.Errorf("adjust volume: %w", err)
	}
	if delta > 0 {
		return "Volume up.", nil
	}
	return "Volume down.", nil
}

func openApp(input string) (string, error) {
	m := regexp.MustCompile(`(?i)\b(?:open|launch)\s+(\w+)`).FindStringSubmatch(input)
	if len(m) < 2 {
		return "", fmt.Errorf("no application name in %q", input)
	}
	name := m[1]
	bin, ok := launchable[name]
	if !ok {
		return fmt.Sprintf("I don't know how to open %q.", name), nil
	}
	if err := exec.Command(bin).Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", bin, err)
	}
	return "Opening " + name + ".", nil
}

func simpleMath(input string) (string, error) {
	m := mathRe.FindStringSubmatch(input)
	if len(m) < 4 {
		return "", fmt.Errorf("no expression in %q", input)
	}
	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[3])

	var result float64
	switch m[2] {
	case "+":
		result = float64(a + b)
	case "-":
		result = float64(a - b)
	case "*":
		result = float64(a * b)
	case "/":
		if b == 0 {
			return "I can't divide by zero.", nil
		}
		result = float64(a) / float64(b)
	}
	if result == float64(int(result)) {
		return fmt.Sprintf("%d %s %d is %d.", a, m[2], b, int(result)), nil
	}
	return fmt.Sprintf("%d %s %d is %.2f.", a, m[2], b, result), nil
}
