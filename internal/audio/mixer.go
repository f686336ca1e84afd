package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

// MixerAvailable reports whether pactl is on PATH. Without it the volume
// commands and ducking silently disable themselves.
func MixerAvailable() bool {
	_, err := exec.LookPath("pactl")
	return err == nil
}

// SetVolume sets the default sink to an absolute percentage.
func SetVolume(ctx context.Context, percent int) error {
	percent = clampPercent(percent)
	return exec.CommandContext(ctx, "pactl", "set-sink-volume",
		"@DEFAULT_SINK@", fmt.Sprintf("%d%%", percent)).Run()
}

// AdjustVolume nudges the default sink by a signed percentage.
func AdjustVolume(ctx context.Context, delta int) error {
	sign := "+"
	if delta < 0 {
		sign = "-"
		delta = -delta
	}
	return exec.CommandContext(ctx, "pactl", "set-sink-volume",
		"@DEFAULT_SINK@", fmt.Sprintf("%s%d%%", sign, delta)).Run()
}

type streamInfo struct {
	ID      int
	Volume  int
	AppName string
}

type fadeTarget struct {
	id   int
	from int
	to   int
}

// Ducker fades down every playback stream except our own while the
// assistant is speaking, and restores them afterwards.
type Ducker struct {
	mu          sync.Mutex
	active      bool
	selfNames   []string
	originalVol map[int]int
	minVolume   int
}

// NewDucker builds a ducker that leaves streams whose application.name is
// in selfNames untouched. minVolume is the floor other streams fade to.
func NewDucker(selfNames []string, minVolume int) *Ducker {
	if minVolume < 0 {
		minVolume = 0
	}
	if minVolume > 150 {
		minVolume = 150
	}
	return &Ducker{
		selfNames:   append([]string(nil), selfNames...),
		originalVol: make(map[int]int),
		minVolume:   minVolume,
	}
}

// Duck fades other streams to current*factor, clamped to minVolume.
// Idempotent while active.
func (d *Ducker) Duck(ctx context.Context, factor float64, fade time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := listSinkInputs(ctx)
	if err != nil {
		return fmt.Errorf("list sink inputs: %w", err)
	}

	d.originalVol = make(map[int]int)
	var targets []fadeTarget
	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}
		to := int(math.Round(float64(s.Volume) * factor))
		if to < d.minVolume {
			to = d.minVolume
		}
		d.originalVol[s.ID] = s.Volume
		targets = append(targets, fadeTarget{id: s.ID, from: s.Volume, to: clampPercent(to)})
	}

	if err := fadeInputs(ctx, targets, fade); err != nil {
		return err
	}
	d.active = true
	return nil
}

// Unduck restores the volumes recorded by Duck. Streams that appeared
// after ducking are left alone.
func (d *Ducker) Unduck(ctx context.Context, fade time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := listSinkInputs(ctx)
	if err != nil {
		return fmt.Errorf("list sink inputs: %w", err)
	}

	var targets []fadeTarget
	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}
		orig, ok := d.originalVol[s.ID]
		if !ok {
			continue
		}
		targets = append(targets, fadeTarget{id: s.ID, from: s.Volume, to: orig})
	}

	if err := fadeInputs(ctx, targets, fade); err != nil {
		return err
	}
	d.originalVol = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) isSelf(s streamInfo) bool {
	for _, name := range d.selfNames {
		if s.AppName == name {
			return true
		}
	}
	return false
}

// fadeInputs steps a set of sink inputs toward their targets over the fade
// duration, 10 ms per step.
func fadeInputs(ctx context.Context, targets []fadeTarget, fade time.Duration) error {
	if len(targets) == 0 {
		return nil
	}
	if fade <= 0 {
		for _, t := range targets {
			if err := setSinkInputVolume(ctx, t.id, t.to); err != nil {
				return err
			}
		}
		return nil
	}

	const step = 10 * time.Millisecond
	steps := int(fade / step)
	if steps < 1 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		frac := float64(i) / float64(steps)
		for _, t := range targets {
			v := int(math.Round(float64(t.from) + float64(t.to-t.from)*frac))
			if err := setSinkInputVolume(ctx, t.id, v); err != nil {
				return err
			}
		}
		if i < steps {
			time.Sleep(fade / time.Duration(steps))
		}
	}
	return nil
}

func listSinkInputs(ctx context.Context) ([]streamInfo, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, err
	}

	blocks := strings.Split(string(out), "Sink Input #")
	var res []streamInfo
	for _, block := range blocks[1:] {
		nl := strings.IndexByte(block, '\n')
		if nl <= 0 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(block[:nl]))
		if err != nil {
			continue
		}

		s := streamInfo{ID: id}
		for _, line := range strings.Split(block[nl+1:], "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					s.Volume, _ = strconv.Atoi(m[1])
				}
			}
			if strings.HasPrefix(line, "application.name =") && s.AppName == "" {
				if parts := strings.SplitN(line, "\"", 3); len(parts) >= 2 {
					s.AppName = parts[1]
				}
			}
		}
		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}
	return res, nil
}

func setSinkInputVolume(ctx context.Context, id, percent int) error {
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume",
		strconv.Itoa(id), fmt.Sprintf("%d%%", clampPercent(percent))).Run()
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 150 {
		return 150
	}
	return p
}
