// Package audio owns the microphone and the PulseAudio mixer. Capture is
// mono float32 at 16 kHz, which is what the recognizers want.
package audio

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	// SampleRate is the capture rate, fixed at what whisper expects.
	SampleRate = 16000
	// frameSize is 20 ms of audio per read.
	frameSize = 320
)

var (
	// ErrNoSpeech means the capture window elapsed without the level ever
	// rising above the ambient floor.
	ErrNoSpeech = errors.New("no speech captured")
	// ErrUnavailable means the audio device could not be opened at init.
	ErrUnavailable = errors.New("audio device unavailable")
)

// Recorder captures single utterances from the default input device,
// delimited by a trailing-silence timeout.
type Recorder struct {
	noiseFloor float64

	// tunables, fixed after construction
	silenceAfter time.Duration
	maxUtterance time.Duration
	leadIn       time.Duration
}

// NewRecorder initializes portaudio and probes the default input device.
// A failure here means the whole process runs in text-only mode, so the
// error wraps ErrUnavailable for the caller to branch on.
func NewRecorder() (*Recorder, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if dev, err := portaudio.DefaultInputDevice(); err != nil || dev == nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: no default input device", ErrUnavailable)
	}
	return &Recorder{
		silenceAfter: 700 * time.Millisecond,
		maxUtterance: 12 * time.Second,
		leadIn:       6 * time.Second,
	}, nil
}

// Close releases portaudio. The recorder is unusable afterwards.
func (r *Recorder) Close() {
	portaudio.Terminate()
}

// Calibrate measures the ambient noise floor over roughly a second.
// Called once before the first listen.
func (r *Recorder) Calibrate() error {
	buf := make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	defer stream.Stop()

	const frames = SampleRate / frameSize // ~1s
	var sum float64
	for i := 0; i < frames; i++ {
		if err := stream.Read(); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		sum += frameRMS(buf)
	}
	r.noiseFloor = sum / frames
	return nil
}

// threshold is the RMS above which a frame counts as speech.
func (r *Recorder) threshold() float64 {
	t := r.noiseFloor * 3
	if t < 0.015 {
		t = 0.015
	}
	return t
}

// Record captures one utterance. It waits up to the lead-in window for
// speech to start, then records until silenceAfter of trailing quiet or
// the utterance cap. stop is polled between frames; closing it returns
// whatever was captured so far (or ErrNoSpeech if nothing was).
func (r *Recorder) Record(stop <-chan struct{}) ([]float32, error) {
	buf := make([]float32, frameSize)
	out := make([]float32, 0, SampleRate*3)

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}
	defer stream.Stop()

	const frameDur = 20 * time.Millisecond
	var (
		speaking      bool
		silenceFrames int
		waitedFrames  int
	)
	silenceLimit := int(r.silenceAfter / frameDur)
	leadInLimit := int(r.leadIn / frameDur)
	maxFrames := int(r.maxUtterance / frameDur)
	thresh := r.threshold()

	for i := 0; i < maxFrames; i++ {
		select {
		case <-stop:
			if !speaking {
				return nil, ErrNoSpeech
			}
			return out, nil
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}

		if frameRMS(buf) > thresh {
			speaking = true
			silenceFrames = 0
			out = append(out, buf...)
			continue
		}

		if !speaking {
			waitedFrames++
			if waitedFrames >= leadInLimit {
				return nil, ErrNoSpeech
			}
			continue
		}

		silenceFrames++
		if silenceFrames >= silenceLimit {
			break
		}
		out = append(out, buf...)
	}

	if !speaking {
		return nil, ErrNoSpeech
	}
	return out, nil
}

func frameRMS(f []float32) float64 {
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
