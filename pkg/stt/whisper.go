package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Local runs a whisper.cpp model in-process. It exists so the assistant can
// keep recognizing speech with no network and no API key.
type Local struct {
	model    whisper.Model
	language string
	threads  int
}

// NewLocal loads a ggml model from disk. The model stays resident until
// Close.
func NewLocal(modelPath, language string) (*Local, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if language == "" {
		language = "auto"
	}
	return &Local{model: m, language: language}, nil
}

func (l *Local) Name() string { return "whisper" }

func (l *Local) Close() error {
	if l.model == nil {
		return nil
	}
	return l.model.Close()
}

// Transcribe runs the model over one utterance of mono 16 kHz PCM.
func (l *Local) Transcribe(ctx context.Context, pcm []float32) (string, error) {
	if l.model == nil {
		return "", errors.New("nil model")
	}
	if len(pcm) == 0 {
		return "", ErrNoSpeech
	}

	wctx, err := l.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("new context: %w", err)
	}

	if err := wctx.SetLanguage(l.language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	threads := l.threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process: %w", err)
	}

	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.TrimSpace(seg.Text))
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}
