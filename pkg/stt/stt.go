// Package stt turns captured PCM into text. Two implementations: a cloud
// transcriber talking to the OpenAI audio API and a local one running a
// whisper.cpp model. Both expect mono float32 PCM at 16 kHz.
package stt

import (
	"context"
	"errors"
)

// ErrNoSpeech reports that the recognizer saw audio but produced no text.
// The listening loop treats it as transient and keeps going.
var ErrNoSpeech = errors.New("no speech recognized")

// Transcriber is the single capability the listening loop needs.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []float32) (string, error)
	Name() string
}
