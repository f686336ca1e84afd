package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"

	"aide/pkg/audioconv"
)

// Cloud transcribes utterances with the OpenAI transcription endpoint.
// PCM is wrapped into an in-memory WAV because the API wants a file upload.
type Cloud struct {
	client   openai.Client
	model    openai.AudioModel
	language string
}

// NewCloud builds a cloud transcriber. language may be empty for
// auto-detection.
func NewCloud(client openai.Client, language string) *Cloud {
	return &Cloud{
		client:   client,
		model:    openai.AudioModelWhisper1,
		language: language,
	}
}

func (c *Cloud) Name() string { return "cloud" }

func (c *Cloud) Transcribe(ctx context.Context, pcm []float32) (string, error) {
	wavData, err := audioconv.EncodeWAV(pcm, audioconv.SampleRate)
	if err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wavData), "utterance.wav", "audio/wav"),
		Model: c.model,
	}
	if c.language != "" && c.language != "auto" {
		params.Language = openai.String(c.language)
	}

	resp, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}
