// Package brain answers the utterances no command pattern claimed. It is
// entirely optional: without an API key the session falls back to the
// dispatch table's echo response.
package brain

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

const persona = `You are Aide, a friendly desktop voice assistant.
Answer in one or two short sentences. Your answers are read aloud by a
text-to-speech engine, so use plain words, no markdown, no lists.`

// Brain wraps a chat model behind a single Ask call.
type Brain struct {
	client openai.Client
	model  openai.ChatModel
}

func New(client openai.Client) *Brain {
	return &Brain{client: client, model: openai.ChatModelGPT5Nano}
}

// Ask returns a short spoken-style answer for the given utterance.
func (b *Brain) Ask(ctx context.Context, text string) (string, error) {
	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(persona),
			openai.UserMessage(text),
		},
		Model: b.model,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", fmt.Errorf("empty answer")
	}
	return answer, nil
}
