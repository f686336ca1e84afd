// Package config reads the process environment once at startup. Missing
// values disable the subsystem they feed instead of aborting: no API key
// means no cloud recognizer and no brain, no TTS URL means no neural
// voice, and so on.
package config

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// OpenAIKey enables the cloud recognizer and the LLM brain.
	OpenAIKey string
	// WhisperModel is a path to a ggml model file. When set, local
	// recognition is preferred over the cloud.
	WhisperModel string
	// TTSServerURL is the websocket endpoint of the neural voice server.
	TTSServerURL string
	// Language is passed to recognizers and synthesis engines.
	Language string
	// RefAudio is an optional voice-cloning reference clip.
	RefAudio string
	// Exaggeration and CFGWeight tune the neural voice. Zero means the
	// engine default.
	Exaggeration float64
	CFGWeight    float64
}

// Load reads an optional .env file and then the environment. A missing
// env file is fine; a present but unreadable one is only logged.
func Load(envFile string, log *slog.Logger) Config {
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		log.Warn("could not read env file", "path", envFile, "err", err)
	}

	cfg := Config{
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		WhisperModel: os.Getenv("WHISPER_MODEL"),
		TTSServerURL: os.Getenv("TTS_SERVER_URL"),
		Language:     os.Getenv("AIDE_LANGUAGE"),
		RefAudio:     os.Getenv("AIDE_REF_AUDIO"),
		Exaggeration: envFloat(log, "AIDE_EXAGGERATION"),
		CFGWeight:    envFloat(log, "AIDE_CFG_WEIGHT"),
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	return cfg
}

func envFloat(log *slog.Logger, key string) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Warn("ignoring malformed env value", "key", key, "value", raw)
		return 0
	}
	return v
}
