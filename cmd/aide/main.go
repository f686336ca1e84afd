package main

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"aide/internal/audio"
	"aide/internal/brain"
	"aide/internal/command"
	"aide/internal/config"
	"aide/internal/listen"
	"aide/internal/play"
	"aide/internal/proxy"
	"aide/internal/session"
	"aide/internal/speak"
	"aide/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	proxyAddr := cli.StringP("proxy", "p", "", "SOCKS5 proxy address for cloud APIs")
	logLevel := cli.StringP("log", "l", "warn", "Log level")
	logFile := cli.StringP("log-file", "f", "", "Log destination (stderr breaks the UI)")
	cli.Parse()

	// The TUI owns stdout, so logs go to a file or are muted.
	logOut := os.Stderr
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			logOut = f
			defer f.Close()
		}
	} else {
		devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err == nil {
			logOut = devnull
		}
	}
	log.SetDefault(log.New(tint.NewHandler(logOut, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))
	logger := log.Default()

	logger.Info("booting up")

	cfg := config.Load(*envFile, logger)

	httpClient, err := proxy.Client(*proxyAddr, 0)
	if err != nil {
		log.Error("failed to build http client", "proxy", *proxyAddr, "err", err)
		os.Exit(1)
	}

	var client openai.Client
	if cfg.OpenAIKey != "" {
		client = openai.NewClient(
			option.WithAPIKey(cfg.OpenAIKey),
			option.WithHTTPClient(httpClient),
		)
	}

	// Recognizer: local whisper model when configured, cloud otherwise.
	// Neither available leaves voice input disabled, text still works.
	var rec stt.Transcriber
	if cfg.WhisperModel != "" {
		local, err := stt.NewLocal(cfg.WhisperModel, cfg.Language)
		if err != nil {
			log.Warn("whisper model unusable, trying cloud", "path", cfg.WhisperModel, "err", err)
		} else {
			defer local.Close()
			rec = local
		}
	}
	if rec == nil && cfg.OpenAIKey != "" {
		rec = stt.NewCloud(client, cfg.Language)
	}
	if rec != nil {
		logger.Info("recognizer ready", "backend", rec.Name())
	}

	var mic listen.Microphone
	recorder, err := audio.NewRecorder()
	if err != nil {
		log.Warn("microphone unavailable, text input only", "err", err)
	} else {
		defer recorder.Close()
		if err := recorder.Calibrate(); err != nil {
			log.Warn("noise calibration failed, using default threshold", "err", err)
		}
		mic = recorder
	}

	player, err := play.New(logger)
	if err != nil {
		log.Warn("no audio playback, responses shown as text", "err", err)
		player = nil
	} else {
		defer player.Close()
	}

	var ducker *audio.Ducker
	if audio.MixerAvailable() && player != nil {
		ducker = audio.NewDucker([]string{"aide", "ffplay", "mpv", "paplay"}, 20)
	}

	var engines []speak.Engine
	if cfg.TTSServerURL != "" && player != nil {
		engines = append(engines, speak.NewNeural(cfg.TTSServerURL, player, logger))
	}
	engines = append(engines, speak.NewSystemVoice(cfg.Language))
	speaker := speak.New(engines, player, ducker, logger)
	defer speaker.Close()

	var cue func()
	if player != nil {
		cue = player.Cue
	}
	listener := listen.New(mic, rec, cue, logger)
	defer listener.Close()

	table := command.NewTable(logger)
	if err := command.RegisterBuiltins(table, command.Deps{
		Quiet: speaker.Interrupt,
		Mixer: audio.MixerAvailable(),
	}); err != nil {
		log.Error("builtin command registration failed", "err", err)
		os.Exit(1)
	}

	var answerer session.Answerer
	if cfg.OpenAIKey != "" {
		answerer = brain.New(client)
	}

	opts := speak.Options{
		Language:     cfg.Language,
		Exaggeration: cfg.Exaggeration,
		CFGWeight:    cfg.CFGWeight,
		RefAudio:     cfg.RefAudio,
	}
	model := session.New(listener, speaker, table, answerer, cfg.Language, opts, logger)

	logger.Info("boot up successful")

	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		log.Error("ui crashed", "err", err)
		os.Exit(1)
	}
}
