package speak

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"aide/internal/play"
	"aide/pkg/audioconv"
)

// Neural streams synthesis from a Chatterbox-style server over a
// websocket: one request frame out, base64 audio chunks back until a
// final frame. It is the only tier that honors language, emotion,
// pacing and voice cloning.
type Neural struct {
	url    string
	player play.Player
	dialer *websocket.Dialer
	log    *slog.Logger
}

func NewNeural(url string, player play.Player, log *slog.Logger) *Neural {
	return &Neural{
		url:    url,
		player: player,
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		log:    log,
	}
}

func (n *Neural) Name() string { return "neural" }

type synthRequest struct {
	Text         string  `json:"text"`
	Language     string  `json:"language,omitempty"`
	Exaggeration float64 `json:"exaggeration"`
	CFGWeight    float64 `json:"cfg_weight"`
	Format       string  `json:"format"`
	// ReferenceB64 is a 16 kHz mono WAV, base64-encoded, for cloning.
	ReferenceB64 string `json:"reference_b64,omitempty"`
}

type synthFrame struct {
	Type    string `json:"type"` // chunk | done | error
	Data    string `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func (n *Neural) Speak(ctx context.Context, text string, opts Options) error {
	if n.player == nil {
		return fmt.Errorf("no playback backend")
	}

	data, err := n.synthesize(ctx, text, opts)
	if err != nil {
		return err
	}
	return n.player.Play(ctx, data, "wav")
}

func (n *Neural) synthesize(ctx context.Context, text string, opts Options) ([]byte, error) {
	conn, _, err := n.dialer.DialContext(ctx, n.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", n.url, err)
	}
	defer conn.Close()

	exaggeration, cfg := opts.Exaggeration, opts.CFGWeight
	if exaggeration == 0 {
		exaggeration = 0.5
	}
	if cfg == 0 {
		cfg = 0.5
	}
	req := synthRequest{
		Text:         text,
		Language:     opts.Language,
		Exaggeration: clampRange(exaggeration, 0.5, 2.0),
		CFGWeight:    clampRange(cfg, 0.0, 1.0),
		Format:       "wav",
	}
	if opts.RefAudio != "" {
		ref, err := referenceWAV(opts.RefAudio)
		if err != nil {
			n.log.Warn("reference audio unusable, cloning skipped", "path", opts.RefAudio, "err", err)
		} else {
			req.ReferenceB64 = base64.StdEncoding.EncodeToString(ref)
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var audioData []byte
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		var frame synthFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			return nil, fmt.Errorf("bad frame: %w", err)
		}
		switch frame.Type {
		case "chunk":
			chunk, err := base64.StdEncoding.DecodeString(frame.Data)
			if err != nil {
				return nil, fmt.Errorf("bad chunk: %w", err)
			}
			audioData = append(audioData, chunk...)
		case "done":
			if len(audioData) == 0 {
				return nil, fmt.Errorf("server produced no audio")
			}
			return audioData, nil
		case "error":
			return nil, fmt.Errorf("server: %s", frame.Message)
		default:
			return nil, fmt.Errorf("unknown frame type %q", frame.Type)
		}
	}
}

// referenceWAV normalizes a reference clip (any supported container) to
// the 16 kHz mono WAV the server expects.
func referenceWAV(path string) ([]byte, error) {
	// Cap the clip at 30s; longer references only slow generation down.
	pcm, err := audioconv.DecodeFile(path, audioconv.Options{MaxSamples: 30 * audioconv.SampleRate})
	if err != nil {
		return nil, err
	}
	return audioconv.EncodeWAV(pcm, audioconv.SampleRate)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
